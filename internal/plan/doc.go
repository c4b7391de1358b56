// Package plan implements the operation DAG produced in the planning phase:
// the append-only builder, the frozen plan, topological leveling, static
// validation, and the rendering/document forms consumed by the CLI and the
// daemon.
//
// Plans are immutable once frozen. The builder maintains acyclicity by
// construction order: a node may only reference nodes that already exist,
// and the one mutation primitive (order edges, used by after/sequence)
// rejects edges that would close a cycle.
package plan
