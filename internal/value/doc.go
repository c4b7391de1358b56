// Package value implements the tagged value tree shared by the plan builder
// and the executor: scalars, sequences, mappings, structs, and deferred
// handles that stand in for results that have not been produced yet.
//
// A Deferred is deliberately cheap, a single node id, and may appear
// anywhere another value may, including nested inside lists, maps, and
// structs. Helpers that would need to observe a concrete value (Truth,
// iteration, comparison) report deferred operands to the caller instead of
// guessing, so planning-time code can surface script errors with spans.
package value
