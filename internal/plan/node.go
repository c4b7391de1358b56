package plan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/GriffinCanCode/blueprint/internal/value"
)

// Span records where in the source script a node was constructed.
type Span struct {
	File string `json:"file" yaml:"file"`
	Line int    `json:"line" yaml:"line"`
	Col  int    `json:"col" yaml:"col"`
}

func (s *Span) String() string {
	if s == nil {
		return ""
	}
	return fmt.Sprintf("%s:%d:%d", s.File, s.Line, s.Col)
}

// Node is one deferred operation in the plan. DataDeps are the node ids
// referenced by Args; OrderDeps sequence execution without forwarding a
// value. Both are sorted ascending and deduplicated.
type Node struct {
	ID        value.NodeID
	Kind      Kind
	Args      map[string]value.Value
	DataDeps  []value.NodeID
	OrderDeps []value.NodeID
	Span      *Span
}

// Deps calls fn for every dependency, data deps first. A node is ready only
// once all of these are terminal.
func (n *Node) Deps(fn func(value.NodeID)) {
	for _, d := range n.DataDeps {
		fn(d)
	}
	for _, d := range n.OrderDeps {
		fn(d)
	}
}

// Arg returns the named argument, or a null value when absent.
func (n *Node) Arg(name string) value.Value {
	if v, ok := n.Args[name]; ok {
		return v
	}
	return value.Null()
}

// HasArg reports whether the named argument was set.
func (n *Node) HasArg(name string) bool {
	_, ok := n.Args[name]
	return ok
}

// ArgNames returns the argument names in sorted order. Rendering and the
// binary codec both rely on this to keep output deterministic.
func (n *Node) ArgNames() []string {
	names := make([]string, 0, len(n.Args))
	for name := range n.Args {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Summary renders the node as "opN: kind(a=1, b=<op2>)" for plan displays
// and error messages.
func (n *Node) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "op%d: %s(", n.ID, n.Kind)
	for i, name := range n.ArgNames() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(renderArg(n.Args[name]))
	}
	b.WriteByte(')')
	if len(n.OrderDeps) > 0 {
		b.WriteString(" after ")
		for i, d := range n.OrderDeps {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "<op%d>", d)
		}
	}
	return b.String()
}

// renderArg is Repr with deferred references shown as <opN>, recursively.
func renderArg(v value.Value) string {
	switch v.Kind() {
	case value.KindDeferred:
		id, _ := v.AsDeferred()
		return fmt.Sprintf("<op%d>", id)
	case value.KindList:
		items, _ := v.AsList()
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = renderArg(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case value.KindMap:
		entries, _ := v.AsMap()
		parts := make([]string, len(entries))
		for i, e := range entries {
			parts[i] = e.Key.Repr() + ": " + renderArg(e.Val)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case value.KindStruct:
		fields, _ := v.AsStruct()
		parts := make([]string, len(fields))
		for i, f := range fields {
			parts[i] = f.Name + "=" + renderArg(f.Val)
		}
		return "struct(" + strings.Join(parts, ", ") + ")"
	default:
		return v.Repr()
	}
}

// collectDeps extracts every deferred reference in args, sorted and deduped.
func collectDeps(args map[string]value.Value) []value.NodeID {
	seen := make(map[value.NodeID]struct{})
	for _, v := range args {
		v.ForEachDeferred(func(id value.NodeID) {
			seen[id] = struct{}{}
		})
	}
	if len(seen) == 0 {
		return nil
	}
	deps := make([]value.NodeID, 0, len(seen))
	for id := range seen {
		deps = append(deps, id)
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i] < deps[j] })
	return deps
}

func insertDep(deps []value.NodeID, id value.NodeID) []value.NodeID {
	i := sort.Search(len(deps), func(i int) bool { return deps[i] >= id })
	if i < len(deps) && deps[i] == id {
		return deps
	}
	deps = append(deps, 0)
	copy(deps[i+1:], deps[i:])
	deps[i] = id
	return deps
}
