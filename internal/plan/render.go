package plan

import (
	"fmt"
	"strings"
)

// String renders the plan in the human form used by `blueprint inspect --text`
// and by failure reports.
func (p *Plan) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "plan: %d ops, %d roots\n", len(p.nodes), len(p.roots))
	for i := range p.nodes {
		b.WriteString("  ")
		b.WriteString(p.nodes[i].Summary())
		b.WriteByte('\n')
	}
	if len(p.roots) > 0 {
		fmt.Fprintf(&b, "roots: %s\n", opList(p.roots))
	}
	return b.String()
}

// ExportDOT renders the graph in Graphviz dot form. Data edges are solid,
// order edges dashed, roots double-circled.
func (p *Plan) ExportDOT() string {
	var b strings.Builder
	b.WriteString("digraph plan {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box, fontname=\"monospace\"];\n")
	for i := range p.nodes {
		n := &p.nodes[i]
		shape := ""
		if p.IsRoot(n.ID) {
			shape = ", peripheries=2"
		}
		fmt.Fprintf(&b, "  n%d [label=\"op%d\\n%s\"%s];\n", n.ID, n.ID, n.Kind, shape)
	}
	for i := range p.nodes {
		n := &p.nodes[i]
		for _, d := range n.DataDeps {
			fmt.Fprintf(&b, "  n%d -> n%d;\n", d, n.ID)
		}
		for _, d := range n.OrderDeps {
			fmt.Fprintf(&b, "  n%d -> n%d [style=dashed];\n", d, n.ID)
		}
	}
	b.WriteString("}\n")
	return b.String()
}
