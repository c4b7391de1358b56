package plan

import (
	"sort"
	"strconv"
	"strings"

	"github.com/GriffinCanCode/blueprint/internal/shared/errs"
	"github.com/GriffinCanCode/blueprint/internal/value"
)

// Plan is a frozen operation graph. It is immutable and safe for concurrent
// readers.
type Plan struct {
	nodes []Node
	roots []value.NodeID
	index map[value.NodeID]int
}

// assemble builds a Plan from raw nodes, verifying id uniqueness and that
// every edge and root points at a node in the set. Builder output always
// passes; imported documents may not.
func assemble(nodes []Node, roots []value.NodeID) (*Plan, error) {
	index := make(map[value.NodeID]int, len(nodes))
	for i := range nodes {
		n := &nodes[i]
		if n.ID == 0 {
			return nil, errs.Scriptf("operation id 0 is reserved")
		}
		if _, dup := index[n.ID]; dup {
			return nil, errs.Scriptf("duplicate operation id op%d", n.ID)
		}
		index[n.ID] = i
	}
	for i := range nodes {
		n := &nodes[i]
		var bad value.NodeID
		n.Deps(func(d value.NodeID) {
			if _, ok := index[d]; !ok && bad == 0 {
				bad = d
			}
		})
		if bad != 0 {
			return nil, errs.Scriptf("op%d references unknown operation op%d", n.ID, bad)
		}
	}
	for _, r := range roots {
		if _, ok := index[r]; !ok {
			return nil, errs.Scriptf("root references unknown operation op%d", r)
		}
	}
	return &Plan{nodes: nodes, roots: roots, index: index}, nil
}

// FromParts assembles a plan from decoded nodes, recomputing data deps from
// argument references and rejecting dangling references and cycles. The
// binary plan file decoder builds plans through this.
func FromParts(nodes []Node, roots []value.NodeID) (*Plan, error) {
	for i := range nodes {
		nodes[i].DataDeps = collectDeps(nodes[i].Args)
	}
	p, err := assemble(nodes, roots)
	if err != nil {
		return nil, err
	}
	if _, err := p.Levels(); err != nil {
		return nil, err
	}
	return p, nil
}

// Len returns the number of nodes in the plan.
func (p *Plan) Len() int { return len(p.nodes) }

// Nodes returns the nodes in construction order. Callers must not modify
// the returned slice.
func (p *Plan) Nodes() []Node { return p.nodes }

// Roots returns the root ids in the order they were marked.
func (p *Plan) Roots() []value.NodeID { return p.roots }

// IsRoot reports whether id was marked as a root.
func (p *Plan) IsRoot(id value.NodeID) bool {
	for _, r := range p.roots {
		if r == id {
			return true
		}
	}
	return false
}

// Get returns the node with the given id.
func (p *Plan) Get(id value.NodeID) (*Node, bool) {
	i, ok := p.index[id]
	if !ok {
		return nil, false
	}
	return &p.nodes[i], true
}

// Dependents returns, for every node, the ids of nodes that depend on it.
// The executor uses this to wake successors when a node reaches a terminal
// state.
func (p *Plan) Dependents() map[value.NodeID][]value.NodeID {
	out := make(map[value.NodeID][]value.NodeID, len(p.nodes))
	for i := range p.nodes {
		n := &p.nodes[i]
		n.Deps(func(d value.NodeID) {
			out[d] = append(out[d], n.ID)
		})
	}
	for id, deps := range out {
		sort.Slice(deps, func(i, j int) bool { return deps[i] < deps[j] })
		out[id] = dedupSorted(deps)
	}
	return out
}

// Levels partitions the node ids into dependency waves: every node in level
// i depends only on nodes in levels before i. Ids are sorted within each
// level. A cycle (possible only in imported documents) is reported as a
// script error naming the trapped ids.
func (p *Plan) Levels() ([][]value.NodeID, error) {
	indegree := make(map[value.NodeID]int, len(p.nodes))
	successors := make(map[value.NodeID][]value.NodeID, len(p.nodes))
	for i := range p.nodes {
		n := &p.nodes[i]
		if _, ok := indegree[n.ID]; !ok {
			indegree[n.ID] = 0
		}
		seen := make(map[value.NodeID]struct{})
		n.Deps(func(d value.NodeID) {
			if _, dup := seen[d]; dup {
				return
			}
			seen[d] = struct{}{}
			successors[d] = append(successors[d], n.ID)
			indegree[n.ID]++
		})
	}

	var levels [][]value.NodeID
	wave := make([]value.NodeID, 0, len(p.nodes))
	for id, deg := range indegree {
		if deg == 0 {
			wave = append(wave, id)
		}
	}
	placed := 0
	for len(wave) > 0 {
		sort.Slice(wave, func(i, j int) bool { return wave[i] < wave[j] })
		levels = append(levels, wave)
		placed += len(wave)
		var next []value.NodeID
		for _, id := range wave {
			for _, succ := range successors[id] {
				indegree[succ]--
				if indegree[succ] == 0 {
					next = append(next, succ)
				}
			}
		}
		wave = next
	}
	if placed != len(p.nodes) {
		trapped := make([]value.NodeID, 0, len(p.nodes)-placed)
		for id, deg := range indegree {
			if deg > 0 {
				trapped = append(trapped, id)
			}
		}
		sort.Slice(trapped, func(i, j int) bool { return trapped[i] < trapped[j] })
		return nil, errs.Scriptf("dependency cycle involving %s", opList(trapped))
	}
	return levels, nil
}

func dedupSorted(ids []value.NodeID) []value.NodeID {
	out := ids[:0]
	var last value.NodeID
	for i, id := range ids {
		if i > 0 && id == last {
			continue
		}
		out = append(out, id)
		last = id
	}
	return out
}

func opList(ids []value.NodeID) string {
	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("op")
		b.WriteString(strconv.FormatUint(uint64(id), 10))
	}
	return b.String()
}
