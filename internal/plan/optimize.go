package plan

import (
	"github.com/GriffinCanCode/blueprint/internal/shared/errs"
	"github.com/GriffinCanCode/blueprint/internal/value"
)

// OptLevel selects how aggressively Optimize rewrites a plan.
type OptLevel uint8

const (
	// OptNone leaves the plan untouched.
	OptNone OptLevel = iota
	// OptBasic prunes nodes unreachable from the roots.
	OptBasic
	// OptAggressive additionally folds compute nodes with literal arguments.
	OptAggressive
)

func (l OptLevel) String() string {
	switch l {
	case OptBasic:
		return "basic"
	case OptAggressive:
		return "aggressive"
	default:
		return "none"
	}
}

// ParseOptLevel maps the -O flag values 0, 1, and 2.
func ParseOptLevel(s string) (OptLevel, error) {
	switch s {
	case "0":
		return OptNone, nil
	case "1":
		return OptBasic, nil
	case "2":
		return OptAggressive, nil
	default:
		return OptNone, errs.Scriptf("invalid optimization level %q (expected 0, 1, or 2)", s)
	}
}

// OptStats reports what Optimize did.
type OptStats struct {
	Folded int
	Pruned int
}

// Optimize returns a rewritten copy of the plan. Node ids are preserved;
// folding replaces references to a folded node with its literal result, and
// pruning drops nodes no root can reach. A plan without roots is returned
// unchanged apart from folding, since there is nothing to prune against.
func Optimize(p *Plan, level OptLevel) (*Plan, OptStats, error) {
	if level == OptNone || p.Len() == 0 {
		return p, OptStats{}, nil
	}

	levels, err := p.Levels()
	if err != nil {
		return nil, OptStats{}, err
	}

	var stats OptStats
	nodes := make([]Node, len(p.nodes))
	copy(nodes, p.nodes)
	byID := make(map[value.NodeID]*Node, len(nodes))
	for i := range nodes {
		byID[nodes[i].ID] = &nodes[i]
	}

	// Nodes named as order-dep predecessors must survive folding, since an
	// order edge has no value to substitute.
	orderRef := make(map[value.NodeID]struct{})
	for i := range nodes {
		for _, d := range nodes[i].OrderDeps {
			orderRef[d] = struct{}{}
		}
	}

	folded := make(map[value.NodeID]value.Value)
	if level >= OptAggressive {
		lookup := func(id value.NodeID) (value.Value, bool) {
			if r, ok := folded[id]; ok {
				return r, true
			}
			return value.Deferred(id), true
		}
		for _, wave := range levels {
			for _, id := range wave {
				n := byID[id]
				if len(folded) > 0 && len(n.Args) > 0 {
					args := make(map[string]value.Value, len(n.Args))
					for name, v := range n.Args {
						sub, err := value.Substitute(v, lookup)
						if err != nil {
							return nil, OptStats{}, err
						}
						args[name] = sub
					}
					n.Args = args
					n.DataDeps = collectDeps(args)
				}
				if !n.Kind.Compute() || p.IsRoot(id) || len(n.DataDeps) > 0 || len(n.OrderDeps) > 0 {
					continue
				}
				if _, ordered := orderRef[id]; ordered {
					continue
				}
				result, evalErr := EvalCompute(n.Kind, n.Args)
				if evalErr != nil {
					// Leave the node in place so the failure surfaces at
					// run time with its span attached.
					continue
				}
				folded[id] = result
				stats.Folded++
			}
		}
	}

	keep := make(map[value.NodeID]struct{}, len(nodes))
	if len(p.roots) == 0 {
		for i := range nodes {
			if _, isFolded := folded[nodes[i].ID]; !isFolded {
				keep[nodes[i].ID] = struct{}{}
			}
		}
	} else {
		stack := make([]value.NodeID, 0, len(p.roots))
		for _, r := range p.roots {
			if _, isFolded := folded[r]; !isFolded {
				stack = append(stack, r)
			}
		}
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if _, ok := keep[id]; ok {
				continue
			}
			keep[id] = struct{}{}
			byID[id].Deps(func(d value.NodeID) {
				if _, isFolded := folded[d]; !isFolded {
					stack = append(stack, d)
				}
			})
		}
	}

	kept := make([]Node, 0, len(keep))
	for i := range nodes {
		if _, ok := keep[nodes[i].ID]; ok {
			kept = append(kept, nodes[i])
		}
	}
	stats.Pruned = len(nodes) - len(kept)

	out, err := assemble(kept, p.roots)
	if err != nil {
		return nil, OptStats{}, err
	}
	return out, stats, nil
}
