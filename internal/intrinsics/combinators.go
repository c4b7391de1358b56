package intrinsics

import (
	"github.com/GriffinCanCode/blueprint/internal/plan"
	"github.com/GriffinCanCode/blueprint/internal/shared/errs"
	"github.com/GriffinCanCode/blueprint/internal/value"
)

// Combinator construction. gather/any/at_least/at_most become nodes the
// scheduler resolves with its own completion rules; after and sequence also
// rewrite the graph with order edges at construction time.

func registerCombinators() {
	register(&intrinsic{
		script: "gather", params: []string{"ops"}, required: 1,
		build: func(r *Registry, c *call) (value.Value, error) {
			ops, isList, err := opsArg(c)
			if err != nil {
				return value.Null(), err
			}
			if isList && len(ops) == 0 {
				return value.List(), nil
			}
			return c.node(r, plan.KindGather, "ops")
		},
	})

	register(&intrinsic{
		script: "any", params: []string{"ops"}, required: 1,
		build: func(r *Registry, c *call) (value.Value, error) {
			ops, isList, err := opsArg(c)
			if err != nil {
				return value.Null(), err
			}
			if isList && len(ops) == 0 {
				return value.Null(), errs.Scriptf("any() requires at least one operation")
			}
			return c.node(r, plan.KindAny, "ops")
		},
	})

	register(countCombinator("at_least", plan.KindAtLeast))
	register(countCombinator("at_most", plan.KindAtMost))

	register(&intrinsic{
		script: "after", params: []string{"x", "y"}, required: 2,
		build: buildAfter,
	})

	register(&intrinsic{
		script: "sequence", params: []string{"ops"}, required: 1,
		build: buildSequence,
	})

	register(&intrinsic{
		script: "mark_root", params: []string{"op"}, required: 1,
		build: func(r *Registry, c *call) (value.Value, error) {
			op := c.get("op")
			if id, ok := op.AsDeferred(); ok {
				if err := r.b.MarkRoot(id); err != nil {
					return value.Null(), err
				}
			}
			return op, nil
		},
	})
}

func countCombinator(script string, kind plan.Kind) *intrinsic {
	return &intrinsic{
		script: script, params: []string{"count", "ops"}, required: 2,
		build: func(r *Registry, c *call) (value.Value, error) {
			ops, isList, err := opsArg(c)
			if err != nil {
				return value.Null(), err
			}
			if cnt := c.get("count"); cnt.IsMaterialized() {
				n, ok := cnt.AsInt()
				if !ok {
					return value.Null(), errs.Scriptf("%s count must be an integer", kind)
				}
				if n < 0 {
					return value.Null(), errs.Scriptf("%s count must not be negative, got %d", kind, n)
				}
				if kind == plan.KindAtLeast && isList && n > int64(len(ops)) {
					return value.Null(), errs.Scriptf("at_least requires %d successes but composes only %d operations", n, len(ops))
				}
			}
			return c.node(r, kind, "count", "ops")
		},
	}
}

// opsArg validates the ops parameter shape: a list (members may be
// deferred), or a deferred whose shape is unknown until run time.
func opsArg(c *call) (items []value.Value, isList bool, err error) {
	v := c.get("ops")
	if items, ok := v.AsList(); ok {
		return items, true, nil
	}
	if v.IsDeferred() {
		return nil, false, nil
	}
	return nil, false, errs.Scriptf("%s() ops must be a list, got %s", c.in.script, v.Kind())
}

// buildAfter wires after(x, y): the node forwards y's value and carries an
// order dep on x, and y itself gains an order edge on x so x completes
// before y starts.
func buildAfter(r *Registry, c *call) (value.Value, error) {
	x, y := c.get("x"), c.get("y")

	xID, xDeferred := x.AsDeferred()
	if yID, ok := y.AsDeferred(); ok && xDeferred {
		if err := r.b.AddOrderEdge(yID, xID); err != nil {
			return value.Null(), err
		}
	}

	out, err := r.b.NewNode(plan.KindAfter, map[string]value.Value{"y": y}, c.span)
	if err != nil {
		return value.Null(), err
	}
	if xDeferred {
		outID, _ := out.AsDeferred()
		if err := r.b.AddOrderEdge(outID, xID); err != nil {
			return value.Null(), err
		}
	}
	return out, nil
}

// buildSequence chains order edges between consecutive deferred members and
// wraps the list in a gather node. There is no sequence kind; the rewrite is
// the whole semantics.
func buildSequence(r *Registry, c *call) (value.Value, error) {
	ops := c.get("ops")
	items, ok := ops.AsList()
	if !ok {
		return value.Null(), errs.Scriptf("sequence() ops must be a list, got %s", ops.Kind())
	}
	if len(items) == 0 {
		return value.List(), nil
	}

	var prev value.NodeID
	for _, it := range items {
		id, deferred := it.AsDeferred()
		if !deferred {
			continue
		}
		if prev != 0 {
			if err := r.b.AddOrderEdge(id, prev); err != nil {
				return value.Null(), err
			}
		}
		prev = id
	}
	return r.b.NewNode(plan.KindGather, map[string]value.Value{"ops": ops}, c.span)
}
