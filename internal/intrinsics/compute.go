package intrinsics

import (
	"errors"

	"github.com/GriffinCanCode/blueprint/internal/plan"
	"github.com/GriffinCanCode/blueprint/internal/shared/errs"
	"github.com/GriffinCanCode/blueprint/internal/value"
)

// Compute intrinsics allocate nodes only when an operand is deferred.
// Fully-literal arithmetic folds at planning time through the same
// evaluation used by the executor, so `1 + 2` never reaches the plan.

func registerCompute() {
	binary := []struct {
		script string
		kind   plan.Kind
	}{
		{"add", plan.KindAdd},
		{"sub", plan.KindSub},
		{"mul", plan.KindMul},
		{"div", plan.KindDiv},
		{"floor_div", plan.KindFloorDiv},
		{"mod", plan.KindMod},
		{"eq", plan.KindEq},
		{"ne", plan.KindNe},
		{"lt", plan.KindLt},
		{"le", plan.KindLe},
		{"gt", plan.KindGt},
		{"ge", plan.KindGe},
		{"concat", plan.KindConcat},
		{"contains", plan.KindContains},
	}
	for _, op := range binary {
		kind := op.kind
		register(&intrinsic{
			script: op.script, params: []string{"a", "b"}, required: 2,
			build: func(r *Registry, c *call) (value.Value, error) {
				return computeNode(r, c, kind)
			},
		})
	}

	unary := []struct {
		script string
		kind   plan.Kind
	}{
		{"neg", plan.KindNeg},
		{"not", plan.KindNot},
		{"bool", plan.KindBool},
		{"int", plan.KindInt},
		{"float", plan.KindFloat},
		{"str", plan.KindStr},
		{"len", plan.KindLen},
	}
	for _, op := range unary {
		kind := op.kind
		register(&intrinsic{
			script: op.script, params: []string{"a"}, required: 1,
			build: func(r *Registry, c *call) (value.Value, error) {
				return computeNode(r, c, kind)
			},
		})
	}
}

func computeNode(r *Registry, c *call, kind plan.Kind) (value.Value, error) {
	if c.materialized() {
		out, err := plan.EvalCompute(kind, c.vals)
		if err != nil {
			return value.Null(), scriptErr(err)
		}
		return out, nil
	}
	return c.node(r, kind, "a", "b")
}

// scriptErr reclassifies fold-time evaluation failures as script errors;
// they happen before any plan exists to execute.
func scriptErr(err error) error {
	var e *errs.Error
	if errors.As(err, &e) {
		return e
	}
	return errs.Scriptf("%v", err)
}
