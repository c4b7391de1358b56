package plan

import (
	"github.com/GriffinCanCode/blueprint/internal/shared/errs"
	"github.com/GriffinCanCode/blueprint/internal/value"
)

// EvalCompute evaluates a pure compute kind over materialized arguments.
// Both the optimizer (constant folding) and the executor's compute driver
// dispatch through this, so fold-time and run-time results cannot diverge.
func EvalCompute(kind Kind, args map[string]value.Value) (value.Value, error) {
	a := args["a"]
	b := args["b"]
	switch kind {
	case KindAdd:
		return value.Add(a, b)
	case KindSub:
		return value.Sub(a, b)
	case KindMul:
		return value.Mul(a, b)
	case KindDiv:
		return value.Div(a, b)
	case KindFloorDiv:
		return value.FloorDiv(a, b)
	case KindMod:
		return value.Mod(a, b)
	case KindNeg:
		return value.Neg(a)
	case KindEq:
		return value.Bool(value.Equal(a, b)), nil
	case KindNe:
		return value.Bool(!value.Equal(a, b)), nil
	case KindLt:
		c, err := value.Compare(a, b)
		if err != nil {
			return value.Null(), err
		}
		return value.Bool(c < 0), nil
	case KindLe:
		c, err := value.Compare(a, b)
		if err != nil {
			return value.Null(), err
		}
		return value.Bool(c <= 0), nil
	case KindGt:
		c, err := value.Compare(a, b)
		if err != nil {
			return value.Null(), err
		}
		return value.Bool(c > 0), nil
	case KindGe:
		c, err := value.Compare(a, b)
		if err != nil {
			return value.Null(), err
		}
		return value.Bool(c >= 0), nil
	case KindNot:
		return value.Not(a)
	case KindConcat:
		return value.Concat(a, b)
	case KindContains:
		return value.Contains(a, b)
	case KindBool:
		return value.ToBool(a)
	case KindInt:
		return value.ToInt(a)
	case KindFloat:
		return value.ToFloat(a)
	case KindStr:
		return value.ToStr(a)
	case KindLen:
		return value.Len(a)
	default:
		return value.Null(), errs.Scriptf("%s is not a compute operation", kind)
	}
}
