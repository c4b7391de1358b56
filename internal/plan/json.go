package plan

import (
	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/blueprint/internal/shared/errs"
	"github.com/GriffinCanCode/blueprint/internal/value"
)

// scriptJSON decodes integers as int64 so large literals survive the
// round trip instead of collapsing into float64.
var scriptJSON = sonic.Config{UseInt64: true, SortMapKeys: true}.Froze()

// EvalJSON evaluates a serialization kind over materialized arguments.
// Planning-time folding and the executor both dispatch through this, so
// fold-time and run-time results cannot diverge.
func EvalJSON(kind Kind, args map[string]value.Value) (value.Value, error) {
	switch kind {
	case KindJSONEncode:
		return encodeJSONValue(args["value"])
	case KindJSONDecode:
		text, ok := args["text"].AsString()
		if !ok {
			return value.Null(), errs.Scriptf("json_decode() argument must be a string, got %s", args["text"].Kind())
		}
		return decodeJSONValue(text)
	default:
		return value.Null(), errs.Scriptf("%s is not a serialization operation", kind)
	}
}

// encodeJSONValue serializes a materialized value to its JSON text.
// Bytes and unresolved references are not serializable; both are script
// errors because the script handed the engine a value JSON cannot carry.
func encodeJSONValue(v value.Value) (value.Value, error) {
	tree, err := v.ToInterface()
	if err != nil {
		return value.Null(), errs.Scriptf("json_encode(): %v", err)
	}
	text, err := scriptJSON.MarshalToString(tree)
	if err != nil {
		return value.Null(), errs.Scriptf("json_encode(): %v", err)
	}
	return value.Str(text), nil
}

// decodeJSONValue parses JSON text into a value. Objects become maps
// with sorted keys, arrays become lists, and whole numbers become ints.
func decodeJSONValue(text string) (value.Value, error) {
	var tree interface{}
	if err := scriptJSON.UnmarshalFromString(text, &tree); err != nil {
		return value.Null(), errs.Scriptf("json_decode(): invalid JSON: %v", err)
	}
	v, err := value.FromInterface(tree)
	if err != nil {
		return value.Null(), errs.Scriptf("json_decode(): %v", err)
	}
	return v, nil
}
