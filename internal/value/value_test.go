package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroValueIsNull(t *testing.T) {
	var v Value
	assert.Equal(t, KindNull, v.Kind())
	assert.True(t, v.IsNull())
}

func TestAccessors(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		kind Kind
	}{
		{"null", Null(), KindNull},
		{"bool", Bool(true), KindBool},
		{"int", Int(42), KindInt},
		{"float", Float(3.14), KindFloat},
		{"string", Str("hello"), KindString},
		{"bytes", Bytes([]byte{1, 2}), KindBytes},
		{"list", List(Int(1), Int(2)), KindList},
		{"map", Map(Entry{Key: Str("a"), Val: Int(1)}), KindMap},
		{"struct", Struct(Field{Name: "x", Val: Int(1)}), KindStruct},
		{"deferred", Deferred(7), KindDeferred},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.v.Kind())
		})
	}
}

func TestMapGetPreservesOrderAndLookups(t *testing.T) {
	m := Map(
		Entry{Key: Str("b"), Val: Int(2)},
		Entry{Key: Str("a"), Val: Int(1)},
	)

	v, ok := m.MapGet("a")
	require.True(t, ok)
	assert.True(t, Equal(v, Int(1)))

	_, ok = m.MapGet("missing")
	assert.False(t, ok)

	entries, _ := m.AsMap()
	k0, _ := entries[0].Key.AsString()
	assert.Equal(t, "b", k0, "insertion order preserved")
}

func TestForEachDeferredFindsNestedRefs(t *testing.T) {
	v := List(
		Int(1),
		Map(Entry{Key: Str("inner"), Val: Deferred(3)}),
		Struct(Field{Name: "f", Val: List(Deferred(5), Deferred(3))}),
	)

	var seen []NodeID
	v.ForEachDeferred(func(id NodeID) { seen = append(seen, id) })
	assert.Equal(t, []NodeID{3, 5, 3}, seen)
	assert.False(t, v.IsMaterialized())
	assert.True(t, Int(1).IsMaterialized())
}

func TestSubstituteReplacesDeferreds(t *testing.T) {
	v := Struct(
		Field{Name: "status", Val: Deferred(1)},
		Field{Name: "body", Val: List(Deferred(2), Str("tail"))},
	)

	results := map[NodeID]Value{1: Int(200), 2: Str("payload")}
	out, err := Substitute(v, func(id NodeID) (Value, bool) {
		r, ok := results[id]
		return r, ok
	})
	require.NoError(t, err)

	status, ok := out.StructGet("status")
	require.True(t, ok)
	assert.True(t, Equal(status, Int(200)))

	body, _ := out.StructGet("body")
	items, _ := body.AsList()
	assert.True(t, Equal(items[0], Str("payload")))
}

func TestSubstituteMissingResultFails(t *testing.T) {
	_, err := Substitute(Deferred(9), func(NodeID) (Value, bool) {
		return Value{}, false
	})
	assert.Error(t, err)
}

func TestToInterfaceRejectsDeferredAndBytes(t *testing.T) {
	_, err := List(Deferred(1)).ToInterface()
	assert.Error(t, err)

	_, err = Bytes([]byte("x")).ToInterface()
	assert.Error(t, err)
}

func TestInterfaceRoundTrip(t *testing.T) {
	v := Map(
		Entry{Key: Str("name"), Val: Str("bp")},
		Entry{Key: Str("count"), Val: Int(3)},
		Entry{Key: Str("ratio"), Val: Float(0.5)},
		Entry{Key: Str("tags"), Val: List(Str("a"), Str("b"))},
		Entry{Key: Str("none"), Val: Null()},
	)

	tree, err := v.ToInterface()
	require.NoError(t, err)

	back, err := FromInterface(tree)
	require.NoError(t, err)
	assert.True(t, Equal(v, back))
}

func TestFromInterfaceIntegralFloatsBecomeInts(t *testing.T) {
	v, err := FromInterface(float64(7))
	require.NoError(t, err)
	assert.Equal(t, KindInt, v.Kind())

	v, err = FromInterface(7.5)
	require.NoError(t, err)
	assert.Equal(t, KindFloat, v.Kind())
}
