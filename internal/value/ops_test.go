package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdd(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want Value
	}{
		{"int int", Int(1), Int(2), Int(3)},
		{"int float", Int(1), Float(3.141), Float(4.141)},
		{"float float", Float(1.5), Float(2.5), Float(4.0)},
		{"string string", Str("hello"), Str(" world"), Str("hello world")},
		{"bytes bytes", Bytes([]byte("ab")), Bytes([]byte("cd")), Bytes([]byte("abcd"))},
		{"list list", List(Int(1)), List(Int(2)), List(Int(1), Int(2))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Add(tt.a, tt.b)
			require.NoError(t, err)
			assert.True(t, Equal(tt.want, got), "got %s", got)
		})
	}

	_, err := Add(Int(1), Str("x"))
	assert.Error(t, err)
}

func TestFloorDivRoundsTowardNegativeInfinity(t *testing.T) {
	tests := []struct {
		a, b, want int64
	}{
		{10, 3, 3},
		{3, 2, 1},
		{-10, 3, -4},
		{10, -3, -4},
		{-10, -3, 3},
	}

	for _, tt := range tests {
		got, err := FloorDiv(Int(tt.a), Int(tt.b))
		require.NoError(t, err)
		assert.True(t, Equal(Int(tt.want), got), "%d // %d", tt.a, tt.b)
	}

	_, err := FloorDiv(Int(1), Int(0))
	assert.Error(t, err)
}

func TestModTakesSignOfDivisor(t *testing.T) {
	tests := []struct {
		a, b, want int64
	}{
		{10, 3, 1},
		{-10, 3, 2},
		{10, -3, -2},
	}

	for _, tt := range tests {
		got, err := Mod(Int(tt.a), Int(tt.b))
		require.NoError(t, err)
		assert.True(t, Equal(Int(tt.want), got), "%d %% %d", tt.a, tt.b)
	}
}

func TestDivAlwaysFloat(t *testing.T) {
	got, err := Div(Int(10), Int(4))
	require.NoError(t, err)
	assert.Equal(t, KindFloat, got.Kind())
	f, _ := got.AsFloat()
	assert.InDelta(t, 2.5, f, 1e-9)

	_, err = Div(Int(1), Int(0))
	assert.Error(t, err)
}

func TestMulRepetition(t *testing.T) {
	got, err := Mul(Str("ab"), Int(3))
	require.NoError(t, err)
	assert.True(t, Equal(Str("ababab"), got))

	got, err = Mul(Int(2), List(Int(1)))
	require.NoError(t, err)
	assert.True(t, Equal(List(Int(1), Int(1)), got))
}

func TestEqualCrossesNumericKindsButNotBool(t *testing.T) {
	assert.True(t, Equal(Int(1), Float(1.0)))
	assert.True(t, Equal(Float(0.0), Float(-0.0)))
	assert.False(t, Equal(Int(1), Bool(true)))
	assert.False(t, Equal(Null(), Int(0)))
	assert.True(t, Equal(Null(), Null()))
}

func TestEqualMapsOrderInsensitive(t *testing.T) {
	a := Map(Entry{Key: Str("x"), Val: Int(1)}, Entry{Key: Str("y"), Val: Int(2)})
	b := Map(Entry{Key: Str("y"), Val: Int(2)}, Entry{Key: Str("x"), Val: Int(1)})
	assert.True(t, Equal(a, b))
}

func TestCompare(t *testing.T) {
	c, err := Compare(Str("abc"), Str("abd"))
	require.NoError(t, err)
	assert.Equal(t, -1, c)

	c, err = Compare(Int(2), Float(1.5))
	require.NoError(t, err)
	assert.Equal(t, 1, c)

	c, err = Compare(List(Int(1), Int(2)), List(Int(1), Int(3)))
	require.NoError(t, err)
	assert.Equal(t, -1, c)

	_, err = Compare(Null(), Int(1))
	assert.Error(t, err)
}

func TestTruthiness(t *testing.T) {
	falsy := []Value{Null(), Bool(false), Int(0), Float(0.0), Str(""), Bytes(nil), List(), Map()}
	for _, v := range falsy {
		got, ok := Truth(v)
		require.True(t, ok)
		assert.False(t, got, "%s should be falsy", v.Repr())
	}

	truthy := []Value{Bool(true), Int(-1), Float(0.1), Str("x"), List(Int(1)), Struct()}
	for _, v := range truthy {
		got, ok := Truth(v)
		require.True(t, ok)
		assert.True(t, got, "%s should be truthy", v.Repr())
	}

	_, ok := Truth(Deferred(1))
	assert.False(t, ok, "deferred has no truth value during planning")
}

func TestCoercions(t *testing.T) {
	v, err := ToInt(Str(" 42 "))
	require.NoError(t, err)
	assert.True(t, Equal(Int(42), v))

	v, err = ToInt(Float(-2.9))
	require.NoError(t, err)
	assert.True(t, Equal(Int(-2), v), "int() truncates toward zero")

	v, err = ToInt(Bool(true))
	require.NoError(t, err)
	assert.True(t, Equal(Int(1), v))

	_, err = ToInt(Str("nope"))
	assert.Error(t, err)

	v, err = ToFloat(Int(3))
	require.NoError(t, err)
	assert.True(t, Equal(Float(3.0), v))

	v, err = ToStr(Bool(true))
	require.NoError(t, err)
	assert.True(t, Equal(Str("True"), v))
}

func TestLen(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want int64
	}{
		{"string runes", Str("héllo"), 5},
		{"bytes", Bytes([]byte{1, 2, 3}), 3},
		{"list", List(Int(1), Int(2)), 2},
		{"map", Map(Entry{Key: Str("a"), Val: Int(1)}), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Len(tt.v)
			require.NoError(t, err)
			assert.True(t, Equal(Int(tt.want), got))
		})
	}

	_, err := Len(Int(3))
	assert.Error(t, err)
}

func TestContains(t *testing.T) {
	got, err := Contains(Str("hello"), Str("el"))
	require.NoError(t, err)
	assert.True(t, Equal(Bool(true), got))

	got, err = Contains(List(Int(1), Int(2)), Int(2))
	require.NoError(t, err)
	assert.True(t, Equal(Bool(true), got))

	got, err = Contains(Map(Entry{Key: Str("k"), Val: Int(1)}), Str("k"))
	require.NoError(t, err)
	assert.True(t, Equal(Bool(true), got))

	_, err = Contains(Int(1), Int(1))
	assert.Error(t, err)
}
