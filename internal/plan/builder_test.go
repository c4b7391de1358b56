package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/blueprint/internal/shared/errs"
	"github.com/GriffinCanCode/blueprint/internal/value"
)

// TestBuilderNewNode tests id assignment and data dep collection
func TestBuilderNewNode(t *testing.T) {
	b := NewBuilder()

	h1, err := b.NewNode(KindReadFile, map[string]value.Value{"path": value.Str("/tmp/a")}, nil)
	require.NoError(t, err)
	id1, ok := h1.AsDeferred()
	require.True(t, ok)
	assert.Equal(t, value.NodeID(1), id1)

	h2, err := b.NewNode(KindConcat, map[string]value.Value{
		"a": h1,
		"b": value.Str("!"),
	}, &Span{File: "s.star", Line: 3, Col: 1})
	require.NoError(t, err)
	id2, _ := h2.AsDeferred()
	assert.Equal(t, value.NodeID(2), id2)

	p, err := b.Freeze()
	require.NoError(t, err)
	require.Equal(t, 2, p.Len())

	n, ok := p.Get(2)
	require.True(t, ok)
	assert.Equal(t, KindConcat, n.Kind)
	assert.Equal(t, []value.NodeID{1}, n.DataDeps)
	assert.Equal(t, "s.star:3:1", n.Span.String())
}

// TestBuilderDepsDeduplicated tests that repeated references collapse to one dep
func TestBuilderDepsDeduplicated(t *testing.T) {
	b := NewBuilder()
	h1, err := b.NewNode(KindNow, nil, nil)
	require.NoError(t, err)

	h2, err := b.NewNode(KindGather, map[string]value.Value{
		"ops": value.List(h1, h1, h1),
	}, nil)
	require.NoError(t, err)

	p, err := b.Freeze()
	require.NoError(t, err)
	id2, _ := h2.AsDeferred()
	n, _ := p.Get(id2)
	assert.Equal(t, []value.NodeID{1}, n.DataDeps)
}

// TestBuilderRootsSideEffects tests that side-effecting kinds are rooted automatically
func TestBuilderRootsSideEffects(t *testing.T) {
	b := NewBuilder()
	_, err := b.NewNode(KindReadFile, map[string]value.Value{"path": value.Str("/tmp/a")}, nil)
	require.NoError(t, err)
	_, err = b.NewNode(KindWriteFile, map[string]value.Value{
		"path":    value.Str("/tmp/b"),
		"content": value.Str("hi"),
	}, nil)
	require.NoError(t, err)

	require.NoError(t, b.MarkRoot(2))

	p, err := b.Freeze()
	require.NoError(t, err)
	assert.Equal(t, []value.NodeID{2}, p.Roots())
	assert.False(t, p.IsRoot(1))
	assert.True(t, p.IsRoot(2))
}

// TestBuilderUnknownKind tests the script error for unregistered kinds
func TestBuilderUnknownKind(t *testing.T) {
	b := NewBuilder()
	_, err := b.NewNode(Kind("frobnicate"), nil, nil)
	require.Error(t, err)
	assert.True(t, errs.IsScript(err))
	assert.Contains(t, err.Error(), "frobnicate")
}

// TestBuilderFrozen tests that a frozen builder rejects every mutation
func TestBuilderFrozen(t *testing.T) {
	b := NewBuilder()
	_, err := b.NewNode(KindNow, nil, nil)
	require.NoError(t, err)
	_, err = b.Freeze()
	require.NoError(t, err)

	_, err = b.NewNode(KindNow, nil, nil)
	assert.True(t, errs.IsScript(err))

	err = b.AddOrderEdge(1, 1)
	assert.True(t, errs.IsScript(err))

	err = b.MarkRoot(1)
	assert.True(t, errs.IsScript(err))

	_, err = b.Freeze()
	assert.True(t, errs.IsScript(err))
}

// TestAddOrderEdge tests order edges, including cycle rejection
func TestAddOrderEdge(t *testing.T) {
	b := NewBuilder()
	h1, err := b.NewNode(KindReadFile, map[string]value.Value{"path": value.Str("/tmp/a")}, nil)
	require.NoError(t, err)
	_, err = b.NewNode(KindConcat, map[string]value.Value{"a": h1, "b": value.Str("!")}, nil)
	require.NoError(t, err)
	_, err = b.NewNode(KindNow, nil, nil)
	require.NoError(t, err)

	// op3 after op2 is fine
	require.NoError(t, b.AddOrderEdge(3, 2))

	// op1 after op2 would close a cycle: op2 already data-depends on op1
	err = b.AddOrderEdge(1, 2)
	require.Error(t, err)
	assert.True(t, errs.IsScript(err))
	assert.Contains(t, err.Error(), "cycle")

	// self edges are cycles too
	err = b.AddOrderEdge(2, 2)
	assert.True(t, errs.IsScript(err))

	err = b.AddOrderEdge(9, 1)
	assert.True(t, errs.IsScript(err))

	p, err := b.Freeze()
	require.NoError(t, err)
	n, _ := p.Get(3)
	assert.Equal(t, []value.NodeID{2}, n.OrderDeps)
}
