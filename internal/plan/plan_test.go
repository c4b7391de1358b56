package plan

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/blueprint/internal/value"
)

func diamond(t *testing.T) *Plan {
	t.Helper()
	b := NewBuilder()
	h1, err := b.NewNode(KindReadFile, map[string]value.Value{"path": value.Str("/tmp/a")}, nil)
	require.NoError(t, err)
	h2, err := b.NewNode(KindReadFile, map[string]value.Value{"path": value.Str("/tmp/b")}, nil)
	require.NoError(t, err)
	h3, err := b.NewNode(KindConcat, map[string]value.Value{"a": h1, "b": h2}, nil)
	require.NoError(t, err)
	_, err = b.NewNode(KindWriteFile, map[string]value.Value{
		"path":    value.Str("/tmp/out"),
		"content": h3,
	}, nil)
	require.NoError(t, err)
	p, err := b.Freeze()
	require.NoError(t, err)
	return p
}

// TestLevels tests Kahn leveling on a diamond
func TestLevels(t *testing.T) {
	p := diamond(t)
	levels, err := p.Levels()
	require.NoError(t, err)
	require.Len(t, levels, 3)
	assert.Equal(t, []value.NodeID{1, 2}, levels[0])
	assert.Equal(t, []value.NodeID{3}, levels[1])
	assert.Equal(t, []value.NodeID{4}, levels[2])
}

// TestDependents tests the reverse edge map
func TestDependents(t *testing.T) {
	p := diamond(t)
	deps := p.Dependents()
	assert.Equal(t, []value.NodeID{3}, deps[1])
	assert.Equal(t, []value.NodeID{3}, deps[2])
	assert.Equal(t, []value.NodeID{4}, deps[3])
	assert.Empty(t, deps[4])
}

// TestString tests the human rendering
func TestString(t *testing.T) {
	p := diamond(t)
	out := p.String()
	assert.Contains(t, out, "plan: 4 ops, 1 roots")
	assert.Contains(t, out, `op1: read_file(path="/tmp/a")`)
	assert.Contains(t, out, `op3: concat(a=<op1>, b=<op2>)`)
	assert.Contains(t, out, "roots: op4")
}

// TestExportDOT tests the graphviz rendering
func TestExportDOT(t *testing.T) {
	p := diamond(t)
	dot := p.ExportDOT()
	assert.True(t, strings.HasPrefix(dot, "digraph plan {"))
	assert.Contains(t, dot, "n1 -> n3;")
	assert.Contains(t, dot, "n2 -> n3;")
	assert.Contains(t, dot, "n3 -> n4;")
	// root is double-circled
	assert.Contains(t, dot, "peripheries=2")
}

// TestSummaryOrderDeps tests that order-only deps render after the args
func TestSummaryOrderDeps(t *testing.T) {
	b := NewBuilder()
	_, err := b.NewNode(KindNow, nil, nil)
	require.NoError(t, err)
	_, err = b.NewNode(KindSleep, map[string]value.Value{"seconds": value.Int(1)}, nil)
	require.NoError(t, err)
	require.NoError(t, b.AddOrderEdge(2, 1))
	p, err := b.Freeze()
	require.NoError(t, err)

	n, _ := p.Get(2)
	assert.Equal(t, "op2: sleep(seconds=1) after <op1>", n.Summary())
}
