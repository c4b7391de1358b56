package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/blueprint/internal/policy"
	"github.com/GriffinCanCode/blueprint/internal/value"
)

func issueCodes(issues []Issue) []string {
	codes := make([]string, len(issues))
	for i, issue := range issues {
		codes[i] = issue.Code
	}
	return codes
}

// TestCheckAtLeastCount tests the at_least arity error
func TestCheckAtLeastCount(t *testing.T) {
	b := NewBuilder()
	h1, err := b.NewNode(KindNow, nil, nil)
	require.NoError(t, err)
	h2, err := b.NewNode(KindNow, nil, nil)
	require.NoError(t, err)
	h3, err := b.NewNode(KindAtLeast, map[string]value.Value{
		"count": value.Int(5),
		"ops":   value.List(h1, h2),
	}, nil)
	require.NoError(t, err)
	id3, _ := h3.AsDeferred()
	require.NoError(t, b.MarkRoot(id3))
	p, err := b.Freeze()
	require.NoError(t, err)

	r := Check(p, nil)
	require.False(t, r.OK())
	assert.Contains(t, issueCodes(r.Errors), "combinator-count")
	assert.Contains(t, r.Err().Error(), "at_least requires 5 successes but composes only 2 operations")
}

// TestCheckAnyEmpty tests that any() needs members
func TestCheckAnyEmpty(t *testing.T) {
	b := NewBuilder()
	h, err := b.NewNode(KindAny, map[string]value.Value{"ops": value.List()}, nil)
	require.NoError(t, err)
	id, _ := h.AsDeferred()
	require.NoError(t, b.MarkRoot(id))
	p, err := b.Freeze()
	require.NoError(t, err)

	r := Check(p, nil)
	assert.False(t, r.OK())
	assert.Contains(t, r.Errors[0].Msg, "at least one operation")
}

// TestCheckUnusedResult tests the unused warning and its exemptions
func TestCheckUnusedResult(t *testing.T) {
	b := NewBuilder()
	_, err := b.NewNode(KindReadFile, map[string]value.Value{"path": value.Str("/tmp/a")}, nil)
	require.NoError(t, err)
	_, err = b.NewNode(KindWriteFile, map[string]value.Value{
		"path":    value.Str("/tmp/b"),
		"content": value.Str("x"),
	}, nil)
	require.NoError(t, err)
	// last node: exempt even though unused
	_, err = b.NewNode(KindNow, nil, nil)
	require.NoError(t, err)
	p, err := b.Freeze()
	require.NoError(t, err)

	r := Check(p, nil)
	assert.True(t, r.OK())
	require.Len(t, r.Warnings, 1)
	assert.Equal(t, "unused", r.Warnings[0].Code)
	assert.Equal(t, value.NodeID(1), r.Warnings[0].Node)
}

// TestCheckWriteRace tests concurrent same-path write detection
func TestCheckWriteRace(t *testing.T) {
	build := func(ordered bool) *Plan {
		b := NewBuilder()
		_, err := b.NewNode(KindWriteFile, map[string]value.Value{
			"path": value.Str("/tmp/shared"), "content": value.Str("a"),
		}, nil)
		require.NoError(t, err)
		_, err = b.NewNode(KindWriteFile, map[string]value.Value{
			"path": value.Str("/tmp/shared"), "content": value.Str("b"),
		}, nil)
		require.NoError(t, err)
		if ordered {
			require.NoError(t, b.AddOrderEdge(2, 1))
		}
		p, err := b.Freeze()
		require.NoError(t, err)
		return p
	}

	r := Check(build(false), nil)
	require.Len(t, r.Warnings, 1)
	assert.Equal(t, "write-race", r.Warnings[0].Code)
	assert.Contains(t, r.Warnings[0].Msg, `"/tmp/shared"`)

	// ordering moves the writes into different levels
	r = Check(build(true), nil)
	assert.Empty(t, r.Warnings)
}

// TestCheckPolicy tests denial errors and the dynamic-target warning
func TestCheckPolicy(t *testing.T) {
	pol, err := policy.Parse([]byte(`
[filesystem]
allow_read = ["/tmp/**"]
allow_write = ["/tmp/**"]
deny_write = ["/etc/**"]
`))
	require.NoError(t, err)

	b := NewBuilder()
	h1, err := b.NewNode(KindReadFile, map[string]value.Value{"path": value.Str("/tmp/src")}, nil)
	require.NoError(t, err)
	_, err = b.NewNode(KindWriteFile, map[string]value.Value{
		"path": value.Str("/etc/passwd"), "content": value.Str("x"),
	}, nil)
	require.NoError(t, err)
	// dynamic path: checked at run time, warned about here
	_, err = b.NewNode(KindWriteFile, map[string]value.Value{
		"path": h1, "content": value.Str("x"),
	}, nil)
	require.NoError(t, err)
	p, err := b.Freeze()
	require.NoError(t, err)

	r := Check(p, pol)
	require.False(t, r.OK())
	require.Len(t, r.Errors, 1)
	assert.Equal(t, value.NodeID(2), r.Errors[0].Node)
	assert.Contains(t, r.Errors[0].Msg, `denied by policy rule "/etc/**"`)

	assert.Contains(t, issueCodes(r.Warnings), "dynamic-policy")
}

// TestCheckExecPolicy tests command matching against argv
func TestCheckExecPolicy(t *testing.T) {
	pol, err := policy.Parse([]byte(`
[exec]
allow_commands = ["git"]
deny_commands = ["rm"]
`))
	require.NoError(t, err)

	b := NewBuilder()
	_, err = b.NewNode(KindExec, map[string]value.Value{
		"argv": value.List(value.Str("/bin/rm"), value.Str("-rf"), value.Str("/")),
	}, nil)
	require.NoError(t, err)
	p, err := b.Freeze()
	require.NoError(t, err)

	r := Check(p, pol)
	require.Len(t, r.Errors, 1)
	assert.Contains(t, r.Errors[0].Msg, "exec /bin/rm")
}
