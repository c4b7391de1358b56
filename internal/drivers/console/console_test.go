package console

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/blueprint/internal/plan"
	"github.com/GriffinCanCode/blueprint/internal/value"
)

func emit(t *testing.T, kind plan.Kind, vs ...value.Value) (stdout, stderr string) {
	t.Helper()
	var out, errBuf bytes.Buffer
	d := NewWithStreams(&out, &errBuf)
	args := map[string]value.Value{"values": value.ListOf(vs)}
	node := &plan.Node{ID: 1, Kind: kind, Args: args}

	got, err := d.Run(context.Background(), node, args)
	require.NoError(t, err)
	assert.True(t, got.IsNull())
	return out.String(), errBuf.String()
}

func TestStdoutJoinsWithSpaces(t *testing.T) {
	out, errOut := emit(t, plan.KindStdout, value.Str("result:"), value.Int(42), value.Bool(true))
	assert.Equal(t, "result: 42 True\n", out)
	assert.Empty(t, errOut)
}

func TestStderrTargetsErrStream(t *testing.T) {
	out, errOut := emit(t, plan.KindStderr, value.Str("warning"))
	assert.Empty(t, out)
	assert.Equal(t, "warning\n", errOut)
}

func TestDisplayForms(t *testing.T) {
	out, _ := emit(t, plan.KindStdout,
		value.Null(),
		value.Float(2),
		value.List(value.Str("a"), value.Int(1)),
	)
	assert.Equal(t, "None 2.0 [\"a\", 1]\n", out)
}

func TestEmptyValuesPrintsBareNewline(t *testing.T) {
	out, _ := emit(t, plan.KindStdout)
	assert.Equal(t, "\n", out)
}
