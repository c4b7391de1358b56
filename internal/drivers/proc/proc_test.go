package proc

import (
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/blueprint/internal/plan"
	"github.com/GriffinCanCode/blueprint/internal/policy"
	"github.com/GriffinCanCode/blueprint/internal/shared/errs"
	"github.com/GriffinCanCode/blueprint/internal/value"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests shell out to /bin/sh")
	}
}

func execArgs(argv ...string) map[string]value.Value {
	items := make([]value.Value, len(argv))
	for i, a := range argv {
		items[i] = value.Str(a)
	}
	return map[string]value.Value{"argv": value.ListOf(items)}
}

func runExec(t *testing.T, d *Driver, args map[string]value.Value) (code int64, stdout, stderr string) {
	t.Helper()
	node := &plan.Node{ID: 1, Kind: plan.KindExec, Args: args}
	got, err := d.Run(context.Background(), node, args)
	require.NoError(t, err)
	fields, ok := got.AsStruct()
	require.True(t, ok)
	for _, f := range fields {
		switch f.Name {
		case "code":
			code, _ = f.Val.AsInt()
		case "stdout":
			stdout, _ = f.Val.AsString()
		case "stderr":
			stderr, _ = f.Val.AsString()
		}
	}
	return code, stdout, stderr
}

func TestExecCapturesStdout(t *testing.T) {
	skipWithoutShell(t)
	d := New(nil)

	code, stdout, stderr := runExec(t, d, execArgs("/bin/sh", "-c", "echo hi"))
	assert.Equal(t, int64(0), code)
	assert.Equal(t, "hi\n", stdout)
	assert.Empty(t, stderr)
}

func TestExecNonZeroExitIsSuccess(t *testing.T) {
	skipWithoutShell(t)
	d := New(nil)

	code, _, stderr := runExec(t, d, execArgs("/bin/sh", "-c", "echo oops >&2; exit 3"))
	assert.Equal(t, int64(3), code)
	assert.Equal(t, "oops\n", stderr)
}

func TestExecMissingBinaryFails(t *testing.T) {
	d := New(nil)
	args := execArgs("/no/such/binary")
	node := &plan.Node{ID: 1, Kind: plan.KindExec, Args: args}

	_, err := d.Run(context.Background(), node, args)
	require.Error(t, err)
	assert.True(t, errs.IsOperation(err))
}

func TestExecHonorsCwd(t *testing.T) {
	skipWithoutShell(t)
	d := New(nil)
	dir := t.TempDir()

	args := execArgs("/bin/sh", "-c", "pwd")
	args["cwd"] = value.Str(dir)
	_, stdout, _ := runExec(t, d, args)
	assert.Contains(t, stdout, dir)
}

func TestExecExtendsEnvironment(t *testing.T) {
	skipWithoutShell(t)
	d := New(nil)

	args := execArgs("/bin/sh", "-c", "echo $BLUEPRINT_TEST_VAR:$PATH")
	args["env"] = value.Map(value.Entry{
		Key: value.Str("BLUEPRINT_TEST_VAR"),
		Val: value.Str("set"),
	})
	_, stdout, _ := runExec(t, d, args)
	assert.Contains(t, stdout, "set:")
	assert.NotContains(t, stdout, "set:\n")
}

func TestExecEmptyArgvIsScriptError(t *testing.T) {
	d := New(nil)
	args := map[string]value.Value{"argv": value.List()}
	node := &plan.Node{ID: 1, Kind: plan.KindExec, Args: args}

	_, err := d.Run(context.Background(), node, args)
	require.Error(t, err)
	assert.True(t, errs.IsScript(err))
}

func TestExecPolicyDenied(t *testing.T) {
	pol, err := policy.Parse([]byte(`
[exec]
deny_commands = ["/bin/sh"]
`))
	require.NoError(t, err)
	d := New(pol)

	args := execArgs("/bin/sh", "-c", "true")
	node := &plan.Node{ID: 1, Kind: plan.KindExec, Args: args}
	_, err = d.Run(context.Background(), node, args)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied by policy")
}

func TestEnvGetSetVariable(t *testing.T) {
	d := New(nil)
	t.Setenv("BLUEPRINT_PROC_TEST", "42")

	args := map[string]value.Value{"name": value.Str("BLUEPRINT_PROC_TEST")}
	node := &plan.Node{ID: 1, Kind: plan.KindEnvGet, Args: args}
	got, err := d.Run(context.Background(), node, args)
	require.NoError(t, err)
	s, _ := got.AsString()
	assert.Equal(t, "42", s)
}

func TestEnvGetDefault(t *testing.T) {
	d := New(nil)

	args := map[string]value.Value{
		"name":    value.Str("BLUEPRINT_DEFINITELY_UNSET_VAR"),
		"default": value.Str("fallback"),
	}
	node := &plan.Node{ID: 1, Kind: plan.KindEnvGet, Args: args}
	got, err := d.Run(context.Background(), node, args)
	require.NoError(t, err)
	s, _ := got.AsString()
	assert.Equal(t, "fallback", s)
}

func TestEnvGetUnsetWithoutDefaultIsNull(t *testing.T) {
	d := New(nil)

	args := map[string]value.Value{"name": value.Str("BLUEPRINT_DEFINITELY_UNSET_VAR")}
	node := &plan.Node{ID: 1, Kind: plan.KindEnvGet, Args: args}
	got, err := d.Run(context.Background(), node, args)
	require.NoError(t, err)
	assert.True(t, got.IsNull())
}
