// Package proc executes the process kinds: exec and env_get.
package proc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/GriffinCanCode/blueprint/internal/plan"
	"github.com/GriffinCanCode/blueprint/internal/policy"
	"github.com/GriffinCanCode/blueprint/internal/shared/errs"
	"github.com/GriffinCanCode/blueprint/internal/value"
)

// Driver executes process nodes. A non-zero exit status is a successful
// result carrying the code; only failure to start the process at all is an
// operation error.
type Driver struct {
	pol *policy.Policy
}

func New(pol *policy.Policy) *Driver { return &Driver{pol: pol} }

func (d *Driver) Run(ctx context.Context, node *plan.Node, args map[string]value.Value) (value.Value, error) {
	switch node.Kind {
	case plan.KindExec:
		return d.exec(ctx, args)
	case plan.KindEnvGet:
		return d.envGet(args)
	default:
		return value.Null(), errs.Operationf(node.ID, "%s is not a process operation", node.Kind)
	}
}

func (d *Driver) exec(ctx context.Context, args map[string]value.Value) (value.Value, error) {
	argv, err := argvArg(args["argv"])
	if err != nil {
		return value.Null(), err
	}
	if err := d.pol.Permits(policy.Exec(argv[0])); err != nil {
		return value.Null(), err
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if cwd := args["cwd"]; !cwd.IsNull() {
		dir, ok := cwd.AsString()
		if !ok {
			return value.Null(), errs.Scriptf("exec() cwd must be a string, got %s", cwd.Kind())
		}
		cmd.Dir = dir
	}
	if envv := args["env"]; !envv.IsNull() {
		extra, err := envArg(envv)
		if err != nil {
			return value.Null(), err
		}
		cmd.Env = append(os.Environ(), extra...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	code := 0
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			code = exitErr.ExitCode()
		case ctx.Err() != nil:
			return value.Null(), ctx.Err()
		default:
			return value.Null(), errs.OperationWrap(0, fmt.Errorf("exec %s: %w", argv[0], err))
		}
	}

	return value.Struct(
		value.Field{Name: "code", Val: value.Int(int64(code))},
		value.Field{Name: "stdout", Val: value.Str(stdout.String())},
		value.Field{Name: "stderr", Val: value.Str(stderr.String())},
	), nil
}

func (d *Driver) envGet(args map[string]value.Value) (value.Value, error) {
	name, ok := args["name"].AsString()
	if !ok {
		return value.Null(), errs.Scriptf("env_get() name must be a string, got %s", args["name"].Kind())
	}
	if err := d.pol.Permits(policy.EnvGet(name)); err != nil {
		return value.Null(), err
	}
	if v, found := os.LookupEnv(name); found {
		return value.Str(v), nil
	}
	if def, exists := args["default"]; exists && !def.IsNull() {
		return def, nil
	}
	return value.Null(), nil
}

func argvArg(v value.Value) ([]string, error) {
	items, ok := v.AsList()
	if !ok {
		return nil, errs.Scriptf("exec() argv must be a list, got %s", v.Kind())
	}
	if len(items) == 0 {
		return nil, errs.Scriptf("exec() argv must not be empty")
	}
	argv := make([]string, len(items))
	for i, it := range items {
		s, ok := it.AsString()
		if !ok {
			return nil, errs.Scriptf("exec() argv[%d] must be a string, got %s", i, it.Kind())
		}
		argv[i] = s
	}
	return argv, nil
}

func envArg(v value.Value) ([]string, error) {
	entries, ok := v.AsMap()
	if !ok {
		return nil, errs.Scriptf("exec() env must be a dict, got %s", v.Kind())
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		k, okK := e.Key.AsString()
		val, okV := e.Val.AsString()
		if !okK || !okV {
			return nil, errs.Scriptf("exec() env entries must map strings to strings")
		}
		out = append(out, k+"="+val)
	}
	return out, nil
}
