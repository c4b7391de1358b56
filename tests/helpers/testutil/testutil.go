// Package testutil provides the planning and execution harnesses shared
// by the end-to-end scenario tests: a Host that builds plans through the
// script-visible intrinsic surface, and a World that executes them
// against real drivers with observable side effects.
package testutil

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/blueprint/internal/drivers"
	"github.com/GriffinCanCode/blueprint/internal/executor"
	"github.com/GriffinCanCode/blueprint/internal/infrastructure/logging"
	"github.com/GriffinCanCode/blueprint/internal/intrinsics"
	"github.com/GriffinCanCode/blueprint/internal/plan"
	"github.com/GriffinCanCode/blueprint/internal/value"
)

// Host drives one planning session the way an embedding script host
// would: every operation goes through the intrinsic call surface, so
// the tests exercise binding, folding, and graph construction together.
type Host struct {
	t   *testing.T
	reg *intrinsics.Registry
}

// NewHost opens a fresh planning session.
func NewHost(t *testing.T) *Host {
	t.Helper()
	return &Host{t: t, reg: intrinsics.New(plan.NewBuilder())}
}

// Call invokes an intrinsic with positional arguments and fails the test
// on a script error.
func (h *Host) Call(name string, args ...value.Value) value.Value {
	h.t.Helper()
	v, err := h.reg.Call(name, args, nil, nil)
	require.NoError(h.t, err, "intrinsic %s", name)
	return v
}

// CallErr invokes an intrinsic expecting construction to fail.
func (h *Host) CallErr(name string, args ...value.Value) error {
	h.t.Helper()
	_, err := h.reg.Call(name, args, nil, nil)
	require.Error(h.t, err, "intrinsic %s", name)
	return err
}

// Freeze ends planning and returns the immutable plan.
func (h *Host) Freeze() *plan.Plan {
	h.t.Helper()
	p, err := h.reg.Builder().Freeze()
	require.NoError(h.t, err)
	return p
}

// ID unwraps a deferred handle to its node id.
func (h *Host) ID(v value.Value) value.NodeID {
	h.t.Helper()
	id, ok := v.AsDeferred()
	require.True(h.t, ok, "expected a deferred handle, got %s", v.Kind())
	return id
}

// World is an execution environment whose side effects the test can
// inspect afterwards: an in-memory filesystem and captured console
// streams, over the production driver set.
type World struct {
	FS     afero.Fs
	Stdout *bytes.Buffer
	Stderr *bytes.Buffer
	Set    *drivers.Set
}

// NewWorld builds an isolated world.
func NewWorld(t *testing.T) *World {
	t.Helper()
	w := &World{
		FS:     afero.NewMemMapFs(),
		Stdout: &bytes.Buffer{},
		Stderr: &bytes.Buffer{},
	}
	w.Set = drivers.New(drivers.Options{
		Logger: logging.NewNop(),
		FS:     w.FS,
		Stdout: w.Stdout,
		Stderr: w.Stderr,
	})
	return w
}

// Execute runs the plan to a settled outcome.
func (w *World) Execute(t *testing.T, p *plan.Plan) *executor.Outcome {
	t.Helper()
	return w.ExecuteWith(t, context.Background(), p, executor.Options{})
}

// ExecuteWith runs the plan under the caller's context and options. The
// driver map is always this world's; everything else in opts is kept.
func (w *World) ExecuteWith(t *testing.T, ctx context.Context, p *plan.Plan, opts executor.Options) *executor.Outcome {
	t.Helper()
	family, release := w.Set.ForRun()
	defer release()
	opts.Drivers = family
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	out, err := executor.New(opts).Execute(ctx, p)
	require.NoError(t, err)
	return out
}

// FileContent reads a file the plan wrote, failing if it is absent.
func (w *World) FileContent(t *testing.T, path string) string {
	t.Helper()
	data, err := afero.ReadFile(w.FS, path)
	require.NoError(t, err, "file %s", path)
	return string(data)
}

// FileExists reports whether the plan left a file behind.
func (w *World) FileExists(t *testing.T, path string) bool {
	t.Helper()
	ok, err := afero.Exists(w.FS, path)
	require.NoError(t, err)
	return ok
}

// StructField plucks a named field out of a struct value.
func StructField(t *testing.T, v value.Value, name string) value.Value {
	t.Helper()
	fields, ok := v.AsStruct()
	require.True(t, ok, "expected a struct, got %s", v.Kind())
	for _, f := range fields {
		if f.Name == name {
			return f.Val
		}
	}
	t.Fatalf("struct has no field %q", name)
	return value.Null()
}
