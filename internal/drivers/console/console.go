// Package console executes the stdout and stderr print kinds.
package console

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/GriffinCanCode/blueprint/internal/plan"
	"github.com/GriffinCanCode/blueprint/internal/shared/errs"
	"github.com/GriffinCanCode/blueprint/internal/value"
)

// Driver renders values to the process streams. Writes are serialized so
// concurrent prints never interleave within a line.
type Driver struct {
	mu  sync.Mutex
	out io.Writer
	err io.Writer
}

func New() *Driver { return NewWithStreams(os.Stdout, os.Stderr) }

// NewWithStreams substitutes the targets, for embedding and tests.
func NewWithStreams(out, err io.Writer) *Driver {
	return &Driver{out: out, err: err}
}

func (d *Driver) Run(ctx context.Context, node *plan.Node, args map[string]value.Value) (value.Value, error) {
	if err := ctx.Err(); err != nil {
		return value.Null(), err
	}
	var w io.Writer
	switch node.Kind {
	case plan.KindStdout:
		w = d.out
	case plan.KindStderr:
		w = d.err
	default:
		return value.Null(), errs.Operationf(node.ID, "%s is not a console operation", node.Kind)
	}

	items, ok := args["values"].AsList()
	if !ok {
		return value.Null(), errs.Scriptf("print() values must be a list, got %s", args["values"].Kind())
	}
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = it.String()
	}
	line := strings.Join(parts, " ") + "\n"

	d.mu.Lock()
	_, werr := io.WriteString(w, line)
	d.mu.Unlock()
	if werr != nil {
		return value.Null(), errs.OperationWrap(0, werr)
	}
	return value.Null(), nil
}
