// Package clock executes the time kinds: sleep and now.
package clock

import (
	"context"
	"time"

	"github.com/GriffinCanCode/blueprint/internal/plan"
	"github.com/GriffinCanCode/blueprint/internal/shared/errs"
	"github.com/GriffinCanCode/blueprint/internal/value"
)

// Driver executes clock nodes. It has no state; sleeps honor cancellation
// through the run context.
type Driver struct{}

func New() *Driver { return &Driver{} }

func (d *Driver) Run(ctx context.Context, node *plan.Node, args map[string]value.Value) (value.Value, error) {
	switch node.Kind {
	case plan.KindSleep:
		return d.sleep(ctx, args)
	case plan.KindNow:
		return value.Float(float64(time.Now().UnixNano()) / float64(time.Second)), nil
	default:
		return value.Null(), errs.Operationf(node.ID, "%s is not a clock operation", node.Kind)
	}
}

func (d *Driver) sleep(ctx context.Context, args map[string]value.Value) (value.Value, error) {
	v := args["seconds"]
	secs, ok := v.AsFloatCoerced()
	if !ok {
		return value.Null(), errs.Scriptf("sleep() seconds must be a number, got %s", v.Kind())
	}
	if secs < 0 {
		return value.Null(), errs.Scriptf("sleep() argument must not be negative")
	}
	timer := time.NewTimer(time.Duration(secs * float64(time.Second)))
	defer timer.Stop()
	select {
	case <-timer.C:
		return value.Null(), nil
	case <-ctx.Done():
		return value.Null(), ctx.Err()
	}
}
