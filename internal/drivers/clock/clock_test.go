package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/blueprint/internal/plan"
	"github.com/GriffinCanCode/blueprint/internal/shared/errs"
	"github.com/GriffinCanCode/blueprint/internal/value"
)

func TestSleepBlocksForDuration(t *testing.T) {
	d := New()
	args := map[string]value.Value{"seconds": value.Float(0.05)}
	node := &plan.Node{ID: 1, Kind: plan.KindSleep, Args: args}

	start := time.Now()
	got, err := d.Run(context.Background(), node, args)
	require.NoError(t, err)
	assert.True(t, got.IsNull())
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestSleepAcceptsIntSeconds(t *testing.T) {
	d := New()
	args := map[string]value.Value{"seconds": value.Int(0)}
	node := &plan.Node{ID: 1, Kind: plan.KindSleep, Args: args}

	_, err := d.Run(context.Background(), node, args)
	require.NoError(t, err)
}

func TestSleepRejectsNegative(t *testing.T) {
	d := New()
	args := map[string]value.Value{"seconds": value.Float(-1)}
	node := &plan.Node{ID: 1, Kind: plan.KindSleep, Args: args}

	_, err := d.Run(context.Background(), node, args)
	require.Error(t, err)
	assert.True(t, errs.IsScript(err))
}

func TestSleepStopsOnCancel(t *testing.T) {
	d := New()
	args := map[string]value.Value{"seconds": value.Float(10)}
	node := &plan.Node{ID: 1, Kind: plan.KindSleep, Args: args}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := d.Run(ctx, node, args)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestNowReturnsEpochSeconds(t *testing.T) {
	d := New()
	node := &plan.Node{ID: 1, Kind: plan.KindNow}

	got, err := d.Run(context.Background(), node, nil)
	require.NoError(t, err)
	secs, ok := got.AsFloat()
	require.True(t, ok)
	assert.InDelta(t, float64(time.Now().Unix()), secs, 5)
}
