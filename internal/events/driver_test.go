package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/blueprint/internal/infrastructure/config"
	"github.com/GriffinCanCode/blueprint/internal/plan"
	"github.com/GriffinCanCode/blueprint/internal/policy"
	"github.com/GriffinCanCode/blueprint/internal/shared/errs"
	"github.com/GriffinCanCode/blueprint/internal/value"
)

func testDriver(t *testing.T) *Driver {
	t.Helper()
	tab := NewTable(config.Default().Events, nil, nil)
	t.Cleanup(tab.Shutdown)
	return NewDriver(tab, nil)
}

func TestDriverEchoThroughNodes(t *testing.T) {
	d := testDriver(t)
	host, port := hostPort(t, echoServer(t).Addr())

	open := &plan.Node{ID: 1, Kind: plan.KindEventSource}
	handle, err := d.Run(context.Background(), open, map[string]value.Value{
		"source_kind": value.Str(plan.SourceTCPConnect),
		"host":        value.Str(host),
		"port":        value.Int(int64(port)),
	})
	require.NoError(t, err)
	h, ok := handle.AsInt()
	require.True(t, ok)

	write := &plan.Node{ID: 2, Kind: plan.KindEventWrite}
	n, err := d.Run(context.Background(), write, map[string]value.Value{
		"handle": value.Int(h),
		"data":   value.Str("ping"),
	})
	require.NoError(t, err)
	assert.Equal(t, value.Int(4), n)

	poll := &plan.Node{ID: 3, Kind: plan.KindEventPoll}
	ev, err := d.Run(context.Background(), poll, map[string]value.Value{
		"handles":    value.Int(h),
		"timeout_ms": value.Int(2000),
	})
	require.NoError(t, err)
	typ, ok := ev.StructGet("type")
	require.True(t, ok)
	assert.Equal(t, value.Str("data"), typ)
	data, ok := ev.StructGet("data")
	require.True(t, ok)
	payload, ok := data.StructGet("data")
	require.True(t, ok)
	raw, ok := payload.AsBytes()
	require.True(t, ok)
	assert.Equal(t, []byte("ping"), raw)

	cl := &plan.Node{ID: 4, Kind: plan.KindEventSourceClose}
	out, err := d.Run(context.Background(), cl, map[string]value.Value{"handle": value.Int(h)})
	require.NoError(t, err)
	assert.True(t, out.IsNull())
}

func TestDriverPollTimeoutIsNull(t *testing.T) {
	d := testDriver(t)
	host, port := hostPort(t, echoServer(t).Addr())

	handle, err := d.Run(context.Background(), &plan.Node{ID: 1, Kind: plan.KindEventSource}, map[string]value.Value{
		"source_kind": value.Str(plan.SourceTCPConnect),
		"host":        value.Str(host),
		"port":        value.Int(int64(port)),
	})
	require.NoError(t, err)

	start := time.Now()
	out, err := d.Run(context.Background(), &plan.Node{ID: 2, Kind: plan.KindEventPoll}, map[string]value.Value{
		"handles":    handle,
		"timeout_ms": value.Int(30),
	})
	require.NoError(t, err)
	assert.True(t, out.IsNull())
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestDriverPollHandleList(t *testing.T) {
	d := testDriver(t)
	host, port := hostPort(t, echoServer(t).Addr())

	handle, err := d.Run(context.Background(), &plan.Node{ID: 1, Kind: plan.KindEventSource}, map[string]value.Value{
		"source_kind": value.Str(plan.SourceTCPConnect),
		"host":        value.Str(host),
		"port":        value.Int(int64(port)),
	})
	require.NoError(t, err)

	_, err = d.Run(context.Background(), &plan.Node{ID: 2, Kind: plan.KindEventWrite}, map[string]value.Value{
		"handle": handle,
		"data":   value.Bytes([]byte("x")),
	})
	require.NoError(t, err)

	out, err := d.Run(context.Background(), &plan.Node{ID: 3, Kind: plan.KindEventPoll}, map[string]value.Value{
		"handles":    value.ListOf([]value.Value{handle}),
		"timeout_ms": value.Int(2000),
	})
	require.NoError(t, err)
	assert.False(t, out.IsNull())
}

func TestDriverValidatesArgKinds(t *testing.T) {
	d := testDriver(t)
	ctx := context.Background()

	_, err := d.Run(ctx, &plan.Node{ID: 1, Kind: plan.KindEventSource}, map[string]value.Value{
		"source_kind": value.Int(3),
	})
	require.Error(t, err)
	assert.True(t, errs.IsScript(err))
	assert.Contains(t, err.Error(), "source_kind must be a string, got int")

	_, err = d.Run(ctx, &plan.Node{ID: 2, Kind: plan.KindEventWrite}, map[string]value.Value{
		"handle": value.Str("nope"),
		"data":   value.Str("x"),
	})
	require.Error(t, err)
	assert.True(t, errs.IsScript(err))

	_, err = d.Run(ctx, &plan.Node{ID: 3, Kind: plan.KindEventPoll}, map[string]value.Value{
		"handles":    value.Bool(true),
		"timeout_ms": value.Int(1),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handles must be a list of handles, got bool")

	_, err = d.Run(ctx, &plan.Node{ID: 4, Kind: plan.KindEventPoll}, map[string]value.Value{
		"handles":    value.Int(1),
		"timeout_ms": value.Int(-5),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout_ms must not be negative")
}

func TestDriverHonorsPolicy(t *testing.T) {
	pol, err := policy.Parse([]byte("[network]\ndeny_tcp = [\"10.0.0.1:*\"]\n"))
	require.NoError(t, err)
	tab := NewTable(config.Default().Events, nil, nil)
	t.Cleanup(tab.Shutdown)
	d := NewDriver(tab, pol)

	_, err = d.Run(context.Background(), &plan.Node{ID: 1, Kind: plan.KindEventSource}, map[string]value.Value{
		"source_kind": value.Str(plan.SourceTCPConnect),
		"host":        value.Str("10.0.0.1"),
		"port":        value.Int(80),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied by policy")
}
