package events

import (
	"context"
	"time"

	"github.com/GriffinCanCode/blueprint/internal/plan"
	"github.com/GriffinCanCode/blueprint/internal/policy"
	"github.com/GriffinCanCode/blueprint/internal/shared/errs"
	"github.com/GriffinCanCode/blueprint/internal/value"
)

// Driver executes event family nodes against one run's table.
type Driver struct {
	table *Table
	pol   *policy.Policy
}

// NewDriver binds a driver to the run's handle table. pol may be nil
// for unrestricted execution.
func NewDriver(table *Table, pol *policy.Policy) *Driver {
	return &Driver{table: table, pol: pol}
}

func (d *Driver) Run(ctx context.Context, node *plan.Node, args map[string]value.Value) (value.Value, error) {
	switch node.Kind {
	case plan.KindEventSource:
		return d.open(ctx, args)
	case plan.KindEventWrite:
		return d.write(ctx, args)
	case plan.KindEventPoll:
		return d.poll(ctx, args)
	case plan.KindEventSourceClose:
		return d.close(args)
	default:
		return value.Null(), errs.Operationf(node.ID, "%s is not an event operation", node.Kind)
	}
}

func (d *Driver) open(ctx context.Context, args map[string]value.Value) (value.Value, error) {
	kind, ok := args["source_kind"].AsString()
	if !ok {
		return value.Null(), errs.Scriptf("event_source() kind must be a string, got %s", args["source_kind"].Kind())
	}
	var (
		host string
		port int64
		path string
	)
	if v, exists := args["host"]; exists {
		host, ok = v.AsString()
		if !ok {
			return value.Null(), errs.Scriptf("event_source() host must be a string, got %s", v.Kind())
		}
	}
	if v, exists := args["port"]; exists {
		port, ok = v.AsInt()
		if !ok {
			return value.Null(), errs.Scriptf("event_source() port must be an integer, got %s", v.Kind())
		}
	}
	if v, exists := args["path"]; exists {
		path, ok = v.AsString()
		if !ok {
			return value.Null(), errs.Scriptf("event_source() path must be a string, got %s", v.Kind())
		}
	}

	var action policy.Action
	switch kind {
	case plan.SourceTCPConnect:
		action = policy.TCPConnect(host, int(port))
	case plan.SourceTCPListen:
		action = policy.TCPListen(host, int(port))
	case plan.SourceUDPBind:
		action = policy.UDPBind(host, int(port))
	case plan.SourceUnixConnect:
		action = policy.UnixConnect(path)
	case plan.SourceUnixListen:
		action = policy.UnixListen(path)
	default:
		return value.Null(), errs.Scriptf("unknown event source kind %q", kind)
	}
	if err := d.pol.Permits(action); err != nil {
		return value.Null(), err
	}

	h, err := d.table.Open(ctx, kind, host, int(port), path)
	if err != nil {
		return value.Null(), err
	}
	return value.Int(h), nil
}

func (d *Driver) write(ctx context.Context, args map[string]value.Value) (value.Value, error) {
	h, ok := args["handle"].AsInt()
	if !ok {
		return value.Null(), errs.Scriptf("event_write() handle must be an integer, got %s", args["handle"].Kind())
	}
	data, err := bytesArg("event_write", "data", args["data"])
	if err != nil {
		return value.Null(), err
	}
	var (
		host string
		port int64
	)
	if v, exists := args["host"]; exists && !v.IsNull() {
		host, ok = v.AsString()
		if !ok {
			return value.Null(), errs.Scriptf("event_write() host must be a string, got %s", v.Kind())
		}
	}
	if v, exists := args["port"]; exists && !v.IsNull() {
		port, ok = v.AsInt()
		if !ok {
			return value.Null(), errs.Scriptf("event_write() port must be an integer, got %s", v.Kind())
		}
	}
	n, err := d.table.Write(ctx, h, data, host, int(port))
	if err != nil {
		return value.Null(), err
	}
	return value.Int(int64(n)), nil
}

func (d *Driver) poll(ctx context.Context, args map[string]value.Value) (value.Value, error) {
	var handles []int64
	switch v := args["handles"]; v.Kind() {
	case value.KindInt:
		h, _ := v.AsInt()
		handles = []int64{h}
	case value.KindList:
		items, _ := v.AsList()
		handles = make([]int64, 0, len(items))
		for _, item := range items {
			h, ok := item.AsInt()
			if !ok {
				return value.Null(), errs.Scriptf("event_poll() handles must be integers, got %s", item.Kind())
			}
			handles = append(handles, h)
		}
	default:
		return value.Null(), errs.Scriptf("event_poll() handles must be a list of handles, got %s", v.Kind())
	}
	ms, ok := args["timeout_ms"].AsInt()
	if !ok {
		return value.Null(), errs.Scriptf("event_poll() timeout_ms must be an integer, got %s", args["timeout_ms"].Kind())
	}
	if ms < 0 {
		return value.Null(), errs.Scriptf("event_poll() timeout_ms must not be negative, got %d", ms)
	}

	ev, err := d.table.Poll(ctx, handles, time.Duration(ms)*time.Millisecond)
	if err != nil {
		return value.Null(), err
	}
	if ev == nil {
		// Nothing arrived in time. A quiet wire is not a failure.
		return value.Null(), nil
	}
	return ev.Value(), nil
}

func (d *Driver) close(args map[string]value.Value) (value.Value, error) {
	h, ok := args["handle"].AsInt()
	if !ok {
		return value.Null(), errs.Scriptf("event_source_close() handle must be an integer, got %s", args["handle"].Kind())
	}
	if err := d.table.Close(h); err != nil {
		return value.Null(), err
	}
	return value.Null(), nil
}

// bytesArg accepts bytes or a string for wire payloads.
func bytesArg(op, name string, v value.Value) ([]byte, error) {
	if b, ok := v.AsBytes(); ok {
		return b, nil
	}
	if s, ok := v.AsString(); ok {
		return []byte(s), nil
	}
	return nil, errs.Scriptf("%s() %s must be bytes or a string, got %s", op, name, v.Kind())
}
