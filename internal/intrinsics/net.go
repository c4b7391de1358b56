package intrinsics

import (
	"github.com/GriffinCanCode/blueprint/internal/plan"
	"github.com/GriffinCanCode/blueprint/internal/shared/errs"
	"github.com/GriffinCanCode/blueprint/internal/value"
)

func registerNet() {
	register(&intrinsic{
		script: "http_request", params: []string{"method", "url", "body", "headers"}, required: 2,
		build: func(r *Registry, c *call) (value.Value, error) {
			if err := c.strs("method", "url"); err != nil {
				return value.Null(), err
			}
			if err := contentCheck(c, "body"); err != nil {
				return value.Null(), err
			}
			if h := c.get("headers"); c.has("headers") && h.IsMaterialized() && !h.IsNull() {
				if _, ok := h.AsMap(); !ok {
					return value.Null(), errs.Scriptf("http_request() headers must be a dict, got %s", h.Kind())
				}
			}
			return c.node(r, plan.KindHTTPRequest, "method", "url", "body", "headers")
		},
	})
}

func registerEvents() {
	register(&intrinsic{
		script: "event_source", params: []string{"source_kind", "host", "port", "path"}, required: 1,
		build: func(r *Registry, c *call) (value.Value, error) {
			if err := eventSourceCheck(c); err != nil {
				return value.Null(), err
			}
			return c.node(r, plan.KindEventSource, "source_kind", "host", "port", "path")
		},
	})
	register(&intrinsic{
		script: "event_write", params: []string{"handle", "data", "host", "port"}, required: 2,
		build: func(r *Registry, c *call) (value.Value, error) {
			if err := c.integer("handle"); err != nil {
				return value.Null(), err
			}
			if err := contentCheck(c, "data"); err != nil {
				return value.Null(), err
			}
			if err := c.str("host"); err != nil {
				return value.Null(), err
			}
			if err := c.integer("port"); err != nil {
				return value.Null(), err
			}
			return c.node(r, plan.KindEventWrite, "handle", "data", "host", "port")
		},
	})
	register(&intrinsic{
		script: "event_poll", params: []string{"handles", "timeout_ms"}, required: 2,
		build: func(r *Registry, c *call) (value.Value, error) {
			if h := c.get("handles"); h.IsMaterialized() {
				if _, isInt := h.AsInt(); !isInt {
					items, isList := h.AsList()
					if !isList {
						return value.Null(), errs.Scriptf("event_poll() handles must be an integer or a list of integers, got %s", h.Kind())
					}
					for _, it := range items {
						if it.IsDeferred() {
							continue
						}
						if _, ok := it.AsInt(); !ok {
							return value.Null(), errs.Scriptf("event_poll() handles must be an integer or a list of integers, got %s", it.Kind())
						}
					}
				}
			}
			if tm := c.get("timeout_ms"); tm.IsMaterialized() {
				ms, ok := tm.AsInt()
				if !ok {
					return value.Null(), errs.Scriptf("event_poll() timeout_ms must be an integer, got %s", tm.Kind())
				}
				if ms < 0 {
					return value.Null(), errs.Scriptf("event_poll() timeout_ms must not be negative")
				}
			}
			return c.node(r, plan.KindEventPoll, "handles", "timeout_ms")
		},
	})
	register(&intrinsic{
		script: "event_source_close", params: []string{"handle"}, required: 1,
		build: func(r *Registry, c *call) (value.Value, error) {
			if err := c.integer("handle"); err != nil {
				return value.Null(), err
			}
			return c.node(r, plan.KindEventSourceClose, "handle")
		},
	})
}

// eventSourceCheck validates what can be known at planning: the source kind
// when literal, and the per-kind parameter shape when the kind is literal.
func eventSourceCheck(c *call) error {
	sk := c.get("source_kind")
	if !sk.IsMaterialized() {
		return nil
	}
	kind, ok := sk.AsString()
	if !ok {
		return errs.Scriptf("event_source() source_kind must be a string, got %s", sk.Kind())
	}
	switch kind {
	case plan.SourceTCPConnect, plan.SourceTCPListen, plan.SourceUDPBind:
		if !c.has("host") || !c.has("port") {
			return errs.Scriptf("event_source(%q) requires host and port", kind)
		}
		if err := c.str("host"); err != nil {
			return err
		}
		if err := c.integer("port"); err != nil {
			return err
		}
		if p := c.get("port"); p.IsMaterialized() {
			if port, ok := p.AsInt(); ok && (port < 0 || port > 65535) {
				return errs.Scriptf("event_source() port must be between 0 and 65535, got %d", port)
			}
		}
	case plan.SourceUnixConnect, plan.SourceUnixListen:
		if !c.has("path") {
			return errs.Scriptf("event_source(%q) requires a path", kind)
		}
		if err := c.str("path"); err != nil {
			return err
		}
	default:
		return errs.Scriptf("unknown event source kind %q", kind)
	}
	return nil
}
