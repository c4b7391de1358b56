// Package web executes the http_request kind. One shared client serves all
// runs: resty over a retryable transport, a token-bucket rate limiter, and a
// circuit breaker that sheds load when the remote keeps failing.
//
// A non-2xx status is a successful result carrying the status field; only
// transport failures, policy denials, and oversized bodies are errors.
package web

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/blueprint/internal/infrastructure/config"
	"github.com/GriffinCanCode/blueprint/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/blueprint/internal/plan"
	"github.com/GriffinCanCode/blueprint/internal/policy"
	"github.com/GriffinCanCode/blueprint/internal/shared/errs"
	"github.com/GriffinCanCode/blueprint/internal/value"
)

// Driver executes HTTP nodes.
type Driver struct {
	client  *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	pol     *policy.Policy
	maxBody int64
}

// New builds the shared outbound client.
func New(cfg config.HTTPConfig, pol *policy.Policy) *Driver {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryMax
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = nil

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetTransport(retryClient.HTTPClient.Transport)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), int(cfg.RateLimit)+1)
	}

	var breaker *resilience.Breaker
	if cfg.BreakerOn {
		breaker = resilience.New(resilience.Config{
			TripAfter: 5,
			Cooldown:  30 * time.Second,
			Probes:    2,
		})
	}

	maxBody := int64(cfg.MaxBodyMiB) << 20
	if maxBody <= 0 {
		maxBody = 64 << 20
	}

	return &Driver{
		client:  client,
		limiter: limiter,
		breaker: breaker,
		pol:     pol,
		maxBody: maxBody,
	}
}

func (d *Driver) Run(ctx context.Context, node *plan.Node, args map[string]value.Value) (value.Value, error) {
	if node.Kind != plan.KindHTTPRequest {
		return value.Null(), errs.Operationf(node.ID, "%s is not an HTTP operation", node.Kind)
	}

	method, url, err := targetArgs(args)
	if err != nil {
		return value.Null(), err
	}
	if err := d.pol.Permits(policy.HTTP(method, url)); err != nil {
		return value.Null(), err
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return value.Null(), err
	}

	req := d.client.R().SetContext(ctx)
	if headers := args["headers"]; !headers.IsNull() {
		h, err := headersArg(headers)
		if err != nil {
			return value.Null(), err
		}
		req.SetHeaders(h)
	}
	if body := args["body"]; !body.IsNull() {
		b, err := bodyArg(body)
		if err != nil {
			return value.Null(), err
		}
		req.SetBody(b)
	}

	resp, err := d.execute(req, method, url)
	if err != nil {
		if ctx.Err() != nil {
			return value.Null(), ctx.Err()
		}
		return value.Null(), errs.OperationWrap(0, err)
	}
	if int64(len(resp.Body())) > d.maxBody {
		return value.Null(), errs.Operationf(0, "http_request() response body exceeds %d MiB", d.maxBody>>20)
	}

	return responseValue(resp), nil
}

func (d *Driver) execute(req *resty.Request, method, url string) (*resty.Response, error) {
	if d.breaker == nil {
		return req.Execute(method, url)
	}
	return resilience.Do(d.breaker, func() (*resty.Response, error) {
		return req.Execute(method, url)
	})
}

// responseValue flattens the resty response into the script-facing struct.
// Repeated headers are joined with ", " per RFC 9110 field-value merging.
func responseValue(resp *resty.Response) value.Value {
	merged := make(map[string]value.Value, len(resp.Header()))
	for k, vs := range resp.Header() {
		merged[k] = value.Str(strings.Join(vs, ", "))
	}
	return value.Struct(
		value.Field{Name: "status", Val: value.Int(int64(resp.StatusCode()))},
		value.Field{Name: "headers", Val: value.StrMap(merged)},
		value.Field{Name: "body", Val: value.Str(resp.String())},
	)
}

func targetArgs(args map[string]value.Value) (method, url string, err error) {
	m, ok := args["method"].AsString()
	if !ok {
		return "", "", errs.Scriptf("http_request() method must be a string, got %s", args["method"].Kind())
	}
	u, ok := args["url"].AsString()
	if !ok {
		return "", "", errs.Scriptf("http_request() url must be a string, got %s", args["url"].Kind())
	}
	if u == "" {
		return "", "", errs.Scriptf("http_request() url must not be empty")
	}
	return strings.ToUpper(m), u, nil
}

func headersArg(v value.Value) (map[string]string, error) {
	entries, ok := v.AsMap()
	if !ok {
		return nil, errs.Scriptf("http_request() headers must be a dict, got %s", v.Kind())
	}
	h := make(map[string]string, len(entries))
	for _, e := range entries {
		k, okK := e.Key.AsString()
		val, okV := e.Val.AsString()
		if !okK || !okV {
			return nil, errs.Scriptf("http_request() headers must map strings to strings")
		}
		h[k] = val
	}
	return h, nil
}

func bodyArg(v value.Value) ([]byte, error) {
	if s, ok := v.AsString(); ok {
		return []byte(s), nil
	}
	if b, ok := v.AsBytes(); ok {
		return b, nil
	}
	return nil, errs.Scriptf("http_request() body must be a string or bytes, got %s", v.Kind())
}
