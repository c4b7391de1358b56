package web

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/blueprint/internal/infrastructure/config"
	"github.com/GriffinCanCode/blueprint/internal/plan"
	"github.com/GriffinCanCode/blueprint/internal/policy"
	"github.com/GriffinCanCode/blueprint/internal/shared/errs"
	"github.com/GriffinCanCode/blueprint/internal/value"
)

func testDriver(t *testing.T, pol *policy.Policy) *Driver {
	t.Helper()
	cfg := config.Default().HTTP
	cfg.RetryMax = 0
	cfg.BreakerOn = false
	return New(cfg, pol)
}

func request(t *testing.T, d *Driver, args map[string]value.Value) (value.Value, error) {
	t.Helper()
	node := &plan.Node{ID: 1, Kind: plan.KindHTTPRequest, Args: args}
	return d.Run(context.Background(), node, args)
}

func structFields(t *testing.T, v value.Value) map[string]value.Value {
	t.Helper()
	fields, ok := v.AsStruct()
	require.True(t, ok)
	out := make(map[string]value.Value, len(fields))
	for _, f := range fields {
		out[f.Name] = f.Val
	}
	return out
}

func TestGetReturnsStatusHeadersBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Custom", "yes")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "payload")
	}))
	defer srv.Close()

	got, err := request(t, testDriver(t, nil), map[string]value.Value{
		"method": value.Str("GET"),
		"url":    value.Str(srv.URL),
	})
	require.NoError(t, err)

	fields := structFields(t, got)
	status, _ := fields["status"].AsInt()
	assert.Equal(t, int64(200), status)
	body, _ := fields["body"].AsString()
	assert.Equal(t, "payload", body)

	headers, ok := fields["headers"].AsMap()
	require.True(t, ok)
	found := false
	for _, e := range headers {
		if k, _ := e.Key.AsString(); k == "X-Custom" {
			v, _ := e.Val.AsString()
			assert.Equal(t, "yes", v)
			found = true
		}
	}
	assert.True(t, found, "X-Custom header missing from result")
}

func TestNonTwoHundredIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	got, err := request(t, testDriver(t, nil), map[string]value.Value{
		"method": value.Str("GET"),
		"url":    value.Str(srv.URL),
	})
	require.NoError(t, err)

	fields := structFields(t, got)
	status, _ := fields["status"].AsInt()
	assert.Equal(t, int64(500), status)
}

func TestPostForwardsBodyAndHeaders(t *testing.T) {
	var gotBody string
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotHeader = r.Header.Get("X-Token")
	}))
	defer srv.Close()

	_, err := request(t, testDriver(t, nil), map[string]value.Value{
		"method": value.Str("post"),
		"url":    value.Str(srv.URL),
		"body":   value.Str(`{"k":1}`),
		"headers": value.Map(
			value.Entry{Key: value.Str("X-Token"), Val: value.Str("secret")},
		),
	})
	require.NoError(t, err)
	assert.Equal(t, `{"k":1}`, gotBody)
	assert.Equal(t, "secret", gotHeader)
}

func TestRepeatedHeadersJoined(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("X-Multi", "a")
		w.Header().Add("X-Multi", "b")
	}))
	defer srv.Close()

	got, err := request(t, testDriver(t, nil), map[string]value.Value{
		"method": value.Str("GET"),
		"url":    value.Str(srv.URL),
	})
	require.NoError(t, err)

	headers, _ := structFields(t, got)["headers"].AsMap()
	for _, e := range headers {
		if k, _ := e.Key.AsString(); k == "X-Multi" {
			v, _ := e.Val.AsString()
			assert.Equal(t, "a, b", v)
			return
		}
	}
	t.Fatal("X-Multi header missing from result")
}

func TestTransportFailureIsOperationError(t *testing.T) {
	// Closed server: connection refused.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := request(t, testDriver(t, nil), map[string]value.Value{
		"method": value.Str("GET"),
		"url":    value.Str(url),
	})
	require.Error(t, err)
	assert.True(t, errs.IsOperation(err))
}

func TestBadMethodKindIsScriptError(t *testing.T) {
	_, err := request(t, testDriver(t, nil), map[string]value.Value{
		"method": value.Int(5),
		"url":    value.Str("http://localhost"),
	})
	require.Error(t, err)
	assert.True(t, errs.IsScript(err))
	assert.Contains(t, err.Error(), "method must be a string, got int")
}

func TestPolicyDenialBlocksRequest(t *testing.T) {
	pol, err := policy.Parse([]byte(`
[network]
deny_http = ["http://blocked.example/**"]
`))
	require.NoError(t, err)

	_, err = request(t, testDriver(t, pol), map[string]value.Value{
		"method": value.Str("GET"),
		"url":    value.Str("http://blocked.example/secret"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied by policy")
}

func TestBodyCapEnforced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 2<<20))
	}))
	defer srv.Close()

	cfg := config.Default().HTTP
	cfg.RetryMax = 0
	cfg.BreakerOn = false
	cfg.MaxBodyMiB = 1
	d := New(cfg, nil)

	_, err := request(t, d, map[string]value.Value{
		"method": value.Str("GET"),
		"url":    value.Str(srv.URL),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 1 MiB")
}
