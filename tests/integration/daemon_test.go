package integration

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/blueprint/internal/infrastructure/config"
	"github.com/GriffinCanCode/blueprint/internal/infrastructure/logging"
	"github.com/GriffinCanCode/blueprint/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/blueprint/internal/server"
	"github.com/GriffinCanCode/blueprint/internal/value"
	"github.com/GriffinCanCode/blueprint/tests/helpers/testutil"
)

// startDaemon assembles the full daemon and exposes it over a test
// listener, so everything below rides the real middleware chain.
func startDaemon(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.RateLimit.Enabled = false

	srv, err := server.NewServer(server.Options{
		Config:  cfg,
		Logger:  logging.NewNop(),
		Metrics: monitoring.NewMetricsWith(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func postPlan(t *testing.T, ts *httptest.Server, doc []byte) string {
	t.Helper()
	resp, err := http.Post(ts.URL+"/v1/plans", "application/json", bytes.NewReader(doc))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body struct {
		RunID string `json:"run_id"`
	}
	require.NoError(t, sonic.Unmarshal(raw, &body))
	require.NotEmpty(t, body.RunID)
	return body.RunID
}

func getJSON(t *testing.T, url string) (int, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]interface{}
	require.NoError(t, sonic.Unmarshal(raw, &body))
	return resp.StatusCode, body
}

// The submit -> stream -> result path, end to end over the wire.
func TestDaemonRunLifecycleOverTheWire(t *testing.T) {
	ts := startDaemon(t)

	h := testutil.NewHost(t)
	a := h.Call("sleep", value.Float(0.05))
	b := h.Call("sleep", value.Float(0.05))
	h.Call("gather", value.ListOf([]value.Value{a, b}))
	doc, err := h.Freeze().ExportJSON()
	require.NoError(t, err)

	runID := postPlan(t, ts, doc)

	// Watch the run settle over the stream.
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/stream/" + runID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var frames []map[string]interface{}
	for {
		var frame map[string]interface{}
		if err := conn.ReadJSON(&frame); err != nil {
			require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected close: %v", err)
			break
		}
		frames = append(frames, frame)
	}
	require.NotEmpty(t, frames)
	assert.Equal(t, "hello", frames[0]["type"])
	last := frames[len(frames)-1]
	assert.Equal(t, "outcome", last["type"])
	assert.Equal(t, "succeeded", last["status"])

	transitions := 0
	for _, f := range frames {
		if f["type"] == "transition" {
			transitions++
		}
	}
	assert.Positive(t, transitions, "stream carried no transitions")

	// The settled result is now queryable.
	code, result := getJSON(t, ts.URL+"/v1/plans/"+runID+"/result")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "succeeded", result["status"])

	// And the run shows up in the listing.
	code, list := getJSON(t, ts.URL+"/v1/plans")
	require.Equal(t, http.StatusOK, code)
	assert.GreaterOrEqual(t, list["count"], float64(1))
}

func TestDaemonCancelOverTheWire(t *testing.T) {
	ts := startDaemon(t)

	h := testutil.NewHost(t)
	h.Call("sleep", value.Float(30))
	doc, err := h.Freeze().ExportJSON()
	require.NoError(t, err)

	runID := postPlan(t, ts, doc)

	// Result is unavailable while the run is live.
	code, body := getJSON(t, ts.URL+"/v1/plans/"+runID+"/result")
	require.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "running", body["status"])

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/v1/plans/"+runID, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	// The cancelled outcome settles promptly and is reported as such.
	require.Eventually(t, func() bool {
		code, body := getJSON(t, ts.URL+"/v1/plans/"+runID+"/result")
		return code == http.StatusOK && body["status"] == "cancelled"
	}, 5*time.Second, 50*time.Millisecond)
}
