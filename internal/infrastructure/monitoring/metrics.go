package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP API metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Run metrics
	RunsActive  prometheus.Gauge
	RunsTotal   *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec

	// Op metrics
	OpsRunning prometheus.Gauge
	ReadyQueue prometheus.Gauge
	OpsTotal   *prometheus.CounterVec
	OpDuration *prometheus.HistogramVec

	// Event source metrics
	EventSourcesActive prometheus.Gauge
	EventsTotal        *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	gatherer prometheus.Gatherer

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests int64
	TotalErrors   int64
	ActiveRuns    int64
	TotalRuns     int64
	TotalOps      int64
	TotalDuration float64 // sum of all request durations
	RequestCount  int64   // count for averaging
}

// NewMetrics creates a metrics collector on the default registry
func NewMetrics() *Metrics {
	m := build(prometheus.DefaultRegisterer)
	m.gatherer = prometheus.DefaultGatherer
	return m
}

// NewMetricsWith creates a metrics collector on the given registry. Tests
// pass a fresh registry so repeated construction never collides.
func NewMetricsWith(reg *prometheus.Registry) *Metrics {
	m := build(reg)
	m.gatherer = reg
	return m
}

func build(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		startTime: time.Now(),

		// HTTP API metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blueprint_http_requests_total",
				Help: "Total number of HTTP API requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "blueprint_http_request_duration_seconds",
				Help:    "HTTP API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		// Run metrics
		RunsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "blueprint_runs_active",
				Help: "Number of plan runs currently executing",
			},
		),
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blueprint_runs_total",
				Help: "Total number of plan runs by final status",
			},
			[]string{"status"},
		),
		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "blueprint_run_duration_seconds",
				Help:    "Plan run duration in seconds",
				Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60, 300},
			},
			[]string{"status"},
		),

		// Op metrics
		OpsRunning: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "blueprint_ops_running",
				Help: "Number of ops currently running",
			},
		),
		ReadyQueue: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "blueprint_ready_queue_depth",
				Help: "Ops ready to run but waiting for a slot",
			},
		),
		OpsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blueprint_ops_total",
				Help: "Total number of ops by kind and final status",
			},
			[]string{"kind", "status"},
		),
		OpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "blueprint_op_duration_seconds",
				Help:    "Op execution duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 30},
			},
			[]string{"kind"},
		),

		// Event source metrics
		EventSourcesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "blueprint_event_sources_active",
				Help: "Number of open event sources",
			},
		),
		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blueprint_events_total",
				Help: "Total number of events by source kind and direction",
			},
			[]string{"source", "direction"},
		),

		// WebSocket metrics
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "blueprint_ws_connections",
				Help: "Number of active WebSocket stream subscribers",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blueprint_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),

		// System metrics
		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "blueprint_uptime_seconds",
				Help: "Daemon uptime in seconds",
			},
		),
	}

	// Start uptime updater
	go m.updateUptime()

	return m
}

// updateUptime continuously updates the uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordHTTPRequest records an HTTP API request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	// Update snapshot
	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	m.snapshot.RequestCount++
	if len(status) > 0 && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordRun records a finished plan run
func (m *Metrics) RecordRun(status string, duration time.Duration) {
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.mu.Lock()
	m.snapshot.TotalRuns++
	m.mu.Unlock()
}

// SetRunsActive sets the number of executing runs
func (m *Metrics) SetRunsActive(count int) {
	m.RunsActive.Set(float64(count))
	m.mu.Lock()
	m.snapshot.ActiveRuns = int64(count)
	m.mu.Unlock()
}

// RecordOp records a finished op
func (m *Metrics) RecordOp(kind, status string, duration time.Duration) {
	m.OpsTotal.WithLabelValues(kind, status).Inc()
	m.OpDuration.WithLabelValues(kind).Observe(duration.Seconds())
	m.mu.Lock()
	m.snapshot.TotalOps++
	m.mu.Unlock()
}

// SetOpsRunning sets the number of ops currently running
func (m *Metrics) SetOpsRunning(count int) {
	m.OpsRunning.Set(float64(count))
}

// SetReadyQueue sets the ready queue depth
func (m *Metrics) SetReadyQueue(count int) {
	m.ReadyQueue.Set(float64(count))
}

// SetEventSources sets the number of open event sources
func (m *Metrics) SetEventSources(count int) {
	m.EventSourcesActive.Set(float64(count))
}

// RecordEvent records one event flowing through a source
func (m *Metrics) RecordEvent(source, direction string) {
	m.EventsTotal.WithLabelValues(source, direction).Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}

// GetSnapshot returns current metric values for the JSON health endpoint
func (m *Metrics) GetSnapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
