// Package http serves the daemon's REST surface: plan submission, run
// status and results, cancellation, listings, and health. Handlers sit
// on top of a runs.Manager; the WebSocket transition stream lives in
// internal/ws.
package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/blueprint/internal/infrastructure/logging"
	"github.com/GriffinCanCode/blueprint/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/blueprint/internal/runs"
)

// Handlers contains all REST handlers.
type Handlers struct {
	// base bounds the lifetime of submitted runs. Requests return long
	// before their runs settle, so runs cannot hang off the request
	// context.
	base    context.Context
	runs    *runs.Manager
	metrics *monitoring.Metrics
	log     *logging.Logger
}

// NewHandlers creates a handler set over a run manager.
func NewHandlers(base context.Context, mgr *runs.Manager, metrics *monitoring.Metrics, log *logging.Logger) *Handlers {
	if base == nil {
		base = context.Background()
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Handlers{
		base:    base,
		runs:    mgr,
		metrics: metrics,
		log:     log.Named("api"),
	}
}

// Root handles the bare status check.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "blueprint daemon",
		"version": "0.1.0",
	})
}

// Health reports liveness plus coarse counters for dashboards that do
// not scrape prometheus.
func (h *Handlers) Health(c *gin.Context) {
	resp := gin.H{
		"status":      "healthy",
		"active_runs": h.runs.Active(),
	}
	if h.metrics != nil {
		snap := h.metrics.GetSnapshot()
		resp["requests"] = gin.H{
			"total":  snap.TotalRequests,
			"errors": snap.TotalErrors,
		}
		resp["runs"] = gin.H{
			"active": snap.ActiveRuns,
			"total":  snap.TotalRuns,
		}
		resp["ops_total"] = snap.TotalOps
	}
	c.JSON(http.StatusOK, resp)
}
