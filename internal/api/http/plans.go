package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/blueprint/internal/executor"
	"github.com/GriffinCanCode/blueprint/internal/plan"
	"github.com/GriffinCanCode/blueprint/internal/plan/planfile"
	"github.com/GriffinCanCode/blueprint/internal/runs"
	"github.com/GriffinCanCode/blueprint/internal/shared/errs"
	"github.com/GriffinCanCode/blueprint/internal/value"
)

// maxPlanBytes caps submission bodies. Plans are scripts, not datasets;
// anything bigger is a client bug.
const maxPlanBytes = 32 << 20

// SubmitPlan accepts a plan document (JSON or YAML body) or a compiled
// plan upload (raw bytes or a multipart "plan" file), starts executing
// it, and returns the run id.
func (h *Handlers) SubmitPlan(c *gin.Context) {
	data, err := readPlanBody(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(data) > maxPlanBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "plan exceeds 32 MiB"})
		return
	}

	p, err := decodePlan(c.ContentType(), data)
	if err != nil {
		h.log.Warn("plan rejected", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": errJSON(err)})
		return
	}

	r, err := h.runs.Submit(h.base, p)
	if err != nil {
		if errors.Is(err, runs.ErrShuttingDown) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": errJSON(err)})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": errJSON(err)})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"run_id": r.ID(),
		"ops":    p.Len(),
	})
}

// PlanStatus reports per-state node counts and timing for one run.
func (h *Handlers) PlanStatus(c *gin.Context) {
	r, ok := h.runs.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown run " + c.Param("id")})
		return
	}

	resp := gin.H{
		"run_id":    r.ID(),
		"status":    r.Status(),
		"ops":       r.Plan().Len(),
		"states":    r.StateCounts(),
		"submitted": r.Submitted().UTC().Format(time.RFC3339Nano),
	}
	if started := r.Started(); !started.IsZero() {
		resp["started"] = started.UTC().Format(time.RFC3339Nano)
	}
	if out, _ := r.Outcome(); out != nil {
		resp["finished"] = out.Finished.UTC().Format(time.RFC3339Nano)
		resp["duration_ms"] = out.Duration().Milliseconds()
	}
	c.JSON(http.StatusOK, resp)
}

// PlanResult returns the final root results of a finished run, or its
// structured error. While the run is live it answers 409.
func (h *Handlers) PlanResult(c *gin.Context) {
	r, ok := h.runs.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown run " + c.Param("id")})
		return
	}

	out, err := r.Outcome()
	if out == nil && err == nil {
		c.JSON(http.StatusConflict, gin.H{
			"run_id": r.ID(),
			"status": "running",
			"error":  "run still executing",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusOK, gin.H{
			"run_id": r.ID(),
			"status": "failed",
			"error":  errJSON(err),
		})
		return
	}

	resp := gin.H{
		"run_id":      r.ID(),
		"status":      out.Status.String(),
		"states":      out.StateCounts(),
		"duration_ms": out.Duration().Milliseconds(),
	}
	if out.Status == executor.StatusSucceeded {
		roots := make(map[string]interface{}, len(out.Roots))
		for _, root := range out.Roots {
			roots[strconv.FormatUint(uint64(root), 10)] = renderValue(out.Results[root])
		}
		resp["final"] = renderValue(out.Final())
		resp["roots"] = roots
	} else {
		resp["error"] = errJSON(out.Err())
		if chain := out.DependencyChain(); len(chain) > 0 {
			resp["dependency_chain"] = chain
		}
	}
	c.JSON(http.StatusOK, resp)
}

// CancelPlan requests cancellation. Cancelling a finished run is a
// no-op; the response carries whatever state the run is in now.
func (h *Handlers) CancelPlan(c *gin.Context) {
	r, ok := h.runs.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown run " + c.Param("id")})
		return
	}
	r.Cancel()
	c.JSON(http.StatusAccepted, gin.H{
		"run_id": r.ID(),
		"status": r.Status(),
	})
}

// ListPlans lists every known run in submission order.
func (h *Handlers) ListPlans(c *gin.Context) {
	all := h.runs.List()
	items := make([]gin.H, 0, len(all))
	for _, r := range all {
		items = append(items, gin.H{
			"run_id":    r.ID(),
			"status":    r.Status(),
			"ops":       r.Plan().Len(),
			"submitted": r.Submitted().UTC().Format(time.RFC3339Nano),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"runs":  items,
		"count": len(items),
	})
}

// readPlanBody drains the request body, unwrapping a multipart "plan"
// file when the client sent one.
func readPlanBody(c *gin.Context) ([]byte, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		fh, err := c.FormFile("plan")
		if err != nil {
			return nil, errs.Scriptf("multipart submissions need a %q file field: %v", "plan", err)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, errs.Scriptf("reading upload: %v", err)
		}
		defer f.Close()
		return io.ReadAll(io.LimitReader(f, maxPlanBytes+1))
	}
	return io.ReadAll(io.LimitReader(c.Request.Body, maxPlanBytes+1))
}

// decodePlan dispatches on the payload: compiled plans are recognized
// by magic, everything else parses as a document.
func decodePlan(contentType string, data []byte) (*plan.Plan, error) {
	if planfile.Sniff(data) {
		p, _, err := planfile.Unmarshal(data)
		return p, err
	}
	if strings.Contains(contentType, "yaml") {
		return plan.ImportYAML(data)
	}
	return plan.ImportJSON(data)
}

// renderValue lowers a result for a JSON body. Bytes and anything else
// JSON cannot carry fall back to the script rendering.
func renderValue(v value.Value) interface{} {
	tree, err := v.ToInterface()
	if err != nil {
		return v.String()
	}
	return tree
}

// errJSON renders an engine error with its taxonomy fields. Foreign
// errors carry only a message.
func errJSON(err error) gin.H {
	var e *errs.Error
	if errors.As(err, &e) {
		out := gin.H{
			"kind":    e.Kind.String(),
			"message": e.Error(),
		}
		if e.Node != 0 {
			out["op"] = uint64(e.Node)
		}
		if e.Span != "" {
			out["span"] = e.Span
		}
		return out
	}
	return gin.H{"message": err.Error()}
}
