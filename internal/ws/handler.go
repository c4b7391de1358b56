package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/blueprint/internal/executor"
	"github.com/GriffinCanCode/blueprint/internal/infrastructure/logging"
	"github.com/GriffinCanCode/blueprint/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/blueprint/internal/runs"
)

// writeWait bounds each frame write so a stalled client cannot wedge
// the stream goroutine.
const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades stream requests and forwards run transitions.
type Handler struct {
	runs    *runs.Manager
	metrics *monitoring.Metrics
	log     *logging.Logger
}

// NewHandler creates a WebSocket handler over a run manager.
func NewHandler(mgr *runs.Manager, metrics *monitoring.Metrics, log *logging.Logger) *Handler {
	if log == nil {
		log = logging.NewNop()
	}
	return &Handler{
		runs:    mgr,
		metrics: metrics,
		log:     log.Named("ws"),
	}
}

// HandleConnection serves GET /stream/:id.
func (h *Handler) HandleConnection(c *gin.Context) {
	r, ok := h.runs.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown run " + c.Param("id")})
		return
	}

	ch, unsubscribe := r.Subscribe()
	defer unsubscribe()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	if h.metrics != nil {
		h.metrics.IncWSConnections()
		defer h.metrics.DecWSConnections()
	}

	h.send(conn, "hello", gin.H{
		"type":   "hello",
		"run_id": r.ID(),
		"status": r.Status(),
		"ops":    r.Plan().Len(),
		"states": r.StateCounts(),
	})

	// Clients never send data frames; the read loop exists to notice
	// disconnects and answer control frames.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case t, live := <-ch:
			if !live {
				h.sendOutcome(conn, r)
				deadline := time.Now().Add(writeWait)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run settled"), deadline)
				return
			}
			if err := h.send(conn, "transition", transitionFrame(t)); err != nil {
				return
			}
		case <-gone:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}

// transitionFrame renders one state change for the wire.
func transitionFrame(t executor.Transition) gin.H {
	frame := gin.H{
		"type": "transition",
		"op":   uint64(t.Node),
		"kind": string(t.Kind),
		"from": t.From.String(),
		"to":   t.To.String(),
		"at":   t.At.UTC().Format(time.RFC3339Nano),
	}
	if t.Err != nil {
		frame["error"] = t.Err.Error()
	}
	return frame
}

func (h *Handler) sendOutcome(conn *websocket.Conn, r *runs.Run) {
	frame := gin.H{
		"type":   "outcome",
		"run_id": r.ID(),
		"status": r.Status(),
	}
	out, err := r.Outcome()
	switch {
	case out != nil:
		frame["states"] = out.StateCounts()
		frame["duration_ms"] = out.Duration().Milliseconds()
		if e := out.Err(); e != nil {
			frame["error"] = e.Error()
		}
	case err != nil:
		frame["error"] = err.Error()
	}
	h.send(conn, "outcome", frame)
}

func (h *Handler) send(conn *websocket.Conn, msgType string, data interface{}) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(data); err != nil {
		return err
	}
	if h.metrics != nil {
		h.metrics.RecordWSMessage("out", msgType)
	}
	return nil
}
