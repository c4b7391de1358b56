package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	api "github.com/GriffinCanCode/blueprint/internal/api/http"
	"github.com/GriffinCanCode/blueprint/internal/api/middleware"
	"github.com/GriffinCanCode/blueprint/internal/drivers"
	"github.com/GriffinCanCode/blueprint/internal/infrastructure/config"
	"github.com/GriffinCanCode/blueprint/internal/infrastructure/logging"
	"github.com/GriffinCanCode/blueprint/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/blueprint/internal/policy"
	"github.com/GriffinCanCode/blueprint/internal/runs"
	"github.com/GriffinCanCode/blueprint/internal/ws"
)

// Options carries what the daemon needs beyond its config. A nil Policy
// allows every operation; nil Metrics registers on the default
// prometheus registry.
type Options struct {
	Config  *config.Config
	Logger  *logging.Logger
	Policy  *policy.Policy
	Metrics *monitoring.Metrics
}

// Server wraps the HTTP server and the run manager behind it.
type Server struct {
	router  *gin.Engine
	http    *http.Server
	runs    *runs.Manager
	config  *config.Config
	logger  *logging.Logger
	metrics *monitoring.Metrics
	cancel  context.CancelFunc
}

// NewServer creates a daemon instance.
func NewServer(opts Options) (*Server, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.LoadOrDefault()
	}
	logger := opts.Logger
	if logger == nil {
		if cfg.Logging.Development {
			logger = logging.NewDevelopment()
		} else {
			logger = logging.NewDefault()
		}
	}

	logger.Info("initializing blueprint daemon",
		zap.String("host", cfg.Server.Host),
		zap.String("port", cfg.Server.Port),
		zap.Int("max_concurrent", cfg.Executor.MaxConcurrent),
		zap.Bool("policy", opts.Policy != nil),
	)

	metrics := opts.Metrics
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}

	set := drivers.New(drivers.Options{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics,
		Policy:  opts.Policy,
	})
	manager := runs.NewManager(runs.Options{
		Config:  cfg,
		Drivers: set,
		Logger:  logger,
		Metrics: metrics,
	})

	// base outlives any request; submitted runs hang off it until
	// shutdown.
	base, cancel := context.WithCancel(context.Background())

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.CORSConfig{AllowOrigins: cfg.Server.CORSOrigins}))
	if cfg.RateLimit.Enabled {
		logger.Info("rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := api.NewHandlers(base, manager, metrics, logger)
	stream := ws.NewHandler(manager, metrics, logger)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Plan lifecycle
	router.POST("/v1/plans", handlers.SubmitPlan)
	router.GET("/v1/plans", handlers.ListPlans)
	router.GET("/v1/plans/:id", handlers.PlanStatus)
	router.GET("/v1/plans/:id/result", handlers.PlanResult)
	router.DELETE("/v1/plans/:id", handlers.CancelPlan)

	// WebSocket
	router.GET("/stream/:id", stream.HandleConnection)

	logger.Info("daemon initialized")

	return &Server{
		router:  router,
		http:    &http.Server{Handler: router},
		runs:    manager,
		config:  cfg,
		logger:  logger,
		metrics: metrics,
		cancel:  cancel,
	}, nil
}

// Router exposes the handler tree; tests drive it without a listener.
func (s *Server) Router() http.Handler { return s.router }

// Runs exposes the run manager.
func (s *Server) Runs() *runs.Manager { return s.runs }

// Run starts serving and blocks until Shutdown or a listener error. The
// listener is capped at Server.MaxConns concurrent connections.
func (s *Server) Run() error {
	addr := net.JoinHostPort(s.config.Server.Host, s.config.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if s.config.Server.MaxConns > 0 {
		ln = netutil.LimitListener(ln, s.config.Server.MaxConns)
	}

	s.logger.Info("daemon listening",
		zap.String("addr", addr),
		zap.Int("max_conns", s.config.Server.MaxConns),
	)

	if err := s.http.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, then cancels every live run and
// waits for all of them to settle, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("daemon shutting down", zap.Int("active_runs", s.runs.Active()))

	err := s.http.Shutdown(ctx)
	if rerr := s.runs.Shutdown(ctx); rerr != nil && err == nil {
		err = rerr
	}
	s.cancel()
	_ = s.logger.Sync()
	return err
}
