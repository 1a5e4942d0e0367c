package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	handler "github.com/newthinker/crossbt/internal/api/handler/api"
	"github.com/newthinker/crossbt/internal/api/job"
	"github.com/newthinker/crossbt/internal/api/middleware"
	"github.com/newthinker/crossbt/internal/backtest"
	"github.com/newthinker/crossbt/internal/metrics"
)

// Server represents the HTTP server for the backtest API
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux
	jobs       *job.Store
	stop       context.CancelFunc
}

// Config holds server configuration
type Config struct {
	Host            string
	Port            int
	APIKey          string
	MaxJobs         int
	JobTTL          time.Duration
	BacktestTimeout time.Duration
	MaxSymbols      int
	MetricsPath     string
}

// Dependencies holds what the routes are served from
type Dependencies struct {
	Runner   handler.Runner
	Defaults backtest.Params
	Metrics  *metrics.Registry // nil disables /metrics and HTTP metrics
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if deps.Runner == nil {
		return nil, fmt.Errorf("api server requires a backtest runner")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	maxJobs := cfg.MaxJobs
	if maxJobs <= 0 {
		maxJobs = 100
	}

	mux := http.NewServeMux()

	s := &Server{
		logger: logger,
		mux:    mux,
		jobs:   job.NewStore(maxJobs, cfg.JobTTL),
	}

	s.setupRoutes(cfg, deps)

	var h http.Handler = middleware.APIKeyAuth(cfg.APIKey, healthPath, metricsPath(cfg))(mux)
	if deps.Metrics != nil {
		h = metrics.HTTPMiddleware(deps.Metrics)(h)
	}
	h = metrics.LoggingMiddleware(logger)(h)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(cfg Config, deps Dependencies) {
	opts := []handler.Option{
		handler.WithLogger(s.logger),
		handler.WithTimeout(cfg.BacktestTimeout),
		handler.WithMaxSymbols(cfg.MaxSymbols),
	}
	if deps.Metrics != nil {
		opts = append(opts, handler.WithTracker(deps.Metrics))
	}
	backtests := handler.NewBacktestHandler(s.jobs, deps.Runner, deps.Defaults, opts...)

	s.mux.HandleFunc("GET "+healthPath, s.handleHealth)
	s.mux.HandleFunc("POST /api/v1/backtest", backtests.Create)
	s.mux.HandleFunc("GET /api/v1/backtest", backtests.List)
	s.mux.HandleFunc("GET /api/v1/backtest/{id}", backtests.GetStatus)

	if deps.Metrics != nil {
		s.mux.Handle("GET "+metricsPath(cfg), promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}
}

const healthPath = "/api/health"

func metricsPath(cfg Config) string {
	if cfg.MetricsPath == "" {
		return "/metrics"
	}
	return cfg.MetricsPath
}

// Handler returns the root handler including middleware
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server and the job janitor; it blocks until the
// server stops.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	go s.jobs.RunJanitor(ctx, time.Minute)

	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.stop != nil {
		s.stop()
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
