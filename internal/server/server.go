// Package server provides the HTTP server that exposes fairness evaluation.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ricesearch/fairrank/internal/config"
	"github.com/ricesearch/fairrank/internal/evaluation"
	"github.com/ricesearch/fairrank/internal/metrics"
	"github.com/ricesearch/fairrank/internal/pkg/logger"
	"github.com/ricesearch/fairrank/internal/pkg/middleware"
)

// Server is the HTTP server in front of the evaluation service.
type Server struct {
	cfg        Config
	log        *logger.Logger
	httpServer *http.Server
	handler    http.Handler

	svc      *evaluation.Service
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	limiter  *middleware.RateLimiter

	mu      sync.RWMutex
	started bool
}

// Config configures the server.
type Config struct {
	// Host is the address to bind to.
	Host string

	// Port is the HTTP port.
	Port int

	// Version is the application version.
	Version string

	// ReadTimeout is the HTTP read timeout.
	ReadTimeout time.Duration

	// WriteTimeout is the HTTP write timeout.
	WriteTimeout time.Duration

	// ShutdownTimeout is the graceful shutdown timeout.
	ShutdownTimeout time.Duration

	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64

	// RateLimit is the per-client request rate per second. 0 disables it.
	RateLimit int

	// CORSOrigins is a comma separated list of allowed origins, or "*".
	CORSOrigins string

	// MetricsPath is where Prometheus metrics are served. Empty disables it.
	MetricsPath string
}

// DefaultConfig returns sensible server defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		Version:         "dev",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		MaxBodyBytes:    32 << 20,
		CORSOrigins:     "*",
		MetricsPath:     "/metrics",
	}
}

// ConfigFrom derives the server configuration from the application config.
func ConfigFrom(appCfg *config.Config, version string) Config {
	cfg := DefaultConfig()
	cfg.Host = appCfg.Host
	cfg.Port = appCfg.Port
	cfg.Version = version
	cfg.RateLimit = appCfg.Security.RateLimit
	cfg.CORSOrigins = appCfg.Security.CORSOrigins
	cfg.MetricsPath = ""
	if appCfg.Metrics.Enabled {
		cfg.MetricsPath = appCfg.Metrics.Path
	}
	return cfg
}

// New creates a server. m and gatherer may be nil to run without metrics.
func New(cfg Config, svc *evaluation.Service, m *metrics.Metrics, gatherer prometheus.Gatherer, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}

	s := &Server{
		cfg:      cfg,
		log:      log,
		svc:      svc,
		metrics:  m,
		gatherer: gatherer,
	}
	if cfg.RateLimit > 0 {
		s.limiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
			RequestsPerSecond: float64(cfg.RateLimit),
			Burst:             cfg.RateLimit * 2,
			CleanupInterval:   time.Minute,
			OnLimited:         m.IncRateLimited,
		})
	}
	s.handler = s.setupRoutes()
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	s.started = true

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.log.Info("Starting HTTP server", "addr", addr, "version", s.cfg.Version)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.limiter != nil {
		s.limiter.Close()
	}
	if !s.started {
		return nil
	}

	s.log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		s.log.Error("HTTP shutdown error", "error", err)
	}

	s.started = false
	s.log.Info("Server stopped")

	return err
}

// setupRoutes configures all HTTP routes and wraps them in the middleware
// chain. The outermost middleware runs first.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /v1/fairness/evaluate", s.handleEvaluate)
	mux.HandleFunc("POST /v1/fairness/evaluate/batch", s.handleEvaluateBatch)
	mux.HandleFunc("GET /v1/reports", s.handleListReports)
	mux.HandleFunc("GET /v1/reports/{id}", s.handleGetReport)

	if s.cfg.MetricsPath != "" && s.gatherer != nil {
		mux.Handle("GET "+s.cfg.MetricsPath, metrics.Handler(s.gatherer))
	}

	var handler http.Handler = mux
	handler = maxBodyMiddleware(s.cfg.MaxBodyBytes, handler)
	if s.limiter != nil {
		handler = s.limiter.Middleware(handler)
	}
	handler = loggingMiddleware(s.log, handler)
	handler = corsMiddleware(s.cfg.CORSOrigins, handler)
	handler = metrics.HTTPMiddleware(s.metrics, handler)
	handler = requestIDMiddleware(handler)
	handler = recoveryMiddleware(s.log, handler)
	return handler
}

// Health returns whether the server is serving.
func (s *Server) Health() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}
