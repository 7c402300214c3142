package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marmos91/driftfs/internal/logger"
)

// ServerConfig holds the observability HTTP endpoint configuration.
type ServerConfig struct {
	// Address is the listen address, e.g. ":9090".
	Address string

	// ReadTimeout and WriteTimeout bound request handling. Both default
	// to 30 seconds.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// StatsFunc returns a point-in-time snapshot for the /stats endpoint.
// Registered by the mount runtime.
type StatsFunc func() any

// Server serves /metrics, /health and /stats for a running mount.
type Server struct {
	httpServer *http.Server
}

// NewServer creates the observability server. statsFn may be nil, in
// which case /stats returns 404.
func NewServer(cfg ServerConfig, statsFn StatsFunc) *Server {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.ReadTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, `{"status":"ok"}`)
	})

	if reg := GetRegistry(); reg != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))
	}

	if statsFn != nil {
		r.Get("/stats", statsHandler(statsFn))
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Address,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	logger.Info("Starting metrics server", "address", s.httpServer.Addr)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "error", err)
		}
	}()
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("Stopping metrics server")
	return s.httpServer.Shutdown(ctx)
}
