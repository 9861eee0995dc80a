package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/foxzi/mailpost/internal/ipfilter"
)

// Server serves Prometheus metrics over HTTP
type Server struct {
	httpServer *http.Server
	metrics    *Metrics
	filter     *ipfilter.Filter
	addr       string
	path       string
	logger     *slog.Logger
}

// NewServer creates a metrics server. A nil filter allows every client.
func NewServer(m *Metrics, addr, path string, filter *ipfilter.Filter, logger *slog.Logger) *Server {
	if addr == "" {
		addr = ":9090"
	}
	if path == "" {
		path = "/metrics"
	}
	if filter == nil {
		filter, _ = ipfilter.New(nil, logger)
	}
	if filter.Enabled() {
		logger.Info("metrics IP filtering enabled")
	}

	return &Server{metrics: m, filter: filter, addr: addr, path: path, logger: logger}
}

// Handler returns the metrics router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)

	// Health check is not filtered so load balancers can reach it
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.With(s.filter.Middleware).Handle(s.path, promhttp.HandlerFor(
		s.metrics.Registry(),
		promhttp.HandlerOpts{EnableOpenMetrics: true},
	))

	return r
}

// ListenAndServe starts the metrics HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("starting metrics server", "addr", s.addr, "path", s.path)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the metrics server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down metrics server")
	return s.httpServer.Shutdown(ctx)
}
