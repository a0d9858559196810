package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/callsched/core/pkg/errors"
	"github.com/callsched/core/pkg/handlers/health"
	"github.com/callsched/core/pkg/logger"
	"github.com/callsched/core/pkg/middleware"
	"github.com/callsched/core/pkg/telemetry"
)

// Server is the operations endpoint of the scheduler: health and metrics
type Server struct {
	http   *http.Server
	addr   string
	logger *logger.Logger
}

// New creates a server listening on addr
func New(addr string, healthHandler *health.Handler, log *logger.Logger) *Server {
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           Router(healthHandler, log),
			ReadHeaderTimeout: 5 * time.Second,
		},
		addr:   addr,
		logger: log,
	}
}

// Router builds the HTTP router
func Router(healthHandler *health.Handler, log *logger.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(log))
	r.Use(middleware.RequestLogger(log))

	r.Get("/health", healthHandler.HealthCheck)
	r.Mount("/metrics", telemetry.Handler())
	return r
}

// Start serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info().
		Str("action", "server_start").
		Str("addr", s.addr).
		Msg("Starting ops server")

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrapf(err, "ops server failed on %s", s.addr)
	}
	return nil
}

// Shutdown stops accepting connections and waits for active requests
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.http.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "shutdown ops server")
	}
	s.logger.Info().Str("action", "server_stopped").Msg("Ops server stopped")
	return nil
}
