package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/callsched/core/pkg/database/pool"
	"github.com/callsched/core/pkg/jobs"
	"github.com/callsched/core/pkg/logger"
	"github.com/callsched/core/pkg/models/api"
)

const checkTimeout = 2 * time.Second

// StatsProvider reports scheduler trigger counts
type StatsProvider interface {
	Stats() jobs.Stats
}

// Pinger is a dependency whose reachability is part of health
type Pinger interface {
	Ping(ctx context.Context) error
}

type namedCheck struct {
	name   string
	pinger Pinger
}

// Handler handles health check requests
type Handler struct {
	scheduler StatsProvider
	checks    []namedCheck
	dbStats   func() pool.Stats
	logger    *logger.Logger
}

// NewHandler creates a new health handler
func NewHandler(scheduler StatsProvider, log *logger.Logger) *Handler {
	return &Handler{
		scheduler: scheduler,
		logger:    log,
	}
}

// WithCheck adds a dependency. A failing ping marks the service degraded.
func (h *Handler) WithCheck(name string, p Pinger) *Handler {
	h.checks = append(h.checks, namedCheck{name: name, pinger: p})
	return h
}

// WithDatabase includes connection pool usage in the response
func (h *Handler) WithDatabase(stats func() pool.Stats) *Handler {
	h.dbStats = stats
	return h
}

// HealthCheck handles the /health endpoint
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	stats := h.scheduler.Stats()
	response := api.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Scheduler: api.SchedulerHealth{
			Registered: stats.Registered,
			Recurring:  stats.Recurring,
			Paused:     stats.Paused,
			ManualOnly: stats.ManualOnly,
			InFlight:   stats.InFlight,
		},
	}

	if h.dbStats != nil {
		s := h.dbStats()
		response.Database = &api.DatabaseHealth{
			AcquiredConns: s.AcquiredConns,
			IdleConns:     s.IdleConns,
			TotalConns:    s.TotalConns,
			MaxConns:      s.MaxConns,
		}
	}

	statusCode := http.StatusOK
	if len(h.checks) > 0 {
		response.Checks = make(map[string]string, len(h.checks))
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()

		for _, c := range h.checks {
			if err := c.pinger.Ping(ctx); err != nil {
				response.Checks[c.name] = err.Error()
				response.Status = "degraded"
				statusCode = http.StatusServiceUnavailable
				continue
			}
			response.Checks[c.name] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error().
			Err(err).
			Str("action", "health_check_failed").
			Str("endpoint", "/health").
			Msg("Failed to encode health response")
		return
	}

	h.logger.Debug().
		Str("action", "health_check").
		Str("endpoint", "/health").
		Str("status", response.Status).
		Int("status_code", statusCode).
		Dur("duration", time.Since(start)).
		Msg("Health check completed")
}
