package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/callsched/core/pkg/database/pool"
	"github.com/callsched/core/pkg/jobs"
	"github.com/callsched/core/pkg/logger"
	"github.com/callsched/core/pkg/models/api"
)

type fixedStats jobs.Stats

func (f fixedStats) Stats() jobs.Stats { return jobs.Stats(f) }

type pingFunc func(ctx context.Context) error

func (p pingFunc) Ping(ctx context.Context) error { return p(ctx) }

func TestHealthCheck(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name       string
		handler    *Handler
		wantCode   int
		wantStatus string
		wantDB     bool
	}{
		{
			name:       "no dependencies",
			handler:    NewHandler(fixedStats{Registered: 3, Recurring: 2, ManualOnly: 1}, logger.Nop()),
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name: "healthy lock backend and database",
			handler: NewHandler(fixedStats{Registered: 3}, logger.Nop()).
				WithCheck("locks", ok).
				WithDatabase(func() pool.Stats { return pool.Stats{TotalConns: 4, MaxConns: 25} }),
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantDB:     true,
		},
		{
			name:       "unreachable lock backend",
			handler:    NewHandler(fixedStats{}, logger.Nop()).WithCheck("locks", down),
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "degraded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.handler.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.wantCode {
				t.Fatalf("status code = %d, want %d", rec.Code, tt.wantCode)
			}
			var body api.HealthResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
			if (body.Database != nil) != tt.wantDB {
				t.Errorf("database present = %v, want %v", body.Database != nil, tt.wantDB)
			}
		})
	}
}

func TestHealthCheckReportsSchedulerCounts(t *testing.T) {
	h := NewHandler(fixedStats{Registered: 5, Recurring: 3, Paused: 1, ManualOnly: 2, InFlight: 1}, logger.Nop())

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body api.HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := api.SchedulerHealth{Registered: 5, Recurring: 3, Paused: 1, ManualOnly: 2, InFlight: 1}
	if body.Scheduler != want {
		t.Errorf("scheduler = %+v, want %+v", body.Scheduler, want)
	}
}
