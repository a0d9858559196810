package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/callsched/core/pkg/handlers/health"
	"github.com/callsched/core/pkg/jobs"
	"github.com/callsched/core/pkg/logger"
	"github.com/callsched/core/pkg/telemetry"
)

type noStats struct{}

func (noStats) Stats() jobs.Stats { return jobs.Stats{} }

func TestRouter(t *testing.T) {
	srv := httptest.NewServer(Router(health.NewHandler(noStats{}, logger.Nop()), logger.Nop()))
	defer srv.Close()

	telemetry.SkippedLocked.Inc()

	tests := []struct {
		path     string
		wantCode int
		contains string
	}{
		{"/health", http.StatusOK, `"status":"ok"`},
		{"/metrics", http.StatusOK, "job_executions_skipped_total"},
		{"/jobs", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantCode {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantCode)
			}
			if tt.contains == "" {
				return
			}
			buf := new(strings.Builder)
			if _, err := io.Copy(buf, resp.Body); err != nil {
				t.Fatalf("read: %v", err)
			}
			if !strings.Contains(buf.String(), tt.contains) {
				t.Errorf("body does not contain %q", tt.contains)
			}
		})
	}
}
