package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	ExecutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "job_executions_total",
		Help: "Job executions by resulting task status",
	}, []string{"status"})
	ExecutionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "job_execution_duration_seconds",
		Help:    "Wall time of one job execution, HTTP call and validations included",
		Buckets: prometheus.DefBuckets,
	})
	SkippedLocked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "job_executions_skipped_total",
		Help: "Firings dropped because the same job was still running",
	})
	ActionFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "job_post_action_failures_total",
		Help: "Post-execution action runners that failed",
	}, []string{"type"})
	ScheduledJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduled_jobs",
		Help: "Jobs with a registered trigger",
	})
	InFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "job_executions_inflight",
		Help: "Executions currently dispatched and not finished",
	})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			ExecutionsTotal,
			ExecutionDuration,
			SkippedLocked,
			ActionFailures,
			ScheduledJobs,
			InFlight,
		)
	})
	return promhttp.Handler()
}
