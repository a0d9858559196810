package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/callsched/core/pkg/actions"
	"github.com/callsched/core/pkg/auth"
	"github.com/callsched/core/pkg/execution"
	"github.com/callsched/core/pkg/httpexec"
	"github.com/callsched/core/pkg/jobs"
	"github.com/callsched/core/pkg/logger"
	"github.com/callsched/core/pkg/models"
	"github.com/callsched/core/pkg/store"
	"github.com/callsched/core/pkg/validation"
)

// stack is the whole engine on the in-memory store, started.
type stack struct {
	jobs      *JobService
	tasks     *TaskService
	mem       *store.Memory
	scheduler *jobs.Scheduler
}

func newStack(t *testing.T) *stack {
	t.Helper()
	log := logger.Nop()

	mem := store.NewMemory()
	engine := validation.NewDefaultEngine()
	runJob := actions.NewRunJobRunner(log)
	registry := actions.NewRegistry(log, runJob)

	taskSvc := NewTaskService(mem.Tasks(), mem, registry, 0, log)
	unit := execution.NewUnit(mem, taskSvc,
		httpexec.New(httpexec.Config{Timeout: 5 * time.Second}, log),
		auth.NewDefaultRegistry(auth.Config{}), engine, log)

	scheduler := jobs.NewScheduler(jobs.Config{Workers: 4}, unit, jobs.NewMemoryLockManager(), log)
	runJob.Bind(scheduler)
	require.NoError(t, scheduler.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = scheduler.Stop(ctx)
	})

	return &stack{
		jobs:      NewJobService(mem, scheduler, engine, registry, log),
		tasks:     taskSvc,
		mem:       mem,
		scheduler: scheduler,
	}
}

// upstream counts calls and answers with status.
func upstream(t *testing.T, status int) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newJob(key, url string) *models.JobDefinition {
	return &models.JobDefinition{
		Key:         key,
		Method:      "GET",
		URL:         url,
		Validations: []models.ValidationSpec{{Type: models.ValidationStatusCode, Expected: 200}},
	}
}

func eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func latestStatus(s *stack, key string) models.Status {
	task, err := s.mem.Tasks().FindLatest(context.Background(), key)
	if err != nil {
		return ""
	}
	return task.Status
}
