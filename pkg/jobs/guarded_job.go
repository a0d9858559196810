package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/callsched/core/pkg/errors"
	"github.com/callsched/core/pkg/models"
	"github.com/callsched/core/pkg/telemetry"
)

// ErrJobRunning is returned by RunNow when an execution of the same key holds the lock
var ErrJobRunning = errors.New("job is already running")

// RunNow executes key synchronously under its lock and returns the task.
// Used by the one-shot CLI mode.
func (s *Scheduler) RunNow(ctx context.Context, key string) (*models.Task, error) {
	return s.runGuarded(ctx, key, TriggerManual)
}

// runGuarded runs key while holding its lock. A firing that finds the lock held
// is dropped, not queued.
func (s *Scheduler) runGuarded(ctx context.Context, key, kind string) (task *models.Task, err error) {
	requestID := uuid.New().String()
	jobLogger := s.logger.WithRequestID(requestID).WithJob(key, kind)
	ctx = jobLogger.ToContext(ctx)

	guard := NewLockGuard(s.locks, key, jobLogger)
	acquired, err := guard.Acquire(ctx)
	if err != nil {
		jobLogger.Error().
			Err(err).
			Str("action", "lock_acquisition_error").
			Msg("Failed to acquire job lock")
		return nil, errors.Internal(errors.CodeSchedulerFailure, err, "acquire lock for job %s", key)
	}
	if !acquired {
		telemetry.SkippedLocked.Inc()
		jobLogger.Info().
			Str("action", "job_skipped_locked").
			Msg("Job skipped - previous execution still running")
		return nil, ErrJobRunning
	}

	defer func() {
		// Release on a fresh context so a cancelled caller still frees the lock
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = guard.Release(releaseCtx)
	}()

	defer func() {
		if p := recover(); p != nil {
			err = errors.Newf("job %s panicked: %v", key, p)
			jobLogger.Error().
				Err(err).
				Str("action", "job_panic").
				Msg("Job execution panicked")
		}
	}()

	jobLogger.LogJobStart(key, kind)
	start := time.Now()

	task, err = s.runner.Run(ctx, key)
	if err != nil {
		event := jobLogger.Error().
			Err(err).
			Str("action", "job_failed").
			Dur("duration", time.Since(start))
		if task != nil {
			event = event.Int64("task_id", task.ID).Str("status", string(task.Status))
		}
		event.Msg("Job execution failed")
		return task, err
	}
	return task, nil
}
