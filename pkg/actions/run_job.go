package actions

import (
	"context"
	"sync"

	"github.com/callsched/core/pkg/errors"
	"github.com/callsched/core/pkg/logger"
	"github.com/callsched/core/pkg/models"
)

// JobTrigger dispatches a job execution without waiting for it.
type JobTrigger interface {
	ExecuteJob(ctx context.Context, key string) error
}

// RunJobRunner handles RUN_JOB by asking the scheduler to execute the target job.
type RunJobRunner struct {
	mu      sync.RWMutex
	trigger JobTrigger
	logger  *logger.Logger
}

// NewRunJobRunner returns an unbound runner; call Bind before the scheduler starts.
func NewRunJobRunner(log *logger.Logger) *RunJobRunner {
	return &RunJobRunner{logger: log}
}

// Bind sets the scheduler. The scheduler itself depends on this runner through
// the execution chain, so it cannot be passed at construction.
func (r *RunJobRunner) Bind(t JobTrigger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trigger = t
}

func (r *RunJobRunner) Supports(t models.ActionType) bool {
	return t == models.ActionRunJob
}

func (r *RunJobRunner) Trigger(ctx context.Context, action models.ActionSpec, task *models.Task) error {
	r.mu.RLock()
	trigger := r.trigger
	r.mu.RUnlock()

	if trigger == nil {
		return errors.New("run job runner is not bound to a scheduler")
	}
	if action.TargetJobKey == "" {
		return errors.New("run job action has no target job key")
	}

	r.logger.Info().
		Str("action", "post_action_run_job").
		Str("job_key", task.JobKey).
		Int64("task_id", task.ID).
		Str("target_job_key", action.TargetJobKey).
		Msg("Triggering follow-up job")

	if err := trigger.ExecuteJob(ctx, action.TargetJobKey); err != nil {
		return errors.Wrapf(err, "execute job %s", action.TargetJobKey)
	}
	return nil
}
