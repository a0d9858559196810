// Package actions runs the post-execution actions configured on a job.
package actions

import (
	"context"
	"sync"

	"github.com/callsched/core/pkg/errors"
	"github.com/callsched/core/pkg/logger"
	"github.com/callsched/core/pkg/models"
	"github.com/callsched/core/pkg/telemetry"
)

// PostActionFailureMessage is appended to a task when a runner fails.
const PostActionFailureMessage = "Failed to run post action, check the logs for details"

// Runner performs one kind of action.
type Runner interface {
	Supports(t models.ActionType) bool
	Trigger(ctx context.Context, action models.ActionSpec, task *models.Task) error
}

// Registry fans a task change out to the runners of every action whose condition holds.
type Registry struct {
	mu      sync.RWMutex
	runners []Runner
	logger  *logger.Logger
}

// NewRegistry creates a registry with the given runners.
func NewRegistry(log *logger.Logger, runners ...Runner) *Registry {
	return &Registry{runners: runners, logger: log}
}

// Register adds a runner.
func (r *Registry) Register(runner Runner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runners = append(r.runners, runner)
}

// CheckActions rejects actions that could never run: unknown condition, no
// supporting runner, or a RUN_JOB without a valid target.
func (r *Registry) CheckActions(actions []models.ActionSpec) error {
	for i, a := range actions {
		if _, ok := ListenerOf(a.Condition); !ok {
			return errors.InvalidPayload(errors.CodeInvalidPayload, nil,
				"actions[%d]: unknown condition %q", i, a.Condition)
		}
		if len(r.supporting(a.Type)) == 0 {
			return errors.InvalidPayload(errors.CodeInvalidPayload, nil,
				"actions[%d]: unsupported action type %q", i, a.Type)
		}
		if a.Type == models.ActionRunJob && !models.JobKeyPattern.MatchString(a.TargetJobKey) {
			return errors.InvalidPayload(errors.CodeInvalidJobKey, nil,
				"actions[%d]: invalid target job key %q", i, a.TargetJobKey)
		}
	}
	return nil
}

// TaskUpdated is called on every task save. Failures never propagate: each one
// is logged and recorded on task.PostActionsMessage.
func (r *Registry) TaskUpdated(ctx context.Context, job *models.JobDefinition, task *models.Task) {
	if len(job.Actions) == 0 {
		return
	}

	for _, action := range job.Actions {
		if !Evaluate(action.Condition, ListenerTaskStatusChange, task.Status) {
			continue
		}
		for _, runner := range r.supporting(action.Type) {
			if err := r.trigger(ctx, runner, action, task); err != nil {
				r.logger.Error().
					Err(err).
					Str("action", "post_action_failed").
					Str("job_key", job.Key).
					Int64("task_id", task.ID).
					Str("action_type", string(action.Type)).
					Str("condition", string(action.Condition)).
					Msg("Post-execution action failed")
				telemetry.ActionFailures.WithLabelValues(string(action.Type)).Inc()
				task.AppendPostActionsMessage(PostActionFailureMessage)
			}
		}
	}
}

func (r *Registry) trigger(ctx context.Context, runner Runner, action models.ActionSpec, task *models.Task) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Newf("action runner panicked: %v", p)
		}
	}()
	return runner.Trigger(ctx, action, task)
}

func (r *Registry) supporting(t models.ActionType) []Runner {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Runner
	for _, runner := range r.runners {
		if runner.Supports(t) {
			out = append(out, runner)
		}
	}
	return out
}
