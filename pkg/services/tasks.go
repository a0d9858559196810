package services

import (
	"context"
	"time"

	"github.com/callsched/core/pkg/errors"
	"github.com/callsched/core/pkg/logger"
	"github.com/callsched/core/pkg/models"
	"github.com/callsched/core/pkg/store"
)

// DefaultSearchWindow is the created-after bound applied when a search sets none
const DefaultSearchWindow = 7 * 24 * time.Hour

// TaskService records and queries task history
type TaskService struct {
	tasks    store.TaskStore
	jobs     store.JobStore
	listener TaskListener
	window   time.Duration
	logger   *logger.Logger
	now      func() time.Time
}

// NewTaskService creates a task service. window <= 0 uses DefaultSearchWindow.
func NewTaskService(tasks store.TaskStore, jobs store.JobStore, listener TaskListener, window time.Duration, log *logger.Logger) *TaskService {
	if window <= 0 {
		window = DefaultSearchWindow
	}
	return &TaskService{
		tasks:    tasks,
		jobs:     jobs,
		listener: listener,
		window:   window,
		logger:   log,
		now:      time.Now,
	}
}

// Save persists task after giving the job's actions a chance to run
func (s *TaskService) Save(ctx context.Context, job *models.JobDefinition, task *models.Task) (*models.Task, error) {
	s.listener.TaskUpdated(ctx, job, task)
	return s.tasks.Save(ctx, task)
}

// ListTasks returns every task of a job, newest first
func (s *TaskService) ListTasks(ctx context.Context, jobKey string) ([]*models.Task, error) {
	if err := s.requireJob(ctx, jobKey); err != nil {
		return nil, err
	}
	return s.tasks.FindAll(ctx, jobKey)
}

// Latest returns the most recent task of a job
func (s *TaskService) Latest(ctx context.Context, jobKey string) (*models.Task, error) {
	if err := s.requireJob(ctx, jobKey); err != nil {
		return nil, err
	}
	return s.tasks.FindLatest(ctx, jobKey)
}

// Get returns one task
func (s *TaskService) Get(ctx context.Context, jobKey string, id int64) (*models.Task, error) {
	if err := s.requireJob(ctx, jobKey); err != nil {
		return nil, err
	}
	return s.tasks.FindByJobKeyAndID(ctx, jobKey, id)
}

// Search queries tasks across jobs. No match is a NotFound error.
func (s *TaskService) Search(ctx context.Context, filter models.TaskFilter) ([]*models.Task, error) {
	for _, st := range filter.Statuses {
		if !st.IsValid() {
			return nil, errors.InvalidPayload(errors.CodeInvalidPayload, nil, "unknown task status %q", st)
		}
	}
	if filter.CreatedAfter.IsZero() {
		filter.CreatedAfter = s.now().Add(-s.window)
	}

	found, err := s.tasks.Search(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "search tasks")
	}
	if len(found) == 0 {
		return nil, errors.NotFound(errors.CodeNoTasksFound, "no tasks match the search")
	}
	return found, nil
}

// UpdateStatus applies an asynchronous status callback: the status is
// replaced, the message replaced when given, and metadata merged.
func (s *TaskService) UpdateStatus(ctx context.Context, jobKey string, id int64, update models.TaskStatusUpdate) (*models.Task, error) {
	if !update.Status.IsValid() {
		return nil, errors.InvalidPayload(errors.CodeInvalidPayload, nil, "unknown task status %q", update.Status)
	}
	if update.Status == models.StatusPending {
		return nil, errors.InvalidPayload(errors.CodeInvalidPayload, nil, "a task cannot be moved back to %s", models.StatusPending)
	}

	job, err := s.jobs.Get(ctx, jobKey)
	if err != nil {
		return nil, err
	}
	task, err := s.tasks.FindByJobKeyAndID(ctx, jobKey, id)
	if err != nil {
		return nil, err
	}

	previous := task.Status
	update.Apply(task)

	saved, err := s.Save(ctx, job, task)
	if err != nil {
		return nil, errors.Wrapf(err, "save task %d of %s", id, jobKey)
	}

	s.logger.Info().
		Str("action", "task_status_updated").
		Str("job_key", jobKey).
		Int64("task_id", id).
		Str("from", string(previous)).
		Str("to", string(saved.Status)).
		Msg("Task status updated")
	return saved, nil
}

func (s *TaskService) requireJob(ctx context.Context, jobKey string) error {
	exists, err := s.jobs.Exists(ctx, jobKey)
	if err != nil {
		return errors.Wrapf(err, "check job %s", jobKey)
	}
	if !exists {
		return errors.NotFound(errors.CodeJobNotFound, "job %s not found", jobKey)
	}
	return nil
}
