// Package execution runs one job once: HTTP call, validations, task record.
package execution

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/callsched/core/pkg/errors"
	"github.com/callsched/core/pkg/logger"
	"github.com/callsched/core/pkg/models"
	"github.com/callsched/core/pkg/telemetry"
)

// Headers added to every outbound job request.
const (
	HeaderJobKey = "X-Job-Key"
	HeaderTaskID = "X-Task-Id"
)

// JobReader loads job definitions.
type JobReader interface {
	Get(ctx context.Context, key string) (*models.JobDefinition, error)
}

// TaskRecorder persists a task on behalf of job. Implementations run the job's
// post-execution actions as part of every save.
type TaskRecorder interface {
	Save(ctx context.Context, job *models.JobDefinition, task *models.Task) (*models.Task, error)
}

// HTTPClient performs the outbound call.
type HTTPClient interface {
	Do(ctx context.Context, req *models.HTTPRequest) (*models.HTTPResponse, error)
}

// Authenticator applies a job's auth strategy to the request.
type Authenticator interface {
	Apply(job *models.JobDefinition, req *models.HTTPRequest) error
}

// ResponseValidator evaluates one validation spec.
type ResponseValidator interface {
	Validate(spec models.ValidationSpec, resp *models.HTTPResponse) models.ValidationResult
}

// Unit executes jobs. It is stateless and safe for concurrent use.
type Unit struct {
	jobs       JobReader
	tasks      TaskRecorder
	client     HTTPClient
	auth       Authenticator
	validation ResponseValidator
	logger     *logger.Logger
}

// NewUnit wires an execution unit.
func NewUnit(jobs JobReader, tasks TaskRecorder, client HTTPClient, auth Authenticator, validation ResponseValidator, log *logger.Logger) *Unit {
	return &Unit{
		jobs:       jobs,
		tasks:      tasks,
		client:     client,
		auth:       auth,
		validation: validation,
		logger:     log,
	}
}

// Run executes the job stored under key and returns the final task.
//
// A missing job is returned as the store's NotFound error and no task is created.
// Transport, authentication and unexpected failures mark the task
// FAILED_UNEXPECTED_EXCEPTION, persist it and return an Internal error. Failing
// validations are not an error.
func (u *Unit) Run(ctx context.Context, key string) (*models.Task, error) {
	start := time.Now()

	job, err := u.jobs.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	task, err := u.tasks.Save(ctx, job, models.NewTask(job.Key))
	if err != nil {
		return nil, errors.Internal(errors.CodeUnexpectedExecution, err, "create task for job %s", key)
	}
	if execErr := u.execute(ctx, job, task); execErr != nil {
		return u.fail(ctx, job, task, start, execErr, "job %s execution failed", job.Key)
	}

	saved, err := u.tasks.Save(ctx, job, task)
	if err != nil {
		return u.fail(ctx, job, task, start, err, "record task %d of job %s", task.ID, job.Key)
	}
	u.observe(saved, start)
	return saved, nil
}

// fail marks task FAILED_UNEXPECTED_EXCEPTION with cause as its message, makes
// one attempt to persist it and returns cause wrapped as an unexpected failure.
func (u *Unit) fail(ctx context.Context, job *models.JobDefinition, task *models.Task, start time.Time, cause error, format string, args ...interface{}) (*models.Task, error) {
	log := u.logger.WithTask(task.ID)

	task.Status = models.StatusFailedUnexpectedException
	task.SetMessage(cause.Error())

	log.Error().
		Err(cause).
		Str("action", "job_execution_failed").
		Str("job_key", job.Key).
		Msg("Job execution failed unexpectedly")

	saved, saveErr := u.tasks.Save(ctx, job, task)
	if saveErr != nil {
		log.Error().Err(saveErr).Str("action", "task_save_failed").Str("job_key", job.Key).Msg("Failed to record failed task")
		saved = task
	}
	u.observe(saved, start)
	return saved, errors.Internal(errors.CodeUnexpectedExecution, cause, format, args...)
}

// execute performs the call and validations, writing the terminal status onto task.
func (u *Unit) execute(ctx context.Context, job *models.JobDefinition, task *models.Task) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Newf("panic during execution: %v", p)
		}
	}()

	req := buildRequest(job, task)
	if err := u.auth.Apply(job, req); err != nil {
		return err
	}

	resp, err := u.client.Do(ctx, req)
	if err != nil {
		return err
	}

	var failures []string
	for _, spec := range job.Validations {
		result := u.validation.Validate(spec, resp)
		if !result.Passed {
			failures = append(failures, fmt.Sprintf("%s: %s", spec.Type, result.Message))
		}
	}

	if len(failures) == 0 {
		task.Status = models.StatusValidationPassed
		return nil
	}
	task.Status = models.StatusValidationFailed
	task.SetMessage(strings.Join(failures, "\n"))
	return nil
}

func buildRequest(job *models.JobDefinition, task *models.Task) *models.HTTPRequest {
	req := &models.HTTPRequest{
		Method:  job.Method,
		URL:     job.URL,
		Headers: make(map[string]string, len(job.Headers)+2),
	}
	for k, v := range job.Headers {
		req.Headers[k] = v
	}
	if job.Body != nil {
		body := *job.Body
		req.Body = &body
	}
	req.SetHeader(HeaderJobKey, job.Key)
	req.SetHeader(HeaderTaskID, strconv.FormatInt(task.ID, 10))
	return req
}

func (u *Unit) observe(task *models.Task, start time.Time) {
	duration := time.Since(start)
	telemetry.ExecutionsTotal.WithLabelValues(string(task.Status)).Inc()
	telemetry.ExecutionDuration.Observe(duration.Seconds())
	u.logger.LogJobComplete(task.JobKey, duration, task.ID, string(task.Status))
}
