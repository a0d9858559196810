package services

import (
	"context"
	"net/url"
	"strings"

	"github.com/callsched/core/pkg/errors"
	"github.com/callsched/core/pkg/jobs"
	"github.com/callsched/core/pkg/logger"
	"github.com/callsched/core/pkg/models"
	"github.com/callsched/core/pkg/store"
	"github.com/callsched/core/pkg/utils"
)

var allowedMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true,
	"DELETE": true, "HEAD": true, "OPTIONS": true,
}

// JobService exposes the job lifecycle operations
type JobService struct {
	store       store.JobStore
	scheduler   jobs.JobScheduler
	validations ValidationChecker
	actions     ActionChecker
	logger      *logger.Logger
}

// NewJobService creates a job service
func NewJobService(st store.JobStore, scheduler jobs.JobScheduler, validations ValidationChecker, actions ActionChecker, log *logger.Logger) *JobService {
	return &JobService{
		store:       st,
		scheduler:   scheduler,
		validations: validations,
		actions:     actions,
		logger:      log,
	}
}

// Create validates, stores and registers a new job
func (s *JobService) Create(ctx context.Context, job *models.JobDefinition) (*models.JobDefinition, error) {
	if !models.JobKeyPattern.MatchString(job.Key) {
		return nil, errors.InvalidPayload(errors.CodeInvalidJobKey, nil,
			"job key %q must match %s", job.Key, models.JobKeyPattern.String())
	}
	job = job.Clone()
	if err := s.check(job); err != nil {
		return nil, err
	}

	if err := s.store.Insert(ctx, job); err != nil {
		if errors.CodeOf(err) == errors.CodeKeyAlreadyInUse {
			return nil, err
		}
		return nil, errors.Wrapf(err, "insert job %s", job.Key)
	}
	if err := s.scheduler.Register(job); err != nil {
		if delErr := s.store.Delete(ctx, job.Key); delErr != nil {
			s.logger.Error().Err(delErr).Str("action", "create_rollback_failed").Str("job_key", job.Key).Msg("Failed to remove job after registration failure")
		}
		return nil, err
	}

	s.logger.Info().
		Str("action", "job_created").
		Str("job_key", job.Key).
		Str("schedule", job.CronExpression).
		Msg("Job created")
	return job, nil
}

// Get returns a job by key
func (s *JobService) Get(ctx context.Context, key string) (*models.JobDefinition, error) {
	return s.store.Get(ctx, key)
}

// Search returns jobs matching filter. No match is a NotFound error.
func (s *JobService) Search(ctx context.Context, filter models.JobFilter) ([]*models.JobDefinition, error) {
	found, err := s.store.Search(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "search jobs")
	}
	if len(found) == 0 {
		return nil, errors.NotFound(errors.CodeNoJobsFound, "no jobs match the search")
	}
	return found, nil
}

// Patch applies a partial update. A new cron expression re-registers the trigger.
func (s *JobService) Patch(ctx context.Context, key string, patch models.JobPatch) (*models.JobDefinition, error) {
	job, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	cronChanged := patch.Apply(job)
	if err := s.check(job); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, job); err != nil {
		return nil, errors.Wrapf(err, "save job %s", key)
	}

	if cronChanged {
		s.unregister(key)
		if err := s.scheduler.Register(job); err != nil {
			return nil, err
		}
		s.logger.Info().
			Str("action", "job_rescheduled").
			Str("job_key", key).
			Str("schedule", job.CronExpression).
			Msg("Job schedule changed")
	}
	return job, nil
}

// Delete removes the trigger, then the job and its tasks. If the store delete
// fails the trigger is restored.
func (s *JobService) Delete(ctx context.Context, key string) error {
	job, err := s.store.Get(ctx, key)
	if err != nil {
		return err
	}

	registered := s.unregister(key)
	if err := s.store.Delete(ctx, key); err != nil {
		if !registered {
			return errors.Wrapf(err, "delete job %s", key)
		}
		if regErr := s.scheduler.Register(job); regErr != nil {
			s.logger.Error().Err(regErr).Str("action", "delete_rollback_failed").Str("job_key", key).Msg("Failed to restore trigger after delete failure")
		}
		return errors.Wrapf(err, "delete job %s", key)
	}

	s.logger.Info().Str("action", "job_deleted").Str("job_key", key).Msg("Job deleted")
	return nil
}

// Enable resumes the recurring trigger and records it on the job
func (s *JobService) Enable(ctx context.Context, key string) error {
	return s.toggle(ctx, key, false)
}

// Disable pauses the recurring trigger and records it on the job
func (s *JobService) Disable(ctx context.Context, key string) error {
	return s.toggle(ctx, key, true)
}

func (s *JobService) toggle(ctx context.Context, key string, disable bool) error {
	job, err := s.store.Get(ctx, key)
	if err != nil {
		return err
	}

	if err := s.setEnabled(key, !disable); err != nil {
		return err
	}

	job.Disabled = disable
	if err := s.store.Save(ctx, job); err != nil {
		// the stored state wins; put the trigger back the way it was
		if revertErr := s.setEnabled(key, disable); revertErr != nil {
			s.logger.Error().Err(revertErr).Str("action", "toggle_revert_failed").Str("job_key", key).Msg("Failed to restore trigger state after save failure")
		}
		return errors.Wrapf(err, "save job %s", key)
	}
	return nil
}

func (s *JobService) setEnabled(key string, enabled bool) error {
	if enabled {
		return s.scheduler.Enable(key)
	}
	return s.scheduler.Disable(key)
}

// Run dispatches one execution now. It does not wait for the result.
func (s *JobService) Run(ctx context.Context, key string) error {
	exists, err := s.store.Exists(ctx, key)
	if err != nil {
		return errors.Wrapf(err, "check job %s", key)
	}
	if !exists {
		return errors.NotFound(errors.CodeJobNotFound, "job %s not found", key)
	}
	return s.scheduler.ExecuteJob(ctx, key)
}

// Bootstrap registers every stored job. A job that fails to register is logged
// and skipped. Returns the number registered.
func (s *JobService) Bootstrap(ctx context.Context) (int, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "list jobs")
	}

	registered := 0
	for _, job := range all {
		if err := s.scheduler.Register(job); err != nil {
			s.logger.Error().
				Err(err).
				Str("action", "bootstrap_register_failed").
				Str("job_key", job.Key).
				Msg("Skipping job that could not be registered")
			continue
		}
		registered++
	}

	s.logger.Info().
		Str("action", "bootstrap").
		Int("registered", registered).
		Int("stored", len(all)).
		Msg("Registered stored jobs")
	return registered, nil
}

// unregister drops the trigger of key, tolerating a job that never got one
func (s *JobService) unregister(key string) bool {
	if err := s.scheduler.Unregister(key); err != nil {
		s.logger.Warn().Err(err).Str("action", "unregister_skipped").Str("job_key", key).Msg("Job had no trigger")
		return false
	}
	return true
}

// check validates every field of job except the key and normalizes it in place
func (s *JobService) check(job *models.JobDefinition) error {
	job.Method = strings.ToUpper(strings.TrimSpace(job.Method))
	if !allowedMethods[job.Method] {
		return errors.InvalidPayload(errors.CodeInvalidPayload, nil, "unsupported http method %q", job.Method)
	}

	u, err := url.ParseRequestURI(job.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.InvalidPayload(errors.CodeInvalidPayload, err, "url %q must be an absolute http(s) url", job.URL)
	}

	job.AuthStrategy = job.AuthStrategy.OrNone()
	if !knownStrategy(job.AuthStrategy) {
		return errors.InvalidPayload(errors.CodeInvalidPayload, nil, "unknown auth strategy %q", job.AuthStrategy)
	}

	if job.IsScheduled() {
		if _, err := jobs.ParseCron(job.CronExpression); err != nil {
			return err
		}
	}
	if err := s.validations.CheckAll(job.Validations); err != nil {
		return err
	}
	if err := s.actions.CheckActions(job.Actions); err != nil {
		return err
	}

	job.Tags = utils.NormalizeTags(job.Tags)
	return nil
}

func knownStrategy(a models.AuthStrategy) bool {
	for _, s := range models.AuthStrategies {
		if s == a {
			return true
		}
	}
	return false
}
