package jobs

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sourcegraph/conc/pool"

	"github.com/callsched/core/pkg/errors"
	"github.com/callsched/core/pkg/logger"
	"github.com/callsched/core/pkg/models"
	"github.com/callsched/core/pkg/telemetry"
)

// Config holds scheduler settings
type Config struct {
	// Workers bounds concurrent executions across all jobs
	Workers int
	// Location is the time zone cron expressions are evaluated in
	Location *time.Location
}

// DefaultConfig returns ten workers on UTC
func DefaultConfig() Config {
	return Config{Workers: 10, Location: time.UTC}
}

type trigger struct {
	key      string
	cronExpr string
	schedule cron.Schedule
	entryID  cron.EntryID
	paused   bool
}

func (t *trigger) recurring() bool {
	return t.cronExpr != ""
}

// Scheduler implements JobScheduler on robfig/cron with a bounded worker pool
type Scheduler struct {
	mu       sync.Mutex
	cron     *cron.Cron
	triggers map[string]*trigger
	started  bool
	stopped  bool

	runner JobRunner
	locks  JobLockManager
	pool   *pool.Pool
	logger *logger.Logger

	inflight      sync.WaitGroup
	inflightCount atomic.Int64
}

// NewScheduler creates a stopped scheduler
func NewScheduler(cfg Config, runner JobRunner, locks JobLockManager, log *logger.Logger) *Scheduler {
	if cfg.Workers < 1 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	cronLog := log.ForCron()
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithParser(cronParser),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog)),
		),
		triggers: make(map[string]*trigger),
		runner:   runner,
		locks:    locks,
		pool:     pool.New().WithMaxGoroutines(cfg.Workers),
		logger:   log,
	}
}

func (s *Scheduler) Register(job *models.JobDefinition) error {
	t := &trigger{key: job.Key}
	if job.IsScheduled() {
		schedule, err := ParseCron(job.CronExpression)
		if err != nil {
			return err
		}
		t.cronExpr = job.CronExpression
		t.schedule = schedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return errors.Internal(errors.CodeSchedulerFailure, nil, "scheduler is stopped, cannot register job %s", job.Key)
	}
	if _, exists := s.triggers[job.Key]; exists {
		return errors.Internal(errors.CodeSchedulerFailure, nil, "job %s is already registered", job.Key)
	}

	if t.recurring() {
		if job.Disabled {
			t.paused = true
		} else {
			t.entryID = s.cron.Schedule(t.schedule, s.cronJob(job.Key))
		}
	}
	s.triggers[job.Key] = t
	telemetry.ScheduledJobs.Set(float64(len(s.triggers)))

	s.logger.Info().
		Str("action", "register_job").
		Str("job_key", job.Key).
		Str("schedule", t.cronExpr).
		Bool("paused", t.paused).
		Msg("Registered job")
	return nil
}

func (s *Scheduler) Unregister(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.triggers[key]
	if !ok {
		return errors.Internal(errors.CodeSchedulerFailure, nil, "job %s is not registered", key)
	}
	if t.entryID != 0 {
		s.cron.Remove(t.entryID)
	}
	delete(s.triggers, key)
	telemetry.ScheduledJobs.Set(float64(len(s.triggers)))

	s.logger.Info().
		Str("action", "unregister_job").
		Str("job_key", key).
		Msg("Unregistered job")
	return nil
}

// ExecuteJob dispatches key once, whatever the state of its trigger. A key
// without a trigger still runs, and no trigger is left behind.
func (s *Scheduler) ExecuteJob(ctx context.Context, key string) error {
	return s.dispatch(context.WithoutCancel(ctx), key, TriggerManual)
}

func (s *Scheduler) IsScheduled(key string) (bool, error) {
	t, err := s.lookup(key)
	if err != nil {
		return false, err
	}
	return t.recurring(), nil
}

func (s *Scheduler) IsEnabled(key string) (bool, error) {
	t, err := s.lookup(key)
	if err != nil {
		return false, err
	}
	return t.recurring() && !t.paused, nil
}

func (s *Scheduler) IsDisabled(key string) (bool, error) {
	t, err := s.lookup(key)
	if err != nil {
		return false, err
	}
	return t.recurring() && t.paused, nil
}

func (s *Scheduler) Enable(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.checkToggle(key)
	if err != nil {
		return err
	}
	if !t.paused {
		return errors.BusinessRule(errors.CodeJobAlreadyEnabled, "job %s is already enabled", key)
	}
	t.entryID = s.cron.Schedule(t.schedule, s.cronJob(key))
	t.paused = false

	s.logger.Info().Str("action", "enable_job").Str("job_key", key).Msg("Resumed job trigger")
	return nil
}

func (s *Scheduler) Disable(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.checkToggle(key)
	if err != nil {
		return err
	}
	if t.paused {
		return errors.BusinessRule(errors.CodeJobAlreadyDisabled, "job %s is already disabled", key)
	}
	s.cron.Remove(t.entryID)
	t.entryID = 0
	t.paused = true

	s.logger.Info().Str("action", "disable_job").Str("job_key", key).Msg("Paused job trigger")
	return nil
}

// checkToggle must be called with s.mu held
func (s *Scheduler) checkToggle(key string) (*trigger, error) {
	t, ok := s.triggers[key]
	if !ok {
		return nil, errors.NotFound(errors.CodeJobNotFound, "job %s is not registered", key)
	}
	if !t.recurring() {
		return nil, errors.BusinessRule(errors.CodeNotAScheduledJob, "job %s has no cron schedule", key)
	}
	return t, nil
}

func (s *Scheduler) lookup(key string) (trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.triggers[key]
	if !ok {
		return trigger{}, errors.NotFound(errors.CodeJobNotFound, "job %s is not registered", key)
	}
	return *t, nil
}

// Start verifies the lock backend and starts the cron clock
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.locks.Ping(ctx); err != nil {
		return errors.Internal(errors.CodeSchedulerFailure, err, "lock backend unavailable")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return errors.Internal(errors.CodeSchedulerFailure, nil, "scheduler cannot be restarted")
	}
	if s.started {
		return nil
	}
	s.cron.Start()
	s.started = true

	s.logger.Info().
		Str("action", "start").
		Int("job_count", len(s.triggers)).
		Msg("Started job scheduler")
	return nil
}

// Stop stops the cron clock, refuses new dispatches and waits for in-flight
// executions. It returns an error if ctx expires first; the executions keep
// running in that case.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	s.logger.Info().
		Str("action", "stop_initiated").
		Int64("in_flight", s.inflightCount.Load()).
		Msg("Stopping job scheduler")

	<-s.cron.Stop().Done()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.pool.Wait()
		s.logger.Info().Str("action", "stopped").Msg("Job scheduler stopped")
		return nil
	case <-ctx.Done():
		return errors.Internal(errors.CodeSchedulerFailure, ctx.Err(),
			"%d executions still running at shutdown", s.inflightCount.Load())
	}
}

func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{Registered: len(s.triggers), InFlight: int(s.inflightCount.Load())}
	for _, t := range s.triggers {
		switch {
		case !t.recurring():
			st.ManualOnly++
		case t.paused:
			st.Paused++
		default:
			st.Recurring++
		}
	}
	return st
}

func (s *Scheduler) cronJob(key string) cron.Job {
	return cron.FuncJob(func() {
		if err := s.dispatch(context.Background(), key, TriggerCron); err != nil {
			s.logger.Warn().Err(err).Str("action", "dispatch_refused").Str("job_key", key).Msg("Cron firing not dispatched")
		}
	})
}

// dispatch hands one execution to the worker pool and returns immediately.
// Submission happens on its own goroutine because pool.Go blocks while every
// worker is busy.
func (s *Scheduler) dispatch(ctx context.Context, key, kind string) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return errors.Internal(errors.CodeSchedulerFailure, nil, "scheduler is stopped, cannot execute job %s", key)
	}
	s.inflight.Add(1)
	s.mu.Unlock()

	s.inflightCount.Add(1)
	telemetry.InFlight.Inc()

	go s.pool.Go(func() {
		defer func() {
			s.inflightCount.Add(-1)
			telemetry.InFlight.Dec()
			s.inflight.Done()
		}()
		_, _ = s.runGuarded(ctx, key, kind)
	})
	return nil
}
