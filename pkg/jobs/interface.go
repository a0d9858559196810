package jobs

import (
	"context"

	"github.com/callsched/core/pkg/models"
)

// Trigger kinds recorded in execution logs
const (
	TriggerCron   = "cron"
	TriggerManual = "manual"
)

// JobRunner executes one job once and returns the recorded task
type JobRunner interface {
	Run(ctx context.Context, key string) (*models.Task, error)
}

// JobScheduler owns the key -> trigger mapping and dispatches executions
type JobScheduler interface {
	// Register installs a trigger for job: recurring when it has a cron
	// expression (paused if the job is disabled), manual-only otherwise
	Register(job *models.JobDefinition) error

	// Unregister removes the trigger of key
	Unregister(key string) error

	// ExecuteJob dispatches one execution now without waiting for it
	ExecuteJob(ctx context.Context, key string) error

	IsScheduled(key string) (bool, error)
	IsEnabled(key string) (bool, error)
	IsDisabled(key string) (bool, error)

	// Enable resumes a paused recurring trigger
	Enable(key string) error

	// Disable pauses a recurring trigger
	Disable(key string) error

	// Start begins firing recurring triggers
	Start(ctx context.Context) error

	// Stop stops firing, refuses new dispatches and waits for in-flight executions
	Stop(ctx context.Context) error

	Stats() Stats
}

// Stats is a point-in-time view of the scheduler
type Stats struct {
	Registered int `json:"registered"`
	Recurring  int `json:"recurring"`
	Paused     int `json:"paused"`
	ManualOnly int `json:"manual_only"`
	InFlight   int `json:"in_flight"`
}
