// Package store persists job definitions and their task history.
//
// Two implementations share the contracts below: Memory for tests and single-node
// development, Postgres for deployments. Both return copies; callers never share
// state with the store.
package store

import (
	"context"

	"github.com/callsched/core/pkg/errors"
	"github.com/callsched/core/pkg/models"
)

// JobStore persists job definitions keyed by job key.
type JobStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	// Get returns a NotFound error when the key is unknown.
	Get(ctx context.Context, key string) (*models.JobDefinition, error)
	// Insert stores a new job, failing with KEY_ALREADY_IN_USE if the key exists.
	Insert(ctx context.Context, job *models.JobDefinition) error
	// Save inserts or replaces the job.
	Save(ctx context.Context, job *models.JobDefinition) error
	// Delete removes the job and all of its tasks atomically.
	Delete(ctx context.Context, key string) error
	Search(ctx context.Context, filter models.JobFilter) ([]*models.JobDefinition, error)
	List(ctx context.Context) ([]*models.JobDefinition, error)
}

// TaskStore persists the execution history of jobs.
type TaskStore interface {
	// Save inserts a task when its ID is zero, assigning the next ID for its job,
	// and updates it otherwise. The stored copy is returned.
	Save(ctx context.Context, task *models.Task) (*models.Task, error)
	FindLatest(ctx context.Context, jobKey string) (*models.Task, error)
	FindByJobKeyAndID(ctx context.Context, jobKey string, id int64) (*models.Task, error)
	// FindAll returns every task of a job, newest first.
	FindAll(ctx context.Context, jobKey string) ([]*models.Task, error)
	DeleteAllByJobKey(ctx context.Context, jobKey string) error
	// Search returns matching tasks ordered by creation time.
	Search(ctx context.Context, filter models.TaskFilter) ([]*models.Task, error)
}

func jobNotFound(key string) error {
	return errors.NotFound(errors.CodeJobNotFound, "job %s not found", key)
}

func keyInUse(key string) error {
	return errors.BusinessRule(errors.CodeKeyAlreadyInUse, "job key %s is already in use", key)
}

func taskNotFound(jobKey string, id int64) error {
	return errors.NotFound(errors.CodeTaskNotFound, "task %d of job %s not found", id, jobKey)
}

func noTasks(jobKey string) error {
	return errors.NotFound(errors.CodeTaskNotFound, "job %s has no tasks", jobKey)
}
