package services

import (
	"context"

	"github.com/callsched/core/pkg/models"
)

// ValidationChecker rejects malformed validation lists
type ValidationChecker interface {
	CheckAll(specs []models.ValidationSpec) error
}

// ActionChecker rejects actions that could never run
type ActionChecker interface {
	CheckActions(actions []models.ActionSpec) error
}

// TaskListener is notified of every task save before it is persisted
type TaskListener interface {
	TaskUpdated(ctx context.Context, job *models.JobDefinition, task *models.Task)
}
