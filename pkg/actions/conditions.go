package actions

import (
	"github.com/callsched/core/pkg/errors"
	"github.com/callsched/core/pkg/models"
)

// Listener is the kind of event a Condition reacts to.
type Listener string

const (
	ListenerTaskStatusChange Listener = "TASK_STATUS_CHANGE"
)

type conditionRule struct {
	listener Listener
	statuses []models.Status
}

var conditionRules = map[models.Condition]conditionRule{
	models.ConditionOnSuccess:                   taskStatus(models.StatusSuccess),
	models.ConditionOnFailed:                    taskStatus(models.StatusFailed),
	models.ConditionOnValidationPassed:          taskStatus(models.StatusValidationPassed),
	models.ConditionOnValidationFailed:          taskStatus(models.StatusValidationFailed),
	models.ConditionOnFailedUnexpectedException: taskStatus(models.StatusFailedUnexpectedException),
	models.ConditionOnIndeterminate:             taskStatus(models.StatusIndeterminate),
	models.ConditionOnProcessing:                taskStatus(models.StatusProcessing),
	models.ConditionOnProgressing:               taskStatus(models.StatusProgressing),
	models.ConditionOnAnyFailure: taskStatus(
		models.StatusFailed,
		models.StatusValidationFailed,
		models.StatusFailedUnexpectedException,
	),
	models.ConditionOnComplete: taskStatus(terminalStatuses()...),
}

func taskStatus(statuses ...models.Status) conditionRule {
	return conditionRule{listener: ListenerTaskStatusChange, statuses: statuses}
}

func terminalStatuses() []models.Status {
	var out []models.Status
	for _, s := range models.Statuses {
		if s.IsTerminal() {
			out = append(out, s)
		}
	}
	return out
}

// ValidateConditions fails if any Condition has no rule. Called once at startup.
func ValidateConditions() error {
	for _, c := range models.Conditions {
		if _, ok := conditionRules[c]; !ok {
			return errors.Newf("condition %s has no evaluation rule", c)
		}
	}
	return nil
}

// ListenerOf returns the listener kind a condition belongs to.
func ListenerOf(c models.Condition) (Listener, bool) {
	rule, ok := conditionRules[c]
	return rule.listener, ok
}

// Evaluate reports whether c holds for status under listener. A condition asked
// about another listener kind never holds.
func Evaluate(c models.Condition, listener Listener, status models.Status) bool {
	rule, ok := conditionRules[c]
	if !ok || rule.listener != listener {
		return false
	}
	for _, s := range rule.statuses {
		if s == status {
			return true
		}
	}
	return false
}
