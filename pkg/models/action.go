package models

// ActionType discriminates ActionSpec.
type ActionType string

const (
	ActionRunJob ActionType = "RUN_JOB"
)

// Condition gates whether an action fires for a task.
type Condition string

const (
	ConditionOnSuccess                   Condition = "ON_SUCCESS"
	ConditionOnFailed                    Condition = "ON_FAILED"
	ConditionOnValidationPassed          Condition = "ON_VALIDATION_PASSED"
	ConditionOnValidationFailed          Condition = "ON_VALIDATION_FAILED"
	ConditionOnFailedUnexpectedException Condition = "ON_FAILED_UNEXPECTED_EXCEPTION"
	ConditionOnIndeterminate             Condition = "ON_INDETERMINATE"
	ConditionOnProcessing                Condition = "ON_PROCESSING"
	ConditionOnProgressing               Condition = "ON_PROGRESSING"
	ConditionOnAnyFailure                Condition = "ON_ANY_FAILURE"
	ConditionOnComplete                  Condition = "ON_COMPLETE"
)

// Conditions lists every Condition value.
var Conditions = []Condition{
	ConditionOnSuccess,
	ConditionOnFailed,
	ConditionOnValidationPassed,
	ConditionOnValidationFailed,
	ConditionOnFailedUnexpectedException,
	ConditionOnIndeterminate,
	ConditionOnProcessing,
	ConditionOnProgressing,
	ConditionOnAnyFailure,
	ConditionOnComplete,
}

// ActionSpec is a post-execution action configured on a job.
type ActionSpec struct {
	Type      ActionType `json:"type"`
	Condition Condition  `json:"condition"`

	// RUN_JOB
	TargetJobKey string `json:"targetJobKey,omitempty"`
}
