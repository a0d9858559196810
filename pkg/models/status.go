package models

import "github.com/callsched/core/pkg/errors"

// Status is the lifecycle state of a Task.
type Status string

const (
	StatusPending                   Status = "PENDING"
	StatusProcessing                Status = "PROCESSING"
	StatusValidationPassed          Status = "VALIDATION_PASSED"
	StatusValidationFailed          Status = "VALIDATION_FAILED"
	StatusProgressing               Status = "PROGRESSING"
	StatusFailedUnexpectedException Status = "FAILED_UNEXPECTED_EXCEPTION"
	StatusSuccess                   Status = "SUCCESS"
	StatusFailed                    Status = "FAILED"
	StatusIndeterminate             Status = "INDETERMINATE"
)

// Statuses lists every Status value.
var Statuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusValidationPassed,
	StatusValidationFailed,
	StatusProgressing,
	StatusFailedUnexpectedException,
	StatusSuccess,
	StatusFailed,
	StatusIndeterminate,
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further automatic transition is expected.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusProgressing:
		return false
	}
	return s.IsValid()
}

// ParseStatus converts a string into a Status.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.IsValid() {
		return "", errors.InvalidPayload(errors.CodeInvalidPayload, nil, "unknown task status %q", v)
	}
	return s, nil
}
