// Package errors provides error handling for the scheduler.
//
// It re-exports github.com/cockroachdb/errors for wrapping and stack traces and
// defines the typed error taxonomy surfaced to callers:
//
//	NotFound        job or task does not resolve (404)
//	BusinessRule    request conflicts with current state (409/422)
//	InvalidPayload  malformed or out-of-range input (400)
//	Internal        infrastructure or unexpected failure (500)
//
// Usage:
//
//	if !exists {
//	    return errors.NotFound(errors.CodeJobNotFound, "job %s not found", key)
//	}
//	if errors.Is(err, errors.ErrNotFound) {
//	    // handle missing job
//	}
package errors

import (
	"fmt"
	"net/http"

	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithHint     = crdb.WithHint
	WithHintf    = crdb.WithHintf
	WithDetailf  = crdb.WithDetailf
	FlattenHints = crdb.FlattenHints
)

// Error inspection
var (
	Is        = crdb.Is
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

// Sentinel kinds. Every *Error matches exactly one of these with Is.
var (
	ErrNotFound       = New("not found")
	ErrBusinessRule   = New("business rule violation")
	ErrInvalidPayload = New("invalid payload")
	ErrInternal       = New("internal server error")
)

// Kind classifies an Error for propagation and transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindBusinessRule
	KindInvalidPayload
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NOT_FOUND"
	case KindBusinessRule:
		return "BUSINESS_RULE_VALIDATION"
	case KindInvalidPayload:
		return "INVALID_PAYLOAD"
	default:
		return "INTERNAL_SERVER_ERROR"
	}
}

// Code is the machine-readable error code returned alongside the message.
type Code string

const (
	CodeJobNotFound            Code = "JOB_NOT_FOUND"
	CodeTaskNotFound           Code = "TASK_NOT_FOUND"
	CodeNoJobsFound            Code = "NO_JOBS_FOUND"
	CodeNoTasksFound           Code = "NO_TASKS_FOUND"
	CodeKeyAlreadyInUse        Code = "KEY_ALREADY_IN_USE"
	CodeNotAScheduledJob       Code = "NOT_A_SCHEDULED_JOB"
	CodeJobAlreadyEnabled      Code = "JOB_ALREADY_ENABLED"
	CodeJobAlreadyDisabled     Code = "JOB_ALREADY_DISABLED"
	CodeInvalidJobKey          Code = "INVALID_JOB_KEY"
	CodeInvalidCronExpression  Code = "INVALID_CRON_EXPRESSION"
	CodeInvalidPayload         Code = "INVALID_PAYLOAD"
	CodeInternal               Code = "INTERNAL_SERVER_ERROR"
	CodeSchedulerFailure       Code = "SCHEDULER_FAILURE"
	CodeUnexpectedExecution    Code = "UNEXPECTED_EXECUTION_FAILURE"
	CodeAuthenticationProvider Code = "AUTHENTICATION_PROVIDER_FAILURE"
)

// Error is a typed application error carrying a kind, a code and a human message.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap exposes the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrBusinessRule:
		return e.Kind == KindBusinessRule
	case ErrInvalidPayload:
		return e.Kind == KindInvalidPayload
	case ErrInternal:
		return e.Kind == KindInternal
	}
	return false
}

// HTTPStatus maps the error onto the status an HTTP layer would return.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindBusinessRule:
		if e.Code == CodeKeyAlreadyInUse {
			return http.StatusConflict
		}
		return http.StatusUnprocessableEntity
	case KindInvalidPayload:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func newError(kind Kind, code Code, cause error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		cause:   cause,
	}
}

// NotFound builds a NotFound error.
func NotFound(code Code, format string, args ...interface{}) *Error {
	return newError(KindNotFound, code, nil, format, args...)
}

// BusinessRule builds a BusinessRule error.
func BusinessRule(code Code, format string, args ...interface{}) *Error {
	return newError(KindBusinessRule, code, nil, format, args...)
}

// InvalidPayload builds an InvalidPayload error, optionally wrapping a parse error.
func InvalidPayload(code Code, cause error, format string, args ...interface{}) *Error {
	return newError(KindInvalidPayload, code, cause, format, args...)
}

// Internal wraps an infrastructure failure.
func Internal(code Code, cause error, format string, args ...interface{}) *Error {
	if cause != nil {
		cause = WithStack(cause)
	}
	return newError(KindInternal, code, cause, format, args...)
}

// IsNotFound reports whether err is or wraps a NotFound error.
func IsNotFound(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsBusinessRule reports whether err is or wraps a BusinessRule error.
func IsBusinessRule(err error) bool {
	return err != nil && Is(err, ErrBusinessRule)
}

// IsTyped reports whether err carries an *Error anywhere in its chain.
func IsTyped(err error) bool {
	var e *Error
	return As(err, &e)
}

// CodeOf returns the code of the first *Error in the chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// HTTPStatus returns the HTTP status for any error.
func HTTPStatus(err error) int {
	var e *Error
	if As(err, &e) {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}
