// Package validation evaluates declarative checks against an HTTP response.
package validation

import (
	"fmt"
	"sort"

	"github.com/callsched/core/pkg/errors"
	"github.com/callsched/core/pkg/models"
)

// Validator checks one kind of ValidationSpec.
type Validator interface {
	Type() models.ValidationType
	// Check rejects a spec whose parameters are missing or out of range.
	Check(spec models.ValidationSpec) error
	// Validate evaluates spec against resp. It never returns an error: a failed
	// check is a normal outcome.
	Validate(spec models.ValidationSpec, resp *models.HTTPResponse) models.ValidationResult
}

// Engine dispatches a ValidationSpec to the Validator registered for its type.
type Engine struct {
	validators map[models.ValidationType]Validator
}

// NewEngine builds an engine. Registering two validators for the same type panics.
func NewEngine(validators ...Validator) *Engine {
	e := &Engine{validators: make(map[models.ValidationType]Validator, len(validators))}
	for _, v := range validators {
		if _, dup := e.validators[v.Type()]; dup {
			panic(fmt.Sprintf("validation: duplicate validator for %s", v.Type()))
		}
		e.validators[v.Type()] = v
	}
	return e
}

// NewDefaultEngine returns an engine with every built-in validator.
func NewDefaultEngine() *Engine {
	return NewEngine(StatusCode{}, MaxResponseTime{}, JSONPath{})
}

// Types lists the registered validation types, sorted.
func (e *Engine) Types() []models.ValidationType {
	out := make([]models.ValidationType, 0, len(e.validators))
	for t := range e.validators {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CheckAll validates a job's validation list: count bounds plus each spec's parameters.
func (e *Engine) CheckAll(specs []models.ValidationSpec) error {
	if len(specs) < models.MinValidations || len(specs) > models.MaxValidations {
		return errors.InvalidPayload(errors.CodeInvalidPayload, nil,
			"a job needs between %d and %d validations, got %d",
			models.MinValidations, models.MaxValidations, len(specs))
	}
	for i, spec := range specs {
		v, ok := e.validators[spec.Type]
		if !ok {
			return errors.InvalidPayload(errors.CodeInvalidPayload, nil,
				"validations[%d]: unknown validation type %q", i, spec.Type)
		}
		if err := v.Check(spec); err != nil {
			return errors.InvalidPayload(errors.CodeInvalidPayload, err, "validations[%d]", i)
		}
	}
	return nil
}

// Validate evaluates a single spec. An unregistered type fails the check rather
// than aborting the execution.
func (e *Engine) Validate(spec models.ValidationSpec, resp *models.HTTPResponse) models.ValidationResult {
	v, ok := e.validators[spec.Type]
	if !ok {
		return models.Fail(fmt.Sprintf("No validator registered for type %s", spec.Type))
	}
	return v.Validate(spec, resp)
}
