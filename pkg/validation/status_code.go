package validation

import (
	"fmt"

	"github.com/callsched/core/pkg/errors"
	"github.com/callsched/core/pkg/models"
)

// StatusCode passes when the response status equals the expected code.
type StatusCode struct{}

func (StatusCode) Type() models.ValidationType { return models.ValidationStatusCode }

func (StatusCode) Check(spec models.ValidationSpec) error {
	if spec.Expected < 100 || spec.Expected > 599 {
		return errors.Newf("expected status code must be between 100 and 599, got %d", spec.Expected)
	}
	return nil
}

func (StatusCode) Validate(spec models.ValidationSpec, resp *models.HTTPResponse) models.ValidationResult {
	if resp.StatusCode == spec.Expected {
		return models.Pass()
	}
	return models.Fail(fmt.Sprintf("Expected status code of %d but got %d", spec.Expected, resp.StatusCode))
}
