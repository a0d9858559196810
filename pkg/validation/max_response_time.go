package validation

import (
	"fmt"

	"github.com/callsched/core/pkg/errors"
	"github.com/callsched/core/pkg/models"
)

const maxResponseTimeLimitMs = 30000

// MaxResponseTime passes when the call completed within MaxMs, boundary included.
type MaxResponseTime struct{}

func (MaxResponseTime) Type() models.ValidationType { return models.ValidationMaxResponseTime }

func (MaxResponseTime) Check(spec models.ValidationSpec) error {
	if spec.MaxMs < 1 || spec.MaxMs > maxResponseTimeLimitMs {
		return errors.Newf("maxMs must be between 1 and %d, got %d", maxResponseTimeLimitMs, spec.MaxMs)
	}
	return nil
}

func (MaxResponseTime) Validate(spec models.ValidationSpec, resp *models.HTTPResponse) models.ValidationResult {
	elapsed := resp.ElapsedMs()
	if elapsed <= spec.MaxMs {
		return models.Pass()
	}
	return models.Fail(fmt.Sprintf(
		"API call took longer then the max response time allowed. Max response time: %d ms but took: %d ms",
		spec.MaxMs, elapsed))
}
