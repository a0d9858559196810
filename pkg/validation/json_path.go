package validation

import (
	"fmt"
	"strconv"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/callsched/core/pkg/errors"
	"github.com/callsched/core/pkg/models"
)

// JSONPath extracts Path from the response body and compares it, as a string,
// with ExpectedResponse.
type JSONPath struct{}

func (JSONPath) Type() models.ValidationType { return models.ValidationJSONPath }

func (JSONPath) Check(spec models.ValidationSpec) error {
	if spec.Path == "" {
		return errors.New("path is required")
	}
	if _, err := jp.ParseString(spec.Path); err != nil {
		return errors.Wrapf(err, "invalid json path %q", spec.Path)
	}
	if spec.ExpectedResponse == "" {
		return errors.New("expectedResponse is required")
	}
	return nil
}

func (JSONPath) Validate(spec models.ValidationSpec, resp *models.HTTPResponse) models.ValidationResult {
	actual, ok := extract(spec.Path, resp.Body)
	if ok && actual == spec.ExpectedResponse {
		return models.Pass()
	}
	if !ok {
		actual = "null"
	}
	return models.Fail(fmt.Sprintf("Expected response to return '%s' for json path '%s' but got '%s'",
		spec.ExpectedResponse, spec.Path, actual))
}

// extract returns the stringified value at path. ok is false when the body is not
// JSON, the path does not resolve, or the value is null.
func extract(path string, body []byte) (string, bool) {
	expr, err := jp.ParseString(path)
	if err != nil {
		return "", false
	}
	doc, err := oj.Parse(body)
	if err != nil {
		return "", false
	}

	found := expr.Get(doc)
	switch len(found) {
	case 0:
		return "", false
	case 1:
		if found[0] == nil {
			return "", false
		}
		return stringify(found[0]), true
	default:
		return oj.JSON(found), true
	}
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return oj.JSON(val)
	}
}
