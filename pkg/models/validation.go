package models

import (
	"net/http"
	"time"
)

// ValidationType discriminates ValidationSpec.
type ValidationType string

const (
	ValidationStatusCode      ValidationType = "STATUS_CODE"
	ValidationMaxResponseTime ValidationType = "MAX_RESPONSE_TIME"
	ValidationJSONPath        ValidationType = "JSON_PATH"
)

// ValidationSpec is a declarative rule evaluated against an HTTP response.
// Only the fields of the selected Type are meaningful.
type ValidationSpec struct {
	Type ValidationType `json:"type"`

	// STATUS_CODE
	Expected int `json:"expected,omitempty"`

	// MAX_RESPONSE_TIME
	MaxMs int64 `json:"maxMs,omitempty"`

	// JSON_PATH
	Path             string `json:"path,omitempty"`
	ExpectedResponse string `json:"expectedResponse,omitempty"`
}

// ValidationResult is the outcome of one validation. Message is empty when Passed.
type ValidationResult struct {
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
}

// Pass is the successful result.
func Pass() ValidationResult {
	return ValidationResult{Passed: true}
}

// Fail builds a failed result.
func Fail(message string) ValidationResult {
	return ValidationResult{Passed: false, Message: message}
}

// HTTPRequest is the outbound call built for one execution.
type HTTPRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    *string
}

// SetHeader sets a header, allocating the map if needed.
func (r *HTTPRequest) SetHeader(key, value string) {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[key] = value
}

// HTTPResponse is what validations evaluate.
type HTTPResponse struct {
	StatusCode int
	Elapsed    time.Duration
	Body       []byte
	Headers    http.Header
}

// ElapsedMs returns the call duration in whole milliseconds.
func (r *HTTPResponse) ElapsedMs() int64 {
	return r.Elapsed.Milliseconds()
}
