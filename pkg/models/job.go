package models

import (
	"regexp"
	"time"
)

// JobKeyPattern is the accepted format of a job key.
var JobKeyPattern = regexp.MustCompile(`^[A-Z_0-9]{3,50}$`)

const (
	MinValidations = 1
	MaxValidations = 250
)

// JobDefinition is a registered HTTP call executed on a cron schedule or on demand.
type JobDefinition struct {
	Key            string            `json:"key"`
	Name           string            `json:"name,omitempty"`
	Description    string            `json:"description,omitempty"`
	Tags           []string          `json:"tags,omitempty"`
	CronExpression string            `json:"cronExpression,omitempty"`
	Method         string            `json:"method"`
	URL            string            `json:"url"`
	Headers        map[string]string `json:"headers,omitempty"`
	AuthStrategy   AuthStrategy      `json:"authStrategy,omitempty"`
	Body           *string           `json:"body,omitempty"`
	Validations    []ValidationSpec  `json:"validations"`
	Actions        []ActionSpec      `json:"actions,omitempty"`

	// Disabled records that the recurring trigger is paused.
	Disabled bool `json:"disabled"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsScheduled reports whether the job has a recurring trigger.
func (j *JobDefinition) IsScheduled() bool {
	return j.CronExpression != ""
}

// Clone returns a deep copy so callers never share maps or slices with a store.
func (j *JobDefinition) Clone() *JobDefinition {
	if j == nil {
		return nil
	}
	out := *j
	if j.Tags != nil {
		out.Tags = append([]string(nil), j.Tags...)
	}
	if j.Headers != nil {
		out.Headers = make(map[string]string, len(j.Headers))
		for k, v := range j.Headers {
			out.Headers[k] = v
		}
	}
	if j.Body != nil {
		body := *j.Body
		out.Body = &body
	}
	if j.Validations != nil {
		out.Validations = append([]ValidationSpec(nil), j.Validations...)
	}
	if j.Actions != nil {
		out.Actions = append([]ActionSpec(nil), j.Actions...)
	}
	return &out
}

// JobPatch is a partial update. Nil fields are left unchanged.
type JobPatch struct {
	Name           *string            `json:"name,omitempty"`
	Description    *string            `json:"description,omitempty"`
	Tags           *[]string          `json:"tags,omitempty"`
	CronExpression *string            `json:"cronExpression,omitempty"`
	Method         *string            `json:"method,omitempty"`
	URL            *string            `json:"url,omitempty"`
	Headers        *map[string]string `json:"headers,omitempty"`
	AuthStrategy   *AuthStrategy      `json:"authStrategy,omitempty"`
	Body           *string            `json:"body,omitempty"`
	Validations    *[]ValidationSpec  `json:"validations,omitempty"`
	Actions        *[]ActionSpec      `json:"actions,omitempty"`
}

// Apply writes every non-nil field onto job and reports whether the cron expression changed.
func (p JobPatch) Apply(job *JobDefinition) (cronChanged bool) {
	if p.Name != nil {
		job.Name = *p.Name
	}
	if p.Description != nil {
		job.Description = *p.Description
	}
	if p.Tags != nil {
		job.Tags = append([]string(nil), (*p.Tags)...)
	}
	if p.CronExpression != nil && *p.CronExpression != job.CronExpression {
		job.CronExpression = *p.CronExpression
		cronChanged = true
	}
	if p.Method != nil {
		job.Method = *p.Method
	}
	if p.URL != nil {
		job.URL = *p.URL
	}
	if p.Headers != nil {
		job.Headers = make(map[string]string, len(*p.Headers))
		for k, v := range *p.Headers {
			job.Headers[k] = v
		}
	}
	if p.AuthStrategy != nil {
		job.AuthStrategy = *p.AuthStrategy
	}
	if p.Body != nil {
		body := *p.Body
		job.Body = &body
	}
	if p.Validations != nil {
		job.Validations = append([]ValidationSpec(nil), (*p.Validations)...)
	}
	if p.Actions != nil {
		job.Actions = append([]ActionSpec(nil), (*p.Actions)...)
	}
	return cronChanged
}

// JobFilter narrows a job search. Empty fields match everything.
type JobFilter struct {
	Key  string   `json:"key,omitempty"`
	Tags []string `json:"tags,omitempty"`
}
