package models

import "time"

// MaxMessageLength bounds Task.Message, in characters.
const MaxMessageLength = 2500

// Task is one recorded execution attempt of a job.
type Task struct {
	JobKey             string            `json:"jobKey"`
	ID                 int64             `json:"id"`
	CreatedAt          time.Time         `json:"createdAt"`
	UpdatedAt          time.Time         `json:"updatedAt"`
	Status             Status            `json:"status"`
	Message            *string           `json:"message,omitempty"`
	MetaData           map[string]string `json:"metaData,omitempty"`
	PostActionsMessage *string           `json:"postActionsMessage,omitempty"`
}

// NewTask returns an unsaved PENDING task for jobKey.
func NewTask(jobKey string) *Task {
	return &Task{
		JobKey:   jobKey,
		Status:   StatusPending,
		MetaData: map[string]string{},
	}
}

// SetMessage replaces the message, truncating it to MaxMessageLength characters.
func (t *Task) SetMessage(msg string) {
	runes := []rune(msg)
	if len(runes) > MaxMessageLength {
		msg = string(runes[:MaxMessageLength])
	}
	t.Message = &msg
}

// MergeMetaData adds entries to the existing metadata, overwriting only the same keys.
func (t *Task) MergeMetaData(entries map[string]string) {
	if len(entries) == 0 {
		return
	}
	if t.MetaData == nil {
		t.MetaData = make(map[string]string, len(entries))
	}
	for k, v := range entries {
		t.MetaData[k] = v
	}
}

// AppendPostActionsMessage appends msg, comma-joined with anything already recorded.
func (t *Task) AppendPostActionsMessage(msg string) {
	if t.PostActionsMessage == nil || *t.PostActionsMessage == "" {
		t.PostActionsMessage = &msg
		return
	}
	joined := *t.PostActionsMessage + ", " + msg
	t.PostActionsMessage = &joined
}

// Clone returns a deep copy.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	out := *t
	if t.Message != nil {
		m := *t.Message
		out.Message = &m
	}
	if t.PostActionsMessage != nil {
		m := *t.PostActionsMessage
		out.PostActionsMessage = &m
	}
	if t.MetaData != nil {
		out.MetaData = make(map[string]string, len(t.MetaData))
		for k, v := range t.MetaData {
			out.MetaData[k] = v
		}
	}
	return &out
}

// TaskStatusUpdate is the asynchronous callback payload for a task.
type TaskStatusUpdate struct {
	Status   Status            `json:"status"`
	Message  *string           `json:"message,omitempty"`
	MetaData map[string]string `json:"metaData,omitempty"`
}

// Apply writes the update onto task: status replaced, message replaced when present,
// metadata merged.
func (u TaskStatusUpdate) Apply(task *Task) {
	task.Status = u.Status
	if u.Message != nil {
		task.SetMessage(*u.Message)
	}
	task.MergeMetaData(u.MetaData)
}

// TaskFilter narrows a task search.
type TaskFilter struct {
	JobKey       string    `json:"jobKey,omitempty"`
	Statuses     []Status  `json:"statuses,omitempty"`
	CreatedAfter time.Time `json:"createdAfter,omitempty"`
}

// Matches reports whether task satisfies every set criterion.
func (f TaskFilter) Matches(task *Task) bool {
	if f.JobKey != "" && task.JobKey != f.JobKey {
		return false
	}
	if !f.CreatedAfter.IsZero() && task.CreatedAt.Before(f.CreatedAfter) {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if task.Status == s {
			return true
		}
	}
	return false
}
