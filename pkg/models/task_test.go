package models

import (
	"strings"
	"testing"
	"time"

	"github.com/callsched/core/pkg/errors"
)

func TestTaskStatusUpdate_MetaDataAccumulates(t *testing.T) {
	task := NewTask("ORDER_SYNC")

	TaskStatusUpdate{Status: StatusProgressing, MetaData: map[string]string{"A": "1"}}.Apply(task)
	TaskStatusUpdate{Status: StatusSuccess, MetaData: map[string]string{"B": "2"}}.Apply(task)

	if len(task.MetaData) != 2 || task.MetaData["A"] != "1" || task.MetaData["B"] != "2" {
		t.Errorf("Expected metadata {A:1, B:2}, got %v", task.MetaData)
	}
	if task.Status != StatusSuccess {
		t.Errorf("Expected status SUCCESS, got %s", task.Status)
	}
}

func TestTaskStatusUpdate_MessageReplacedOnlyWhenProvided(t *testing.T) {
	task := NewTask("ORDER_SYNC")
	task.SetMessage("first")

	TaskStatusUpdate{Status: StatusProcessing}.Apply(task)
	if task.Message == nil || *task.Message != "first" {
		t.Fatalf("Expected message to be kept, got %v", task.Message)
	}

	second := "second"
	TaskStatusUpdate{Status: StatusSuccess, Message: &second}.Apply(task)
	if *task.Message != "second" {
		t.Errorf("Expected message 'second', got '%s'", *task.Message)
	}
}

func TestTask_SetMessageTruncates(t *testing.T) {
	task := NewTask("ORDER_SYNC")
	task.SetMessage(strings.Repeat("ş", MaxMessageLength+10))

	if got := len([]rune(*task.Message)); got != MaxMessageLength {
		t.Errorf("Expected %d characters, got %d", MaxMessageLength, got)
	}
}

func TestTask_AppendPostActionsMessage(t *testing.T) {
	task := NewTask("ORDER_SYNC")

	task.AppendPostActionsMessage("first")
	task.AppendPostActionsMessage("second")

	if *task.PostActionsMessage != "first, second" {
		t.Errorf("Expected 'first, second', got '%s'", *task.PostActionsMessage)
	}
}

func TestTaskFilter_Matches(t *testing.T) {
	now := time.Now()
	task := &Task{JobKey: "ORDER_SYNC", Status: StatusValidationFailed, CreatedAt: now}

	tests := []struct {
		name   string
		filter TaskFilter
		want   bool
	}{
		{"empty filter", TaskFilter{}, true},
		{"same key", TaskFilter{JobKey: "ORDER_SYNC"}, true},
		{"other key", TaskFilter{JobKey: "OTHER"}, false},
		{"status any-of", TaskFilter{Statuses: []Status{StatusSuccess, StatusValidationFailed}}, true},
		{"status miss", TaskFilter{Statuses: []Status{StatusSuccess}}, false},
		{"created after lower bound", TaskFilter{CreatedAfter: now.Add(-time.Hour)}, true},
		{"created before lower bound", TaskFilter{CreatedAfter: now.Add(time.Hour)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(task); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	nonTerminal := map[Status]bool{StatusPending: true, StatusProcessing: true, StatusProgressing: true}
	for _, s := range Statuses {
		if s.IsTerminal() == nonTerminal[s] {
			t.Errorf("IsTerminal(%s) = %v", s, s.IsTerminal())
		}
	}
	_, err := ParseStatus("DONE")
	if errors.CodeOf(err) != errors.CodeInvalidPayload {
		t.Errorf("ParseStatus(DONE) code = %s, want %s", errors.CodeOf(err), errors.CodeInvalidPayload)
	}
}
