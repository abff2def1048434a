package domain

import (
	"fmt"
	"strings"
	"time"
)

// Priority ranks a task for display.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ParsePriority accepts the three known priorities. An empty value yields medium.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return p, nil
	case "":
		return PriorityMedium, nil
	default:
		return "", fmt.Errorf("%w: unknown priority %q", ErrInvalidTask, s)
	}
}

// Task is a single item of the task list. Values are copied between layers.
type Task struct {
	ID             string     `json:"id"`
	Text           string     `json:"text"`
	Completed      bool       `json:"completed"`
	Priority       Priority   `json:"priority"`
	AlarmTime      *time.Time `json:"alarmTime,omitempty"`
	NotificationID string     `json:"notificationId,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	// Seq orders tasks created within the same timestamp resolution.
	Seq int64 `json:"seq,omitempty"`
}

// Clone returns a deep copy of t.
func (t Task) Clone() Task {
	if t.AlarmTime != nil {
		at := *t.AlarmTime
		t.AlarmTime = &at
	}
	return t
}

// TaskInput carries the user supplied fields of a new task.
type TaskInput struct {
	Text           string     `json:"text"`
	Priority       Priority   `json:"priority,omitempty"`
	AlarmTime      *time.Time `json:"alarmTime,omitempty"`
	NotificationID string     `json:"notificationId,omitempty"`
}

// Normalize trims the text, defaults the priority and rejects invalid input.
func (in TaskInput) Normalize() (TaskInput, error) {
	in.Text = strings.TrimSpace(in.Text)
	if in.Text == "" {
		return in, fmt.Errorf("%w: text is empty", ErrInvalidTask)
	}
	p, err := ParsePriority(string(in.Priority))
	if err != nil {
		return in, err
	}
	in.Priority = p
	return in, nil
}

// NewTask builds the task a normalized input describes, stamped with now.
func NewTask(id string, in TaskInput, now time.Time) Task {
	t := Task{
		ID:             id,
		Text:           in.Text,
		Priority:       in.Priority,
		NotificationID: in.NotificationID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if in.AlarmTime != nil {
		at := *in.AlarmTime
		t.AlarmTime = &at
	}
	return t
}
