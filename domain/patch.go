package domain

import (
	"sort"
	"strings"
	"time"
)

// TaskPatch carries a partial update. Nil fields are left untouched.
type TaskPatch struct {
	Text           *string    `json:"text,omitempty"`
	Completed      *bool      `json:"completed,omitempty"`
	Priority       *Priority  `json:"priority,omitempty"`
	AlarmTime      *time.Time `json:"alarmTime,omitempty"`
	NotificationID *string    `json:"notificationId,omitempty"`
	// ClearAlarm drops both the alarm time and the notification reference.
	ClearAlarm bool `json:"clearAlarm,omitempty"`
}

// Validate rejects patches that would break task invariants.
func (p TaskPatch) Validate() (TaskPatch, error) {
	if p.Text != nil {
		txt := strings.TrimSpace(*p.Text)
		if txt == "" {
			return p, ErrInvalidTask
		}
		p.Text = &txt
	}
	if p.Priority != nil {
		pr, err := ParsePriority(string(*p.Priority))
		if err != nil {
			return p, err
		}
		p.Priority = &pr
	}
	return p, nil
}

// ApplyPatch returns t with p merged in and UpdatedAt set to now. CreatedAt
// is never touched.
func ApplyPatch(t Task, p TaskPatch, now time.Time) Task {
	t = t.Clone()
	if p.Text != nil {
		t.Text = *p.Text
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.ClearAlarm {
		t.AlarmTime = nil
		t.NotificationID = ""
	}
	if p.AlarmTime != nil {
		at := *p.AlarmTime
		t.AlarmTime = &at
	}
	if p.NotificationID != nil {
		t.NotificationID = *p.NotificationID
	}
	t.UpdatedAt = now
	return t
}

// SortNewestFirst orders tasks by CreatedAt descending, later insertions first on ties.
func SortNewestFirst(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
		}
		return tasks[i].Seq > tasks[j].Seq
	})
}

// CloneTasks deep copies a task list.
func CloneTasks(tasks []Task) []Task {
	out := make([]Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}

// IndexOf returns the position of the task with id, or -1.
func IndexOf(tasks []Task, id string) int {
	for i := range tasks {
		if tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// PatchInList applies p to the task with id. It reports false when no such task exists.
func PatchInList(tasks []Task, id string, p TaskPatch, now time.Time) ([]Task, bool) {
	i := IndexOf(tasks, id)
	if i < 0 {
		return tasks, false
	}
	out := CloneTasks(tasks)
	out[i] = ApplyPatch(out[i], p, now)
	return out, true
}

// RemoveFromList drops the task with id.
func RemoveFromList(tasks []Task, id string) ([]Task, bool) {
	i := IndexOf(tasks, id)
	if i < 0 {
		return tasks, false
	}
	out := make([]Task, 0, len(tasks)-1)
	out = append(out, tasks[:i]...)
	return append(out, tasks[i+1:]...), true
}

// PrependToList puts t at the head of the list, as the newest task.
func PrependToList(tasks []Task, t Task) []Task {
	out := make([]Task, 0, len(tasks)+1)
	out = append(out, t.Clone())
	return append(out, tasks...)
}
