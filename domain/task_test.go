package domain

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
)

func TestTaskInputNormalize(t *testing.T) {
	in, err := TaskInput{Text: "  Buy milk  "}.Normalize()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if in.Text != "Buy milk" {
		t.Fatalf("unexpected text %q", in.Text)
	}
	if in.Priority != PriorityMedium {
		t.Fatalf("expected medium priority, got %q", in.Priority)
	}

	if _, err := (TaskInput{Text: "   "}).Normalize(); !errors.Is(err, ErrInvalidTask) {
		t.Fatalf("expected ErrInvalidTask for blank text, got %v", err)
	}
	if _, err := (TaskInput{Text: "x", Priority: "urgent"}).Normalize(); !errors.Is(err, ErrInvalidTask) {
		t.Fatalf("expected ErrInvalidTask for unknown priority, got %v", err)
	}
}

func TestApplyPatchKeepsCreatedAt(t *testing.T) {
	created := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	later := created.Add(time.Hour)
	task := NewTask("t1", TaskInput{Text: "a", Priority: PriorityLow}, created)

	done := true
	high := PriorityHigh
	got := ApplyPatch(task, TaskPatch{Completed: &done, Priority: &high}, later)
	if !got.Completed || got.Priority != PriorityHigh {
		t.Fatalf("patch not applied: %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Fatalf("createdAt changed: %v", got.CreatedAt)
	}
	if !got.UpdatedAt.Equal(later) {
		t.Fatalf("updatedAt not refreshed: %v", got.UpdatedAt)
	}
	if task.Completed {
		t.Fatalf("original task mutated")
	}
}

func TestApplyPatchAlarmLifecycle(t *testing.T) {
	now := time.Unix(100, 0).UTC()
	alarm := now.Add(2 * time.Hour)
	nid := "notif-1"
	task := ApplyPatch(Task{ID: "t1", Text: "a"}, TaskPatch{AlarmTime: &alarm, NotificationID: &nid}, now)
	if task.AlarmTime == nil || !task.AlarmTime.Equal(alarm) || task.NotificationID != nid {
		t.Fatalf("alarm not stored: %+v", task)
	}

	cleared := ApplyPatch(task, TaskPatch{ClearAlarm: true}, now)
	if cleared.AlarmTime != nil || cleared.NotificationID != "" {
		t.Fatalf("alarm not cleared: %+v", cleared)
	}
	if task.AlarmTime == nil {
		t.Fatalf("clearing mutated the source task")
	}
}

func TestSortNewestFirstBreaksTiesBySeq(t *testing.T) {
	ts := time.Unix(50, 0)
	tasks := []Task{
		{ID: "old", CreatedAt: ts.Add(-time.Minute)},
		{ID: "tie-1", CreatedAt: ts, Seq: 1},
		{ID: "tie-2", CreatedAt: ts, Seq: 2},
	}
	SortNewestFirst(tasks)
	got := []string{tasks[0].ID, tasks[1].ID, tasks[2].ID}
	if strings.Join(got, ",") != "tie-2,tie-1,old" {
		t.Fatalf("unexpected order: %v", got)
	}
}

func TestListHelpers(t *testing.T) {
	now := time.Unix(10, 0)
	tasks := []Task{{ID: "a"}, {ID: "b"}}

	done := true
	patched, ok := PatchInList(tasks, "b", TaskPatch{Completed: &done}, now)
	if !ok || !patched[1].Completed || tasks[1].Completed {
		t.Fatalf("unexpected patch result: %+v (source %+v)", patched, tasks)
	}
	if _, ok := PatchInList(tasks, "missing", TaskPatch{Completed: &done}, now); ok {
		t.Fatalf("expected miss for unknown id")
	}

	removed, ok := RemoveFromList(tasks, "a")
	if !ok || len(removed) != 1 || removed[0].ID != "b" || len(tasks) != 2 {
		t.Fatalf("unexpected remove result: %+v", removed)
	}

	withNew := PrependToList(tasks, Task{ID: "c"})
	if len(withNew) != 3 || withNew[0].ID != "c" {
		t.Fatalf("unexpected prepend result: %+v", withNew)
	}
}

func TestTaskMarshalOmitsUnsetAlarm(t *testing.T) {
	task := Task{ID: "t1", Text: "Title", Priority: PriorityMedium}

	payload, err := sonic.Marshal(task)
	if err != nil {
		t.Fatalf("marshal task: %v", err)
	}
	if strings.Contains(string(payload), "alarmTime") || strings.Contains(string(payload), "notificationId") {
		t.Fatalf("expected alarm fields to be omitted, got %s", payload)
	}
	if !strings.Contains(string(payload), "\"completed\":false") {
		t.Fatalf("expected completed field to be present, got %s", payload)
	}
}
