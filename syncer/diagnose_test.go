package syncer

import (
	"context"
	"testing"

	"tasksync/domain"
)

func TestDiagnoseHealthyStore(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{EnableLocalFallback: true})
	if _, err := h.orch.AddTask(ctx, domain.TaskInput{Text: "real"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rep := h.orch.Diagnose(ctx)
	if !rep.OK() || rep.TaskCount != 1 || rep.Scope != "todos" || !rep.Online {
		t.Fatalf("unexpected report %+v", rep)
	}
	tasks, err := h.orch.ListTasks(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if hasText(ProbeText)(tasks) {
		t.Fatalf("probe task left behind: %v", texts(tasks))
	}
	if len(h.cache.Load(ctx)) != 1 {
		t.Fatalf("cache should only hold the listed task")
	}
}

func TestDiagnoseUnavailableStore(t *testing.T) {
	h := newHarness(t, Options{})
	h.docs.down.Store(true)
	rep := h.orch.Diagnose(context.Background())
	if rep.OK() || !rep.IdentityOK || rep.ListOK || len(rep.Errors) != 1 || rep.Online {
		t.Fatalf("unexpected report %+v", rep)
	}
}

func TestDiagnoseIdentityFailure(t *testing.T) {
	h := newHarness(t, Options{UseIdentityScope: true})
	h.resolver.set("", domain.ErrAuthUnavailable)
	rep := h.orch.Diagnose(context.Background())
	if rep.IdentityOK || rep.Scope != "" || len(rep.Errors) != 1 {
		t.Fatalf("unexpected report %+v", rep)
	}
}
