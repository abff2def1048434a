package app

import (
	"context"
	"io"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"tasksync/config"
	"tasksync/domain"
)

func quietLogger() *log.Logger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

func testConfig(t *testing.T, vars map[string]string) config.Config {
	t.Helper()
	cfg, err := config.FromEnv(func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg
}

func TestBuildRedisStack(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, map[string]string{
		"REDIS_CONNECTION_STRING": mr.Addr(),
		"CACHE_DIR":               t.TempDir(),
		"SESSION_SECRET":          "s3cret",
	})
	a, err := Build(cfg, quietLogger(), prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.Close()

	if a.Issuer == nil || a.Verifier == nil || a.Metrics == nil {
		t.Fatalf("expected issuer, verifier and metrics to be wired")
	}
	ctx := context.Background()
	res, err := a.Orchestrator.AddTask(ctx, domain.TaskInput{Text: "wired"})
	if err != nil || res.Offline {
		t.Fatalf("add: %+v %v", res, err)
	}
	tasks, err := a.Orchestrator.ListTasks(ctx)
	if err != nil || len(tasks) != 1 || tasks[0].ID != res.ID {
		t.Fatalf("list: %+v %v", tasks, err)
	}
	if !mr.Exists("tasks:todos") {
		t.Fatalf("expected the redis hash for the global scope")
	}
}

func TestBuildRedisCacheWithIdentityToken(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, map[string]string{
		"REDIS_CONNECTION_STRING": mr.Addr(),
		"CACHE_BACKEND":           "redis",
		"USE_IDENTITY_SCOPE":      "true",
		"IDENTITY_TOKEN":          "device-42",
	})
	a, err := Build(cfg, quietLogger(), nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.Close()

	ctx := context.Background()
	if _, err := a.Orchestrator.ListTasks(ctx); err != nil {
		t.Fatalf("list: %v", err)
	}
	st := a.Orchestrator.Status()
	if st.Scope == nil || st.Scope.Identity != "device-42" {
		t.Fatalf("unexpected scope %+v", st.Scope)
	}
	if !mr.Exists("todos_offline") {
		t.Fatalf("expected the cache blob in redis")
	}
}
