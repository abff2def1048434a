package syncer

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"tasksync/domain"
	"tasksync/storage"
)

var errConnRefused = errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")

// switchDocs fails every call while down is set.
type switchDocs struct {
	storage.Documents
	down atomic.Bool
}

func (s *switchDocs) Insert(ctx context.Context, scope domain.Scope, in domain.TaskInput, now time.Time) (domain.Task, error) {
	if s.down.Load() {
		return domain.Task{}, errConnRefused
	}
	return s.Documents.Insert(ctx, scope, in, now)
}

func (s *switchDocs) List(ctx context.Context, scope domain.Scope) ([]domain.Task, error) {
	if s.down.Load() {
		return nil, errConnRefused
	}
	return s.Documents.List(ctx, scope)
}

func (s *switchDocs) Update(ctx context.Context, scope domain.Scope, id string, patch domain.TaskPatch, now time.Time) error {
	if s.down.Load() {
		return errConnRefused
	}
	return s.Documents.Update(ctx, scope, id, patch, now)
}

func (s *switchDocs) Delete(ctx context.Context, scope domain.Scope, id string) error {
	if s.down.Load() {
		return errConnRefused
	}
	return s.Documents.Delete(ctx, scope, id)
}

type stubResolver struct {
	mu    sync.Mutex
	token string
	err   error
	calls int
}

func (s *stubResolver) ResolveScope(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.token, nil
}

func (s *stubResolver) set(token string, err error) {
	s.mu.Lock()
	s.token, s.err = token, err
	s.mu.Unlock()
}

type cancelCall struct{ taskID, notificationID string }

type stubNotifier struct {
	mu    sync.Mutex
	calls []cancelCall
}

func (s *stubNotifier) CancelNotification(_ context.Context, taskID, notificationID string) error {
	s.mu.Lock()
	s.calls = append(s.calls, cancelCall{taskID, notificationID})
	s.mu.Unlock()
	return nil
}

func (s *stubNotifier) recorded() []cancelCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]cancelCall(nil), s.calls...)
}

type harness struct {
	mr       *miniredis.Miniredis
	client   *redis.Client
	docs     *switchDocs
	cache    *storage.LocalCache
	notifier *stubNotifier
	resolver *stubResolver
	orch     *Orchestrator
}

func quietLogger() *log.Logger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return newHarnessOn(t, mr, client, opts)
}

func newHarnessOn(t *testing.T, mr *miniredis.Miniredis, client *redis.Client, opts Options) *harness {
	t.Helper()
	kv, err := storage.NewFileKV(t.TempDir())
	if err != nil {
		t.Fatalf("file kv: %v", err)
	}
	h := &harness{
		mr:       mr,
		client:   client,
		docs:     &switchDocs{Documents: storage.NewRedisDocuments(client).WithLogger(quietLogger())},
		cache:    storage.NewLocalCache(kv, storage.DefaultCacheKey, quietLogger()),
		notifier: &stubNotifier{},
		resolver: &stubResolver{token: "user-1"},
	}
	backend := &storage.Backend{
		Documents: h.docs,
		Clock:     storage.LocalClock,
		Feed:      storage.NewRedisFeed(client, 5*time.Second),
		Options:   storage.RemoteOptions{Logger: quietLogger(), ResubscribeDelay: 50 * time.Millisecond},
	}
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	if opts.ResubscribeDelay == 0 {
		opts.ResubscribeDelay = 50 * time.Millisecond
	}
	h.orch, err = New(BackendFactory(backend), h.resolver, h.cache, h.notifier, opts)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	t.Cleanup(h.orch.Reset)
	return h
}

// collector gathers subscription callbacks.
type collector struct {
	ch chan []domain.Task
}

func newCollector() *collector { return &collector{ch: make(chan []domain.Task, 64)} }

func (c *collector) onChange(tasks []domain.Task) {
	select {
	case c.ch <- tasks:
	default:
	}
}

// waitFor returns the first delivery matching ok.
func (c *collector) waitFor(t *testing.T, ok func([]domain.Task) bool) []domain.Task {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case tasks := <-c.ch:
			if ok(tasks) {
				return tasks
			}
		case <-deadline:
			t.Fatalf("timed out waiting for delivery")
			return nil
		}
	}
}

func texts(tasks []domain.Task) []string {
	out := make([]string, len(tasks))
	for i, tk := range tasks {
		out[i] = tk.Text
	}
	return out
}

func hasText(text string) func([]domain.Task) bool {
	return func(tasks []domain.Task) bool {
		for _, tk := range tasks {
			if tk.Text == text {
				return true
			}
		}
		return false
	}
}
