package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"tasksync/domain"
)

type stubDocuments struct {
	insertFn func(ctx context.Context, scope domain.Scope, in domain.TaskInput, now time.Time) (domain.Task, error)
	listFn   func(ctx context.Context, scope domain.Scope) ([]domain.Task, error)
	updateFn func(ctx context.Context, scope domain.Scope, id string, patch domain.TaskPatch, now time.Time) error
	deleteFn func(ctx context.Context, scope domain.Scope, id string) error
}

func (s *stubDocuments) Insert(ctx context.Context, scope domain.Scope, in domain.TaskInput, now time.Time) (domain.Task, error) {
	if s.insertFn == nil {
		return domain.Task{}, errors.New("unexpected Insert call")
	}
	return s.insertFn(ctx, scope, in, now)
}

func (s *stubDocuments) List(ctx context.Context, scope domain.Scope) ([]domain.Task, error) {
	if s.listFn == nil {
		return nil, errors.New("unexpected List call")
	}
	return s.listFn(ctx, scope)
}

func (s *stubDocuments) Update(ctx context.Context, scope domain.Scope, id string, patch domain.TaskPatch, now time.Time) error {
	if s.updateFn == nil {
		return errors.New("unexpected Update call")
	}
	return s.updateFn(ctx, scope, id, patch, now)
}

func (s *stubDocuments) Delete(ctx context.Context, scope domain.Scope, id string) error {
	if s.deleteFn == nil {
		return errors.New("unexpected Delete call")
	}
	return s.deleteFn(ctx, scope, id)
}

type recordingFeed struct {
	events []ChangeEvent
}

func (f *recordingFeed) Publish(_ context.Context, _ domain.Scope, ev ChangeEvent) error {
	f.events = append(f.events, ev)
	return nil
}

func (f *recordingFeed) Listen(context.Context, domain.Scope) (FeedListener, error) {
	return nil, errors.New("unexpected Listen call")
}

func fixedClock(ts time.Time) Clock {
	return ClockFunc(func(context.Context) (time.Time, error) { return ts, nil })
}

func TestRemoteHealthFollowsLastCall(t *testing.T) {
	ctx := context.Background()
	offline := errors.New("dial tcp: connection refused")
	var listErr error
	docs := &stubDocuments{
		listFn: func(context.Context, domain.Scope) ([]domain.Task, error) { return []domain.Task{}, listErr },
		deleteFn: func(context.Context, domain.Scope, string) error {
			return domain.ErrNotFound
		},
	}
	r := NewRemote(docs, fixedClock(time.Unix(1, 0)), nil, domain.GlobalScope, RemoteOptions{Logger: quietLogger()})
	if !r.Healthy() {
		t.Fatalf("client should start healthy")
	}

	listErr = offline
	if _, err := r.List(ctx); !errors.Is(err, domain.ErrRemoteUnavailable) {
		t.Fatalf("expected ErrRemoteUnavailable, got %v", err)
	}
	if r.Healthy() {
		t.Fatalf("network failure must mark client offline")
	}

	if err := r.Delete(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if r.Healthy() {
		t.Fatalf("not-found must not change health")
	}

	listErr = nil
	if _, err := r.List(ctx); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !r.Healthy() {
		t.Fatalf("success must mark client online")
	}
}

func TestRemoteCreateUsesStoreClock(t *testing.T) {
	ctx := context.Background()
	storeTime := time.Date(2031, 1, 2, 3, 4, 5, 0, time.UTC)
	var gotNow time.Time
	var gotIn domain.TaskInput
	docs := &stubDocuments{
		insertFn: func(_ context.Context, scope domain.Scope, in domain.TaskInput, now time.Time) (domain.Task, error) {
			gotNow, gotIn = now, in
			return domain.NewTask("doc-1", in, now), nil
		},
	}
	r := NewRemote(docs, fixedClock(storeTime), nil, domain.IdentityScope("u1"), RemoteOptions{Logger: quietLogger()})

	id, err := r.Create(ctx, domain.TaskInput{Text: "  Buy milk "})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != "doc-1" {
		t.Fatalf("unexpected id %q", id)
	}
	if !gotNow.Equal(storeTime) {
		t.Fatalf("expected store clock time, got %v", gotNow)
	}
	if gotIn.Text != "Buy milk" || gotIn.Priority != domain.PriorityMedium {
		t.Fatalf("input not normalized: %+v", gotIn)
	}

	if _, err := r.Create(ctx, domain.TaskInput{Text: "  "}); !errors.Is(err, domain.ErrInvalidTask) {
		t.Fatalf("expected ErrInvalidTask, got %v", err)
	}
}

func TestRemoteClockFailureIsUnavailable(t *testing.T) {
	clock := ClockFunc(func(context.Context) (time.Time, error) { return time.Time{}, errors.New("timeout") })
	r := NewRemote(&stubDocuments{}, clock, nil, domain.GlobalScope, RemoteOptions{Logger: quietLogger()})
	done := true
	if err := r.Update(context.Background(), "t1", domain.TaskPatch{Completed: &done}); !errors.Is(err, domain.ErrRemoteUnavailable) {
		t.Fatalf("expected ErrRemoteUnavailable, got %v", err)
	}
	if r.Healthy() {
		t.Fatalf("clock failure must mark client offline")
	}
}

func TestRemoteRecordsFailureSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	docs := &stubDocuments{
		deleteFn: func(context.Context, domain.Scope, string) error {
			return &azcore.ResponseError{StatusCode: 503}
		},
	}
	r := NewRemote(docs, nil, nil, domain.GlobalScope, RemoteOptions{Logger: quietLogger(), Tracer: provider.Tracer("test")})
	if err := r.Delete(context.Background(), "t1"); !errors.Is(err, domain.ErrRemoteUnavailable) {
		t.Fatalf("expected ErrRemoteUnavailable, got %v", err)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "remote.delete" {
		t.Fatalf("unexpected span name %q", spans[0].Name())
	}
	var class string
	for _, attr := range spans[0].Attributes() {
		if attr.Key == "tasksync.failure" {
			class = attr.Value.AsString()
		}
	}
	if class != "unavailable" {
		t.Fatalf("expected failure class attribute, got %q", class)
	}
}

func TestRemoteCancellationKeepsHealth(t *testing.T) {
	docs := &stubDocuments{
		listFn: func(ctx context.Context, _ domain.Scope) ([]domain.Task, error) { return nil, ctx.Err() },
	}
	r := NewRemote(docs, nil, nil, domain.GlobalScope, RemoteOptions{Logger: quietLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.List(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, domain.ErrRemoteUnavailable) {
		t.Fatalf("cancellation is not a connectivity failure: %v", err)
	}
	if !r.Healthy() {
		t.Fatalf("cancellation must not change health")
	}
}

func TestRemoteDeleteStampsStoreClock(t *testing.T) {
	storeTime := time.Date(2031, 1, 2, 3, 4, 5, 0, time.UTC)
	feed := &recordingFeed{}
	docs := &stubDocuments{
		deleteFn: func(context.Context, domain.Scope, string) error { return nil },
	}
	r := NewRemote(docs, fixedClock(storeTime), feed, domain.GlobalScope, RemoteOptions{Logger: quietLogger()})
	if err := r.Delete(context.Background(), "t1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(feed.events) != 1 || feed.events[0].Type != TaskDeleted {
		t.Fatalf("expected one delete event, got %+v", feed.events)
	}
	if feed.events[0].Time != storeTime.UnixMilli() {
		t.Fatalf("expected store clock stamp %d, got %d", storeTime.UnixMilli(), feed.events[0].Time)
	}
}
