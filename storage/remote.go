package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tasksync/domain"
)

const tracerName = "tasksync/storage"

// RemoteOptions tunes a Remote client.
type RemoteOptions struct {
	Logger *log.Logger
	// ResubscribeDelay is the pause before a broken subscription is reopened.
	ResubscribeDelay time.Duration
	Tracer           trace.Tracer
}

// Remote is the task store client for one scope. Every call updates the
// health flag: success sets it, a connectivity failure clears it. Not-found,
// validation and caller cancellation leave it alone.
type Remote struct {
	docs   Documents
	clock  Clock
	feed   Feed
	scope  domain.Scope
	logger *log.Logger
	tracer trace.Tracer
	delay  time.Duration

	healthy atomic.Bool

	mu        sync.Mutex
	lastKnown []domain.Task
}

// NewRemote binds docs to scope. feed may be nil, in which case subscriptions
// deliver the current list once and then wait to be closed.
func NewRemote(docs Documents, clock Clock, feed Feed, scope domain.Scope, opts RemoteOptions) *Remote {
	if docs == nil {
		panic("storage.NewRemote: documents are nil")
	}
	if clock == nil {
		clock = LocalClock
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}
	if opts.ResubscribeDelay <= 0 {
		opts.ResubscribeDelay = time.Second
	}
	r := &Remote{
		docs:   docs,
		clock:  clock,
		feed:   feed,
		scope:  scope,
		logger: opts.Logger,
		tracer: opts.Tracer,
		delay:  opts.ResubscribeDelay,
	}
	r.healthy.Store(true)
	return r
}

// Scope returns the scope every call of r operates on.
func (r *Remote) Scope() domain.Scope { return r.scope }

// Healthy is the last known online flag.
func (r *Remote) Healthy() bool { return r.healthy.Load() }

func (r *Remote) start(ctx context.Context, op string) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, "remote."+op, trace.WithAttributes(attribute.String("tasksync.scope", r.scope.Key())))
}

// observe records the outcome of a remote call and maps err into the domain taxonomy.
func (r *Remote) observe(span trace.Span, op string, err error) error {
	defer span.End()
	if err == nil {
		r.healthy.Store(true)
		return nil
	}
	class := "unavailable"
	switch {
	case errors.Is(err, domain.ErrNotFound):
		class = "not_found"
	case errors.Is(err, domain.ErrInvalidTask):
		class = "invalid"
	case errors.Is(err, context.Canceled):
		// The caller gave up; the store said nothing about its health.
		class = "canceled"
	default:
		r.healthy.Store(false)
		err = fmt.Errorf("%w: %s: %v", domain.ErrRemoteUnavailable, op, err)
	}
	span.SetAttributes(attribute.String("tasksync.failure", class))
	span.RecordError(err)
	span.SetStatus(codes.Error, class)
	r.logger.WithError(err).WithFields(log.Fields{"op": op, "scope": r.scope.Key(), "class": class}).Warn("remote call failed")
	return err
}

func (r *Remote) now(ctx context.Context) (time.Time, error) {
	ts, err := r.clock.Now(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("store clock: %w", err)
	}
	return ts, nil
}

func (r *Remote) publish(ctx context.Context, typ, id string, at time.Time) {
	if r.feed == nil {
		return
	}
	ev := ChangeEvent{Type: typ, TaskID: id, Time: at.UnixMilli()}
	if err := r.feed.Publish(ctx, r.scope, ev); err != nil {
		// The write itself succeeded; listeners catch up on their next event.
		r.logger.WithError(err).WithFields(log.Fields{"scope": r.scope.Key(), "type": typ}).Error("failed to publish change")
	}
}

// Create inserts a task stamped by the store clock and returns its identifier.
func (r *Remote) Create(ctx context.Context, in domain.TaskInput) (string, error) {
	in, err := in.Normalize()
	if err != nil {
		return "", err
	}
	ctx, span := r.start(ctx, "create")
	now, err := r.now(ctx)
	if err != nil {
		return "", r.observe(span, "create", err)
	}
	task, err := r.docs.Insert(ctx, r.scope, in, now)
	if err != nil {
		return "", r.observe(span, "create", err)
	}
	r.observe(span, "create", nil)
	r.publish(ctx, TaskCreated, task.ID, now)
	return task.ID, nil
}

// List returns every task of the scope, newest first.
func (r *Remote) List(ctx context.Context) ([]domain.Task, error) {
	ctx, span := r.start(ctx, "list")
	tasks, err := r.docs.List(ctx, r.scope)
	if err != nil {
		return nil, r.observe(span, "list", err)
	}
	span.SetAttributes(attribute.Int("tasksync.tasks", len(tasks)))
	r.observe(span, "list", nil)
	r.mu.Lock()
	r.lastKnown = domain.CloneTasks(tasks)
	r.mu.Unlock()
	return tasks, nil
}

// Update merges patch into the task with id and refreshes its UpdatedAt.
func (r *Remote) Update(ctx context.Context, id string, patch domain.TaskPatch) error {
	patch, err := patch.Validate()
	if err != nil {
		return err
	}
	ctx, span := r.start(ctx, "update")
	now, err := r.now(ctx)
	if err != nil {
		return r.observe(span, "update", err)
	}
	if err := r.docs.Update(ctx, r.scope, id, patch, now); err != nil {
		return r.observe(span, "update", err)
	}
	r.observe(span, "update", nil)
	r.publish(ctx, TaskUpdated, id, now)
	return nil
}

// Delete removes the task with id.
func (r *Remote) Delete(ctx context.Context, id string) error {
	ctx, span := r.start(ctx, "delete")
	now, err := r.now(ctx)
	if err != nil {
		return r.observe(span, "delete", err)
	}
	if err := r.docs.Delete(ctx, r.scope, id); err != nil {
		return r.observe(span, "delete", err)
	}
	r.observe(span, "delete", nil)
	r.publish(ctx, TaskDeleted, id, now)
	return nil
}

func (r *Remote) bestKnown() []domain.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return domain.CloneTasks(r.lastKnown)
}
