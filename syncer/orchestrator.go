package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"tasksync/domain"
)

// Options selects the orchestrator variant.
type Options struct {
	// UseIdentityScope scopes every remote call to the resolved identity
	// instead of the global collection.
	UseIdentityScope bool
	// EnableLocalFallback serves reads and writes from the local cache while
	// the remote store is unreachable.
	EnableLocalFallback bool
	// ResubscribeDelay is the pause before a subscription retries scope
	// resolution.
	ResubscribeDelay time.Duration
	Logger           *log.Logger
	Metrics          *Metrics
	Now              func() time.Time
}

// WriteResult is the outcome of a successful write. Offline writes were
// applied to the local cache only.
type WriteResult struct {
	ID      string `json:"id"`
	Offline bool   `json:"offline"`
}

// Orchestrator routes task operations to the remote store and falls back to
// the local cache when the remote path fails. It owns the session SyncState.
type Orchestrator struct {
	remotes  RemoteFactory
	identity ScopeResolver
	cache    Cache
	notifier NotificationCanceler
	opts     Options
	logger   *log.Logger
	ids      *localIDs

	mu          sync.Mutex
	state       domain.SyncState
	remote      RemoteStore
	view        []domain.Task
	viewVersion uint64
	subs        map[*subscriber]struct{}

	// cacheMu serializes read-modify-write cycles on the local cache.
	cacheMu sync.Mutex
}

// New builds an orchestrator. identity is required only with
// UseIdentityScope, cache only with EnableLocalFallback; notifier may be nil.
func New(remotes RemoteFactory, identity ScopeResolver, cache Cache, notifier NotificationCanceler, opts Options) (*Orchestrator, error) {
	if remotes == nil {
		return nil, errors.New("syncer: remote factory is required")
	}
	if opts.UseIdentityScope && identity == nil {
		return nil, errors.New("syncer: identity scope requires a scope resolver")
	}
	if opts.EnableLocalFallback && cache == nil {
		return nil, errors.New("syncer: local fallback requires a cache")
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ResubscribeDelay <= 0 {
		opts.ResubscribeDelay = time.Second
	}
	return &Orchestrator{
		remotes:  remotes,
		identity: identity,
		cache:    cache,
		notifier: notifier,
		opts:     opts,
		logger:   opts.Logger,
		ids:      &localIDs{now: opts.Now},
		state:    domain.InitialSyncState(),
		subs:     map[*subscriber]struct{}{},
	}, nil
}

// Status returns a copy of the current sync state.
func (o *Orchestrator) Status() domain.SyncState {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := o.state
	if st.Scope != nil {
		sc := *st.Scope
		st.Scope = &sc
	}
	return st
}

// Online reports whether the last remote call succeeded.
func (o *Orchestrator) Online() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Online
}

// Snapshot returns the optimistic task list: the last delivered list with
// pending writes applied.
func (o *Orchestrator) Snapshot() []domain.Task {
	o.mu.Lock()
	defer o.mu.Unlock()
	return domain.CloneTasks(o.view)
}

// Reset closes every subscription and returns to the initial state. The next
// call resolves the scope again.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	subs := make([]*subscriber, 0, len(o.subs))
	for s := range o.subs {
		subs = append(subs, s)
	}
	o.mu.Unlock()
	for _, s := range subs {
		s.close()
	}
	o.mu.Lock()
	o.state = domain.InitialSyncState()
	o.remote = nil
	o.view = nil
	o.viewVersion++
	o.mu.Unlock()
	o.opts.Metrics.setOnline(true)
}

// remoteFor returns the remote client for the session scope, resolving the
// scope on first use. The scope is fixed until Reset.
func (o *Orchestrator) remoteFor(ctx context.Context) (RemoteStore, error) {
	o.mu.Lock()
	r := o.remote
	o.mu.Unlock()
	if r != nil {
		return r, nil
	}

	scope := domain.GlobalScope
	if o.opts.UseIdentityScope {
		token, err := o.identity.ResolveScope(ctx)
		if err != nil {
			if !errors.Is(err, domain.ErrAuthUnavailable) {
				err = errors.Join(domain.ErrAuthUnavailable, err)
			}
			return nil, err
		}
		scope = domain.IdentityScope(token)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.remote == nil {
		o.remote = o.remotes.ForScope(scope)
		o.state.Scope = &scope
	}
	return o.remote, nil
}

func (o *Orchestrator) setOnline(online bool) {
	o.mu.Lock()
	changed := o.state.Online != online
	o.state.Online = online
	o.mu.Unlock()
	o.opts.Metrics.setOnline(online)
	if changed {
		o.logger.WithField("online", online).Info("sync state changed")
	}
}

// classify records the outcome of a remote call in the sync state.
func (o *Orchestrator) classify(op string, err error) {
	switch {
	case err == nil:
		o.opts.Metrics.observe(op, "ok")
		o.setOnline(true)
	case domain.IsConnectivity(err):
		o.opts.Metrics.observe(op, "unavailable")
		o.logger.WithError(err).WithField("op", op).Warn("remote store unavailable")
		o.setOnline(false)
	case errors.Is(err, domain.ErrNotFound):
		o.opts.Metrics.observe(op, "not_found")
	default:
		o.opts.Metrics.observe(op, "error")
	}
}

// fallback reports whether a failed call may be served locally.
func (o *Orchestrator) fallback(err error) bool {
	return o.opts.EnableLocalFallback && domain.IsConnectivity(err)
}

// optimistic applies fn to the view and returns the version to roll back to.
func (o *Orchestrator) optimistic(fn func([]domain.Task) []domain.Task) (prev []domain.Task, version uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	prev = o.view
	o.view = fn(o.view)
	o.viewVersion++
	return prev, o.viewVersion
}

// rollback restores prev unless the view moved on since version.
func (o *Orchestrator) rollback(prev []domain.Task, version uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.viewVersion != version {
		return
	}
	o.view = prev
	o.viewVersion++
}

func (o *Orchestrator) setView(tasks []domain.Task) {
	o.mu.Lock()
	o.view = domain.CloneTasks(tasks)
	o.viewVersion++
	o.mu.Unlock()
}

// detach keeps the caller's values but drops its cancellation. Once issued, a
// remote call runs until it succeeds or the transport gives up.
func detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// mutateCache runs one read-modify-write cycle on the local cache.
func (o *Orchestrator) mutateCache(ctx context.Context, fn func([]domain.Task) []domain.Task) []domain.Task {
	o.cacheMu.Lock()
	defer o.cacheMu.Unlock()
	tasks := fn(o.cache.Load(ctx))
	o.cache.Save(ctx, tasks)
	return tasks
}

func (o *Orchestrator) findTask(ctx context.Context, id string) (domain.Task, bool) {
	o.mu.Lock()
	i := domain.IndexOf(o.view, id)
	if i >= 0 {
		t := o.view[i].Clone()
		o.mu.Unlock()
		return t, true
	}
	o.mu.Unlock()
	if o.cache == nil {
		return domain.Task{}, false
	}
	tasks := o.cache.Load(ctx)
	if i := domain.IndexOf(tasks, id); i >= 0 {
		return tasks[i], true
	}
	return domain.Task{}, false
}

// ListTasks returns the scope's tasks newest first. When the remote store is
// unreachable and fallback is enabled the cached list is returned instead.
func (o *Orchestrator) ListTasks(ctx context.Context) ([]domain.Task, error) {
	ctx = detach(ctx)
	r, err := o.remoteFor(ctx)
	var tasks []domain.Task
	if err == nil {
		tasks, err = r.List(ctx)
	}
	o.classify("list", err)
	switch {
	case err == nil:
		if o.opts.EnableLocalFallback {
			o.cacheMu.Lock()
			o.cache.Save(ctx, tasks)
			o.cacheMu.Unlock()
		}
		o.setView(tasks)
		return tasks, nil
	case o.fallback(err):
		o.opts.Metrics.fallback("list")
		tasks = o.cache.Load(ctx)
		o.setView(tasks)
		return tasks, nil
	default:
		return nil, err
	}
}

// AddTask creates a task. Offline, the task is prepended to the cache under a
// local time based identifier.
func (o *Orchestrator) AddTask(ctx context.Context, in domain.TaskInput) (WriteResult, error) {
	ctx = detach(ctx)
	in, err := in.Normalize()
	if err != nil {
		return WriteResult{}, err
	}
	tentative := domain.NewTask(o.ids.next(), in, o.opts.Now())
	prev, version := o.optimistic(func(v []domain.Task) []domain.Task {
		return domain.PrependToList(v, tentative)
	})

	r, err := o.remoteFor(ctx)
	var id string
	if err == nil {
		id, err = r.Create(ctx, in)
	}
	o.classify("add", err)
	switch {
	case err == nil:
		o.reconcileID(tentative.ID, id)
		return WriteResult{ID: id}, nil
	case o.fallback(err):
		o.opts.Metrics.fallback("add")
		o.mutateCache(ctx, func(tasks []domain.Task) []domain.Task {
			return domain.PrependToList(tasks, tentative)
		})
		o.logger.WithField("task", tentative.ID).Info("task stored offline")
		return WriteResult{ID: tentative.ID, Offline: true}, nil
	default:
		o.rollback(prev, version)
		return WriteResult{}, err
	}
}

// reconcileID swaps the tentative identifier for the one the store assigned.
func (o *Orchestrator) reconcileID(tentative, id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	i := domain.IndexOf(o.view, tentative)
	if i < 0 {
		return
	}
	if domain.IndexOf(o.view, id) >= 0 {
		// A delivery already carries the stored task.
		o.view, _ = domain.RemoveFromList(o.view, tentative)
	} else {
		o.view = domain.CloneTasks(o.view)
		o.view[i].ID = id
	}
	o.viewVersion++
}

// ToggleTask flips completion. current is the state the caller observed.
func (o *Orchestrator) ToggleTask(ctx context.Context, id string, current bool) (WriteResult, error) {
	completed := !current
	return o.update(ctx, "toggle", id, domain.TaskPatch{Completed: &completed})
}

// SetPriority changes the priority of a task.
func (o *Orchestrator) SetPriority(ctx context.Context, id string, priority domain.Priority) (WriteResult, error) {
	return o.update(ctx, "priority", id, domain.TaskPatch{Priority: &priority})
}

// SetAlarm schedules an alarm. notificationID references the notification
// scheduled for it, if any.
func (o *Orchestrator) SetAlarm(ctx context.Context, id string, at time.Time, notificationID string) (WriteResult, error) {
	return o.update(ctx, "alarm", id, domain.TaskPatch{AlarmTime: &at, NotificationID: &notificationID})
}

// ClearAlarm drops the alarm of a task and cancels its notification.
func (o *Orchestrator) ClearAlarm(ctx context.Context, id string) (WriteResult, error) {
	ctx = detach(ctx)
	existing, known := o.findTask(ctx, id)
	res, err := o.update(ctx, "clear_alarm", id, domain.TaskPatch{ClearAlarm: true})
	if err == nil && known {
		o.cancelNotification(ctx, existing)
	}
	return res, err
}

// UpdateTask applies an arbitrary patch.
func (o *Orchestrator) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (WriteResult, error) {
	return o.update(ctx, "update", id, patch)
}

func (o *Orchestrator) update(ctx context.Context, op, id string, patch domain.TaskPatch) (WriteResult, error) {
	ctx = detach(ctx)
	patch, err := patch.Validate()
	if err != nil {
		return WriteResult{}, err
	}
	now := o.opts.Now()
	apply := func(tasks []domain.Task) []domain.Task {
		out, _ := domain.PatchInList(tasks, id, patch, now)
		return out
	}
	prev, version := o.optimistic(apply)

	r, err := o.remoteFor(ctx)
	if err == nil {
		err = r.Update(ctx, id, patch)
	}
	o.classify(op, err)
	switch {
	case err == nil:
		return WriteResult{ID: id}, nil
	case o.fallback(err):
		o.opts.Metrics.fallback(op)
		// Tasks missing from the cache are left alone.
		o.mutateCache(ctx, apply)
		return WriteResult{ID: id, Offline: true}, nil
	default:
		o.rollback(prev, version)
		return WriteResult{}, err
	}
}

// DeleteTask removes a task and cancels its pending notification.
func (o *Orchestrator) DeleteTask(ctx context.Context, id string) (WriteResult, error) {
	ctx = detach(ctx)
	existing, known := o.findTask(ctx, id)
	remove := func(tasks []domain.Task) []domain.Task {
		out, _ := domain.RemoveFromList(tasks, id)
		return out
	}
	prev, version := o.optimistic(remove)

	r, err := o.remoteFor(ctx)
	if err == nil {
		err = r.Delete(ctx, id)
	}
	o.classify("delete", err)
	offline := false
	switch {
	case err == nil:
	case o.fallback(err):
		o.opts.Metrics.fallback("delete")
		o.mutateCache(ctx, remove)
		offline = true
	default:
		o.rollback(prev, version)
		return WriteResult{}, err
	}
	if known {
		o.cancelNotification(ctx, existing)
	}
	return WriteResult{ID: id, Offline: offline}, nil
}

func (o *Orchestrator) cancelNotification(ctx context.Context, t domain.Task) {
	if o.notifier == nil || t.NotificationID == "" {
		return
	}
	if err := o.notifier.CancelNotification(ctx, t.ID, t.NotificationID); err != nil {
		o.logger.WithError(err).WithField("task", t.ID).Warn("failed to cancel notification")
	}
}
