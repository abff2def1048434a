package syncer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"tasksync/domain"
	"tasksync/storage"
)

// Unsubscribe stops a subscription. Calling it more than once is a no-op.
type Unsubscribe func()

type subscriber struct {
	o        *Orchestrator
	onChange func([]domain.Task)
	cancel   context.CancelFunc
	closed   atomic.Bool
	once     sync.Once

	// deliverMu is held from the closed check until onChange returns.
	deliverMu  sync.Mutex
	inCallback atomic.Bool
}

// close stops the subscriber and waits for a running callback to return,
// unless it is called from inside that callback.
func (s *subscriber) close() {
	s.once.Do(func() {
		s.closed.Store(true)
		s.cancel()
		s.o.mu.Lock()
		delete(s.o.subs, s)
		s.o.mu.Unlock()
	})
	if s.inCallback.Load() {
		return
	}
	s.deliverMu.Lock()
	s.deliverMu.Unlock()
}

func (s *subscriber) deliver(tasks []domain.Task) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if s.closed.Load() {
		return
	}
	s.inCallback.Store(true)
	defer s.inCallback.Store(false)
	s.onChange(domain.CloneTasks(tasks))
}

// Subscribe calls onChange with the current task list and again after every
// remote change. While the remote path is broken onChange receives the cached
// list when fallback is enabled, the last list seen otherwise. No callback
// starts after the returned Unsubscribe has returned. Unsubscribe waits for a
// running callback unless it is called from inside one.
func (o *Orchestrator) Subscribe(ctx context.Context, onChange func([]domain.Task)) Unsubscribe {
	ctx, cancel := context.WithCancel(ctx)
	s := &subscriber{o: o, onChange: onChange, cancel: cancel}
	o.mu.Lock()
	o.subs[s] = struct{}{}
	o.mu.Unlock()
	go o.runSubscription(ctx, s)
	return s.close
}

func (o *Orchestrator) runSubscription(ctx context.Context, s *subscriber) {
	defer s.close()
	var r RemoteStore
	for {
		var err error
		r, err = o.remoteFor(ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return
		}
		o.classify("subscribe", err)
		o.deliverStale(ctx, s, nil)
		if !wait(ctx, o.opts.ResubscribeDelay) {
			return
		}
	}

	entry := o.logger.WithField("scope", r.Scope().Key())
	entry.Debug("subscription opened")
	sub := r.Subscribe(ctx)
	defer sub.Close()
	for snap := range sub.Updates() {
		if ctx.Err() != nil {
			return
		}
		if snap.Stale {
			o.classify("subscribe", domain.ErrRemoteUnavailable)
			o.deliverStale(ctx, s, snap.Tasks)
			continue
		}
		o.deliverFresh(ctx, s, snap, entry)
	}
}

func (o *Orchestrator) deliverFresh(ctx context.Context, s *subscriber, snap storage.Snapshot, entry *log.Entry) {
	o.classify("subscribe", nil)
	if o.opts.EnableLocalFallback {
		o.cacheMu.Lock()
		o.cache.Save(ctx, snap.Tasks)
		o.cacheMu.Unlock()
	}
	o.setView(snap.Tasks)
	entry.WithField("tasks", len(snap.Tasks)).Debug("delivering snapshot")
	s.deliver(snap.Tasks)
}

func (o *Orchestrator) deliverStale(ctx context.Context, s *subscriber, best []domain.Task) {
	tasks := best
	if o.opts.EnableLocalFallback {
		o.opts.Metrics.fallback("subscribe")
		tasks = o.cache.Load(ctx)
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	o.setView(tasks)
	s.deliver(tasks)
}

func wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
