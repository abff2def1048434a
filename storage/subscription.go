package storage

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"tasksync/domain"
)

// Snapshot is one delivery of a subscription. Stale snapshots carry the best
// list known after the remote path failed.
type Snapshot struct {
	Tasks []domain.Task
	Stale bool
}

// Subscription is a lazy, non-restartable stream of task list snapshots. Only
// the newest undelivered snapshot is kept.
type Subscription struct {
	updates chan Snapshot
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once

	mu       sync.Mutex
	listener FeedListener
}

// Updates yields snapshots until the subscription is closed.
func (s *Subscription) Updates() <-chan Snapshot { return s.updates }

// Close stops the stream. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.cancel()
		// Closing the listener unblocks a pending receive.
		s.mu.Lock()
		if s.listener != nil {
			_ = s.listener.Close()
		}
		s.mu.Unlock()
		<-s.done
	})
}

func (s *Subscription) attach(ctx context.Context, l FeedListener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	s.listener = l
	return true
}

func (s *Subscription) detach() {
	s.mu.Lock()
	s.listener = nil
	s.mu.Unlock()
}

func (s *Subscription) deliver(ctx context.Context, snap Snapshot) {
	select {
	case <-ctx.Done():
		return
	default:
	}
	select {
	case s.updates <- snap:
	default:
		// Replace the undelivered snapshot with the newer one.
		select {
		case <-s.updates:
		default:
		}
		s.updates <- snap
	}
}

// Subscribe opens a standing change stream for the scope. The current list is
// delivered first, then a fresh list after every change. Transport failures
// never end the stream: a stale snapshot is delivered, the client is marked
// offline and the channel is reopened after a delay.
func (r *Remote) Subscribe(ctx context.Context) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		updates: make(chan Snapshot, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go r.pump(ctx, s)
	return s
}

func (r *Remote) pump(ctx context.Context, s *Subscription) {
	defer close(s.done)
	defer close(s.updates)
	entry := r.logger.WithField("scope", r.scope.Key())
	for {
		if r.feed == nil {
			r.refresh(ctx, s)
			<-ctx.Done()
			return
		}
		listener, err := r.feed.Listen(ctx, r.scope)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			entry.WithError(err).Warn("subscription channel unavailable")
			r.degrade(ctx, s)
		} else {
			if s.attach(ctx, listener) {
				r.listen(ctx, s, listener, entry)
				s.detach()
			}
			_ = listener.Close()
		}
		if !sleepCtx(ctx, r.delay) {
			return
		}
		entry.Debug("reopening subscription channel")
	}
}

func (r *Remote) listen(ctx context.Context, s *Subscription, listener FeedListener, entry *log.Entry) {
	r.refresh(ctx, s)
	for {
		ev, err := listener.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			entry.WithError(err).Warn("subscription channel broken")
			r.degrade(ctx, s)
			return
		}
		entry.WithFields(log.Fields{"type": ev.Type, "task": ev.TaskID}).Debug("change received")
		r.refresh(ctx, s)
	}
}

func (r *Remote) refresh(ctx context.Context, s *Subscription) {
	tasks, err := r.List(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.deliver(ctx, Snapshot{Tasks: r.bestKnown(), Stale: true})
		return
	}
	s.deliver(ctx, Snapshot{Tasks: tasks})
}

func (r *Remote) degrade(ctx context.Context, s *Subscription) {
	r.healthy.Store(false)
	s.deliver(ctx, Snapshot{Tasks: r.bestKnown(), Stale: true})
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
