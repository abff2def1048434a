package storage

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"tasksync/domain"
)

const (
	TaskCreated = "task-created"
	TaskUpdated = "task-updated"
	TaskDeleted = "task-deleted"
)

// ChangeEvent announces a mutation of one document in a scope.
type ChangeEvent struct {
	Scope  string `json:"scope"`
	Type   string `json:"type"`
	TaskID string `json:"taskId"`
	Time   int64  `json:"time"`
}

// Feed carries change notifications between every client of a scope.
type Feed interface {
	Publish(ctx context.Context, scope domain.Scope, ev ChangeEvent) error
	Listen(ctx context.Context, scope domain.Scope) (FeedListener, error)
}

// FeedListener yields change events until the transport fails or it is closed.
type FeedListener interface {
	Next(ctx context.Context) (ChangeEvent, error)
	Close() error
}

// RedisFeed publishes change events on one pub/sub channel per scope.
type RedisFeed struct {
	client *redis.Client
	idle   time.Duration
}

// NewRedisFeed creates a feed. Idle listeners ping the server every idle
// interval so a dead connection is noticed without traffic.
func NewRedisFeed(client *redis.Client, idle time.Duration) *RedisFeed {
	if client == nil {
		panic("storage.NewRedisFeed: client is nil")
	}
	if idle <= 0 {
		idle = 30 * time.Second
	}
	return &RedisFeed{client: client, idle: idle}
}

func updatesChannel(scope domain.Scope) string {
	return "taskupdates:" + scope.Key()
}

func (f *RedisFeed) Publish(ctx context.Context, scope domain.Scope, ev ChangeEvent) error {
	ev.Scope = scope.Key()
	data, err := sonic.Marshal(ev)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, updatesChannel(scope), data).Err()
}

func (f *RedisFeed) Listen(ctx context.Context, scope domain.Scope) (FeedListener, error) {
	sub := f.client.Subscribe(ctx, updatesChannel(scope))
	// Wait for the subscription confirmation so an unreachable server fails here.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}
	return &redisListener{sub: sub, idle: f.idle}, nil
}

type redisListener struct {
	sub  *redis.PubSub
	idle time.Duration
}

func (l *redisListener) Next(ctx context.Context) (ChangeEvent, error) {
	for {
		msg, err := l.sub.ReceiveTimeout(ctx, l.idle)
		if err != nil {
			if ctx.Err() != nil {
				return ChangeEvent{}, ctx.Err()
			}
			if isTimeout(err) {
				if err := l.sub.Ping(ctx); err != nil {
					return ChangeEvent{}, err
				}
				continue
			}
			return ChangeEvent{}, err
		}
		m, ok := msg.(*redis.Message)
		if !ok {
			continue
		}
		var ev ChangeEvent
		if err := sonic.UnmarshalString(m.Payload, &ev); err != nil {
			// Any message still means the scope changed.
			return ChangeEvent{Type: TaskUpdated}, nil
		}
		return ev, nil
	}
}

func (l *redisListener) Close() error {
	return l.sub.Close()
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
