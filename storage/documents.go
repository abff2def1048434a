package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"tasksync/domain"
)

// Documents is a scoped document collection holding tasks. Implementations
// return domain.ErrNotFound for missing documents and raw errors otherwise;
// the remote client classifies them.
type Documents interface {
	Insert(ctx context.Context, scope domain.Scope, in domain.TaskInput, now time.Time) (domain.Task, error)
	List(ctx context.Context, scope domain.Scope) ([]domain.Task, error)
	Update(ctx context.Context, scope domain.Scope, id string, patch domain.TaskPatch, now time.Time) error
	Delete(ctx context.Context, scope domain.Scope, id string) error
}

// Clock supplies the authoritative time used for created/updated stamps.
type Clock interface {
	Now(ctx context.Context) (time.Time, error)
}

// ClockFunc adapts a function to Clock.
type ClockFunc func(ctx context.Context) (time.Time, error)

func (f ClockFunc) Now(ctx context.Context) (time.Time, error) { return f(ctx) }

// LocalClock reads the host clock.
var LocalClock = ClockFunc(func(context.Context) (time.Time, error) { return time.Now().UTC(), nil })

// RedisClock reads the clock of the Redis server every client shares.
type RedisClock struct {
	client *redis.Client
}

func NewRedisClock(client *redis.Client) *RedisClock { return &RedisClock{client: client} }

func (c *RedisClock) Now(ctx context.Context) (time.Time, error) {
	ts, err := c.client.Time(ctx).Result()
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}
