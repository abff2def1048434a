package storage

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"tasksync/domain"
)

// DefaultCacheKey is the key the last known task list is stored under.
const DefaultCacheKey = "todos_offline"

// LocalCache holds the last-known-good snapshot of the task list. It is best
// effort: errors are logged and never returned.
type LocalCache struct {
	kv     KV
	key    string
	logger *log.Logger
}

// NewLocalCache creates a cache on top of kv. An empty key uses DefaultCacheKey.
func NewLocalCache(kv KV, key string, logger *log.Logger) *LocalCache {
	if kv == nil {
		panic("storage.NewLocalCache: kv is nil")
	}
	if key == "" {
		key = DefaultCacheKey
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &LocalCache{kv: kv, key: key, logger: logger}
}

// Save replaces the stored list with tasks.
func (c *LocalCache) Save(ctx context.Context, tasks []domain.Task) {
	if tasks == nil {
		tasks = []domain.Task{}
	}
	data, err := sonic.Marshal(tasks)
	if err != nil {
		c.logger.WithError(err).WithField("key", c.key).Error("failed to encode task cache")
		return
	}
	if err := c.kv.Set(ctx, c.key, string(data)); err != nil {
		c.logger.WithError(err).WithField("key", c.key).Error("failed to store task cache")
		return
	}
	c.logger.WithFields(log.Fields{"key": c.key, "tasks": len(tasks)}).Debug("task cache saved")
}

// Load returns the stored list, or an empty list when nothing usable is stored.
func (c *LocalCache) Load(ctx context.Context) []domain.Task {
	raw, ok, err := c.kv.Get(ctx, c.key)
	if err != nil {
		c.logger.WithError(err).WithField("key", c.key).Error("failed to read task cache")
		return []domain.Task{}
	}
	if !ok {
		return []domain.Task{}
	}
	tasks, err := decodeTasks(raw)
	if err != nil {
		c.logger.WithError(err).WithField("key", c.key).Warn("discarding task cache")
		return []domain.Task{}
	}
	return tasks
}

func decodeTasks(raw string) ([]domain.Task, error) {
	var tasks []domain.Task
	if err := sonic.UnmarshalString(raw, &tasks); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCacheCorrupt, err)
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	return tasks, nil
}
