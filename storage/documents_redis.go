package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"tasksync/domain"
)

const maxUpdateAttempts = 3

// RedisDocuments keeps one hash per scope; each field is a task id holding the
// task document.
type RedisDocuments struct {
	client *redis.Client
	newID  func() string
	logger *log.Logger
}

func NewRedisDocuments(client *redis.Client) *RedisDocuments {
	if client == nil {
		panic("storage.NewRedisDocuments: client is nil")
	}
	return &RedisDocuments{client: client, newID: uuid.NewString, logger: log.StandardLogger()}
}

// WithLogger sets the logger that reports undecodable documents.
func (d *RedisDocuments) WithLogger(logger *log.Logger) *RedisDocuments {
	if logger != nil {
		d.logger = logger
	}
	return d
}

func documentsKey(scope domain.Scope) string {
	return "tasks:" + scope.Key()
}

func sequenceKey(scope domain.Scope) string {
	return documentsKey(scope) + ":seq"
}

func (d *RedisDocuments) Insert(ctx context.Context, scope domain.Scope, in domain.TaskInput, now time.Time) (domain.Task, error) {
	seq, err := d.client.Incr(ctx, sequenceKey(scope)).Result()
	if err != nil {
		return domain.Task{}, err
	}
	task := domain.NewTask(d.newID(), in, now)
	task.Seq = seq
	data, err := sonic.Marshal(task)
	if err != nil {
		return domain.Task{}, err
	}
	if err := d.client.HSet(ctx, documentsKey(scope), task.ID, data).Err(); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

func (d *RedisDocuments) List(ctx context.Context, scope domain.Scope) ([]domain.Task, error) {
	raw, err := d.client.HGetAll(ctx, documentsKey(scope)).Result()
	if err != nil {
		return nil, err
	}
	tasks := make([]domain.Task, 0, len(raw))
	for id, doc := range raw {
		var t domain.Task
		if err := sonic.UnmarshalString(doc, &t); err != nil {
			d.logger.WithError(err).WithFields(log.Fields{"scope": scope.Key(), "task": id}).Warn("skipping undecodable task")
			continue
		}
		t.ID = id
		tasks = append(tasks, t)
	}
	domain.SortNewestFirst(tasks)
	return tasks, nil
}

func (d *RedisDocuments) Update(ctx context.Context, scope domain.Scope, id string, patch domain.TaskPatch, now time.Time) error {
	key := documentsKey(scope)
	txf := func(tx *redis.Tx) error {
		doc, err := tx.HGet(ctx, key, id).Result()
		if errors.Is(err, redis.Nil) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		var t domain.Task
		if err := sonic.UnmarshalString(doc, &t); err != nil {
			return fmt.Errorf("decode task %s: %w", id, err)
		}
		data, err := sonic.Marshal(domain.ApplyPatch(t, patch, now))
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, id, data)
			return nil
		})
		return err
	}
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := d.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update task %s: %w", id, redis.TxFailedErr)
}

func (d *RedisDocuments) Delete(ctx context.Context, scope domain.Scope, id string) error {
	n, err := d.client.HDel(ctx, documentsKey(scope), id).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
