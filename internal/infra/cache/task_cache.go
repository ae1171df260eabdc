package cache

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/taskrelay/server/internal/modules/model"
)

const taskKeyPrefix = "taskrelay:task:"

func TaskKey(id uuid.UUID) string {
	return taskKeyPrefix + id.String()
}

// TaskCache keeps task snapshots keyed by id. Readers treat every error as a
// miss; the database stays the source of truth.
type TaskCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewTaskCache(rdb redis.Cmdable, ttl time.Duration) *TaskCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TaskCache{rdb: rdb, ttl: ttl}
}

func (c *TaskCache) Get(ctx context.Context, id uuid.UUID) (*model.Task, error) {
	raw, err := c.rdb.Get(ctx, TaskKey(id)).Bytes()
	if err != nil {
		return nil, err
	}
	var t model.Task
	if err := sonic.Unmarshal(raw, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *TaskCache) Set(ctx context.Context, t *model.Task) error {
	raw, err := sonic.Marshal(t)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, TaskKey(t.ID), raw, c.ttl).Err()
}

func (c *TaskCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	return c.rdb.Del(ctx, TaskKey(id)).Err()
}

// IsMiss reports whether err only means the key was absent.
func IsMiss(err error) bool {
	return errors.Is(err, redis.Nil)
}
