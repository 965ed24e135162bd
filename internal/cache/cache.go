// Package cache holds a per-owner snapshot of task lists in front of the
// storage backend. Cache trouble is never an error: misses fall through to
// the store and failures are only logged.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"taskboard/internal/store"
)

const listTTL = 5 * time.Minute

// TaskCache caches the result of listing an owner's tasks.
type TaskCache interface {
	Get(ctx context.Context, owner string) ([]store.Task, bool)
	Set(ctx context.Context, owner string, tasks []store.Task)
	// Invalidate drops the owner's entry after any mutation.
	Invalidate(ctx context.Context, owner string)
}

// Noop disables caching.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]store.Task, bool) { return nil, false }
func (Noop) Set(context.Context, string, []store.Task)        {}
func (Noop) Invalidate(context.Context, string)               {}

// Redis caches task lists in redis, keyed per owner.
type Redis struct {
	rdb *redis.Client
	log zerolog.Logger
}

func NewRedis(addr string, log zerolog.Logger) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		return nil, err
	}
	log.Info().Str("addr", addr).Msg("redis cache ready")
	return &Redis{rdb: rdb, log: log}, nil
}

func key(owner string) string { return "tasks:" + owner }

func (r *Redis) Get(ctx context.Context, owner string) ([]store.Task, bool) {
	val, err := r.rdb.Get(ctx, key(owner)).Result()
	if err != nil {
		return nil, false
	}
	var tasks []store.Task
	if err := json.Unmarshal([]byte(val), &tasks); err != nil {
		r.log.Warn().Err(err).Str("owner", owner).Msg("dropping undecodable cache entry")
		r.rdb.Del(ctx, key(owner))
		return nil, false
	}
	return tasks, true
}

func (r *Redis) Set(ctx context.Context, owner string, tasks []store.Task) {
	data, err := json.Marshal(tasks)
	if err != nil {
		return
	}
	if err := r.rdb.Set(ctx, key(owner), data, listTTL).Err(); err != nil {
		r.log.Warn().Err(err).Str("owner", owner).Msg("cache set failed")
	}
}

func (r *Redis) Invalidate(ctx context.Context, owner string) {
	if err := r.rdb.Del(ctx, key(owner)).Err(); err != nil {
		r.log.Warn().Err(err).Str("owner", owner).Msg("cache invalidation failed")
	}
}
