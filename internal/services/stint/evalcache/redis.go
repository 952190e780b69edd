package evalcache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "evalcache:"
	redisTagPrefix = "evalcache:tag:"
)

// Redis is a Cache backed by a shared Redis instance. Tag membership is kept
// in per-tag sets so invalidation touches only the tagged keys.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis creates a Redis-backed cache. A zero ttl means entries never
// expire on their own.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// Get implements Cache.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

// Set implements Cache.
func (r *Redis) Set(ctx context.Context, key string, value []byte, tags []string) error {
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, redisKeyPrefix+key, value, r.ttl)
	for _, tag := range tags {
		pipe.SAdd(ctx, redisTagPrefix+tag, key)
		if r.ttl > 0 {
			pipe.Expire(ctx, redisTagPrefix+tag, r.ttl)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Invalidate implements Cache.
func (r *Redis) Invalidate(ctx context.Context, tag string) error {
	members, err := r.client.SMembers(ctx, redisTagPrefix+tag).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}
	pipe := r.client.TxPipeline()
	for _, member := range members {
		pipe.Del(ctx, redisKeyPrefix+member)
	}
	pipe.Del(ctx, redisTagPrefix+tag)
	_, err = pipe.Exec(ctx)
	return err
}
