package ratelimit

import (
	"context"
	"time"

	"careplane/pkg/rediskey"

	"github.com/redis/go-redis/v9"
)

type redisCounter struct {
	client *redis.Client
}

// NewRedisCounter builds a Counter backed by a shared redis instance, for
// deployments where per-process accounting is not enough.
func NewRedisCounter(client *redis.Client) Counter {
	return &redisCounter{client: client}
}

func (r *redisCounter) bucket(key string, window time.Duration) string {
	slot := time.Now().UnixNano() / int64(window)
	return rediskey.BuildRateLimitBucket(key, slot)
}

func (r *redisCounter) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	bucket := r.bucket(key, window)

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, bucket)
	pipe.Expire(ctx, bucket, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (r *redisCounter) Get(ctx context.Context, key string, window time.Duration) (int64, error) {
	n, err := r.client.Get(ctx, r.bucket(key, window)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}
