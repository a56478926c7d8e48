package throttle

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const failureKeyPrefix = "verify-code:failures:"

// Redis is a fixed-window limiter shared across instances. INCR with a TTL
// set on the first failure gives the window semantics without a lock.
type Redis struct {
	client      *redis.Client
	maxFailures int
	windowSize  time.Duration
}

// NewRedis constructs a Redis-backed limiter.
func NewRedis(client *redis.Client, maxFailures int, windowSize time.Duration) *Redis {
	return &Redis{
		client:      client,
		maxFailures: maxFailures,
		windowSize:  windowSize,
	}
}

func (r *Redis) Allow(ctx context.Context, eppn string) (bool, error) {
	count, err := r.client.Get(ctx, failureKeyPrefix+eppn).Int()
	if err == redis.Nil {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("read failure count: %w", err)
	}
	return count < r.maxFailures, nil
}

func (r *Redis) RecordFailure(ctx context.Context, eppn string) error {
	key := failureKeyPrefix + eppn
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("increment failure count: %w", err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, key, r.windowSize).Err(); err != nil {
			return fmt.Errorf("set failure window: %w", err)
		}
	}
	return nil
}

func (r *Redis) Reset(ctx context.Context, eppn string) error {
	if err := r.client.Del(ctx, failureKeyPrefix+eppn).Err(); err != nil {
		return fmt.Errorf("clear failure count: %w", err)
	}
	return nil
}
