package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:login:"

// RedisLimiter is a Limiter backed by a shared Redis counter so lockouts hold across instances.
// Each failure is an INCR plus EXPIRE in one transaction; the key TTL is the lockout window
// measured from the last failed attempt.
type RedisLimiter struct {
	client redis.UniversalClient
	policy Policy
}

// NewRedisLimiter returns a RedisLimiter. Zero policy fields use the defaults (5 attempts, 15m).
func NewRedisLimiter(client redis.UniversalClient, policy Policy) *RedisLimiter {
	return &RedisLimiter{client: client, policy: policy.normalized()}
}

// Check implements Limiter. An expired window has already been removed by Redis.
func (l *RedisLimiter) Check(ctx context.Context, key string) error {
	k := keyPrefix + key
	pipe := l.client.Pipeline()
	countCmd := pipe.Get(ctx, k)
	ttlCmd := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	count, err := countCmd.Int()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	if count < l.policy.MaxAttempts {
		return nil
	}
	ttl := ttlCmd.Val()
	if ttl <= 0 {
		ttl = time.Second
	}
	return &LimitedError{RetryAfter: ttl}
}

// RecordFailure implements Limiter.
func (l *RedisLimiter) RecordFailure(ctx context.Context, key string) error {
	k := keyPrefix + key
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, k)
		pipe.PExpire(ctx, k, l.policy.Lockout)
		return nil
	})
	return err
}

// Clear implements Limiter.
func (l *RedisLimiter) Clear(ctx context.Context, key string) error {
	return l.client.Del(ctx, keyPrefix+key).Err()
}
