package ratelimit

import (
	"context"
	"sync"
	"time"
)

// pruneThreshold bounds how many records accumulate before stale ones are dropped on write.
const pruneThreshold = 10000

type record struct {
	count       int
	lastAttempt time.Time
}

// MemoryLimiter is an in-process Limiter for single-instance deployments and tests.
type MemoryLimiter struct {
	mu      sync.Mutex
	records map[string]record
	policy  Policy
	nowF    func() time.Time
}

// NewMemoryLimiter returns a MemoryLimiter. Zero policy fields use the defaults (5 attempts, 15m).
func NewMemoryLimiter(policy Policy) *MemoryLimiter {
	return &MemoryLimiter{
		records: make(map[string]record),
		policy:  policy.normalized(),
		nowF:    time.Now,
	}
}

// Check implements Limiter.
func (l *MemoryLimiter) Check(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[key]
	if !ok {
		return nil
	}
	elapsed := l.nowF().Sub(rec.lastAttempt)
	if elapsed >= l.policy.Lockout {
		delete(l.records, key)
		return nil
	}
	if rec.count >= l.policy.MaxAttempts {
		return &LimitedError{RetryAfter: l.policy.Lockout - elapsed}
	}
	return nil
}

// RecordFailure implements Limiter.
func (l *MemoryLimiter) RecordFailure(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.nowF()
	if len(l.records) >= pruneThreshold {
		l.pruneLocked(now)
	}
	rec := l.records[key]
	if !rec.lastAttempt.IsZero() && now.Sub(rec.lastAttempt) >= l.policy.Lockout {
		rec.count = 0
	}
	rec.count++
	rec.lastAttempt = now
	l.records[key] = rec
	return nil
}

// Clear implements Limiter.
func (l *MemoryLimiter) Clear(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, key)
	return nil
}

func (l *MemoryLimiter) pruneLocked(now time.Time) {
	for k, rec := range l.records {
		if now.Sub(rec.lastAttempt) >= l.policy.Lockout {
			delete(l.records, k)
		}
	}
}
