// Package ratelimit throttles failed login attempts per account key with a lockout window.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// DefaultMaxAttempts is the number of failed attempts that triggers a lockout.
	DefaultMaxAttempts = 5
	// DefaultLockout is how long a key stays locked after the last failed attempt.
	DefaultLockout = 15 * time.Minute
)

// ErrLimited matches any *LimitedError via errors.Is.
var ErrLimited = errors.New("too many failed attempts")

// LimitedError is returned by Check while a key is locked out.
type LimitedError struct {
	RetryAfter time.Duration
}

func (e *LimitedError) Error() string {
	return fmt.Sprintf("too many failed attempts, retry in %d seconds", e.RetryAfterSeconds())
}

func (e *LimitedError) Is(target error) bool { return target == ErrLimited }

// RetryAfterSeconds rounds RetryAfter up to whole seconds, never below 1.
func (e *LimitedError) RetryAfterSeconds() int64 {
	s := int64(math.Ceil(e.RetryAfter.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// Limiter counts failed attempts per key. Implementations must be safe for concurrent use.
type Limiter interface {
	// Check returns a *LimitedError if key has reached the attempt limit within the lockout window.
	// A record whose window has elapsed is cleared and Check succeeds.
	Check(ctx context.Context, key string) error
	// RecordFailure increments the count for key and refreshes its last-attempt time.
	RecordFailure(ctx context.Context, key string) error
	// Clear removes any record for key.
	Clear(ctx context.Context, key string) error
}

// Policy is the attempt limit and lockout window shared by all implementations.
type Policy struct {
	MaxAttempts int
	Lockout     time.Duration
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Lockout <= 0 {
		p.Lockout = DefaultLockout
	}
	return p
}
