// Package health reports readiness of the session store, the cache and the admission policy.
package health

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Component states reported by Check.
const (
	StatusUp       = "up"
	StatusDown     = "down"
	StatusDisabled = "disabled"
)

const defaultCheckTimeout = 2 * time.Second

// Pinger checks connectivity (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker checks the admission policy engine (e.g. *engine.OPAEvaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// PingerFunc adapts a function to Pinger.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

// RedisPinger returns a Pinger issuing PING on client.
func RedisPinger(client redis.UniversalClient) Pinger {
	return PingerFunc(func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
}

// Report is the outcome of one readiness check.
type Report struct {
	Database string `json:"database"`
	Cache    string `json:"cache"`
	Policy   string `json:"policy"`
}

// Healthy is true when no component is down. Disabled components do not count.
func (r Report) Healthy() bool {
	return r.Database != StatusDown && r.Cache != StatusDown && r.Policy != StatusDown
}

// Checker runs the readiness checks. Nil dependencies are reported as disabled.
type Checker struct {
	db      Pinger
	cache   Pinger
	policy  PolicyChecker
	timeout time.Duration
}

// NewChecker returns a Checker over the given dependencies.
func NewChecker(db, cache Pinger, policy PolicyChecker) *Checker {
	return &Checker{db: db, cache: cache, policy: policy, timeout: defaultCheckTimeout}
}

// Check runs every configured check, each bounded by the checker timeout.
func (c *Checker) Check(ctx context.Context) Report {
	return Report{
		Database: c.run(ctx, pingFn(c.db)),
		Cache:    c.run(ctx, pingFn(c.cache)),
		Policy:   c.run(ctx, policyFn(c.policy)),
	}
}

func (c *Checker) run(ctx context.Context, fn func(context.Context) error) string {
	if fn == nil {
		return StatusDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		return StatusDown
	}
	return StatusUp
}

func pingFn(p Pinger) func(context.Context) error {
	if p == nil {
		return nil
	}
	return p.PingContext
}

func policyFn(p PolicyChecker) func(context.Context) error {
	if p == nil {
		return nil
	}
	return p.HealthCheck
}
