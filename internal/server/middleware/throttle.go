package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleBucketTTL is how long an unused per-IP bucket is kept before pruning.
const idleBucketTTL = 10 * time.Minute

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Throttler limits each client IP to limit requests per window using a token bucket
// refilled at limit/window with a burst of limit.
type Throttler struct {
	limit  int
	window time.Duration

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastPrune time.Time
	nowF      func() time.Time
}

// NewThrottler returns a Throttler. A non-positive limit or window disables throttling.
func NewThrottler(limit int, window time.Duration) *Throttler {
	return &Throttler{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*bucket),
		nowF:    time.Now,
	}
}

func (t *Throttler) enabled() bool {
	return t != nil && t.limit > 0 && t.window > 0
}

// Allow reports whether a request from ip may proceed now.
func (t *Throttler) Allow(ip string) bool {
	if !t.enabled() {
		return true
	}
	if ip == "" {
		ip = "unknown"
	}
	now := t.nowF()

	t.mu.Lock()
	defer t.mu.Unlock()
	if now.Sub(t.lastPrune) > idleBucketTTL {
		for k, b := range t.buckets {
			if now.Sub(b.lastSeen) > idleBucketTTL {
				delete(t.buckets, k)
			}
		}
		t.lastPrune = now
	}
	b, ok := t.buckets[ip]
	if !ok {
		every := rate.Every(t.window / time.Duration(t.limit))
		b = &bucket{lim: rate.NewLimiter(every, t.limit)}
		t.buckets[ip] = b
	}
	b.lastSeen = now
	return b.lim.AllowN(now, 1)
}

// Middleware answers 429 with Retry-After once a client IP exceeds its budget.
func (t *Throttler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !t.Allow(ClientIP(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(int(t.window.Seconds())))
			writeError(w, http.StatusTooManyRequests, "ThrottlerException: Too Many Requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
