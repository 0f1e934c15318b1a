package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"auth-session/backend/internal/security"
	"auth-session/backend/internal/user/domain"
)

// DefaultTTL is how long a user snapshot stays cached.
const DefaultTTL = 24 * time.Hour

// Entry is a cached user snapshot. RefreshTokenHash is the digest of the latest refresh
// token issued to the user, if any.
type Entry struct {
	domain.User
	RefreshTokenHash string `json:"refreshTokenHash,omitempty"`
}

// UserCache is an advisory cache of user snapshots keyed by id and by email.
// Lookups never call the directory, and store failures are logged and swallowed.
type UserCache struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger
}

// NewUserCache returns a UserCache over store. ttl <= 0 uses DefaultTTL.
func NewUserCache(store Store, ttl time.Duration, logger *slog.Logger) *UserCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UserCache{store: store, ttl: ttl, logger: logger}
}

func idKey(id string) string       { return "user:" + id }
func emailKey(email string) string { return "user:email:" + domain.NormalizeEmail(email) }

// GetByID returns the cached entry for id, or false on a miss.
func (c *UserCache) GetByID(ctx context.Context, id string) (*Entry, bool) {
	return c.get(ctx, idKey(id))
}

// GetByEmail returns the cached entry for email, or false on a miss.
func (c *UserCache) GetByEmail(ctx context.Context, email string) (*Entry, bool) {
	return c.get(ctx, emailKey(email))
}

func (c *UserCache) get(ctx context.Context, key string) (*Entry, bool) {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.WarnContext(ctx, "user cache read failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		c.logger.WarnContext(ctx, "user cache entry undecodable", "key", key, "error", err)
		return nil, false
	}
	return &e, true
}

// Set writes a snapshot of user under both its id and email keys, replacing prior entries.
// refreshToken may be empty; only its digest is stored. ttl <= 0 uses the cache TTL.
func (c *UserCache) Set(ctx context.Context, user domain.User, refreshToken string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	e := Entry{User: user}
	if refreshToken != "" {
		e.RefreshTokenHash = security.HashRefreshToken(refreshToken)
	}
	raw, err := json.Marshal(e)
	if err != nil {
		c.logger.WarnContext(ctx, "user cache encode failed", "user_id", user.ID, "error", err)
		return
	}
	if err := c.store.Set(ctx, idKey(user.ID), raw, ttl); err != nil {
		c.logger.WarnContext(ctx, "user cache write failed", "user_id", user.ID, "error", err)
		return
	}
	if user.Email == "" {
		return
	}
	if err := c.store.Set(ctx, emailKey(user.Email), raw, ttl); err != nil {
		c.logger.WarnContext(ctx, "user cache email index write failed", "user_id", user.ID, "error", err)
	}
}

// Invalidate removes the entry for id and its email index.
func (c *UserCache) Invalidate(ctx context.Context, id string) {
	keys := []string{idKey(id)}
	if e, ok := c.get(ctx, idKey(id)); ok && e.Email != "" {
		keys = append(keys, emailKey(e.Email))
	}
	if err := c.store.Del(ctx, keys...); err != nil {
		c.logger.WarnContext(ctx, "user cache invalidate failed", "user_id", id, "error", err)
	}
}
