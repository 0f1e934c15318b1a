// Package service owns the session lifecycle: creation, patching, lookup, deletion and expiry sweeps.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"auth-session/backend/internal/security"
	"auth-session/backend/internal/session/domain"
	"auth-session/backend/internal/session/repository"
)

// DefaultPendingGrace is how long a session may stay without a refresh token before the sweep reclaims it.
const DefaultPendingGrace = 5 * time.Minute

var (
	// ErrInvalidSession is returned when a draft or patch would persist an already expired session.
	ErrInvalidSession = errors.New("invalid session")
	// ErrNotFound is returned when updating a session that does not exist or is no longer
	// bound to the expected refresh token.
	ErrNotFound = repository.ErrNotFound
)

// SessionService coordinates session state on top of a Repository. Refresh tokens enter and
// leave as raw strings; only their SHA-256 digests reach the repository.
type SessionService struct {
	repo         repository.Repository
	pendingGrace time.Duration
	logger       *slog.Logger
	nowF         func() time.Time
}

// NewSessionService returns a SessionService. pendingGrace <= 0 uses DefaultPendingGrace.
func NewSessionService(repo repository.Repository, pendingGrace time.Duration, logger *slog.Logger) *SessionService {
	if pendingGrace <= 0 {
		pendingGrace = DefaultPendingGrace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionService{repo: repo, pendingGrace: pendingGrace, logger: logger, nowF: time.Now}
}

// SetClock overrides the service clock. Intended for tests.
func (s *SessionService) SetClock(now func() time.Time) {
	if now != nil {
		s.nowF = now
	}
}

// Create persists a new active, pending session. Drafts expiring at or before now fail with ErrInvalidSession.
func (s *SessionService) Create(ctx context.Context, d domain.Draft) (*domain.Session, error) {
	now := s.nowF().UTC()
	if d.UserID == "" || !d.ExpiresAt.After(now) {
		return nil, ErrInvalidSession
	}
	sess := &domain.Session{
		ID:        uuid.New().String(),
		UserID:    d.UserID,
		UserAgent: d.UserAgent,
		IPAddress: d.IPAddress,
		IsActive:  true,
		ExpiresAt: d.ExpiresAt.UTC(),
		CreatedAt: now,
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Update applies p to the session with id. Returns ErrNotFound if the session does not exist
// or p.ExpectRefreshToken no longer matches, and ErrInvalidSession if p.ExpiresAt is not in the future.
func (s *SessionService) Update(ctx context.Context, id string, p domain.Patch) error {
	if p.ExpiresAt != nil && !p.ExpiresAt.After(s.nowF().UTC()) {
		return ErrInvalidSession
	}
	c := repository.Changes{
		IsActive:   p.IsActive,
		LastUsedAt: p.LastUsedAt,
		ExpiresAt:  p.ExpiresAt,
	}
	if p.RefreshToken != nil {
		h := security.HashRefreshToken(*p.RefreshToken)
		c.RefreshTokenHash = &h
	}
	if p.ExpectRefreshToken != nil {
		h := security.HashRefreshToken(*p.ExpectRefreshToken)
		c.ExpectRefreshTokenHash = &h
	}
	return s.repo.Update(ctx, id, c)
}

// FindByID returns the session with id, or nil.
func (s *SessionService) FindByID(ctx context.Context, id string) (*domain.Session, error) {
	return s.repo.GetByID(ctx, id)
}

// FindByUserID returns every session of userID, newest first.
func (s *SessionService) FindByUserID(ctx context.Context, userID string) ([]*domain.Session, error) {
	return s.repo.FindByUserID(ctx, userID)
}

// FindByRefreshToken returns the session bound to token, or nil.
func (s *SessionService) FindByRefreshToken(ctx context.Context, token string) (*domain.Session, error) {
	if token == "" {
		return nil, nil
	}
	return s.repo.FindByRefreshTokenHash(ctx, security.HashRefreshToken(token))
}

// FindAll returns a page of sessions, newest first.
func (s *SessionService) FindAll(ctx context.Context, limit, offset int32) ([]*domain.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.FindAll(ctx, limit, offset)
}

// Count returns the number of sessions for userID, or all sessions when userID is empty.
func (s *SessionService) Count(ctx context.Context, userID string) (int64, error) {
	return s.repo.Count(ctx, userID)
}

// Exists reports whether a session is bound to token.
func (s *SessionService) Exists(ctx context.Context, token string) (bool, error) {
	sess, err := s.FindByRefreshToken(ctx, token)
	return sess != nil, err
}

// DeleteByToken deletes the session bound to token. Deleting nothing is not an error.
func (s *SessionService) DeleteByToken(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	_, err := s.repo.DeleteByRefreshTokenHash(ctx, security.HashRefreshToken(token))
	return err
}

// DeleteByID deletes the session with id. Deleting nothing is not an error.
func (s *SessionService) DeleteByID(ctx context.Context, id string) error {
	_, err := s.repo.DeleteByID(ctx, id)
	return err
}

// DeleteByUserID deletes every session of userID. Deleting nothing is not an error.
func (s *SessionService) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := s.repo.DeleteByUserID(ctx, userID)
	return err
}

// DeleteExpiredSessions deletes sessions with expiresAt <= now and pending sessions older than
// the grace period. Returns the number of sessions removed.
func (s *SessionService) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	now := s.nowF().UTC()
	return s.repo.DeleteExpired(ctx, now, now.Add(-s.pendingGrace))
}
