package repository

import (
	"context"
	"errors"
	"time"

	"auth-session/backend/internal/session/domain"
)

// ErrNotFound is returned by Update when no session has the given id, or its digest no
// longer matches Changes.ExpectRefreshTokenHash.
var ErrNotFound = errors.New("session not found")

// Changes is a partial update of a stored session. Nil fields are left unchanged.
// When ExpectRefreshTokenHash is set the update only applies if the stored digest still equals it.
type Changes struct {
	ExpectRefreshTokenHash *string
	RefreshTokenHash       *string
	IsActive               *bool
	LastUsedAt             *time.Time
	ExpiresAt              *time.Time
}

// Repository defines persistence for sessions. Get/Find methods return (nil, nil) when
// nothing matches. Deletes report how many rows they removed and never fail on zero.
type Repository interface {
	Create(ctx context.Context, s *domain.Session) error
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	FindByUserID(ctx context.Context, userID string) ([]*domain.Session, error)
	FindByRefreshTokenHash(ctx context.Context, hash string) (*domain.Session, error)
	// FindAll lists sessions newest first.
	FindAll(ctx context.Context, limit, offset int32) ([]*domain.Session, error)
	// Count counts sessions for userID, or all sessions when userID is empty.
	Count(ctx context.Context, userID string) (int64, error)
	Update(ctx context.Context, id string, c Changes) error
	DeleteByID(ctx context.Context, id string) (int64, error)
	DeleteByRefreshTokenHash(ctx context.Context, hash string) (int64, error)
	DeleteByUserID(ctx context.Context, userID string) (int64, error)
	// DeleteExpired removes sessions with expires_at <= now, and pending sessions
	// (no refresh token) created at or before pendingBefore.
	DeleteExpired(ctx context.Context, now, pendingBefore time.Time) (int64, error)
}
