package domain

import "time"

// Session is a server-side record binding a refresh token to a user and a client.
// RefreshTokenHash is empty while the session is pending: created but not yet
// patched with the refresh token minted for it.
type Session struct {
	ID               string
	UserID           string
	RefreshTokenHash string
	UserAgent        string
	IPAddress        string
	IsActive         bool
	ExpiresAt        time.Time
	CreatedAt        time.Time
	LastUsedAt       *time.Time
}

// IsExpired reports whether the session has reached its expiry at now.
func (s *Session) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// IsPending reports whether the session has no refresh token bound yet.
func (s *Session) IsPending() bool {
	return s.RefreshTokenHash == ""
}

// Usable reports whether the session can be used to refresh credentials at now.
func (s *Session) Usable(now time.Time) bool {
	return s.IsActive && !s.IsPending() && !s.IsExpired(now)
}

// Draft is the input for creating a session. Sessions are created active and pending.
type Draft struct {
	UserID    string
	UserAgent string
	IPAddress string
	ExpiresAt time.Time
}

// Patch is a partial update. Nil fields are left unchanged. RefreshToken is the raw
// token; only its digest is persisted. A non-nil ExpectRefreshToken makes the patch
// conditional on the session still being bound to that token.
type Patch struct {
	ExpectRefreshToken *string
	RefreshToken       *string
	IsActive           *bool
	LastUsedAt         *time.Time
	ExpiresAt          *time.Time
}
