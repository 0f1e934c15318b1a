// Package service implements the authentication use-cases: login, register, refresh, logout
// and Google federation. Every failure leaves as an *Error.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"auth-session/backend/internal/audit"
	"auth-session/backend/internal/oauth"
	"auth-session/backend/internal/policy/engine"
	"auth-session/backend/internal/ratelimit"
	"auth-session/backend/internal/security"
	sessiondomain "auth-session/backend/internal/session/domain"
	sessionservice "auth-session/backend/internal/session/service"
	"auth-session/backend/internal/user/cache"
	"auth-session/backend/internal/user/directory"
	userdomain "auth-session/backend/internal/user/domain"
)

// ClientInfo identifies the client a session is opened for.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// Sessions is the session lifecycle needed by the auth service.
type Sessions interface {
	Create(ctx context.Context, d sessiondomain.Draft) (*sessiondomain.Session, error)
	Update(ctx context.Context, id string, p sessiondomain.Patch) error
	FindByRefreshToken(ctx context.Context, token string) (*sessiondomain.Session, error)
	DeleteByID(ctx context.Context, id string) error
	DeleteByUserID(ctx context.Context, userID string) error
}

// UserCache is the advisory user cache. Its methods never fail the caller.
type UserCache interface {
	GetByID(ctx context.Context, id string) (*cache.Entry, bool)
	GetByEmail(ctx context.Context, email string) (*cache.Entry, bool)
	Set(ctx context.Context, user userdomain.User, refreshToken string, ttl time.Duration)
	Invalidate(ctx context.Context, id string)
}

// TokenIssuer mints credentials bound to a session.
type TokenIssuer interface {
	GenerateTokens(sub security.Subject, sessionID string) (security.Tokens, error)
	RefreshTTL() time.Duration
}

// AuthService orchestrates the rate limiter, user directory, user cache, session store and token issuer.
type AuthService struct {
	limiter   ratelimit.Limiter
	directory directory.Directory
	cache     UserCache
	sessions  Sessions
	tokens    TokenIssuer
	verifier  oauth.Verifier
	admission engine.Evaluator
	audit     audit.AuditLogger
	logger    *slog.Logger
	nowF      func() time.Time
}

// NewAuthService returns an AuthService with the given dependencies. verifier may be nil, in
// which case Google sign-in fails with ErrUpstream.
func NewAuthService(
	limiter ratelimit.Limiter,
	dir directory.Directory,
	userCache UserCache,
	sessions Sessions,
	tokens TokenIssuer,
	verifier oauth.Verifier,
	logger *slog.Logger,
) *AuthService {
	if verifier == nil {
		verifier = oauth.Disabled{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		limiter:   limiter,
		directory: dir,
		cache:     userCache,
		sessions:  sessions,
		tokens:    tokens,
		verifier:  verifier,
		logger:    logger,
		nowF:      time.Now,
	}
}

// SetAdmission installs the session admission policy. Without one, only active accounts are admitted.
func (s *AuthService) SetAdmission(e engine.Evaluator) { s.admission = e }

// SetAuditLogger installs the audit sink for auth outcomes.
func (s *AuthService) SetAuditLogger(l audit.AuditLogger) { s.audit = l }

// SetClock overrides the service clock. Intended for tests.
func (s *AuthService) SetClock(now func() time.Time) {
	if now != nil {
		s.nowF = now
	}
}

// Login authenticates email and password and opens a new session, replacing the user's existing ones.
//
// An unknown email and a wrong password take the same path: both consult the directory for the
// password, record a failed attempt and return ErrInvalidCredentials. The attempt counter is only
// cleared once the password has been accepted.
func (s *AuthService) Login(ctx context.Context, email, password string, client ClientInfo) (*security.Tokens, error) {
	email = userdomain.NormalizeEmail(email)
	if err := s.checkRateLimit(ctx, email); err != nil {
		s.logEvent(ctx, audit.ActionLoginFailure, "", "", client, "rate_limited")
		return nil, err
	}

	user, err := s.directory.FindByEmail(ctx, email)
	if err != nil {
		return nil, upstream("find user", err)
	}
	valid, err := s.directory.ValidateCredentials(ctx, email, password)
	if err != nil {
		return nil, upstream("validate credentials", err)
	}
	if user == nil || !valid {
		s.recordFailure(ctx, email)
		s.logEvent(ctx, audit.ActionLoginFailure, "", "", client, "invalid_credentials")
		return nil, ErrInvalidCredentials
	}
	s.clearRateLimit(ctx, email)

	if !s.admit(ctx, user, engine.ActionLogin) {
		s.logEvent(ctx, audit.ActionLoginFailure, user.ID, "", client, "account_inactive")
		return nil, ErrAccountInactive
	}

	tokens, sessionID, err := s.openSession(ctx, *user, client)
	if err != nil {
		return nil, err
	}
	s.logEvent(ctx, audit.ActionLoginSuccess, user.ID, sessionID, client, "")
	return tokens, nil
}

// RegisterInput is the account data supplied at registration.
type RegisterInput struct {
	FirstName   string
	LastName    string
	Email       string
	Password    string
	Phone       string
	DateOfBirth string
}

// Register creates an account in the directory and opens its first session.
func (s *AuthService) Register(ctx context.Context, in RegisterInput, client ClientInfo) (*security.Tokens, error) {
	user, err := s.createUser(ctx, userdomain.CreateUserInput{
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		Email:       userdomain.NormalizeEmail(in.Email),
		Password:    in.Password,
		Phone:       in.Phone,
		DateOfBirth: in.DateOfBirth,
	})
	if err != nil {
		return nil, err
	}
	tokens, sessionID, err := s.openSession(ctx, *user, client)
	if err != nil {
		return nil, err
	}
	s.logEvent(ctx, audit.ActionRegister, user.ID, sessionID, client, "")
	return tokens, nil
}

// Refresh exchanges a refresh token for a new token pair bound to the same session.
// The presented token stops working: the session now stores the digest of the new one,
// and its expiry slides to a full refresh lifetime from now. The rotation only applies while
// the session is still bound to the presented token, so a token is redeemed at most once.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, client ClientInfo) (*security.Tokens, error) {
	if !security.ValidRefreshTokenFormat(refreshToken) {
		return nil, ErrInvalidSession
	}
	sess, err := s.sessions.FindByRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, upstream("find session", err)
	}
	now := s.nowF().UTC()
	if sess == nil || !sess.Usable(now) {
		return nil, ErrInvalidSession
	}

	user, err := s.userByID(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil || !s.admit(ctx, user, engine.ActionRefresh) {
		return nil, ErrInvalidSession
	}

	tokens, err := s.tokens.GenerateTokens(subjectOf(*user), sess.ID)
	if err != nil {
		return nil, upstream("generate tokens", err)
	}
	expiresAt := now.Add(s.tokens.RefreshTTL())
	err = s.sessions.Update(ctx, sess.ID, sessiondomain.Patch{
		ExpectRefreshToken: &refreshToken,
		RefreshToken:       &tokens.RefreshToken,
		LastUsedAt:         &now,
		ExpiresAt:          &expiresAt,
	})
	if errors.Is(err, sessionservice.ErrNotFound) {
		// Rotated, swept or logged out concurrently.
		return nil, ErrInvalidSession
	}
	if err != nil {
		return nil, upstream("rotate session", err)
	}
	s.cache.Set(ctx, *user, tokens.RefreshToken, 0)
	s.logEvent(ctx, audit.ActionRefresh, user.ID, sess.ID, client, "")
	return &tokens, nil
}

// Logout ends the session bound to refreshToken and drops the user's cache entry.
// When sessionID is non-empty (taken from the caller's access token) it must name the same session.
func (s *AuthService) Logout(ctx context.Context, refreshToken, sessionID string, client ClientInfo) error {
	if refreshToken == "" {
		return ErrNotFound
	}
	sess, err := s.sessions.FindByRefreshToken(ctx, refreshToken)
	if err != nil {
		return upstream("find session", err)
	}
	if sess == nil {
		return ErrNotFound
	}
	if sessionID != "" && sessionID != sess.ID {
		return ErrInvalidSession
	}
	// By id: a concurrent refresh may already have rebound the session to a new token.
	if err := s.sessions.DeleteByID(ctx, sess.ID); err != nil {
		return upstream("delete session", err)
	}
	s.cache.Invalidate(ctx, sess.UserID)
	s.logEvent(ctx, audit.ActionLogout, sess.UserID, sess.ID, client, "")
	return nil
}

// openSession replaces the user's sessions with a new one and binds a fresh token pair to it:
// delete stale sessions, merge the cached profile, create a pending session, mint tokens,
// patch the session with the refresh token, then cache the user. If minting or patching fails
// the pending session is removed before returning.
func (s *AuthService) openSession(ctx context.Context, user userdomain.User, client ClientInfo) (*security.Tokens, string, error) {
	if err := s.sessions.DeleteByUserID(ctx, user.ID); err != nil {
		return nil, "", upstream("delete stale sessions", err)
	}
	if entry, ok := s.cache.GetByID(ctx, user.ID); ok {
		user = userdomain.Merge(user, entry.User)
	}

	sess, err := s.sessions.Create(ctx, sessiondomain.Draft{
		UserID:    user.ID,
		UserAgent: client.UserAgent,
		IPAddress: client.IPAddress,
		ExpiresAt: s.nowF().UTC().Add(s.tokens.RefreshTTL()),
	})
	if err != nil {
		return nil, "", upstream("create session", err)
	}

	tokens, err := s.tokens.GenerateTokens(subjectOf(user), sess.ID)
	if err != nil {
		s.abandon(ctx, sess.ID)
		return nil, "", upstream("generate tokens", err)
	}
	if err := s.sessions.Update(ctx, sess.ID, sessiondomain.Patch{RefreshToken: &tokens.RefreshToken}); err != nil {
		s.abandon(ctx, sess.ID)
		return nil, "", upstream("bind refresh token", err)
	}
	s.cache.Set(ctx, user, tokens.RefreshToken, 0)
	return &tokens, sess.ID, nil
}

// abandon removes a pending session. A failure here leaves the row to the sweeper.
func (s *AuthService) abandon(ctx context.Context, sessionID string) {
	if err := s.sessions.DeleteByID(ctx, sessionID); err != nil {
		s.logger.WarnContext(ctx, "pending session cleanup failed", "session_id", sessionID, "error", err)
	}
}

// createUser fails with ErrConflict when the email is taken, checked both before the call and by the directory.
func (s *AuthService) createUser(ctx context.Context, in userdomain.CreateUserInput) (*userdomain.User, error) {
	existing, err := s.directory.FindByEmail(ctx, in.Email)
	if err != nil {
		return nil, upstream("find user", err)
	}
	if existing != nil {
		return nil, ErrConflict
	}
	user, err := s.directory.CreateUser(ctx, in)
	if errors.Is(err, directory.ErrConflict) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, upstream("create user", err)
	}
	return user, nil
}

// userByID resolves a user from the cache, falling back to the directory.
func (s *AuthService) userByID(ctx context.Context, id string) (*userdomain.User, error) {
	if entry, ok := s.cache.GetByID(ctx, id); ok {
		u := entry.User
		return &u, nil
	}
	u, err := s.directory.FindByID(ctx, id)
	if err != nil {
		return nil, upstream("find user", err)
	}
	return u, nil
}

// userByEmail resolves a user from the cache, falling back to the directory.
func (s *AuthService) userByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	if entry, ok := s.cache.GetByEmail(ctx, email); ok {
		u := entry.User
		return &u, nil
	}
	u, err := s.directory.FindByEmail(ctx, email)
	if err != nil {
		return nil, upstream("find user", err)
	}
	return u, nil
}

func (s *AuthService) admit(ctx context.Context, user *userdomain.User, action string) bool {
	if s.admission == nil {
		return user.IsActive
	}
	ok, err := s.admission.Admit(ctx, user, action)
	if err != nil {
		s.logger.WarnContext(ctx, "admission policy error", "action", action, "user_id", user.ID, "error", err)
	}
	return ok
}

func (s *AuthService) checkRateLimit(ctx context.Context, key string) error {
	err := s.limiter.Check(ctx, key)
	if err == nil {
		return nil
	}
	var limited *ratelimit.LimitedError
	if errors.As(err, &limited) {
		return rateLimited(limited.RetryAfterSeconds())
	}
	return upstream("check rate limit", err)
}

func (s *AuthService) recordFailure(ctx context.Context, key string) {
	if err := s.limiter.RecordFailure(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "rate limiter record failed", "error", err)
	}
}

func (s *AuthService) clearRateLimit(ctx context.Context, key string) {
	if err := s.limiter.Clear(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "rate limiter clear failed", "error", err)
	}
}

func (s *AuthService) logEvent(ctx context.Context, action, userID, sessionID string, client ClientInfo, reason string) {
	if s.audit == nil {
		return
	}
	s.audit.LogEvent(ctx, audit.Event{
		Action:    action,
		UserID:    userID,
		SessionID: sessionID,
		IP:        client.IPAddress,
		UserAgent: client.UserAgent,
		Reason:    reason,
	})
}

func subjectOf(u userdomain.User) security.Subject {
	return security.Subject{UserID: u.ID, Email: u.Email, Role: u.Role}
}
