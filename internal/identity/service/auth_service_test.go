package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"auth-session/backend/internal/audit"
	"auth-session/backend/internal/oauth"
	"auth-session/backend/internal/ratelimit"
	"auth-session/backend/internal/security"
	sessiondomain "auth-session/backend/internal/session/domain"
	sessionrepo "auth-session/backend/internal/session/repository"
	sessionservice "auth-session/backend/internal/session/service"
	"auth-session/backend/internal/user/cache"
	"auth-session/backend/internal/user/directory"
	userdomain "auth-session/backend/internal/user/domain"
)

var client = ClientInfo{IPAddress: "203.0.113.7", UserAgent: "test-agent/1.0"}

type recordingAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingAudit) LogEvent(ctx context.Context, e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingAudit) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Action
	}
	return out
}

func (r *recordingAudit) last() audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type fakeVerifier struct {
	claims *oauth.Claims
	err    error
}

func (f *fakeVerifier) Verify(ctx context.Context, idToken string) (*oauth.Claims, error) {
	if f.err != nil {
		return nil, f.err
	}
	c := *f.claims
	return &c, nil
}

type fixture struct {
	svc      *AuthService
	dir      *directory.MemoryDirectory
	cache    *cache.UserCache
	sessions *sessionservice.SessionService
	tokens   *security.TokenIssuer
	verifier *fakeVerifier
	audit    *recordingAudit
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		dir:      directory.NewMemoryDirectory(nil),
		cache:    cache.NewUserCache(cache.NewMemoryStore(), 0, nil),
		sessions: sessionservice.NewSessionService(sessionrepo.NewMemoryRepository(), 0, nil),
		tokens:   security.NewTestTokenIssuer(),
		verifier: &fakeVerifier{claims: &oauth.Claims{Email: "g@example.com", GivenName: "Gina", FamilyName: "Grey", Picture: "https://x/g.png"}},
		audit:    &recordingAudit{},
	}
	f.svc = NewAuthService(ratelimit.NewMemoryLimiter(ratelimit.Policy{}), f.dir, f.cache, f.sessions, f.tokens, f.verifier, nil)
	f.svc.SetAuditLogger(f.audit)
	return f
}

func (f *fixture) seedUser(t *testing.T, email, password string) *userdomain.User {
	t.Helper()
	u, err := f.dir.CreateUser(context.Background(), userdomain.CreateUserInput{
		FirstName: "Ana", LastName: "Lima", Email: email, Password: password,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func assertKind(t *testing.T, err error, want *Error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want kind %v", err, want.Kind)
	}
}

func TestLogin_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.seedUser(t, "a@b.com", "Secret123!")

	tokens, err := f.svc.Login(ctx, " A@B.com ", "Secret123!", client)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	claims, err := f.tokens.VerifyToken(tokens.AccessToken)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if claims.Subject != u.ID || claims.Email != "a@b.com" || claims.Role != directory.DefaultRole {
		t.Errorf("claims = %+v", claims)
	}
	if len(tokens.RefreshToken) != security.RefreshTokenLen || !security.ValidRefreshTokenFormat(tokens.RefreshToken) {
		t.Errorf("refresh token %q is not a %d-char hex digest", tokens.RefreshToken, security.RefreshTokenLen)
	}
	if tokens.ExpiresIn != 604800 {
		t.Errorf("ExpiresIn = %d, want 604800", tokens.ExpiresIn)
	}

	sess, err := f.sessions.FindByRefreshToken(ctx, tokens.RefreshToken)
	if err != nil || sess == nil {
		t.Fatalf("session for refresh token: %v, %v", sess, err)
	}
	if claims.SessionID != sess.ID {
		t.Errorf("sid = %q, want session %q", claims.SessionID, sess.ID)
	}
	if sess.UserAgent != client.UserAgent || sess.IPAddress != client.IPAddress {
		t.Errorf("session client = %q/%q", sess.UserAgent, sess.IPAddress)
	}

	entry, ok := f.cache.GetByID(ctx, u.ID)
	if !ok || entry.RefreshTokenHash != security.HashRefreshToken(tokens.RefreshToken) {
		t.Errorf("cache entry = %+v, %v", entry, ok)
	}
	if got := f.audit.last(); got.Action != audit.ActionLoginSuccess || got.SessionID != sess.ID {
		t.Errorf("audit = %+v", got)
	}
}

func TestLogin_UnknownEmailAndWrongPasswordAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(t, "a@b.com", "Secret123!")

	_, errUnknown := f.svc.Login(ctx, "nobody@b.com", "Secret123!", client)
	_, errWrong := f.svc.Login(ctx, "a@b.com", "wrong-password", client)
	assertKind(t, errUnknown, ErrInvalidCredentials)
	assertKind(t, errWrong, ErrInvalidCredentials)
	if errUnknown.Error() != errWrong.Error() {
		t.Errorf("errors differ: %q vs %q", errUnknown, errWrong)
	}

	// Both branches count towards the lockout.
	for i := 0; i < 4; i++ {
		_, _ = f.svc.Login(ctx, "nobody@b.com", "x", client)
		_, _ = f.svc.Login(ctx, "a@b.com", "x", client)
	}
	_, errUnknown = f.svc.Login(ctx, "nobody@b.com", "Secret123!", client)
	_, errWrong = f.svc.Login(ctx, "a@b.com", "Secret123!", client)
	assertKind(t, errUnknown, ErrRateLimited)
	assertKind(t, errWrong, ErrRateLimited)

	var e *Error
	if !errors.As(errWrong, &e) || e.RetryAfter <= 0 || e.RetryAfter > 900 {
		t.Errorf("RetryAfter = %+v", e)
	}
	if !strings.Contains(e.Message, "Please try again in") {
		t.Errorf("message = %q", e.Message)
	}
}

func TestLogin_SuccessClearsFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(t, "a@b.com", "Secret123!")

	for i := 0; i < 4; i++ {
		_, _ = f.svc.Login(ctx, "a@b.com", "wrong", client)
	}
	if _, err := f.svc.Login(ctx, "a@b.com", "Secret123!", client); err != nil {
		t.Fatalf("Login: %v", err)
	}
	// Counter was reset, so four more failures still do not lock the account.
	for i := 0; i < 4; i++ {
		_, _ = f.svc.Login(ctx, "a@b.com", "wrong", client)
	}
	if _, err := f.svc.Login(ctx, "a@b.com", "Secret123!", client); err != nil {
		t.Fatalf("Login after reset: %v", err)
	}
}

func TestLogin_InactiveAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.seedUser(t, "a@b.com", "Secret123!")
	f.dir.SetActive(u.ID, false)

	_, err := f.svc.Login(ctx, "a@b.com", "wrong", client)
	assertKind(t, err, ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, "a@b.com", "Secret123!", client)
	assertKind(t, err, ErrAccountInactive)

	if n, _ := f.sessions.Count(ctx, u.ID); n != 0 {
		t.Errorf("sessions = %d, want 0", n)
	}
}

func TestLogin_ReplacesExistingSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.seedUser(t, "a@b.com", "Secret123!")

	first, err := f.svc.Login(ctx, "a@b.com", "Secret123!", client)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := f.svc.Login(ctx, "a@b.com", "Secret123!", client); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if n, _ := f.sessions.Count(ctx, u.ID); n != 1 {
		t.Errorf("sessions = %d, want 1", n)
	}
	if ok, _ := f.sessions.Exists(ctx, first.RefreshToken); ok {
		t.Error("first session should have been replaced")
	}
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := RegisterInput{FirstName: "Ana", LastName: "Lima", Email: "a@b.com", Password: "Secret123!"}

	tokens, err := f.svc.Register(ctx, in, client)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if tokens.ExpiresIn != 604800 {
		t.Errorf("ExpiresIn = %d, want 604800", tokens.ExpiresIn)
	}
	sess, _ := f.sessions.FindByRefreshToken(ctx, tokens.RefreshToken)
	if sess == nil {
		t.Fatal("no session persisted")
	}
	want := time.Now().Add(7 * 24 * time.Hour)
	if d := sess.ExpiresAt.Sub(want); d < -time.Second || d > time.Second {
		t.Errorf("ExpiresAt = %v, want ~%v", sess.ExpiresAt, want)
	}

	_, err = f.svc.Register(ctx, in, client)
	assertKind(t, err, ErrConflict)
	if !strings.HasPrefix(err.(*Error).Message, "This email is already in use") {
		t.Errorf("message = %q", err.(*Error).Message)
	}
	if got := f.audit.actions(); len(got) != 1 || got[0] != audit.ActionRegister {
		t.Errorf("audit = %v", got)
	}
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(t, "a@b.com", "Secret123!")
	first, err := f.svc.Login(ctx, "a@b.com", "Secret123!", client)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	firstClaims, _ := f.tokens.VerifyToken(first.AccessToken)

	_, err = f.svc.Refresh(ctx, strings.Repeat("a", 64), client)
	assertKind(t, err, ErrInvalidSession)
	_, err = f.svc.Refresh(ctx, "not-a-token", client)
	assertKind(t, err, ErrInvalidSession)

	second, err := f.svc.Refresh(ctx, first.RefreshToken, client)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Error("refresh token was not rotated")
	}
	claims, err := f.tokens.VerifyToken(second.AccessToken)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if claims.SessionID != firstClaims.SessionID {
		t.Errorf("sid = %q, want %q", claims.SessionID, firstClaims.SessionID)
	}
	sess, _ := f.sessions.FindByID(ctx, claims.SessionID)
	if sess == nil || sess.LastUsedAt == nil {
		t.Fatalf("session lastUsedAt not set: %+v", sess)
	}

	// The rotated-out token no longer works.
	_, err = f.svc.Refresh(ctx, first.RefreshToken, client)
	assertKind(t, err, ErrInvalidSession)

	entry, _ := f.cache.GetByID(ctx, claims.Subject)
	if entry == nil || entry.RefreshTokenHash != security.HashRefreshToken(second.RefreshToken) {
		t.Errorf("cache not updated with rotated token: %+v", entry)
	}
}

func TestRefresh_InactiveUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.seedUser(t, "a@b.com", "Secret123!")
	tokens, err := f.svc.Login(ctx, "a@b.com", "Secret123!", client)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	f.dir.SetActive(u.ID, false)
	f.cache.Invalidate(ctx, u.ID)

	_, err = f.svc.Refresh(ctx, tokens.RefreshToken, client)
	assertKind(t, err, ErrInvalidSession)
}

func TestRefresh_ExpiredSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(t, "a@b.com", "Secret123!")
	tokens, err := f.svc.Login(ctx, "a@b.com", "Secret123!", client)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	f.svc.SetClock(func() time.Time { return time.Now().Add(8 * 24 * time.Hour) })

	_, err = f.svc.Refresh(ctx, tokens.RefreshToken, client)
	assertKind(t, err, ErrInvalidSession)
}

type denyAction string

func (d denyAction) Admit(ctx context.Context, u *userdomain.User, action string) (bool, error) {
	return action != string(d) && u.IsActive, nil
}

func TestRefresh_AdmissionDenied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(t, "a@b.com", "Secret123!")
	f.svc.SetAdmission(denyAction("refresh"))

	tokens, err := f.svc.Login(ctx, "a@b.com", "Secret123!", client)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	_, err = f.svc.Refresh(ctx, tokens.RefreshToken, client)
	assertKind(t, err, ErrInvalidSession)
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.seedUser(t, "a@b.com", "Secret123!")

	err := f.svc.Logout(ctx, strings.Repeat("b", 64), "", client)
	assertKind(t, err, ErrNotFound)

	tokens, err := f.svc.Login(ctx, "a@b.com", "Secret123!", client)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	err = f.svc.Logout(ctx, tokens.RefreshToken, "some-other-session", client)
	assertKind(t, err, ErrInvalidSession)

	claims, _ := f.tokens.VerifyToken(tokens.AccessToken)
	if err := f.svc.Logout(ctx, tokens.RefreshToken, claims.SessionID, client); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if ok, _ := f.sessions.Exists(ctx, tokens.RefreshToken); ok {
		t.Error("session still exists after logout")
	}
	if _, ok := f.cache.GetByID(ctx, u.ID); ok {
		t.Error("cache entry still present after logout")
	}
	if _, ok := f.cache.GetByEmail(ctx, "a@b.com"); ok {
		t.Error("cache email index still present after logout")
	}

	err = f.svc.Logout(ctx, tokens.RefreshToken, "", client)
	assertKind(t, err, ErrNotFound)
}

// lockstepSessions holds every FindByRefreshToken caller until all parties have read the session.
type lockstepSessions struct {
	*sessionservice.SessionService
	arrived sync.WaitGroup
}

func (l *lockstepSessions) FindByRefreshToken(ctx context.Context, token string) (*sessiondomain.Session, error) {
	sess, err := l.SessionService.FindByRefreshToken(ctx, token)
	l.arrived.Done()
	l.arrived.Wait()
	return sess, err
}

func TestRefresh_ConcurrentRedeemsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(t, "a@b.com", "Secret123!")
	first, err := f.svc.Login(ctx, "a@b.com", "Secret123!", client)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	const parties = 2
	sessions := &lockstepSessions{SessionService: f.sessions}
	sessions.arrived.Add(parties)
	svc := NewAuthService(ratelimit.NewMemoryLimiter(ratelimit.Policy{}), f.dir, f.cache, sessions, f.tokens, nil, nil)

	var wg sync.WaitGroup
	results := make([]*security.Tokens, parties)
	errs := make([]error, parties)
	for i := 0; i < parties; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Refresh(ctx, first.RefreshToken, client)
		}(i)
	}
	wg.Wait()

	var winner *security.Tokens
	for i := 0; i < parties; i++ {
		switch {
		case errs[i] == nil:
			if winner != nil {
				t.Fatal("one refresh token was redeemed twice")
			}
			winner = results[i]
		case !errors.Is(errs[i], ErrInvalidSession):
			t.Fatalf("losing refresh err = %v, want InvalidSession", errs[i])
		}
	}
	if winner == nil {
		t.Fatal("no refresh succeeded")
	}
	if ok, _ := f.sessions.Exists(ctx, winner.RefreshToken); !ok {
		t.Error("winning token pair is not bound to the session")
	}
}

// rotatingSessions runs afterFind once, right after the first session lookup.
type rotatingSessions struct {
	*sessionservice.SessionService
	afterFind func()
}

func (r *rotatingSessions) FindByRefreshToken(ctx context.Context, token string) (*sessiondomain.Session, error) {
	sess, err := r.SessionService.FindByRefreshToken(ctx, token)
	if hook := r.afterFind; hook != nil {
		r.afterFind = nil
		hook()
	}
	return sess, err
}

func TestLogout_SessionRotatedMidway(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.seedUser(t, "a@b.com", "Secret123!")
	tokens, err := f.svc.Login(ctx, "a@b.com", "Secret123!", client)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	var rotated *security.Tokens
	sessions := &rotatingSessions{SessionService: f.sessions}
	sessions.afterFind = func() {
		rotated, err = f.svc.Refresh(ctx, tokens.RefreshToken, client)
		if err != nil {
			t.Fatalf("Refresh: %v", err)
		}
	}
	svc := NewAuthService(ratelimit.NewMemoryLimiter(ratelimit.Policy{}), f.dir, f.cache, sessions, f.tokens, nil, nil)

	if err := svc.Logout(ctx, tokens.RefreshToken, "", client); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if n, _ := f.sessions.Count(ctx, u.ID); n != 0 {
		t.Errorf("sessions left = %d, want 0", n)
	}
	if ok, _ := f.sessions.Exists(ctx, rotated.RefreshToken); ok {
		t.Error("rotated token still alive after logout")
	}
}

type failingIssuer struct{ *security.TokenIssuer }

func (failingIssuer) GenerateTokens(security.Subject, string) (security.Tokens, error) {
	return security.Tokens{}, errors.New("signer unavailable")
}

func TestLogin_TokenFailureRemovesPendingSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.seedUser(t, "a@b.com", "Secret123!")
	svc := NewAuthService(ratelimit.NewMemoryLimiter(ratelimit.Policy{}), f.dir, f.cache, f.sessions,
		failingIssuer{f.tokens}, nil, nil)

	_, err := svc.Login(ctx, "a@b.com", "Secret123!", client)
	assertKind(t, err, ErrUpstream)
	if n, _ := f.sessions.Count(ctx, u.ID); n != 0 {
		t.Errorf("sessions = %d, want pending session removed", n)
	}
}

type downDirectory struct{ directory.Directory }

func (downDirectory) FindByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	return nil, &directory.StatusError{Op: "find by email", StatusCode: 503}
}

func TestLogin_DirectoryDown(t *testing.T) {
	f := newFixture(t)
	svc := NewAuthService(ratelimit.NewMemoryLimiter(ratelimit.Policy{}), downDirectory{f.dir}, f.cache, f.sessions, f.tokens, nil, nil)

	_, err := svc.Login(context.Background(), "a@b.com", "Secret123!", client)
	assertKind(t, err, ErrUpstream)
	if !errors.Is(err, directory.ErrUpstream) {
		t.Errorf("cause not preserved: %v", err)
	}
}

type brokenLimiter struct{}

func (brokenLimiter) Check(context.Context, string) error {
	return errors.New("redis: connection refused")
}
func (brokenLimiter) RecordFailure(context.Context, string) error { return nil }
func (brokenLimiter) Clear(context.Context, string) error         { return nil }

func TestLogin_LimiterUnavailable(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "a@b.com", "Secret123!")
	svc := NewAuthService(brokenLimiter{}, f.dir, f.cache, f.sessions, f.tokens, nil, nil)

	_, err := svc.Login(context.Background(), "a@b.com", "Secret123!", client)
	assertKind(t, err, ErrUpstream)
}

func TestError_IsMatchesKind(t *testing.T) {
	err := rateLimited(42)
	if !errors.Is(err, ErrRateLimited) {
		t.Error("rateLimited should match ErrRateLimited")
	}
	if errors.Is(err, ErrConflict) {
		t.Error("rateLimited should not match ErrConflict")
	}
	up := upstream("op", directory.ErrUpstream)
	if !errors.Is(up, ErrUpstream) || !errors.Is(up, directory.ErrUpstream) {
		t.Errorf("upstream error chain broken: %v", up)
	}
	if KindNoAccount.String() != "no_account" {
		t.Errorf("KindNoAccount = %q", KindNoAccount.String())
	}
}
