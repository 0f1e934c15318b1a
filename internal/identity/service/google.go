package service

import (
	"context"
	"errors"

	"auth-session/backend/internal/audit"
	"auth-session/backend/internal/oauth"
	"auth-session/backend/internal/policy/engine"
	"auth-session/backend/internal/security"
	userdomain "auth-session/backend/internal/user/domain"
)

// SignupResult is the outcome of GoogleSignup: either *SignedUp or *NeedsProfileCompletion.
type SignupResult interface {
	isSignupResult()
}

// SignedUp carries the credentials of a newly created Google account.
type SignedUp struct {
	Tokens security.Tokens
}

// NeedsProfileCompletion means no account exists and no password was supplied. Nothing was
// created; the client should collect a password and retry. The fields come from the Google token.
type NeedsProfileCompletion struct {
	Email     string
	FirstName string
	LastName  string
	Picture   string
}

func (*SignedUp) isSignupResult()               {}
func (*NeedsProfileCompletion) isSignupResult() {}

// GoogleLogin opens a session for the existing account matching the Google token's email.
func (s *AuthService) GoogleLogin(ctx context.Context, idToken string, client ClientInfo) (*security.Tokens, error) {
	claims, err := s.verify(ctx, idToken)
	if err != nil {
		return nil, err
	}
	return s.googleLogin(ctx, claims, client)
}

// GoogleRegister creates an account for the Google token's email with a generated password
// and opens its first session. Fails with ErrConflict if the email is taken.
func (s *AuthService) GoogleRegister(ctx context.Context, idToken string, client ClientInfo) (*security.Tokens, error) {
	claims, err := s.verify(ctx, idToken)
	if err != nil {
		return nil, err
	}
	return s.googleRegister(ctx, claims, "", client)
}

// GoogleSignup creates an account with the supplied password. With an empty password nothing is
// created and the result is *NeedsProfileCompletion.
func (s *AuthService) GoogleSignup(ctx context.Context, idToken, password string, client ClientInfo) (SignupResult, error) {
	claims, err := s.verify(ctx, idToken)
	if err != nil {
		return nil, err
	}
	email := userdomain.NormalizeEmail(claims.Email)
	existing, err := s.userByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrConflict
	}
	if password == "" {
		return &NeedsProfileCompletion{
			Email:     email,
			FirstName: claims.GivenName,
			LastName:  claims.FamilyName,
			Picture:   claims.Picture,
		}, nil
	}
	tokens, err := s.googleRegister(ctx, claims, password, client)
	if err != nil {
		return nil, err
	}
	return &SignedUp{Tokens: *tokens}, nil
}

// GoogleCallback logs in with the Google token, creating the account first when none exists.
// registered reports whether an account was created.
func (s *AuthService) GoogleCallback(ctx context.Context, idToken string, client ClientInfo) (tokens *security.Tokens, registered bool, err error) {
	claims, err := s.verify(ctx, idToken)
	if err != nil {
		return nil, false, err
	}
	tokens, err = s.googleLogin(ctx, claims, client)
	if errors.Is(err, ErrNoAccount) {
		tokens, err = s.googleRegister(ctx, claims, "", client)
		return tokens, err == nil, err
	}
	return tokens, false, err
}

func (s *AuthService) googleLogin(ctx context.Context, claims *oauth.Claims, client ClientInfo) (*security.Tokens, error) {
	user, err := s.userByEmail(ctx, userdomain.NormalizeEmail(claims.Email))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNoAccount
	}
	if !s.admit(ctx, user, engine.ActionGoogleLogin) {
		s.logEvent(ctx, audit.ActionLoginFailure, user.ID, "", client, "account_inactive")
		return nil, ErrAccountInactive
	}
	tokens, sessionID, err := s.openSession(ctx, *user, client)
	if err != nil {
		return nil, err
	}
	s.logEvent(ctx, audit.ActionGoogleLogin, user.ID, sessionID, client, "")
	return tokens, nil
}

// googleRegister creates the account; an empty password is replaced by a random one.
func (s *AuthService) googleRegister(ctx context.Context, claims *oauth.Claims, password string, client ClientInfo) (*security.Tokens, error) {
	if password == "" {
		generated, err := security.GeneratePassword(security.DefaultGeneratedPasswordLen)
		if err != nil {
			return nil, upstream("generate password", err)
		}
		password = generated
	}
	user, err := s.createUser(ctx, userdomain.CreateUserInput{
		FirstName: claims.GivenName,
		LastName:  claims.FamilyName,
		Email:     userdomain.NormalizeEmail(claims.Email),
		Password:  password,
		Avatar:    claims.Picture,
		Provider:  userdomain.ProviderGoogle,
	})
	if err != nil {
		return nil, err
	}
	tokens, sessionID, err := s.openSession(ctx, *user, client)
	if err != nil {
		return nil, err
	}
	s.logEvent(ctx, audit.ActionGoogleRegister, user.ID, sessionID, client, "")
	return tokens, nil
}

func (s *AuthService) verify(ctx context.Context, idToken string) (*oauth.Claims, error) {
	claims, err := s.verifier.Verify(ctx, idToken)
	if errors.Is(err, oauth.ErrInvalidToken) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, upstream("verify google token", err)
	}
	if claims == nil || claims.Email == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
