package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultAccessTTL is the access token lifetime when none is configured.
	DefaultAccessTTL = 15 * time.Minute
	// DefaultRefreshTTL is the refresh token lifetime when none is configured.
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

var (
	// ErrInvalidToken is returned when a token is malformed or invalid.
	ErrInvalidToken = errors.New("invalid token")
)

// AccessClaims holds JWT claims for the access token: sub, email, role, sid, iat, exp.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email     string `json:"email"`
	Role      string `json:"role,omitempty"`
	SessionID string `json:"sid"`
}

// Subject is the identity an access token is minted for.
type Subject struct {
	UserID string
	Email  string
	Role   string
}

// AccessPayload is the claim set signed into an access token.
type AccessPayload struct {
	Subject
	SessionID string
}

// Tokens is the credential pair returned to clients. ExpiresIn is the number of
// seconds until the refresh token expires.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// SigningKeys selects the JWT algorithm and the keys used to sign and verify.
type SigningKeys struct {
	Method    jwt.SigningMethod
	SignKey   any
	VerifyKey any
}

// HMACKeys returns HS256 signing keys for secret.
func HMACKeys(secret string) (SigningKeys, error) {
	if secret == "" {
		return SigningKeys{}, ErrInvalidKey
	}
	k := []byte(secret)
	return SigningKeys{Method: jwt.SigningMethodHS256, SignKey: k, VerifyKey: k}, nil
}

// KeyPairKeys returns RS256 or ES256 signing keys depending on the private key type.
func KeyPairKeys(privateKey crypto.Signer, publicKey crypto.PublicKey) (SigningKeys, error) {
	if privateKey == nil || publicKey == nil {
		return SigningKeys{}, ErrInvalidKey
	}
	var method jwt.SigningMethod
	switch privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return SigningKeys{}, ErrInvalidKey
	}
	if KeyAlg(publicKey) != method.Alg() {
		return SigningKeys{}, ErrInvalidKey
	}
	return SigningKeys{Method: method, SignKey: privateKey, VerifyKey: publicKey}, nil
}

// TokenIssuer mints signed access tokens and opaque refresh tokens, and verifies access tokens.
type TokenIssuer struct {
	keys       SigningKeys
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	nowF       func() time.Time
}

// NewTokenIssuer returns a TokenIssuer. issuer and audience are optional; when set they are
// stamped on access tokens and enforced on verification. Non-positive TTLs fall back to the defaults.
func NewTokenIssuer(keys SigningKeys, issuer, audience string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	return &TokenIssuer{
		keys:       keys,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		nowF:       time.Now,
	}
}

// SetClock overrides the clock used for iat/exp. Intended for tests.
func (p *TokenIssuer) SetClock(now func() time.Time) {
	if now != nil {
		p.nowF = now
	}
}

// RefreshTTL returns the configured refresh token lifetime.
func (p *TokenIssuer) RefreshTTL() time.Duration { return p.refreshTTL }

// SignAccessToken signs payload with iat=now and exp=now+ttl. ttl <= 0 uses the configured access TTL.
func (p *TokenIssuer) SignAccessToken(payload AccessPayload, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = p.accessTTL
	}
	now := p.nowF().UTC()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   payload.UserID,
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:     payload.Email,
		Role:      payload.Role,
		SessionID: payload.SessionID,
	}
	if p.audience != "" {
		claims.Audience = jwt.ClaimStrings{p.audience}
	}
	t := jwt.NewWithClaims(p.keys.Method, claims)
	return t.SignedString(p.keys.SignKey)
}

// SignRefreshToken returns an opaque refresh token. It carries no claims; ttl is
// returned as an absolute expiry for the caller to persist. ttl <= 0 uses the configured refresh TTL.
func (p *TokenIssuer) SignRefreshToken(ttl time.Duration) (token string, expiresAt time.Time, err error) {
	if ttl <= 0 {
		ttl = p.refreshTTL
	}
	token, err = NewRefreshToken()
	if err != nil {
		return "", time.Time{}, err
	}
	return token, p.nowF().UTC().Add(ttl), nil
}

// GenerateTokens mints an access token for sub bound to sessionID and a fresh refresh token.
func (p *TokenIssuer) GenerateTokens(sub Subject, sessionID string) (Tokens, error) {
	access, err := p.SignAccessToken(AccessPayload{Subject: sub, SessionID: sessionID}, p.accessTTL)
	if err != nil {
		return Tokens{}, err
	}
	refresh, _, err := p.SignRefreshToken(p.refreshTTL)
	if err != nil {
		return Tokens{}, err
	}
	return Tokens{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(p.refreshTTL / time.Second),
	}, nil
}

// VerifyToken parses and validates an access token (signature, exp, and iss/aud when configured).
func (p *TokenIssuer) VerifyToken(tokenString string) (*AccessClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{p.keys.Method.Alg()}),
		jwt.WithTimeFunc(p.nowF),
		jwt.WithExpirationRequired(),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}
	if p.audience != "" {
		opts = append(opts, jwt.WithAudience(p.audience))
	}
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(*jwt.Token) (interface{}, error) {
		return p.keys.VerifyKey, nil
	}, opts...)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid || claims.Subject == "" || claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// DecodeToken parses an access token's claims without verifying the signature or expiry.
func (p *TokenIssuer) DecodeToken(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
