package oauth

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/api/idtoken"
	"google.golang.org/api/option"
)

// tokenValidator is satisfied by *idtoken.Validator.
type tokenValidator interface {
	Validate(ctx context.Context, idToken, audience string) (*idtoken.Payload, error)
}

// GoogleVerifier validates Google ID tokens against the configured OAuth client id.
type GoogleVerifier struct {
	validator tokenValidator
	audience  string
	timeout   time.Duration
}

// NewGoogleVerifier returns a verifier for tokens issued to clientID. Each verification,
// including fetching Google's signing certificates, is bounded by timeout (default 5s).
func NewGoogleVerifier(ctx context.Context, clientID string, timeout time.Duration) (*GoogleVerifier, error) {
	httpClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	v, err := idtoken.NewValidator(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, err
	}
	return newGoogleVerifier(v, clientID, timeout), nil
}

func newGoogleVerifier(v tokenValidator, clientID string, timeout time.Duration) *GoogleVerifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &GoogleVerifier{validator: v, audience: clientID, timeout: timeout}
}

// Verify implements Verifier.
func (g *GoogleVerifier) Verify(ctx context.Context, idToken string) (*Claims, error) {
	if strings.TrimSpace(idToken) == "" {
		return nil, ErrInvalidToken
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	payload, err := g.validator.Validate(ctx, idToken, g.audience)
	if err != nil {
		if isTransportError(ctx, err) {
			return nil, errors.Join(ErrUpstream, err)
		}
		return nil, ErrInvalidToken
	}
	c := &Claims{
		Subject:    payload.Subject,
		Email:      claimString(payload.Claims, "email"),
		GivenName:  claimString(payload.Claims, "given_name"),
		FamilyName: claimString(payload.Claims, "family_name"),
		Picture:    claimString(payload.Claims, "picture"),
	}
	if c.Email == "" {
		return nil, ErrInvalidToken
	}
	if verified, ok := payload.Claims["email_verified"].(bool); ok && !verified {
		return nil, ErrInvalidToken
	}
	return c, nil
}

func isTransportError(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func claimString(claims map[string]interface{}, key string) string {
	s, _ := claims[key].(string)
	return s
}
