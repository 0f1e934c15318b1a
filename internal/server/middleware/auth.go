package middleware

import (
	"net/http"
	"strings"

	"auth-session/backend/internal/security"
)

const bearerPrefix = "bearer "

// TokenVerifier validates an access token and returns its claims.
type TokenVerifier interface {
	VerifyToken(token string) (*security.AccessClaims, error)
}

// Authenticate validates the Bearer access token from the Authorization header and stores
// user_id, session_id and role in the request context.
//
// With required set, a missing or invalid token is answered with 401. Otherwise a missing
// token passes through without identity, and a present but invalid token is still rejected.
func Authenticate(tokens TokenVerifier, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			if token == "" {
				if required {
					writeError(w, http.StatusUnauthorized, "missing or invalid authorization")
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			claims, err := tokens.VerifyToken(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "missing or invalid authorization")
				return
			}
			ctx := WithIdentity(r.Context(), claims.Subject, claims.SessionID, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractBearer returns the Bearer token from the Authorization header, or "" if missing or malformed.
func extractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
