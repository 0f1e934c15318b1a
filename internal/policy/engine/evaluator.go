package engine

import (
	"context"

	userdomain "auth-session/backend/internal/user/domain"
)

// Actions checked by the admission policy.
const (
	ActionLogin       = "login"
	ActionGoogleLogin = "google_login"
	ActionRefresh     = "refresh"
)

// Evaluator decides whether a user may be issued (or keep refreshing) a session.
type Evaluator interface {
	// Admit reports whether user is allowed to perform action. A non-nil error means the
	// policy could not be evaluated; the returned decision is then the built-in fallback.
	Admit(ctx context.Context, user *userdomain.User, action string) (bool, error)
}
