package middleware

import "context"

type contextKey struct{ name string }

var (
	userIDKey    = contextKey{"user_id"}
	sessionIDKey = contextKey{"session_id"}
	roleKey      = contextKey{"role"}
)

// WithIdentity returns a context carrying the authenticated user_id, session_id and role.
// Handlers read them back with GetUserID, GetSessionID and GetRole.
func WithIdentity(ctx context.Context, userID, sessionID, role string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	ctx = context.WithValue(ctx, sessionIDKey, sessionID)
	ctx = context.WithValue(ctx, roleKey, role)
	return ctx
}

// GetUserID returns the user_id from context and true if set; otherwise "", false.
func GetUserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey).(string)
	return v, ok
}

// GetSessionID returns the session_id from context and true if set; otherwise "", false.
func GetSessionID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(sessionIDKey).(string)
	return v, ok
}

func GetRole(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(roleKey).(string)
	return v, ok
}
