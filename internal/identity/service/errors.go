package service

import (
	"fmt"
	"strconv"
)

// Kind classifies a use-case failure. The HTTP layer maps kinds to status codes.
type Kind int

const (
	KindInvalidCredentials Kind = iota + 1
	KindInvalidSession
	KindAccountInactive
	KindNoAccount
	KindInvalidToken
	KindConflict
	KindRateLimited
	KindNotFound
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindInvalidSession:
		return "invalid_session"
	case KindAccountInactive:
		return "account_inactive"
	case KindNoAccount:
		return "no_account"
	case KindInvalidToken:
		return "invalid_token"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate_limited"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream_error"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Error is the failure returned by every use-case. Message is safe to show to clients.
// RetryAfter is set (in seconds) for KindRateLimited. Err is the internal cause, if any.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter int64
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrConflict) works for every conflict.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is; their messages are the ones returned to clients.
var (
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials, Message: "Invalid credentials"}
	ErrInvalidSession     = &Error{Kind: KindInvalidSession, Message: "Invalid or expired session."}
	ErrAccountInactive    = &Error{Kind: KindAccountInactive, Message: "Your account is not active."}
	ErrNoAccount          = &Error{Kind: KindNoAccount, Message: "No account found with this email. Please register first."}
	ErrInvalidToken       = &Error{Kind: KindInvalidToken, Message: "Invalid Google token"}
	ErrConflict           = &Error{Kind: KindConflict, Message: "This email is already in use. Try to login instead."}
	ErrRateLimited        = &Error{Kind: KindRateLimited, Message: "Too many login attempts."}
	ErrNotFound           = &Error{Kind: KindNotFound, Message: "Session not found"}
	ErrUpstream           = &Error{Kind: KindUpstream, Message: "Upstream service unavailable"}
)

func rateLimited(retryAfter int64) *Error {
	return &Error{
		Kind:       KindRateLimited,
		Message:    fmt.Sprintf("Too many login attempts. Please try again in %d seconds.", retryAfter),
		RetryAfter: retryAfter,
	}
}

func upstream(op string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: ErrUpstream.Message, Err: fmt.Errorf("%s: %w", op, err)}
}
