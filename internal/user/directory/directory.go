// Package directory is the client side of the remote user directory service.
package directory

import (
	"context"
	"errors"
	"fmt"

	"auth-session/backend/internal/user/domain"
)

var (
	// ErrUpstream matches every failure talking to the directory, including timeouts.
	ErrUpstream = errors.New("user directory unavailable")
	// ErrConflict is returned by CreateUser when the email is already registered.
	ErrConflict = errors.New("user already exists")
)

// Directory is the user directory service. Find methods return (nil, nil) when the user does not exist.
type Directory interface {
	CreateUser(ctx context.Context, in domain.CreateUserInput) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	// ValidateCredentials reports whether password matches the account for email.
	// An unknown email is reported as false, not as an error.
	ValidateCredentials(ctx context.Context, email, password string) (bool, error)
}

// StatusError is an unexpected HTTP status from the directory. It matches ErrUpstream.
type StatusError struct {
	Op         string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("directory: %s returned status %d", e.Op, e.StatusCode)
}

func (e *StatusError) Is(target error) bool { return target == ErrUpstream }

// upstreamError wraps a transport failure (including deadline exceeded) so it matches ErrUpstream
// while keeping the cause inspectable.
type upstreamError struct {
	op  string
	err error
}

func (e *upstreamError) Error() string { return "directory: " + e.op + ": " + e.err.Error() }

func (e *upstreamError) Unwrap() []error { return []error{ErrUpstream, e.err} }
