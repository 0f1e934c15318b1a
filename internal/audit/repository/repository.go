package repository

import (
	"context"

	"auth-session/backend/internal/audit/domain"
)

// Repository persists audit logs. The log is append-only from this service.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
}
