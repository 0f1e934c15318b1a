package domain

import "time"

// AuditLog is a persisted auth event. UserID and SessionID are empty for anonymous failures.
type AuditLog struct {
	ID        string
	UserID    string
	SessionID string
	Action    string
	IP        string
	UserAgent string
	Metadata  string
	CreatedAt time.Time
}
