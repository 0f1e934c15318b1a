package domain

import "time"

// Event is an auth outcome published to event sinks. It never carries credentials.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	UserID     string    `json:"userId,omitempty"`
	SessionID  string    `json:"sessionId,omitempty"`
	IP         string    `json:"ip,omitempty"`
	UserAgent  string    `json:"userAgent,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Source     string    `json:"source"`
	OccurredAt time.Time `json:"occurredAt"`
}
