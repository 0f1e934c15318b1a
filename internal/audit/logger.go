// Package audit records auth outcomes to the audit log and publishes them to event sinks.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"auth-session/backend/internal/audit/domain"
	auditrepo "auth-session/backend/internal/audit/repository"
	"auth-session/backend/internal/telemetry"
	telemetrydomain "auth-session/backend/internal/telemetry/domain"
)

// Audited actions.
const (
	ActionLoginSuccess   = "login_success"
	ActionLoginFailure   = "login_failure"
	ActionRegister       = "register"
	ActionRefresh        = "refresh"
	ActionLogout         = "logout"
	ActionGoogleLogin    = "google_login"
	ActionGoogleRegister = "google_register"
)

// EventSource is stamped on every published event.
const EventSource = "auth-session"

// Event is one auth outcome. Reason is set for failures.
type Event struct {
	Action    string
	UserID    string
	SessionID string
	IP        string
	UserAgent string
	Reason    string
}

// AuditLogger writes a single audit event. LogEvent is best-effort: failures are logged and do not
// affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, e Event)
}

// Logger implements AuditLogger using the audit repository and an optional event emitter.
type Logger struct {
	repo    auditrepo.Repository
	emitter telemetry.EventEmitter
	logger  *slog.Logger
	nowF    func() time.Time
}

// NewLogger returns a Logger that persists to repo and publishes to emitter. Either may be nil.
func NewLogger(repo auditrepo.Repository, emitter telemetry.EventEmitter, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{repo: repo, emitter: emitter, logger: logger, nowF: time.Now}
}

// LogEvent writes one audit log entry synchronously and publishes it asynchronously.
func (l *Logger) LogEvent(ctx context.Context, e Event) {
	now := l.nowF().UTC()
	id := uuid.New().String()
	ip := e.IP
	if ip == "" {
		ip = "unknown"
	}
	if l.repo != nil {
		entry := &domain.AuditLog{
			ID:        id,
			UserID:    e.UserID,
			SessionID: e.SessionID,
			Action:    e.Action,
			IP:        ip,
			UserAgent: e.UserAgent,
			Metadata:  e.Reason,
			CreatedAt: now,
		}
		if err := l.repo.Create(ctx, entry); err != nil {
			l.logger.WarnContext(ctx, "audit: failed to log event", "action", e.Action, "error", err)
		}
	}
	telemetry.EmitAsync(l.emitter, ctx, &telemetrydomain.Event{
		ID:         id,
		Type:       e.Action,
		UserID:     e.UserID,
		SessionID:  e.SessionID,
		IP:         ip,
		UserAgent:  e.UserAgent,
		Reason:     e.Reason,
		Source:     EventSource,
		OccurredAt: now,
	})
}
