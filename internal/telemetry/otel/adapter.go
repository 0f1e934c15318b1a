package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"auth-session/backend/internal/telemetry"
	"auth-session/backend/internal/telemetry/domain"
)

// recordEmitter is the part of otellog.Logger used to emit records.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewEventEmitter returns an EventEmitter that sends auth events as OTel log records via the given LoggerProvider.
// If provider is nil, returns a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: provider.Logger("auth-session.events")}
}

// NewEventEmitterWithLogger returns an EventEmitter that emits through logger.
func NewEventEmitterWithLogger(logger recordEmitter) telemetry.EventEmitter {
	if logger == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: logger}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *domain.Event) error { return nil }

type otelEmitter struct {
	logger recordEmitter
}

// Emit converts the event to an OTel log record: the event type is the body, identifiers are attributes.
func (e *otelEmitter) Emit(ctx context.Context, event *domain.Event) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	if !event.OccurredAt.IsZero() {
		rec.SetTimestamp(event.OccurredAt)
	} else {
		rec.SetTimestamp(time.Now().UTC())
	}
	rec.SetBody(otellog.StringValue(event.Type))
	if event.Reason != "" {
		rec.SetSeverity(otellog.SeverityWarn)
	} else {
		rec.SetSeverity(otellog.SeverityInfo)
	}
	attrs := []struct{ k, v string }{
		{"event_type", event.Type},
		{"event_id", event.ID},
		{"user_id", event.UserID},
		{"session_id", event.SessionID},
		{"client_ip", event.IP},
		{"user_agent", event.UserAgent},
		{"reason", event.Reason},
		{"source", event.Source},
	}
	for _, a := range attrs {
		if a.v != "" {
			rec.AddAttributes(otellog.String(a.k, a.v))
		}
	}
	e.logger.Emit(ctx, rec)
	return nil
}
