package telemetry

import (
	"context"
	"log/slog"
	"time"

	"auth-session/backend/internal/telemetry/domain"
)

// emitTimeout is the max time allowed for a single async emit. Used by EmitAsync and by ShutdownDrainDuration.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait after the servers stop before shutting down OTel providers
// and the Kafka writer, so in-flight async emits have time to complete. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// EmitAsync runs Emit in a goroutine with a short timeout so the caller is not blocked.
//
// emitter and event may be nil; EmitAsync returns immediately without starting a goroutine.
// The goroutine uses a context detached from ctx's cancellation (values are kept) with emitTimeout,
// so a finished request does not abort an in-flight emit.
func EmitAsync(emitter EventEmitter, ctx context.Context, event *domain.Event) {
	if emitter == nil || event == nil {
		return
	}
	base := context.WithoutCancel(ctx)
	go func() {
		emitCtx, cancel := context.WithTimeout(base, emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil {
			slog.Default().Warn("telemetry: async emit failed", "event", event.Type, "error", err)
		}
	}()
}
