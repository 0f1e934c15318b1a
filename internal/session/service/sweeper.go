package service

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is how often the sweeper runs when no interval is configured.
const DefaultSweepInterval = 10 * time.Second

// expiredDeleter is the part of SessionService the sweeper needs.
type expiredDeleter interface {
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

// Sweeper periodically deletes expired and abandoned sessions.
type Sweeper struct {
	sessions expiredDeleter
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper returns a Sweeper. interval <= 0 uses DefaultSweepInterval.
func NewSweeper(sessions expiredDeleter, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{sessions: sessions, interval: interval, logger: logger}
}

// Run sweeps once immediately and then every interval until ctx is done.
func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		w.SweepOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce runs a single sweep. Failures are logged; the next tick retries.
func (w *Sweeper) SweepOnce(ctx context.Context) {
	n, err := w.sessions.DeleteExpiredSessions(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "session sweep failed", "error", err)
		}
		return
	}
	if n > 0 {
		w.logger.InfoContext(ctx, "expired sessions deleted", "count", n)
	}
}
