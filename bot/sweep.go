package bot

import (
	"context"
	"log/slog"
	"time"

	"github.com/onnwee/pinvote/pin"
	"github.com/onnwee/pinvote/telemetry"
)

// Sweep drops every session older than the configured max age and returns how many it dropped.
// Expired sessions are not pinned and nobody is notified.
func (b *Bot) Sweep(ctx context.Context) int {
	now := b.opts.Now()
	expired := b.store.SweepExpired(now, b.opts.SessionMaxAge)
	for _, key := range expired {
		slog.Info("cleaned up expired voting session", slog.String("component", "sweep"), slog.String("channel", key.ChannelID), slog.String("trigger", key.MessageID))
		telemetry.IncCounter(telemetry.SessionsExpired)
		b.pins.Record(ctx, pin.Event{Ref: key, Outcome: pin.OutcomeExpired, Detail: "voting session expired", At: now})
	}
	telemetry.SetSessionsActive(b.store.Len())
	return len(expired)
}

// StartSweepJob runs Sweep every SweepInterval until ctx is cancelled. It blocks; run it on its own
// goroutine and wait for it on shutdown.
func (b *Bot) StartSweepJob(ctx context.Context) {
	interval := b.opts.SweepInterval
	slog.Info("session sweep job starting", slog.String("component", "sweep"), slog.Duration("interval", interval), slog.Duration("max_age", b.opts.SessionMaxAge))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("session sweep job stopped", slog.String("component", "sweep"))
			return
		case <-ticker.C:
			b.sweepOnce(ctx)
		}
	}
}

// sweepOnce keeps a panic in one pass from killing the loop.
func (b *Bot) sweepOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in session sweep", slog.String("component", "sweep"), slog.Any("panic", r))
		}
	}()
	if n := b.Sweep(ctx); n > 0 {
		slog.Info("session sweep complete", slog.String("component", "sweep"), slog.Int("expired", n), slog.Int("remaining", b.store.Len()))
	}
}
