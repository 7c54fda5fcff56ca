// Package pin performs the externally visible "pin a message" action behind a per-channel cooldown.
//
// Executor.Pin never retries: a cooldown denial returns ErrRateLimited, a platform failure returns
// an *Error carrying the classified cause, and the caller decides what to do with either.
package pin

import (
	"context"
	"log/slog"
	"time"

	"github.com/onnwee/pinvote/telemetry"
	"github.com/onnwee/pinvote/vote"
)

// Pin outcomes as recorded in metrics and history.
const (
	OutcomePinned      = "pinned"
	OutcomeRateLimited = "rate_limited"
	OutcomeFailed      = "failed"
	OutcomeExpired     = "expired"
)

// Pinner is the platform side effect.
type Pinner interface {
	Pin(ctx context.Context, ref vote.MessageRef) error
}

// Event is one pin outcome handed to a Recorder.
type Event struct {
	Ref     vote.MessageRef
	Outcome string
	Detail  string
	At      time.Time
}

// Recorder keeps a history of pin outcomes.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Executor pins messages through a Pinner, gated by a Cooldown.
type Executor struct {
	pinner   Pinner
	cooldown *Cooldown
	recorder Recorder
	now      func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithRecorder attaches a pin history.
func WithRecorder(r Recorder) Option { return func(e *Executor) { e.recorder = r } }

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(e *Executor) { e.now = now } }

// NewExecutor returns an Executor. A nil cooldown gets DefaultCooldown.
func NewExecutor(p Pinner, cd *Cooldown, opts ...Option) *Executor {
	if cd == nil {
		cd = NewCooldown(DefaultCooldown)
	}
	e := &Executor{pinner: p, cooldown: cd, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Pin pins target unless the channel is cooling down.
func (e *Executor) Pin(ctx context.Context, target vote.Target) error {
	ref := target.Ref
	ctx, span := telemetry.StartSpan(ctx, "pin.execute", telemetry.ChannelAttr(ref.ChannelID), telemetry.MessageAttr(ref.MessageID))
	defer span.End()
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "pin"), slog.String("channel", ref.ChannelID), slog.String("message", ref.MessageID))

	now := e.now()
	if !e.cooldown.TryAcquire(ref.ChannelID, now) {
		log.Info("pin rate limited", slog.Duration("retry_in", e.cooldown.Remaining(ref.ChannelID, now)))
		span.SetAttributes(telemetry.OutcomeAttr(OutcomeRateLimited))
		e.finish(ctx, Event{Ref: ref, Outcome: OutcomeRateLimited})
		return ErrRateLimited
	}

	var err error
	telemetry.TimeFunc(telemetry.PinDuration, func() { err = e.pinner.Pin(ctx, ref) })
	if err != nil && !IsAlreadyPinned(err) {
		perr := &Error{Ref: ref, Kind: Classify(err), Err: err}
		log.Error("failed to pin message", slog.String("kind", perr.Kind.String()), slog.Any("err", err))
		telemetry.RecordError(span, perr)
		span.SetAttributes(telemetry.OutcomeAttr(OutcomeFailed))
		e.finish(ctx, Event{Ref: ref, Outcome: OutcomeFailed, Detail: perr.Kind.String() + ": " + err.Error()})
		return perr
	}

	log.Info("pinned message")
	span.SetAttributes(telemetry.OutcomeAttr(OutcomePinned))
	e.finish(ctx, Event{Ref: ref, Outcome: OutcomePinned})
	return nil
}

// Record forwards an outcome that did not go through Pin (session expiry) to the history.
func (e *Executor) Record(ctx context.Context, ev Event) {
	if e.recorder == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = e.now()
	}
	if err := e.recorder.Record(ctx, ev); err != nil {
		slog.Warn("failed to record pin event", slog.String("component", "pin"), slog.String("outcome", ev.Outcome), slog.Any("err", err))
	}
}

func (e *Executor) finish(ctx context.Context, ev Event) {
	telemetry.CountPin(ev.Outcome)
	e.Record(ctx, ev)
}
