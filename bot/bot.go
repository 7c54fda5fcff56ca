// Package bot routes chat events into pin requests and voting sessions.
//
// A trigger message is a thread reply that starts with a mention of the bot. With a
// confirmation cap of zero the thread parent is pinned at once; otherwise a voting session is
// opened on the trigger message and the bot adds the approve, reject and cap reactions to it.
// The approving reaction counts as a vote. When the cap is reached the session is claimed
// (removed from the store) and the target is pinned; the session is gone whether the pin worked
// or not. Sessions nobody finishes are dropped by StartSweepJob.
//
// Handlers are safe to call concurrently for any mix of keys; the session store is the only
// shared state and no platform call happens while its lock is held.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/pinvote/pin"
	"github.com/onnwee/pinvote/telemetry"
	"github.com/onnwee/pinvote/vote"
)

// User-facing notices.
const (
	noticeNotFound  = "❌ Referenced message not found!"
	noticeError     = "❌ An error occurred while processing your request."
	noticePinFailed = "❌ The vote passed but the message could not be pinned (%s)."
)

// Options configures a Bot.
type Options struct {
	// SelfID is the bot's own user id; its messages and reactions are ignored.
	SelfID           string
	ConfirmCap       int
	ApproveEmoji     string
	RejectEmoji      string
	SessionMaxAge    time.Duration
	SweepInterval    time.Duration
	NotifyPinFailure bool
	// Now defaults to time.Now.
	Now func() time.Time
}

// Bot is the request router. Construct it with New.
type Bot struct {
	opts     Options
	platform Platform
	pins     *pin.Executor
	store    *vote.Store
}

// New wires a Bot. A nil store gets a fresh one.
func New(p Platform, pins *pin.Executor, store *vote.Store, opts Options) *Bot {
	if store == nil {
		store = vote.NewStore()
	}
	if opts.ApproveEmoji == "" {
		opts.ApproveEmoji = DefaultApproveEmoji
	}
	if opts.RejectEmoji == "" {
		opts.RejectEmoji = DefaultRejectEmoji
	}
	if opts.SessionMaxAge <= 0 {
		opts.SessionMaxAge = time.Hour
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Bot{opts: opts, platform: p, pins: pins, store: store}
}

// Store returns the session store.
func (b *Bot) Store() *vote.Store { return b.store }

// Options returns the effective configuration.
func (b *Bot) Options() Options { return b.opts }

// HandleMessage starts a pin request when m is an addressed thread reply.
func (b *Bot) HandleMessage(ctx context.Context, m MessageCreated) {
	if m.AuthorID == "" || m.AuthorID == b.opts.SelfID || m.ReferencedMessageID == "" {
		return
	}
	if !b.addressed(m.Content) {
		return
	}
	ctx = withCorrelation(ctx)
	defer b.recoverEvent(ctx, "message")
	telemetry.CountEvent("message")

	ctx, span := telemetry.StartSpan(ctx, "bot.message", telemetry.ChannelAttr(m.ChannelID), telemetry.MessageAttr(m.ID), telemetry.UserAttr(m.AuthorID))
	defer span.End()
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "bot"), slog.String("channel", m.ChannelID), slog.String("trigger", m.ID))

	targetRef := vote.MessageRef{ChannelID: m.ChannelID, MessageID: m.ReferencedMessageID}
	target, err := b.platform.FetchMessage(ctx, targetRef)
	if err != nil {
		telemetry.RecordError(span, err)
		if errors.Is(err, ErrNotFound) {
			log.Info("referenced message not found", slog.String("target", m.ReferencedMessageID))
			b.notify(ctx, vote.MessageRef{ChannelID: m.ChannelID}, m.AuthorID, noticeNotFound)
			return
		}
		log.Error("failed to fetch referenced message", slog.String("target", m.ReferencedMessageID), slog.Any("err", err))
		b.notify(ctx, targetRef, m.AuthorID, noticeError)
		return
	}

	if b.opts.ConfirmCap == 0 {
		log.Info("pinning immediately", slog.String("target", target.Ref.MessageID))
		b.pinTarget(ctx, target, m.AuthorID)
		return
	}

	if !b.store.Create(m.Ref(), target, m.AuthorID, b.opts.Now()) {
		return
	}
	telemetry.IncCounter(telemetry.SessionsCreated)
	telemetry.SetSessionsActive(b.store.Len())
	log.Info("voting session started", slog.String("target", target.Ref.MessageID), slog.Int("confirm_cap", b.opts.ConfirmCap))

	for _, emoji := range votingReactions(b.opts.ApproveEmoji, b.opts.RejectEmoji, b.opts.ConfirmCap) {
		if err := b.platform.AddReaction(ctx, m.Ref(), emoji); err != nil {
			telemetry.IncCounter(telemetry.ReactionErrors)
			log.Warn("failed to add reaction", slog.String("emoji", emoji), slog.Any("err", err))
		}
	}
}

// HandleReactionAdded counts an approving vote and pins once the cap is reached.
func (b *Bot) HandleReactionAdded(ctx context.Context, r ReactionEvent) {
	if r.Emoji != b.opts.ApproveEmoji || r.UserID == "" || r.UserID == b.opts.SelfID {
		return
	}
	ctx = withCorrelation(ctx)
	defer b.recoverEvent(ctx, "reaction_added")
	telemetry.CountEvent("reaction_added")
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "bot"), slog.String("channel", r.ChannelID), slog.String("trigger", r.MessageID))

	key := r.Ref()
	count, changed, ok := b.store.ApplyVote(key, r.UserID, vote.VoteAdd)
	if !ok {
		return
	}
	if !changed {
		return
	}
	telemetry.CountVote(vote.VoteAdd.String())
	log.Info("vote added", slog.String("user", r.UserID), slog.Int("count", count), slog.Int("confirm_cap", b.opts.ConfirmCap))
	if count < b.opts.ConfirmCap {
		return
	}

	// Several votes can cross the cap at once; only the one that removes the session pins.
	sess, claimed := b.store.Remove(key)
	if !claimed {
		return
	}
	telemetry.SetSessionsActive(b.store.Len())

	ctx, span := telemetry.StartSpan(ctx, "bot.threshold", telemetry.ChannelAttr(r.ChannelID), telemetry.MessageAttr(r.MessageID))
	defer span.End()
	log.Info("vote threshold reached", slog.String("target", sess.Target.Ref.MessageID), slog.Any("voters", sess.Voters()))
	b.pinTarget(ctx, sess.Target, sess.RequesterID)
}

// HandleReactionRemoved withdraws an approving vote. Removal never triggers a pin.
func (b *Bot) HandleReactionRemoved(ctx context.Context, r ReactionEvent) {
	if r.Emoji != b.opts.ApproveEmoji || r.UserID == "" || r.UserID == b.opts.SelfID {
		return
	}
	ctx = withCorrelation(ctx)
	defer b.recoverEvent(ctx, "reaction_removed")
	telemetry.CountEvent("reaction_removed")

	count, changed, ok := b.store.ApplyVote(r.Ref(), r.UserID, vote.VoteRemove)
	if !ok || !changed {
		return
	}
	telemetry.CountVote(vote.VoteRemove.String())
	telemetry.LoggerWithCorr(ctx).Info("vote removed",
		slog.String("component", "bot"),
		slog.String("channel", r.ChannelID),
		slog.String("trigger", r.MessageID),
		slog.String("user", r.UserID),
		slog.Int("count", count))
}

// pinTarget runs the pin and handles its outcome. It never retries.
func (b *Bot) pinTarget(ctx context.Context, target vote.Target, requesterID string) {
	err := b.pins.Pin(ctx, target)
	if err == nil || errors.Is(err, pin.ErrRateLimited) {
		return
	}
	var perr *pin.Error
	if b.opts.NotifyPinFailure && errors.As(err, &perr) {
		b.notify(ctx, target.Ref, requesterID, fmt.Sprintf(noticePinFailed, perr.Kind))
	}
}

func (b *Bot) notify(ctx context.Context, thread vote.MessageRef, userID, text string) {
	if err := b.platform.ReplyEphemeral(ctx, thread, userID, text); err != nil {
		telemetry.LoggerWithCorr(ctx).Warn("failed to send notice", slog.String("component", "bot"), slog.String("user", userID), slog.Any("err", err))
	}
}

// addressed reports whether content starts with a mention of the bot: <@ID> or <@ID|name>.
func (b *Bot) addressed(content string) bool {
	if b.opts.SelfID == "" {
		return false
	}
	prefix := "<@" + b.opts.SelfID
	if !strings.HasPrefix(content, prefix) {
		return false
	}
	rest := content[len(prefix):]
	return strings.HasPrefix(rest, ">") || strings.HasPrefix(rest, "|")
}

func (b *Bot) recoverEvent(ctx context.Context, kind string) {
	if r := recover(); r != nil {
		telemetry.LoggerWithCorr(ctx).Error("panic while handling event",
			slog.String("component", "bot"),
			slog.String("event", kind),
			slog.Any("panic", r),
			slog.String("stack", string(debug.Stack())))
	}
}

func withCorrelation(ctx context.Context) context.Context {
	if telemetry.GetCorrelation(ctx) != "" {
		return ctx
	}
	return telemetry.WithCorrelation(ctx, uuid.NewString())
}
