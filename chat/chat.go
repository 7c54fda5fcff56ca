package chat

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/onnwee/pinvote/bot"
	"github.com/onnwee/pinvote/telemetry"
)

// envelopeTTL bounds how long an envelope id is remembered for redelivery checks.
const envelopeTTL = 10 * time.Minute

// Handler receives translated events. *bot.Bot implements it.
type Handler interface {
	HandleMessage(ctx context.Context, m bot.MessageCreated)
	HandleReactionAdded(ctx context.Context, r bot.ReactionEvent)
	HandleReactionRemoved(ctx context.Context, r bot.ReactionEvent)
}

// socket is the part of *socketmode.Client the listener drives.
type socket interface {
	RunContext(ctx context.Context) error
	Ack(req socketmode.Request, payload ...interface{})
}

// Listener pumps Socket Mode events into a Handler.
type Listener struct {
	sock    socket
	events  <-chan socketmode.Event
	handler Handler

	seen      *ttlcache.Cache[string, struct{}]
	connected atomic.Bool
	inflight  sync.WaitGroup

	retryMin time.Duration
	retryMax time.Duration
}

// NewListener builds a Socket Mode client on api, which must carry the app-level token.
func NewListener(api *slack.Client, h Handler, opts ...socketmode.Option) *Listener {
	client := socketmode.New(api, opts...)
	return newListener(client, client.Events, h)
}

func newListener(sock socket, events <-chan socketmode.Event, h Handler) *Listener {
	return &Listener{
		sock:    sock,
		events:  events,
		handler: h,
		seen: ttlcache.New[string, struct{}](
			ttlcache.WithTTL[string, struct{}](envelopeTTL),
			ttlcache.WithDisableTouchOnHit[string, struct{}](),
		),
		retryMin: time.Second,
		retryMax: time.Minute,
	}
}

// Connected reports whether the websocket is currently up.
func (l *Listener) Connected() bool { return l.connected.Load() }

// Run connects and dispatches events until ctx is cancelled or authentication is rejected.
// It returns after every in-flight handler has finished. Cancellation yields a nil error.
func (l *Listener) Run(ctx context.Context) error {
	go l.seen.Start()
	defer l.seen.Stop()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		errc <- l.supervise(runCtx)
		cancel()
	}()

	l.consume(runCtx)
	err := <-errc
	l.inflight.Wait()
	l.setConnected(false)
	slog.Info("chat listener stopped", slog.String("component", "chat"))
	return err
}

// supervise runs the socket client, restarting it with backoff after connection failures.
func (l *Listener) supervise(ctx context.Context) error {
	wait := l.retryMin
	for {
		err := l.sock.RunContext(ctx)
		l.setConnected(false)
		if ctx.Err() != nil {
			return nil
		}
		if isAuthError(err) {
			slog.Error("slack rejected the app token", slog.String("component", "chat"), slog.Any("err", err))
			return err
		}
		telemetry.IncCounter(telemetry.Reconnects)
		slog.Warn("socket mode connection lost; retrying", slog.String("component", "chat"), slog.Any("err", err), slog.Duration("backoff", wait))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
		wait *= 2
		if wait > l.retryMax {
			wait = l.retryMax
		}
	}
}

func (l *Listener) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-l.events:
			if !ok {
				return
			}
			l.handle(ctx, evt)
		}
	}
}

func (l *Listener) handle(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		slog.Debug("connecting to slack", slog.String("component", "chat"))
	case socketmode.EventTypeConnected:
		l.setConnected(true)
		slog.Info("connected to slack", slog.String("component", "chat"))
	case socketmode.EventTypeConnectionError, socketmode.EventTypeDisconnect:
		l.setConnected(false)
		slog.Warn("slack connection interrupted", slog.String("component", "chat"), slog.String("type", string(evt.Type)))
	case socketmode.EventTypeInvalidAuth:
		l.setConnected(false)
		slog.Error("slack authentication failed", slog.String("component", "chat"))
	case socketmode.EventTypeEventsAPI:
		if evt.Request == nil {
			return
		}
		l.sock.Ack(*evt.Request)
		if l.duplicate(evt.Request.EnvelopeID) {
			telemetry.IncCounter(telemetry.DuplicateEnvelopes)
			slog.Debug("dropping redelivered envelope", slog.String("component", "chat"), slog.String("envelope", evt.Request.EnvelopeID), slog.Int("retry", evt.Request.RetryAttempt))
			return
		}
		api, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		if e, ok := Translate(api); ok {
			l.dispatch(ctx, e)
		}
	default:
		if evt.Request != nil {
			l.sock.Ack(*evt.Request)
		}
	}
}

// duplicate records id and reports whether it had been seen already. Empty ids are never
// duplicates.
func (l *Listener) duplicate(id string) bool {
	if id == "" {
		return false
	}
	_, loaded := l.seen.GetOrSet(id, struct{}{})
	return loaded
}

func (l *Listener) dispatch(ctx context.Context, e Event) {
	// Handlers outlive the receive loop so a shutdown lets in-flight events finish.
	hctx := context.WithoutCancel(ctx)
	l.inflight.Add(1)
	go func() {
		defer l.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in event handler", slog.String("component", "chat"), slog.String("event", e.Kind), slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			}
		}()
		switch e.Kind {
		case KindMessage:
			l.handler.HandleMessage(hctx, e.Message)
		case KindReactionAdded:
			l.handler.HandleReactionAdded(hctx, e.Reaction)
		case KindReactionRemoved:
			l.handler.HandleReactionRemoved(hctx, e.Reaction)
		}
	}()
}

func (l *Listener) setConnected(up bool) {
	l.connected.Store(up)
	telemetry.SetConnected(up)
}

func isAuthError(err error) bool {
	var se slack.SlackErrorResponse
	if !errors.As(err, &se) {
		return false
	}
	switch se.Err {
	case "invalid_auth", "not_authed", "account_inactive", "token_revoked", "not_allowed_token_type":
		return true
	}
	return false
}
