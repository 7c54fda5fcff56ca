// Package slackapi implements the bot's platform calls on the Slack Web API.
//
// Messages are addressed by channel id plus ts. A "referenced" message is the parent of the
// thread the trigger message was posted in; it is resolved with conversations.replies.
package slackapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/onnwee/pinvote/bot"
	"github.com/onnwee/pinvote/vote"
)

// maxRateLimitWait caps how long a read call waits on Slack's Retry-After before giving up.
const maxRateLimitWait = 10 * time.Second

// Client wraps a *slack.Client. It satisfies bot.Platform and pin.Pinner.
type Client struct {
	api *slack.Client
}

// New builds a client for the bot token. Extra options (e.g. slack.OptionAPIURL in tests) are
// passed through to slack.New.
func New(botToken, appToken string, opts ...slack.Option) *Client {
	if appToken != "" {
		opts = append([]slack.Option{slack.OptionAppLevelToken(appToken)}, opts...)
	}
	return &Client{api: slack.New(botToken, opts...)}
}

// API returns the underlying client, for Socket Mode.
func (c *Client) API() *slack.Client { return c.api }

// Identify returns the bot's own user id.
func (c *Client) Identify(ctx context.Context) (string, error) {
	res, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return "", fmt.Errorf("auth.test: %w", err)
	}
	if res.UserID == "" {
		return "", errors.New("auth.test: empty user id")
	}
	return res.UserID, nil
}

// FetchMessage resolves ref. Missing messages and channels map to bot.ErrNotFound.
func (c *Client) FetchMessage(ctx context.Context, ref vote.MessageRef) (vote.Target, error) {
	params := &slack.GetConversationRepliesParameters{
		ChannelID: ref.ChannelID,
		Timestamp: ref.MessageID,
		Inclusive: true,
		Limit:     1,
	}
	var msgs []slack.Message
	err := withRateLimitRetry(ctx, func() error {
		var err error
		msgs, _, _, err = c.api.GetConversationRepliesContext(ctx, params)
		return err
	})
	if err != nil {
		if isNotFound(err) {
			return vote.Target{}, fmt.Errorf("conversations.replies %s: %w", ref, bot.ErrNotFound)
		}
		return vote.Target{}, fmt.Errorf("conversations.replies %s: %w", ref, err)
	}
	if len(msgs) == 0 || msgs[0].Timestamp != ref.MessageID {
		return vote.Target{}, fmt.Errorf("conversations.replies %s: %w", ref, bot.ErrNotFound)
	}
	m := msgs[0]
	author := m.User
	if author == "" {
		author = m.BotID
	}
	return vote.Target{
		Ref:       ref,
		AuthorID:  author,
		Text:      m.Text,
		CreatedAt: ParseTimestamp(m.Timestamp),
	}, nil
}

// AddReaction adds emoji to ref. Reacting twice is not an error.
func (c *Client) AddReaction(ctx context.Context, ref vote.MessageRef, emoji string) error {
	err := withRateLimitRetry(ctx, func() error {
		return c.api.AddReactionContext(ctx, strings.Trim(emoji, ":"), slack.NewRefToMessage(ref.ChannelID, ref.MessageID))
	})
	if err != nil && !hasCode(err, "already_reacted") {
		return fmt.Errorf("reactions.add %s %s: %w", ref, emoji, err)
	}
	return nil
}

// ReplyEphemeral posts text visible only to userID, in the thread when thread.MessageID is set.
func (c *Client) ReplyEphemeral(ctx context.Context, thread vote.MessageRef, userID, text string) error {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if thread.MessageID != "" {
		opts = append(opts, slack.MsgOptionTS(thread.MessageID))
	}
	if _, err := c.api.PostEphemeralContext(ctx, thread.ChannelID, userID, opts...); err != nil {
		return fmt.Errorf("chat.postEphemeral %s: %w", thread.ChannelID, err)
	}
	return nil
}

// Pin pins ref in its channel. Slack's already_pinned error is passed through; the pin executor
// treats it as success. Pins are never retried here.
func (c *Client) Pin(ctx context.Context, ref vote.MessageRef) error {
	return c.api.AddPinContext(ctx, ref.ChannelID, slack.NewRefToMessage(ref.ChannelID, ref.MessageID))
}

// ParseTimestamp converts a Slack ts ("1700000000.000100") into a time. Invalid input yields the
// zero time.
func ParseTimestamp(ts string) time.Time {
	sec, frac, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Time{}
	}
	var usec int64
	if frac != "" {
		if len(frac) > 6 {
			frac = frac[:6]
		}
		frac += strings.Repeat("0", 6-len(frac))
		if usec, err = strconv.ParseInt(frac, 10, 64); err != nil {
			return time.Time{}
		}
	}
	return time.Unix(s, usec*int64(time.Microsecond)).UTC()
}

func hasCode(err error, codes ...string) bool {
	var se slack.SlackErrorResponse
	if !errors.As(err, &se) {
		return false
	}
	for _, c := range codes {
		if se.Err == c {
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	return hasCode(err, "thread_not_found", "message_not_found", "channel_not_found")
}

// withRateLimitRetry runs fn and, when Slack answers 429, waits the advertised Retry-After once
// and runs it again.
func withRateLimitRetry(ctx context.Context, fn func() error) error {
	err := fn()
	var rl *slack.RateLimitedError
	if !errors.As(err, &rl) {
		return err
	}
	wait := rl.RetryAfter
	if wait <= 0 || wait > maxRateLimitWait {
		return err
	}
	slog.Debug("slack rate limited; retrying", slog.String("component", "slackapi"), slog.Duration("retry_after", wait))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
	}
	return fn()
}
