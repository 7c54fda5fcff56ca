package bot_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/pinvote/bot"
	"github.com/onnwee/pinvote/pin"
	"github.com/onnwee/pinvote/testutil"
	"github.com/onnwee/pinvote/vote"
)

const (
	selfID  = "UBOT"
	channel = "C1"
	parent  = "1700000000.000100"
	reply   = "1700000000.000200"
)

type harness struct {
	bot      *bot.Bot
	platform *testutil.FakePlatform
	clock    *fakeClock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newHarness(t *testing.T, confirmCap int, mutate ...func(*bot.Options)) *harness {
	t.Helper()
	clock := &fakeClock{now: time.Unix(0, 0)}
	p := testutil.NewFakePlatform()
	p.AddMessage(vote.MessageRef{ChannelID: channel, MessageID: parent}, "UAUTHOR", "pin me")
	opts := bot.Options{
		SelfID:        selfID,
		ConfirmCap:    confirmCap,
		SessionMaxAge: 3600 * time.Second,
		SweepInterval: 300 * time.Second,
		Now:           clock.Now,
	}
	for _, m := range mutate {
		m(&opts)
	}
	exec := pin.NewExecutor(p, pin.NewCooldown(5*time.Second), pin.WithClock(clock.Now))
	return &harness{bot: bot.New(p, exec, vote.NewStore(), opts), platform: p, clock: clock}
}

func trigger(content string) bot.MessageCreated {
	return bot.MessageCreated{ID: reply, ChannelID: channel, AuthorID: "UREQ", Content: content, ReferencedMessageID: parent}
}

func approve(user string) bot.ReactionEvent {
	return bot.ReactionEvent{MessageID: reply, ChannelID: channel, UserID: user, Emoji: bot.DefaultApproveEmoji}
}

var triggerKey = vote.MessageRef{ChannelID: channel, MessageID: reply}

func TestHandleMessageIgnoresNonTriggers(t *testing.T) {
	tests := []struct {
		name string
		msg  bot.MessageCreated
	}{
		{"from_self", bot.MessageCreated{ID: reply, ChannelID: channel, AuthorID: selfID, Content: "<@UBOT> pin", ReferencedMessageID: parent}},
		{"no_reference", bot.MessageCreated{ID: reply, ChannelID: channel, AuthorID: "UREQ", Content: "<@UBOT> pin"}},
		{"not_addressed", trigger("pin this please")},
		{"mention_not_at_start", trigger("hey <@UBOT> pin")},
		{"other_user_prefix", trigger("<@UBOTX> pin")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 0)
			h.bot.HandleMessage(context.Background(), tt.msg)
			if h.platform.PinCount() != 0 || h.bot.Store().Len() != 0 || h.platform.NoticeCount() != 0 {
				t.Errorf("pins=%d sessions=%d notices=%d, want all zero", h.platform.PinCount(), h.bot.Store().Len(), h.platform.NoticeCount())
			}
		})
	}
}

func TestHandleMessageMentionForms(t *testing.T) {
	for _, content := range []string{"<@UBOT> pin", "<@UBOT|pinvote> pin"} {
		h := newHarness(t, 0)
		h.bot.HandleMessage(context.Background(), trigger(content))
		if h.platform.PinCount() != 1 {
			t.Errorf("%q: pins = %d, want 1", content, h.platform.PinCount())
		}
	}
}

func TestCapZeroPinsImmediately(t *testing.T) {
	h := newHarness(t, 0)
	h.bot.HandleMessage(context.Background(), trigger("<@UBOT> pin"))

	if h.platform.PinCount() != 1 || h.platform.Pins[0] != (vote.MessageRef{ChannelID: channel, MessageID: parent}) {
		t.Fatalf("pins = %v, want the parent message", h.platform.Pins)
	}
	if h.bot.Store().Len() != 0 {
		t.Error("no session should be created with cap 0")
	}
	if len(h.platform.Reactions) != 0 {
		t.Error("no reactions should be added with cap 0")
	}
}

func TestReferencedMessageNotFound(t *testing.T) {
	h := newHarness(t, 3)
	msg := trigger("<@UBOT> pin")
	msg.ReferencedMessageID = "missing"
	h.bot.HandleMessage(context.Background(), msg)

	if h.bot.Store().Len() != 0 || h.platform.PinCount() != 0 {
		t.Error("no session or pin expected")
	}
	if h.platform.NoticeCount() != 1 || !strings.Contains(h.platform.Notices[0].Text, "not found") || h.platform.Notices[0].UserID != "UREQ" || h.platform.Notices[0].Ref.MessageID != "" {
		t.Errorf("notices = %+v", h.platform.Notices)
	}
}

func TestFetchErrorSendsGenericNotice(t *testing.T) {
	h := newHarness(t, 3)
	h.platform.FetchErr = errors.New("internal_error")
	h.bot.HandleMessage(context.Background(), trigger("<@UBOT> pin"))
	if h.bot.Store().Len() != 0 {
		t.Error("no session expected")
	}
	if h.platform.NoticeCount() != 1 || !strings.Contains(h.platform.Notices[0].Text, "error occurred") {
		t.Fatalf("notices = %+v", h.platform.Notices)
	}
	if got, want := h.platform.Notices[0].Ref, (vote.MessageRef{ChannelID: channel, MessageID: parent}); got != want {
		t.Errorf("notice ref = %v, want the trigger thread %v", got, want)
	}
}

func TestVotingSessionStartsWithReactions(t *testing.T) {
	h := newHarness(t, 3)
	h.bot.HandleMessage(context.Background(), trigger("<@UBOT> pin"))

	sess, ok := h.bot.Store().Get(triggerKey)
	if !ok {
		t.Fatal("session not created")
	}
	if sess.Target.Ref.MessageID != parent || sess.RequesterID != "UREQ" {
		t.Errorf("session = %+v", sess)
	}
	got := h.platform.ReactionEmojis()
	want := []string{bot.DefaultApproveEmoji, bot.DefaultRejectEmoji, "three"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("reactions = %v, want %v", got, want)
	}
	for _, r := range h.platform.Reactions {
		if r.Ref != triggerKey {
			t.Errorf("reaction on %v, want trigger message", r.Ref)
		}
	}
}

func TestReactionFailureDoesNotAbortSession(t *testing.T) {
	h := newHarness(t, 2)
	h.platform.ReactionErr[bot.DefaultRejectEmoji] = errors.New("invalid_name")
	h.bot.HandleMessage(context.Background(), trigger("<@UBOT> pin"))

	if h.bot.Store().Len() != 1 {
		t.Fatal("session should exist despite reaction failure")
	}
	got := h.platform.ReactionEmojis()
	if fmt.Sprint(got) != fmt.Sprint([]string{bot.DefaultApproveEmoji, "two"}) {
		t.Errorf("reactions = %v", got)
	}
}

func TestDuplicateTriggerKeepsExistingSession(t *testing.T) {
	h := newHarness(t, 3)
	h.bot.HandleMessage(context.Background(), trigger("<@UBOT> pin"))
	h.bot.HandleReactionAdded(context.Background(), approve("U1"))
	h.bot.HandleMessage(context.Background(), trigger("<@UBOT> pin"))

	sess, _ := h.bot.Store().Get(triggerKey)
	if sess.Count() != 1 {
		t.Errorf("count = %d, want 1", sess.Count())
	}
	if len(h.platform.Reactions) != 3 {
		t.Errorf("reactions = %d, want 3 (second trigger must not re-add)", len(h.platform.Reactions))
	}
}

func TestThresholdPinsOnNthVoteThenSessionGone(t *testing.T) {
	h := newHarness(t, 3)
	ctx := context.Background()
	h.bot.HandleMessage(ctx, trigger("<@UBOT> pin"))

	h.bot.HandleReactionAdded(ctx, approve("U1"))
	h.bot.HandleReactionAdded(ctx, approve("U1")) // duplicate
	h.bot.HandleReactionAdded(ctx, approve("U2"))
	if h.platform.PinCount() != 0 {
		t.Fatal("pinned before the third distinct vote")
	}
	h.bot.HandleReactionAdded(ctx, approve("U3"))
	if h.platform.PinCount() != 1 {
		t.Fatalf("pins = %d, want 1 after third vote", h.platform.PinCount())
	}
	if h.bot.Store().Len() != 0 {
		t.Error("session should be removed after threshold")
	}

	h.clock.Advance(time.Minute)
	h.bot.HandleReactionAdded(ctx, approve("U4"))
	if h.platform.PinCount() != 1 {
		t.Error("a vote after the threshold must be a no-op")
	}
}

func TestVoteRemoveThenReAdd(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()
	h.bot.HandleMessage(ctx, trigger("<@UBOT> pin"))

	var counts []int
	step := func(fn func()) {
		fn()
		sess, _ := h.bot.Store().Get(triggerKey)
		counts = append(counts, sess.Count())
	}
	step(func() { h.bot.HandleReactionAdded(ctx, approve("UA")) })
	step(func() { h.bot.HandleReactionRemoved(ctx, approve("UA")) })
	step(func() { h.bot.HandleReactionAdded(ctx, approve("UA")) })

	if fmt.Sprint(counts) != "[1 0 1]" {
		t.Errorf("counts = %v, want [1 0 1]", counts)
	}
	if h.platform.PinCount() != 0 {
		t.Error("no pin expected")
	}
}

func TestReactionFilters(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	h.bot.HandleMessage(ctx, trigger("<@UBOT> pin"))

	h.bot.HandleReactionAdded(ctx, bot.ReactionEvent{MessageID: reply, ChannelID: channel, UserID: "U1", Emoji: "thumbsup"})
	h.bot.HandleReactionAdded(ctx, bot.ReactionEvent{MessageID: reply, ChannelID: channel, UserID: selfID, Emoji: bot.DefaultApproveEmoji})
	h.bot.HandleReactionAdded(ctx, bot.ReactionEvent{MessageID: "other", ChannelID: channel, UserID: "U1", Emoji: bot.DefaultApproveEmoji})
	if h.platform.PinCount() != 0 || h.bot.Store().Len() != 1 {
		t.Fatal("filtered reactions must not vote")
	}
	h.bot.HandleReactionAdded(ctx, approve("U1"))
	if h.platform.PinCount() != 1 {
		t.Error("approving vote should pin with cap 1")
	}
}

func TestRemovalFromSelfIgnored(t *testing.T) {
	h := newHarness(t, 3)
	ctx := context.Background()
	h.bot.HandleMessage(ctx, trigger("<@UBOT> pin"))
	h.bot.HandleReactionAdded(ctx, approve("U1"))
	h.bot.HandleReactionRemoved(ctx, bot.ReactionEvent{MessageID: reply, ChannelID: channel, UserID: selfID, Emoji: bot.DefaultApproveEmoji})
	sess, _ := h.bot.Store().Get(triggerKey)
	if sess.Count() != 1 {
		t.Errorf("count = %d, want 1", sess.Count())
	}
}

func TestFailedPinStillRemovesSession(t *testing.T) {
	h := newHarness(t, 1)
	h.platform.PinErr = errors.New("not_in_channel")
	ctx := context.Background()
	h.bot.HandleMessage(ctx, trigger("<@UBOT> pin"))
	h.bot.HandleReactionAdded(ctx, approve("U1"))

	if h.platform.PinCount() != 1 {
		t.Fatalf("pin calls = %d", h.platform.PinCount())
	}
	if h.bot.Store().Len() != 0 {
		t.Error("session must be removed even when the pin fails")
	}
	if h.platform.NoticeCount() != 0 {
		t.Error("no failure notice by default")
	}
}

func TestFailedPinNotifiesWhenEnabled(t *testing.T) {
	h := newHarness(t, 1, func(o *bot.Options) { o.NotifyPinFailure = true })
	h.platform.PinErr = errors.New("not_in_channel")
	ctx := context.Background()
	h.bot.HandleMessage(ctx, trigger("<@UBOT> pin"))
	h.bot.HandleReactionAdded(ctx, approve("U1"))

	if h.platform.NoticeCount() != 1 {
		t.Fatalf("notices = %+v", h.platform.Notices)
	}
	n := h.platform.Notices[0]
	if n.UserID != "UREQ" || n.Ref != (vote.MessageRef{ChannelID: channel, MessageID: parent}) || !strings.Contains(n.Text, "permission") {
		t.Errorf("notice = %+v", n)
	}
}

func TestRateLimitedPinIsDroppedSilently(t *testing.T) {
	h := newHarness(t, 0, func(o *bot.Options) { o.NotifyPinFailure = true })
	ctx := context.Background()
	h.bot.HandleMessage(ctx, trigger("<@UBOT> pin"))
	h.clock.Advance(time.Second)
	h.bot.HandleMessage(ctx, trigger("<@UBOT> pin"))

	if h.platform.PinCount() != 1 {
		t.Errorf("pins = %d, want 1", h.platform.PinCount())
	}
	if h.platform.NoticeCount() != 0 {
		t.Error("rate limiting must not notify")
	}
}

func TestConcurrentVotesPinOnce(t *testing.T) {
	h := newHarness(t, 5)
	ctx := context.Background()
	h.bot.HandleMessage(ctx, trigger("<@UBOT> pin"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h.bot.HandleReactionAdded(ctx, approve(fmt.Sprintf("U%d", i)))
		}(i)
	}
	wg.Wait()
	if h.platform.PinCount() != 1 {
		t.Errorf("pins = %d, want exactly 1", h.platform.PinCount())
	}
	if h.bot.Store().Len() != 0 {
		t.Error("session should be gone")
	}
}
