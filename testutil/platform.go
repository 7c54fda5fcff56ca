package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/onnwee/pinvote/bot"
	"github.com/onnwee/pinvote/vote"
)

// Notice is an ephemeral reply captured by FakePlatform.
type Notice struct {
	Ref    vote.MessageRef
	UserID string
	Text   string
}

// Reaction is a reaction added through FakePlatform.
type Reaction struct {
	Ref   vote.MessageRef
	Emoji string
}

// FakePlatform is an in-memory bot.Platform and pin.Pinner that records every call.
type FakePlatform struct {
	mu sync.Mutex

	Messages map[vote.MessageRef]vote.Target
	// FetchErr, when set, is returned by FetchMessage instead of a lookup.
	FetchErr error
	// ReactionErr maps emoji names to the error AddReaction returns for them.
	ReactionErr map[string]error
	PinErr      error

	Reactions []Reaction
	Notices   []Notice
	Pins      []vote.MessageRef
}

// NewFakePlatform returns an empty fake.
func NewFakePlatform() *FakePlatform {
	return &FakePlatform{
		Messages:    make(map[vote.MessageRef]vote.Target),
		ReactionErr: make(map[string]error),
	}
}

// AddMessage makes ref resolvable.
func (f *FakePlatform) AddMessage(ref vote.MessageRef, authorID, text string) vote.Target {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := vote.Target{Ref: ref, AuthorID: authorID, Text: text}
	f.Messages[ref] = t
	return t
}

func (f *FakePlatform) FetchMessage(ctx context.Context, ref vote.MessageRef) (vote.Target, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FetchErr != nil {
		return vote.Target{}, f.FetchErr
	}
	t, ok := f.Messages[ref]
	if !ok {
		return vote.Target{}, fmt.Errorf("fetch %s: %w", ref, bot.ErrNotFound)
	}
	return t, nil
}

func (f *FakePlatform) AddReaction(ctx context.Context, ref vote.MessageRef, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ReactionErr[emoji]; err != nil {
		return err
	}
	f.Reactions = append(f.Reactions, Reaction{Ref: ref, Emoji: emoji})
	return nil
}

func (f *FakePlatform) ReplyEphemeral(ctx context.Context, ref vote.MessageRef, userID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Notices = append(f.Notices, Notice{Ref: ref, UserID: userID, Text: text})
	return nil
}

func (f *FakePlatform) Pin(ctx context.Context, ref vote.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Pins = append(f.Pins, ref)
	return f.PinErr
}

// PinCount returns how many pin calls reached the platform.
func (f *FakePlatform) PinCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Pins)
}

// NoticeCount returns how many ephemeral replies were sent.
func (f *FakePlatform) NoticeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Notices)
}

// ReactionEmojis lists the emoji added so far, in order.
func (f *FakePlatform) ReactionEmojis() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.Reactions))
	for _, r := range f.Reactions {
		out = append(out, r.Emoji)
	}
	return out
}
