package bot

import (
	"context"
	"errors"

	"github.com/onnwee/pinvote/vote"
)

// ErrNotFound is returned by Platform.FetchMessage when the referenced message does not exist.
var ErrNotFound = errors.New("message not found")

// MessageCreated is a new message in a channel. ReferencedMessageID is empty unless the message
// replies to another one.
type MessageCreated struct {
	ID                  string
	ChannelID           string
	AuthorID            string
	Content             string
	ReferencedMessageID string
}

// Ref returns the message's own reference.
func (m MessageCreated) Ref() vote.MessageRef {
	return vote.MessageRef{ChannelID: m.ChannelID, MessageID: m.ID}
}

// ReactionEvent is an emoji reaction being added to or removed from a message.
type ReactionEvent struct {
	MessageID string
	ChannelID string
	UserID    string
	Emoji     string
}

// Ref returns the reference of the reacted-to message.
func (r ReactionEvent) Ref() vote.MessageRef {
	return vote.MessageRef{ChannelID: r.ChannelID, MessageID: r.MessageID}
}

// Platform is the chat platform as seen by the bot.
type Platform interface {
	// FetchMessage resolves a message; it returns ErrNotFound (possibly wrapped) when it is gone.
	FetchMessage(ctx context.Context, ref vote.MessageRef) (vote.Target, error)
	AddReaction(ctx context.Context, ref vote.MessageRef, emoji string) error
	// ReplyEphemeral shows text only to userID inside the thread rooted at thread. An empty
	// thread.MessageID posts at channel level.
	ReplyEphemeral(ctx context.Context, thread vote.MessageRef, userID, text string) error
}
