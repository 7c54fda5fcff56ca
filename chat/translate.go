package chat

import (
	"strings"

	"github.com/slack-go/slack/slackevents"

	"github.com/onnwee/pinvote/bot"
)

// Event kinds, also used as metric and log labels.
const (
	KindMessage         = "message"
	KindReactionAdded   = "reaction_added"
	KindReactionRemoved = "reaction_removed"
)

// Event is a translated Slack event. Exactly one of Message or Reaction is set, matching Kind.
type Event struct {
	Kind     string
	Message  bot.MessageCreated
	Reaction bot.ReactionEvent
}

// Translate maps an Events API callback onto a bot event. It reports false for anything the
// bot does not act on.
func Translate(evt slackevents.EventsAPIEvent) (Event, bool) {
	if evt.Type != slackevents.CallbackEvent {
		return Event{}, false
	}
	switch inner := evt.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		return translateMessage(inner)
	case *slackevents.ReactionAddedEvent:
		return translateReaction(KindReactionAdded, inner.User, inner.Reaction, inner.Item)
	case *slackevents.ReactionRemovedEvent:
		return translateReaction(KindReactionRemoved, inner.User, inner.Reaction, inner.Item)
	}
	return Event{}, false
}

// subTypeThreadBroadcast marks a thread reply that was also sent to the channel.
const subTypeThreadBroadcast = "thread_broadcast"

func translateMessage(m *slackevents.MessageEvent) (Event, bool) {
	if m == nil || m.User == "" {
		return Event{}, false
	}
	if m.SubType != "" && m.SubType != subTypeThreadBroadcast {
		return Event{}, false
	}
	msg := bot.MessageCreated{
		ID:        m.TimeStamp,
		ChannelID: m.Channel,
		AuthorID:  m.User,
		Content:   strings.TrimSpace(m.Text),
	}
	if m.ThreadTimeStamp != "" && m.ThreadTimeStamp != m.TimeStamp {
		msg.ReferencedMessageID = m.ThreadTimeStamp
	}
	return Event{Kind: KindMessage, Message: msg}, true
}

func translateReaction(kind, user, emoji string, item slackevents.Item) (Event, bool) {
	if item.Type != "message" || item.Channel == "" || item.Timestamp == "" || user == "" {
		return Event{}, false
	}
	return Event{Kind: kind, Reaction: bot.ReactionEvent{
		MessageID: item.Timestamp,
		ChannelID: item.Channel,
		UserID:    user,
		Emoji:     normalizeEmoji(emoji),
	}}, true
}

// normalizeEmoji drops skin-tone modifiers ("thumbsup::skin-tone-2") so every variant counts as
// the same vote emoji.
func normalizeEmoji(name string) string {
	name = strings.Trim(name, ":")
	if base, _, ok := strings.Cut(name, "::"); ok {
		return base
	}
	return name
}
