// Package chat connects the bot to Slack over Socket Mode.
//
// Listener owns the websocket client. Every envelope is acknowledged as soon as it arrives and
// dropped when its envelope id was seen in the last ten minutes, since Slack redelivers
// envelopes it believes were not acknowledged in time. Message and reaction events are
// translated into bot events and handed to the Handler, each on its own goroutine; Run waits
// for those goroutines before it returns.
//
// A thread reply is a message whose thread_ts is set and differs from its own ts. Its
// ReferencedMessageID is the thread parent, including replies also sent to the channel
// (thread_broadcast). Top-level messages and other subtypes (edits, joins, bot posts) carry no
// reference and never start a pin request.
package chat
