// Package vote holds pin-request voting sessions and the lock-guarded store that owns them.
//
// A Session tracks the distinct users that approved pinning one target message. The Store maps
// the trigger message to its Session and is the only place sessions live; callers always get
// copies back, so nothing outside the store can mutate a session behind the lock.
package vote

import (
	"sort"
	"time"
)

// MessageRef identifies a message on the chat platform. Slack message ids (ts) are only unique
// within a channel, so both parts are needed.
type MessageRef struct {
	ChannelID string
	MessageID string
}

func (r MessageRef) String() string { return r.ChannelID + "/" + r.MessageID }

// Target is the message being considered for pinning.
type Target struct {
	Ref       MessageRef
	AuthorID  string
	Text      string
	CreatedAt time.Time
}

// Session is the vote state for one pending pin request.
type Session struct {
	Target      Target
	Trigger     MessageRef
	RequesterID string
	CreatedAt   time.Time

	voters map[string]struct{}
}

// NewSession returns an empty session created at now.
func NewSession(target Target, trigger MessageRef, requesterID string, now time.Time) *Session {
	return &Session{
		Target:      target,
		Trigger:     trigger,
		RequesterID: requesterID,
		CreatedAt:   now,
		voters:      make(map[string]struct{}),
	}
}

// AddVote records userID as an approving voter. It reports false when the user had already voted.
func (s *Session) AddVote(userID string) bool {
	if s.voters == nil {
		s.voters = make(map[string]struct{})
	}
	if _, ok := s.voters[userID]; ok {
		return false
	}
	s.voters[userID] = struct{}{}
	return true
}

// RemoveVote withdraws userID's vote. It reports false when the user had not voted.
func (s *Session) RemoveVote(userID string) bool {
	if _, ok := s.voters[userID]; !ok {
		return false
	}
	delete(s.voters, userID)
	return true
}

// Count is the number of distinct voters.
func (s *Session) Count() int { return len(s.voters) }

// HasVoted reports whether userID currently approves.
func (s *Session) HasVoted(userID string) bool {
	_, ok := s.voters[userID]
	return ok
}

// Voters returns the voter ids in sorted order.
func (s *Session) Voters() []string {
	out := make([]string, 0, len(s.voters))
	for id := range s.voters {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Age reports how long the session has been open at now.
func (s *Session) Age(now time.Time) time.Duration { return now.Sub(s.CreatedAt) }

// clone copies the session including its voter set.
func (s *Session) clone() Session {
	c := *s
	c.voters = make(map[string]struct{}, len(s.voters))
	for id := range s.voters {
		c.voters[id] = struct{}{}
	}
	return c
}
