package vote

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// VoteKind selects whether ApplyVote adds or withdraws a vote.
type VoteKind int

const (
	// VoteAdd records an approving vote.
	VoteAdd VoteKind = iota
	// VoteRemove withdraws an approving vote.
	VoteRemove
)

// String returns a human-readable name for the vote kind.
func (k VoteKind) String() string {
	switch k {
	case VoteAdd:
		return "add"
	case VoteRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Store maps trigger messages to their voting sessions. Every operation holds one mutex for the
// duration of the map access only; nothing blocking happens under it.
type Store struct {
	mu       sync.Mutex
	sessions map[MessageRef]*Session
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{sessions: make(map[MessageRef]*Session)}
}

// Create opens a session for key. It returns false and leaves the existing session untouched when
// key already has one.
func (s *Store) Create(key MessageRef, target Target, requesterID string, now time.Time) bool {
	s.mu.Lock()
	_, exists := s.sessions[key]
	if !exists {
		s.sessions[key] = NewSession(target, key, requesterID, now)
	}
	s.mu.Unlock()
	if exists {
		slog.Warn("voting session already exists", slog.String("component", "vote_store"), slog.String("trigger", key.String()))
	}
	return !exists
}

// ApplyVote adds or removes userID's vote on the session for key. ok is false when there is no
// session; changed is false when the vote was already in the requested state.
func (s *Store) ApplyVote(key MessageRef, userID string, kind VoteKind) (count int, changed bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok {
		return 0, false, false
	}
	switch kind {
	case VoteAdd:
		changed = sess.AddVote(userID)
	case VoteRemove:
		changed = sess.RemoveVote(userID)
	}
	return sess.Count(), changed, true
}

// Remove deletes the session for key and returns it. Only one of several concurrent callers
// gets ok=true, which makes Remove usable as a claim.
func (s *Store) Remove(key MessageRef) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok {
		return Session{}, false
	}
	delete(s.sessions, key)
	return sess.clone(), true
}

// Get returns a copy of the session for key.
func (s *Store) Get(key MessageRef) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok {
		return Session{}, false
	}
	return sess.clone(), true
}

// SweepExpired removes every session whose age at now is at least maxAge and returns their keys.
// Age runs from the session's CreatedAt, not from when the target message was posted.
func (s *Store) SweepExpired(now time.Time, maxAge time.Duration) []MessageRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []MessageRef
	for key, sess := range s.sessions {
		if sess.Age(now) >= maxAge {
			expired = append(expired, key)
			delete(s.sessions, key)
		}
	}
	return expired
}

// Len is the number of open sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Snapshot copies all open sessions, oldest first.
func (s *Store) Snapshot() []Session {
	s.mu.Lock()
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.clone())
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Trigger.String() < out[j].Trigger.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
