package vote

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

var (
	trigger = MessageRef{ChannelID: "C1", MessageID: "1700000000.000200"}
	target  = Target{Ref: MessageRef{ChannelID: "C1", MessageID: "1700000000.000100"}, AuthorID: "U9", Text: "ship it"}
)

func TestStoreCreateRejectsDuplicate(t *testing.T) {
	s := NewStore()
	t0 := time.Unix(1000, 0)
	if !s.Create(trigger, target, "U0", t0) {
		t.Fatal("first Create failed")
	}
	s.ApplyVote(trigger, "U1", VoteAdd)

	other := Target{Ref: MessageRef{ChannelID: "C1", MessageID: "other"}}
	if s.Create(trigger, other, "U5", t0.Add(time.Minute)) {
		t.Fatal("second Create with same key should fail")
	}
	got, ok := s.Get(trigger)
	if !ok {
		t.Fatal("session missing after rejected Create")
	}
	if got.Target.Ref != target.Ref || got.RequesterID != "U0" || !got.CreatedAt.Equal(t0) || got.Count() != 1 {
		t.Errorf("existing session altered: %+v count=%d", got, got.Count())
	}
}

func TestStoreApplyVote(t *testing.T) {
	s := NewStore()
	if _, _, ok := s.ApplyVote(trigger, "U1", VoteAdd); ok {
		t.Fatal("ApplyVote on missing session should report !ok")
	}
	s.Create(trigger, target, "U0", time.Now())

	steps := []struct {
		user        string
		kind        VoteKind
		wantCount   int
		wantChanged bool
	}{
		{"U1", VoteAdd, 1, true},
		{"U1", VoteAdd, 1, false},
		{"U2", VoteAdd, 2, true},
		{"U1", VoteRemove, 1, true},
		{"U1", VoteRemove, 1, false},
		{"U1", VoteAdd, 2, true},
	}
	for i, st := range steps {
		count, changed, ok := s.ApplyVote(trigger, st.user, st.kind)
		if !ok || count != st.wantCount || changed != st.wantChanged {
			t.Errorf("step %d (%s %s): got count=%d changed=%v ok=%v, want %d %v true", i, st.kind, st.user, count, changed, ok, st.wantCount, st.wantChanged)
		}
	}
}

func TestStoreRemoveReturnsCopy(t *testing.T) {
	s := NewStore()
	s.Create(trigger, target, "U0", time.Now())
	s.ApplyVote(trigger, "U1", VoteAdd)

	sess, ok := s.Remove(trigger)
	if !ok || sess.Count() != 1 {
		t.Fatalf("Remove = %v, %v", sess.Count(), ok)
	}
	if _, ok := s.Remove(trigger); ok {
		t.Error("second Remove should report !ok")
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0", s.Len())
	}
	// mutating the returned copy must not resurrect anything in the store
	sess.AddVote("U2")
	if _, _, ok := s.ApplyVote(trigger, "U3", VoteAdd); ok {
		t.Error("vote after removal should be ignored")
	}
}

func TestStoreSweepExpired(t *testing.T) {
	const maxAge = 3600 * time.Second
	t0 := time.Unix(0, 0)

	tests := []struct {
		name      string
		sweepAt   time.Time
		wantSwept bool
	}{
		{"before_horizon", t0.Add(maxAge - time.Second), false},
		{"at_horizon", t0.Add(maxAge), true},
		{"after_horizon", t0.Add(3601 * time.Second), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			s.Create(trigger, target, "U0", t0)
			fresh := MessageRef{ChannelID: "C2", MessageID: "2"}
			s.Create(fresh, target, "U0", tt.sweepAt)

			swept := s.SweepExpired(tt.sweepAt, maxAge)
			_, stillThere := s.Get(trigger)
			if tt.wantSwept {
				if len(swept) != 1 || swept[0] != trigger || stillThere {
					t.Errorf("swept = %v, stillThere = %v", swept, stillThere)
				}
			} else if len(swept) != 0 || !stillThere {
				t.Errorf("swept = %v, stillThere = %v", swept, stillThere)
			}
			if _, ok := s.Get(fresh); !ok {
				t.Error("fresh session should survive the sweep")
			}
		})
	}
}

func TestStoreSweepAgesFromSessionCreation(t *testing.T) {
	const maxAge = time.Hour
	t0 := time.Unix(10_000, 0)
	old := target
	old.CreatedAt = t0.Add(-24 * time.Hour)

	s := NewStore()
	s.Create(trigger, old, "U0", t0)
	if swept := s.SweepExpired(t0.Add(maxAge-time.Second), maxAge); len(swept) != 0 {
		t.Fatalf("swept %v; an old target must not shorten a new session", swept)
	}
	if swept := s.SweepExpired(t0.Add(maxAge), maxAge); len(swept) != 1 {
		t.Errorf("swept %v, want the session once it is maxAge old", swept)
	}
}

func TestStoreSnapshotOrder(t *testing.T) {
	s := NewStore()
	t0 := time.Unix(100, 0)
	for i := 3; i >= 1; i-- {
		s.Create(MessageRef{ChannelID: "C", MessageID: fmt.Sprint(i)}, target, "U0", t0.Add(time.Duration(i)*time.Second))
	}
	snap := s.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("len = %d", len(snap))
	}
	for i, sess := range snap {
		if sess.Trigger.MessageID != fmt.Sprint(i+1) {
			t.Errorf("snap[%d] = %s", i, sess.Trigger)
		}
	}
}

func TestStoreConcurrentVotesAndSweep(t *testing.T) {
	s := NewStore()
	t0 := time.Now()
	const keys = 20
	for i := 0; i < keys; i++ {
		s.Create(MessageRef{ChannelID: "C", MessageID: fmt.Sprint(i)}, target, "U0", t0)
	}

	var wg sync.WaitGroup
	for i := 0; i < keys; i++ {
		key := MessageRef{ChannelID: "C", MessageID: fmt.Sprint(i)}
		for u := 0; u < 10; u++ {
			wg.Add(1)
			go func(user string) {
				defer wg.Done()
				s.ApplyVote(key, user, VoteAdd)
				s.ApplyVote(key, user, VoteAdd)
			}(fmt.Sprint("U", u))
		}
	}
	wg.Wait()

	for i := 0; i < keys; i++ {
		sess, _ := s.Get(MessageRef{ChannelID: "C", MessageID: fmt.Sprint(i)})
		if sess.Count() != 10 {
			t.Errorf("key %d count = %d, want 10", i, sess.Count())
		}
	}

	wg.Add(2)
	var swept []MessageRef
	go func() { defer wg.Done(); swept = s.SweepExpired(t0.Add(time.Hour), time.Hour) }()
	go func() {
		defer wg.Done()
		for i := 0; i < keys; i++ {
			s.ApplyVote(MessageRef{ChannelID: "C", MessageID: fmt.Sprint(i)}, "late", VoteAdd)
		}
	}()
	wg.Wait()
	if len(swept) != keys || s.Len() != 0 {
		t.Errorf("swept %d, remaining %d", len(swept), s.Len())
	}
}

func TestStoreRemoveClaimsOnce(t *testing.T) {
	s := NewStore()
	s.Create(trigger, target, "U0", time.Now())

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		claims int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := s.Remove(trigger); ok {
				mu.Lock()
				claims++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if claims != 1 {
		t.Errorf("claims = %d, want 1", claims)
	}
}
