package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tailored-agentic-units/parley/core/protocol"
	"github.com/tailored-agentic-units/parley/session"
)

var participants = []string{"John", "Priya"}

func newSession(t *testing.T, s *session.Store) session.Session {
	t.Helper()
	return s.Create("setup text", "m1", participants, map[string]string{"item": "vintage compass"})
}

func TestStore_Create(t *testing.T) {
	s := session.NewStore()
	sess := newSession(t, s)

	if sess.ID == "" {
		t.Error("session ID should not be empty")
	}
	if sess.Status != protocol.StatusOngoing {
		t.Errorf("got status %q, want ongoing", sess.Status)
	}
	if len(sess.Transcript) != 1 || !sess.Transcript[0].IsSetup() {
		t.Fatalf("new transcript should hold only the setup entry, got %+v", sess.Transcript)
	}
	if sess.Model != "m1" {
		t.Errorf("got model %q, want m1", sess.Model)
	}
	if sess.Opener() != "John" || sess.Responder() != "Priya" {
		t.Errorf("got participants %v", sess.Participants)
	}
}

func TestStore_Create_UniqueIDs(t *testing.T) {
	s := session.NewStore()
	seen := make(map[string]bool)
	for range 100 {
		id := newSession(t, s).ID
		if seen[id] {
			t.Fatalf("duplicate session ID %q", id)
		}
		seen[id] = true
	}
	if s.Len() != 100 {
		t.Errorf("got %d sessions, want 100", s.Len())
	}
}

func TestStore_Get_NotFound(t *testing.T) {
	s := session.NewStore()
	if _, err := s.Get("missing"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("got error %v, want ErrNotFound", err)
	}
	_, err := s.Update(context.Background(), "missing", func(*session.Session) error { return nil })
	if !errors.Is(err, session.ErrNotFound) {
		t.Errorf("got error %v, want ErrNotFound", err)
	}
}

func TestStore_Get_DefensiveCopy(t *testing.T) {
	s := session.NewStore()
	id := newSession(t, s).ID

	got, _ := s.Get(id)
	got.Transcript[0].Text = "tampered"
	got.Metadata["item"] = "tampered"
	got.Participants[0] = "tampered"

	again, _ := s.Get(id)
	if again.Transcript[0].Text != "setup text" {
		t.Errorf("transcript mutated through snapshot: %q", again.Transcript[0].Text)
	}
	if again.Metadata["item"] != "vintage compass" {
		t.Errorf("metadata mutated through snapshot: %q", again.Metadata["item"])
	}
	if again.Opener() != "John" {
		t.Errorf("participants mutated through snapshot: %v", again.Participants)
	}
}

func TestStore_Update_Commit(t *testing.T) {
	s := session.NewStore()
	id := newSession(t, s).ID

	got, err := s.Update(context.Background(), id, func(sess *session.Session) error {
		sess.Append("John", "I'll offer 50.")
		sess.Append("Priya", "800.")
		sess.Turns++
		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if len(got.Transcript) != 3 {
		t.Fatalf("got %d entries, want 3", len(got.Transcript))
	}

	stored, _ := s.Get(id)
	if len(stored.Transcript) != 3 || stored.Turns != 1 {
		t.Errorf("update not committed: %+v", stored)
	}
}

func TestStore_Update_FailureLeavesStateUntouched(t *testing.T) {
	s := session.NewStore()
	id := newSession(t, s).ID
	boom := errors.New("generation failed")

	_, err := s.Update(context.Background(), id, func(sess *session.Session) error {
		sess.Append("John", "I'll offer 50.")
		sess.Status = protocol.StatusIncomplete
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got error %v, want %v", err, boom)
	}

	stored, _ := s.Get(id)
	if len(stored.Transcript) != 1 || stored.Status != protocol.StatusOngoing {
		t.Errorf("failed update leaked: %+v", stored)
	}
}

func TestStore_Update_Invariants(t *testing.T) {
	tests := []struct {
		name string
		fn   func(*session.Session)
		want error
	}{
		{
			name: "rewrite history",
			fn:   func(sess *session.Session) { sess.Transcript[0].Text = "rewritten" },
			want: session.ErrCorrupt,
		},
		{
			name: "truncate",
			fn:   func(sess *session.Session) { sess.Transcript = nil },
			want: session.ErrCorrupt,
		},
		{
			name: "change model",
			fn:   func(sess *session.Session) { sess.Model = "m2" },
			want: session.ErrCorrupt,
		},
		{
			name: "unknown status",
			fn:   func(sess *session.Session) { sess.Status = "paused" },
			want: session.ErrInvalidState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := session.NewStore()
			id := newSession(t, s).ID

			_, err := s.Update(context.Background(), id, func(sess *session.Session) error {
				tt.fn(sess)
				return nil
			})
			if !errors.Is(err, tt.want) {
				t.Errorf("got error %v, want %v", err, tt.want)
			}
		})
	}
}

func TestStore_Update_TerminalIsFinal(t *testing.T) {
	s := session.NewStore()
	id := newSession(t, s).ID
	ctx := context.Background()

	if _, err := s.Update(ctx, id, func(sess *session.Session) error {
		sess.Status = protocol.StatusConcluded
		return nil
	}); err != nil {
		t.Fatalf("conclude failed: %v", err)
	}

	_, err := s.Update(ctx, id, func(sess *session.Session) error {
		sess.Append("John", "one more thing")
		return nil
	})
	if !errors.Is(err, session.ErrInvalidState) {
		t.Errorf("append after conclusion: got %v, want ErrInvalidState", err)
	}

	_, err = s.Update(ctx, id, func(sess *session.Session) error {
		sess.Status = protocol.StatusOngoing
		return nil
	})
	if !errors.Is(err, session.ErrInvalidState) {
		t.Errorf("reopen: got %v, want ErrInvalidState", err)
	}
}

func TestStore_Update_SerializedPerSession(t *testing.T) {
	s := session.NewStore()
	id := newSession(t, s).ID

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for range n {
		go func() {
			defer wg.Done()
			_, err := s.Update(context.Background(), id, func(sess *session.Session) error {
				turns := sess.Turns
				time.Sleep(time.Millisecond)
				sess.Append("John", "offer")
				sess.Turns = turns + 1
				return nil
			})
			if err != nil {
				t.Errorf("Update failed: %v", err)
			}
		}()
	}
	wg.Wait()

	stored, _ := s.Get(id)
	if stored.Turns != n {
		t.Errorf("got %d turns, want %d (lost update)", stored.Turns, n)
	}
	if len(stored.Transcript) != n+1 {
		t.Errorf("got %d entries, want %d", len(stored.Transcript), n+1)
	}
}

func TestStore_Update_DifferentSessionsDoNotBlock(t *testing.T) {
	s := session.NewStore()
	a := newSession(t, s).ID
	b := newSession(t, s).ID

	held := make(chan struct{})
	release := make(chan struct{})
	go s.Update(context.Background(), a, func(*session.Session) error {
		close(held)
		<-release
		return nil
	})
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := s.Update(ctx, b, func(sess *session.Session) error {
		sess.Append("John", "hi")
		return nil
	}); err != nil {
		t.Fatalf("update of unrelated session blocked: %v", err)
	}
	if _, err := s.Get(a); err != nil {
		t.Fatalf("Get of locked session failed: %v", err)
	}
}

func TestStore_Update_CancelledContextNeverRuns(t *testing.T) {
	s := session.NewStore()
	id := newSession(t, s).ID

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for range 100 {
		ran := false
		_, err := s.Update(ctx, id, func(*session.Session) error {
			ran = true
			return nil
		})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("got error %v, want Canceled", err)
		}
		if ran {
			t.Fatal("update ran with a cancelled context")
		}
	}
}

func TestStore_Update_ContextCancelledWhileWaiting(t *testing.T) {
	s := session.NewStore()
	id := newSession(t, s).ID

	held := make(chan struct{})
	release := make(chan struct{})
	go s.Update(context.Background(), id, func(*session.Session) error {
		close(held)
		<-release
		return nil
	})
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Update(ctx, id, func(*session.Session) error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got error %v, want DeadlineExceeded", err)
	}
}
