// Package session stores negotiation sessions in memory. Each session is
// guarded by its own lock; the store-wide lock only protects the index, so
// work on one session never blocks another.
package session

import (
	"errors"
	"maps"
	"time"

	"github.com/tailored-agentic-units/parley/core/protocol"
)

// Sentinel errors for store operations.
var (
	ErrNotFound     = errors.New("session not found")
	ErrInvalidState = errors.New("session is not ongoing")
	ErrCorrupt      = errors.New("session update violates transcript invariants")
)

// Session is a snapshot of one negotiation. Values returned by the Store are
// copies; mutating them has no effect on stored state.
type Session struct {
	ID           string
	Transcript   []protocol.Utterance
	Status       protocol.Status
	Model        string
	Metadata     map[string]string
	Participants []string // Speaker labels; [0] opens and plays the user, [1] replies.
	Turns        int      // Generated turns appended so far.
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Append adds an utterance to the transcript.
func (s *Session) Append(speaker, text string) {
	s.Transcript = append(s.Transcript, protocol.NewUtterance(speaker, text))
}

// Opener returns the label of the party that opens the negotiation.
func (s *Session) Opener() string {
	return s.Participants[0]
}

// Responder returns the label of the party that answers the opener.
func (s *Session) Responder() string {
	return s.Participants[1]
}

func (s *Session) clone() Session {
	c := *s
	c.Transcript = protocol.CloneTranscript(s.Transcript)
	c.Metadata = maps.Clone(s.Metadata)
	c.Participants = append([]string(nil), s.Participants...)
	return c
}

// validateUpdate checks that next is a legal successor of prev.
func validateUpdate(prev, next *Session) error {
	if next.ID != prev.ID || next.Model != prev.Model {
		return ErrCorrupt
	}
	if !prev.Status.CanTransition(next.Status) {
		return ErrInvalidState
	}
	if len(next.Transcript) < len(prev.Transcript) {
		return ErrCorrupt
	}
	for i := range prev.Transcript {
		if next.Transcript[i] != prev.Transcript[i] {
			return ErrCorrupt
		}
	}
	if prev.Status.IsTerminal() && len(next.Transcript) > len(prev.Transcript) {
		return ErrInvalidState
	}
	return nil
}
