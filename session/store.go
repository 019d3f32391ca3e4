package session

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tailored-agentic-units/parley/core/protocol"
)

type entry struct {
	lock  chan struct{} // one-slot semaphore; held for a whole update
	mu    sync.RWMutex  // guards state
	state Session
}

func (e *entry) snapshot() Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.clone()
}

func (e *entry) commit(next Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = next
}

func (e *entry) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case e.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *entry) release() {
	<-e.lock
}

// Store is an in-memory session map. All methods are safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Create stores a new ongoing session whose transcript holds only the setup
// entry and returns a snapshot of it. The session is assigned a unique
// UUIDv7 identifier.
func (s *Store) Create(setup, model string, participants []string, metadata map[string]string) Session {
	now := s.now()
	state := Session{
		Transcript:   protocol.InitTranscript(setup),
		Status:       protocol.StatusOngoing,
		Model:        model,
		Metadata:     maps.Clone(metadata),
		Participants: append([]string(nil), participants...),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		state.ID = uuid.Must(uuid.NewV7()).String()
		if _, exists := s.entries[state.ID]; !exists {
			break
		}
	}
	s.entries[state.ID] = &entry{
		lock:  make(chan struct{}, 1),
		state: state,
	}
	return state.clone()
}

// Get returns a snapshot of the session. It does not wait for an in-flight
// update; it observes the last committed state.
func (s *Store) Get(id string) (Session, error) {
	e, err := s.lookup(id)
	if err != nil {
		return Session{}, err
	}

	return e.snapshot(), nil
}

// Len returns the number of stored sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Update runs fn against a working copy of the session while holding that
// session's lock and commits the copy only if fn returns nil and the result
// respects the transcript invariants. Updates to the same session are
// serialized; updates to different sessions proceed in parallel. When fn
// fails, stored state is untouched and fn's error is returned alongside the
// unchanged snapshot.
func (s *Store) Update(ctx context.Context, id string, fn func(*Session) error) (Session, error) {
	e, err := s.lookup(id)
	if err != nil {
		return Session{}, err
	}

	if err := e.acquire(ctx); err != nil {
		return Session{}, err
	}
	defer e.release()

	prev := e.snapshot()

	next := prev.clone()
	if err := fn(&next); err != nil {
		return prev, err
	}
	if err := validateUpdate(&prev, &next); err != nil {
		return prev, fmt.Errorf("%w: %s", err, id)
	}
	next.UpdatedAt = s.now()

	e.commit(next)

	return next.clone(), nil
}

func (s *Store) lookup(id string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}
