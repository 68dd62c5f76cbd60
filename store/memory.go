package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/geepers/cascade/types"
)

// MemorySessionStore is an in-memory SessionStore. Suitable for development
// and testing; data is lost on restart.
type MemorySessionStore struct {
	sessions map[string]*types.Session
	mu       sync.RWMutex
	closed   bool
}

// NewMemorySessionStore creates an in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*types.Session),
	}
}

// Close closes the store.
func (s *MemorySessionStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ping checks if the store is healthy.
func (s *MemorySessionStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return types.NewError(types.ErrNotReady, "session store is closed")
	}
	return nil
}

// Put stores a session, overwriting any existing record with the same ID.
func (s *MemorySessionStore) Put(ctx context.Context, session *types.Session) error {
	if session == nil || session.ID == "" {
		return types.NewError(types.ErrInvalidConfig, "session must have an ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.NewError(types.ErrNotReady, "session store is closed")
	}

	s.sessions[session.ID] = session.Clone()
	return nil
}

// Get returns a snapshot of the session.
func (s *MemorySessionStore) Get(ctx context.Context, id string) (*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, types.NewError(types.ErrNotReady, "session store is closed")
	}

	session, ok := s.sessions[id]
	if !ok {
		return nil, types.NewErrorf(types.ErrNotFound, "session not found: %s", id)
	}

	return session.Clone(), nil
}

// Delete removes a session.
func (s *MemorySessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.NewError(types.ErrNotReady, "session store is closed")
	}

	if _, ok := s.sessions[id]; !ok {
		return types.NewErrorf(types.ErrNotFound, "session not found: %s", id)
	}

	delete(s.sessions, id)
	return nil
}

// ListIDs returns all session IDs ordered by creation time.
func (s *MemorySessionStore) ListIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, types.NewError(types.ErrNotReady, "session store is closed")
	}

	sessions := make([]*types.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})

	ids := make([]string, len(sessions))
	for i, session := range sessions {
		ids[i] = session.ID
	}
	return ids, nil
}

// mutate applies fn to the stored session under the write lock.
func (s *MemorySessionStore) mutate(id string, fn func(*types.Session) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.NewError(types.ErrNotReady, "session store is closed")
	}

	session, ok := s.sessions[id]
	if !ok {
		return types.NewErrorf(types.ErrNotFound, "session not found: %s", id)
	}

	return fn(session)
}

// UpdateState transitions a session to the given state.
func (s *MemorySessionStore) UpdateState(ctx context.Context, id string, state types.SessionState) error {
	return s.mutate(id, func(session *types.Session) error {
		return applyTransition(session, state)
	})
}

// SetProgress replaces the session's progress counters.
func (s *MemorySessionStore) SetProgress(ctx context.Context, id string, progress types.Progress) error {
	return s.mutate(id, func(session *types.Session) error {
		session.Progress = progress
		return nil
	})
}

// AppendPartial appends a landed unit result and bumps the progress counter.
func (s *MemorySessionStore) AppendPartial(ctx context.Context, id string, result types.AgentResult) error {
	return s.mutate(id, func(session *types.Session) error {
		session.PartialResults = append(session.PartialResults, result)
		session.Progress.CompletedAgents = len(session.PartialResults)
		return nil
	})
}

// Complete transitions the session to completed and attaches the report.
func (s *MemorySessionStore) Complete(ctx context.Context, id string, report *types.Report) error {
	if report == nil {
		return types.NewError(types.ErrInvalidConfig, "completed session requires a report")
	}
	return s.mutate(id, func(session *types.Session) error {
		if err := applyTransition(session, types.StateCompleted); err != nil {
			return err
		}
		session.Report = report
		session.PartialResults = nil
		return nil
	})
}

// Fail transitions the session to failed with an error message.
func (s *MemorySessionStore) Fail(ctx context.Context, id string, message string) error {
	return s.mutate(id, func(session *types.Session) error {
		if err := applyTransition(session, types.StateFailed); err != nil {
			return err
		}
		session.Error = message
		return nil
	})
}

// Cancel transitions the session to cancelled, preserving partial results.
func (s *MemorySessionStore) Cancel(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, types.NewError(types.ErrNotReady, "session store is closed")
	}

	session, ok := s.sessions[id]
	if !ok || session.IsTerminal() {
		return false, nil
	}

	if err := applyTransition(session, types.StateCancelled); err != nil {
		return false, err
	}
	return true, nil
}

// Cleanup removes terminal sessions that finished before the cutoff.
func (s *MemorySessionStore) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, types.NewError(types.ErrNotReady, "session store is closed")
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for id, session := range s.sessions {
		if expired(session, cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// Stats returns session counts grouped by state.
func (s *MemorySessionStore) Stats(ctx context.Context) (map[types.SessionState]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, types.NewError(types.ErrNotReady, "session store is closed")
	}

	stats := make(map[types.SessionState]int)
	for _, session := range s.sessions {
		stats[session.State]++
	}
	return stats, nil
}
