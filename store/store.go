package store

import (
	"context"
	"time"

	"github.com/geepers/cascade/types"
)

// SessionStore persists orchestration sessions.
//
// Get returns a deep copy; callers never observe later mutations through a
// returned snapshot. All mutating methods are safe for concurrent use.
type SessionStore interface {
	// Put stores a session, overwriting any existing session with the same ID.
	Put(ctx context.Context, session *types.Session) error

	// Get returns a snapshot of the session, or ErrNotFound.
	Get(ctx context.Context, id string) (*types.Session, error)

	// Delete removes a session, or returns ErrNotFound.
	Delete(ctx context.Context, id string) error

	// ListIDs returns all known session IDs, ordered by creation time.
	ListIDs(ctx context.Context) ([]string, error)

	// UpdateState transitions a session to the given state. Illegal
	// transitions (including any transition out of a terminal state) fail.
	UpdateState(ctx context.Context, id string, state types.SessionState) error

	// SetProgress replaces the session's progress counters.
	SetProgress(ctx context.Context, id string, progress types.Progress) error

	// AppendPartial appends a landed unit result to the session's partials
	// and bumps the completed-agent counter.
	AppendPartial(ctx context.Context, id string, result types.AgentResult) error

	// Complete transitions the session to completed and attaches the final
	// report in one step, so no observer sees a completed session without
	// its report.
	Complete(ctx context.Context, id string, report *types.Report) error

	// Fail transitions the session to failed with an error message.
	Fail(ctx context.Context, id string, message string) error

	// Cancel transitions the session to cancelled. Returns false without
	// error when the session is unknown or already terminal; partial results
	// accumulated so far are preserved.
	Cancel(ctx context.Context, id string) (bool, error)

	// Cleanup removes terminal sessions that finished before the cutoff and
	// returns the number removed.
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)

	// Stats returns session counts grouped by state.
	Stats(ctx context.Context) (map[types.SessionState]int, error)

	// Ping checks store health.
	Ping(ctx context.Context) error

	// Close releases store resources.
	Close() error
}

// applyTransition validates and applies a state change on a session,
// stamping the timestamps that mark tier start and terminal completion.
func applyTransition(s *types.Session, state types.SessionState) error {
	if !s.State.CanTransitionTo(state) {
		return types.NewErrorf(types.ErrInvalidConfig,
			"invalid session state transition: %s -> %s", s.State, state)
	}

	now := time.Now()
	switch state {
	case types.StateRunning:
		s.StartedAt = &now
	case types.StateCompleted, types.StateCancelled, types.StateFailed:
		s.CompletedAt = &now
	}
	s.State = state
	return nil
}

// expired reports whether a terminal session finished before the cutoff.
func expired(s *types.Session, cutoff time.Time) bool {
	if !s.IsTerminal() {
		return false
	}
	if s.CompletedAt == nil {
		return s.CreatedAt.Before(cutoff)
	}
	return s.CompletedAt.Before(cutoff)
}
