package types

import "time"

// SessionState is the lifecycle state of an orchestration session.
//
// Transitions: created -> running -> {completed | cancelled | failed}.
// Terminal states admit no further transitions.
type SessionState string

const (
	// StateCreated indicates the session exists but the pipeline has not started.
	StateCreated SessionState = "created"
	// StateRunning indicates the pipeline is executing.
	StateRunning SessionState = "running"
	// StateCompleted indicates the pipeline finished and the Report is populated.
	StateCompleted SessionState = "completed"
	// StateCancelled indicates the session was cancelled before completion.
	StateCancelled SessionState = "cancelled"
	// StateFailed indicates an unexpected internal error terminated the session.
	StateFailed SessionState = "failed"
)

// IsTerminal returns true if the state admits no further transitions.
func (s SessionState) IsTerminal() bool {
	switch s {
	case StateCompleted, StateCancelled, StateFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the state machine permits moving to next.
func (s SessionState) CanTransitionTo(next SessionState) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case StateCreated:
		return next == StateRunning || next == StateCancelled || next == StateFailed
	case StateRunning:
		return next.IsTerminal()
	default:
		return false
	}
}

// Progress is a snapshot of pipeline advancement while a session runs.
type Progress struct {
	// CompletedAgents counts units that have produced a result (any status).
	CompletedAgents int `json:"completed_agents"`

	// TotalAgents is the number of units the pipeline will dispatch.
	TotalAgents int `json:"total_agents"`
}

// Session is the unit of lifecycle tracking for one orchestration run.
//
// Sessions are exclusively owned by the SessionStore; callers receive
// snapshots and never mutate a stored session directly.
//
// Invariant: Report is non-nil if and only if State == StateCompleted.
// A cancelled session keeps only the worker results that had landed before
// cancellation took effect, in PartialResults.
type Session struct {
	// ID is the unique session identifier.
	ID string `json:"id"`

	// Task is the originating task, immutable.
	Task Task `json:"task"`

	// State is the current lifecycle state.
	State SessionState `json:"state"`

	// Progress tracks unit completion while running.
	Progress Progress `json:"progress"`

	// PartialResults holds worker results landed so far. Cleared into the
	// Report on completion; retained as-is on cancellation.
	PartialResults []AgentResult `json:"partial_results,omitempty"`

	// Report is the final output, present only when State == StateCompleted.
	Report *Report `json:"report,omitempty"`

	// Error is the recorded failure message when State == StateFailed.
	Error string `json:"error,omitempty"`

	// CreatedAt is when the session record was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the pipeline started executing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the session reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsTerminal returns true if the session is in a terminal state.
func (s *Session) IsTerminal() bool {
	return s.State.IsTerminal()
}

// Duration returns the session duration, or time since start if still running.
func (s *Session) Duration() time.Duration {
	if s.StartedAt == nil {
		return 0
	}
	if s.CompletedAt != nil {
		return s.CompletedAt.Sub(*s.StartedAt)
	}
	return time.Since(*s.StartedAt)
}

// Clone returns a deep copy safe to hand to concurrent readers.
func (s *Session) Clone() *Session {
	out := *s
	if s.StartedAt != nil {
		t := *s.StartedAt
		out.StartedAt = &t
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	if s.PartialResults != nil {
		out.PartialResults = make([]AgentResult, len(s.PartialResults))
		copy(out.PartialResults, s.PartialResults)
	}
	if s.Report != nil {
		r := *s.Report
		r.Workers = append([]AgentResult(nil), s.Report.Workers...)
		if s.Report.MidTier != nil {
			r.MidTier = append([]AgentResult(nil), s.Report.MidTier...)
		}
		if s.Report.Executive != nil {
			e := *s.Report.Executive
			r.Executive = &e
		}
		out.Report = &r
	}
	return &out
}
