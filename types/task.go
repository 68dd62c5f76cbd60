package types

import "fmt"

// ExecMode is the concurrency strategy applied to a tier's units.
// Modes form a closed set resolved once at configuration time; unknown
// strings are rejected by ParseExecMode, never matched per-call.
type ExecMode string

const (
	// ModeParallel dispatches all units concurrently and joins on completion.
	ModeParallel ExecMode = "parallel"
	// ModeSequential executes units one at a time in input order.
	ModeSequential ExecMode = "sequential"
	// ModeHybrid runs a parallel research pass followed by a sequential
	// synthesis pass over the same units; results are concatenated.
	ModeHybrid ExecMode = "hybrid"
)

// ParseExecMode validates and converts a mode string.
func ParseExecMode(s string) (ExecMode, error) {
	switch ExecMode(s) {
	case ModeParallel, ModeSequential, ModeHybrid:
		return ExecMode(s), nil
	default:
		return "", NewErrorf(ErrInvalidConfig, "unknown execution mode: %q", s)
	}
}

// Task is the immutable input to an orchestration run. Created once at
// session start; never mutated afterwards.
type Task struct {
	// Description is the free-text task to fan out to workers.
	Description string `json:"description"`

	// Title is an optional report title.
	Title string `json:"title,omitempty"`

	// WorkerCount is the requested number of worker agents.
	// Zero is valid and yields a degenerate but well-defined run.
	WorkerCount int `json:"worker_count"`

	// Mode is the requested execution mode for the worker tier.
	Mode ExecMode `json:"mode"`

	// EnableMidTier enables the mid-level synthesis stage.
	EnableMidTier bool `json:"enable_mid_tier"`

	// EnableExecutive enables the executive synthesis stage.
	EnableExecutive bool `json:"enable_executive"`

	// MidTierGroupSize is the cluster size for mid-tier synthesis.
	MidTierGroupSize int `json:"mid_tier_group_size"`
}

// Validate rejects invalid task configurations before a session is created.
func (t *Task) Validate() error {
	if t.Description == "" {
		return NewError(ErrInvalidConfig, "task description is required")
	}
	if t.WorkerCount < 0 {
		return NewErrorf(ErrInvalidConfig, "worker count must be >= 0, got %d", t.WorkerCount)
	}
	if _, err := ParseExecMode(string(t.Mode)); err != nil {
		return err
	}
	if t.EnableMidTier && t.MidTierGroupSize <= 0 {
		return NewErrorf(ErrInvalidConfig, "mid-tier group size must be > 0, got %d", t.MidTierGroupSize)
	}
	return nil
}

// DisplayTitle returns the task title, or one derived from the description.
func (t *Task) DisplayTitle() string {
	if t.Title != "" {
		return t.Title
	}
	desc := t.Description
	if len(desc) > 50 {
		desc = desc[:50] + "..."
	}
	return fmt.Sprintf("Research: %s", desc)
}
