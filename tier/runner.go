package tier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/geepers/cascade/executor"
	"github.com/geepers/cascade/types"
)

// UnitSpec bundles an agent index and the task text to execute.
type UnitSpec struct {
	// Index is the unit's position within the tier; output ordering is by
	// this index regardless of completion order.
	Index int

	// AgentID is the stable agent identifier (e.g. belter_3).
	AgentID string

	// TaskText is the task description handed to the executor.
	TaskText string
}

// WorkerUnits builds the worker-tier unit specs for a task.
func WorkerUnits(task string, count int) []UnitSpec {
	units := make([]UnitSpec, count)
	for i := 0; i < count; i++ {
		units[i] = UnitSpec{
			Index:    i,
			AgentID:  fmt.Sprintf("belter_%d", i),
			TaskText: task,
		}
	}
	return units
}

// TotalUnits returns the number of executor calls a run will dispatch for
// the given unit count and mode. Hybrid runs every unit twice.
func TotalUnits(count int, mode types.ExecMode) int {
	if mode == types.ModeHybrid {
		return count * 2
	}
	return count
}

// Config configures a Runner.
type Config struct {
	// MaxConcurrent caps concurrently executing units in parallel mode.
	// Non-positive means no cap beyond the unit count.
	MaxConcurrent int64

	// OnResult, when set, is invoked as each unit's result lands. Used by
	// the orchestrator for progress snapshots. Invocations may be concurrent.
	OnResult func(types.AgentResult)
}

// Runner dispatches units to a WorkerExecutor under a concurrency mode.
type Runner struct {
	exec          executor.WorkerExecutor
	maxConcurrent int64
	onResult      func(types.AgentResult)
	logger        *zap.Logger
}

// NewRunner creates a tier runner.
func NewRunner(exec executor.WorkerExecutor, cfg Config, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		exec:          exec,
		maxConcurrent: cfg.MaxConcurrent,
		onResult:      cfg.OnResult,
		logger:        logger.With(zap.String("component", "tier_runner")),
	}
}

// Run executes units under the given mode and returns their results ordered
// by input index. An empty unit slice yields an empty result slice.
//
// Cancellation is cooperative: ctx cancellation prevents further unit
// dispatch, but units already dispatched run to completion and their results
// are preserved. When cancellation cuts a run short, Run returns the results
// that landed together with ctx.Err().
func (r *Runner) Run(ctx context.Context, units []UnitSpec, mode types.ExecMode) ([]types.AgentResult, error) {
	if len(units) == 0 {
		return []types.AgentResult{}, ctx.Err()
	}

	switch mode {
	case types.ModeParallel:
		return r.runParallel(ctx, units)
	case types.ModeSequential:
		return r.runSequential(ctx, units)
	case types.ModeHybrid:
		return r.runHybrid(ctx, units)
	default:
		return nil, types.NewErrorf(types.ErrInvalidConfig, "unknown execution mode: %q", mode)
	}
}

// runParallel dispatches all units concurrently, bounded by MaxConcurrent,
// and joins on completion. Slot assignment is by input index so the output
// order is stable under completion-time jitter.
func (r *Runner) runParallel(ctx context.Context, units []UnitSpec) ([]types.AgentResult, error) {
	slots := make([]*types.AgentResult, len(units))

	var sem *semaphore.Weighted
	if r.maxConcurrent > 0 {
		sem = semaphore.NewWeighted(r.maxConcurrent)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex

	for i, unit := range units {
		if ctx.Err() != nil {
			break
		}

		if sem != nil {
			if err := sem.Acquire(ctx, 1); err != nil {
				break
			}
		}

		wg.Add(1)
		go func(slot int, u UnitSpec) {
			defer wg.Done()
			if sem != nil {
				defer sem.Release(1)
			}

			res := r.executeUnit(ctx, u)

			mu.Lock()
			slots[slot] = &res
			mu.Unlock()

			if r.onResult != nil {
				r.onResult(res)
			}
		}(i, unit)
	}

	wg.Wait()

	return collectSlots(slots), ctx.Err()
}

// runSequential executes units one at a time in input order. A failed unit
// never aborts subsequent units; only cancellation stops the loop.
func (r *Runner) runSequential(ctx context.Context, units []UnitSpec) ([]types.AgentResult, error) {
	results := make([]types.AgentResult, 0, len(units))

	for _, unit := range units {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}

		res := r.executeUnit(ctx, unit)
		results = append(results, res)

		if r.onResult != nil {
			r.onResult(res)
		}
	}

	return results, ctx.Err()
}

// runHybrid runs a parallel research pass then a sequential synthesis pass
// over the same units with phase-tagged task text. Results from both passes
// are concatenated, phase 1 first.
func (r *Runner) runHybrid(ctx context.Context, units []UnitSpec) ([]types.AgentResult, error) {
	phase1 := tagPhase(units, 1, "research")
	results, err := r.runParallel(ctx, phase1)
	if err != nil {
		return results, err
	}

	phase2 := tagPhase(units, 2, "synthesis")
	seq, err := r.runSequential(ctx, phase2)
	results = append(results, seq...)
	return results, err
}

// executeUnit invokes the executor for one unit, converting any error into
// a failed AgentResult. In-flight calls are shielded from run cancellation
// so dispatched units run to completion; per-unit deadlines still apply via
// the executor's timeout decorator.
func (r *Runner) executeUnit(ctx context.Context, unit UnitSpec) (out types.AgentResult) {
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("unit panicked",
				zap.String("agent_id", unit.AgentID),
				zap.Any("panic", rec),
			)
			out = types.AgentResult{
				AgentID: unit.AgentID,
				Status:  types.ResultFailed,
				Content: fmt.Sprintf("unit panicked: %v", rec),
				Elapsed: time.Since(start),
			}
		}
	}()

	res, err := r.exec.Execute(context.WithoutCancel(ctx), unit.Index, unit.TaskText)
	if err != nil {
		r.logger.Warn("unit execution failed",
			zap.String("agent_id", unit.AgentID),
			zap.Error(err),
		)
		return types.AgentResult{
			AgentID: unit.AgentID,
			Status:  types.ResultFailed,
			Content: err.Error(),
			Elapsed: time.Since(start),
		}
	}

	r.logger.Debug("unit completed",
		zap.String("agent_id", unit.AgentID),
		zap.Int("tokens", res.TokensUsed),
		zap.Duration("elapsed", res.Elapsed),
	)

	return types.AgentResult{
		AgentID:    unit.AgentID,
		Status:     types.ResultCompleted,
		Content:    res.Content,
		TokensUsed: res.TokensUsed,
		Elapsed:    res.Elapsed,
	}
}

// tagPhase re-derives unit specs with a phase-tagged task description.
func tagPhase(units []UnitSpec, phase int, label string) []UnitSpec {
	tagged := make([]UnitSpec, len(units))
	for i, u := range units {
		tagged[i] = UnitSpec{
			Index:    u.Index,
			AgentID:  u.AgentID,
			TaskText: fmt.Sprintf("%s (Phase %d: %s)", u.TaskText, phase, label),
		}
	}
	return tagged
}

// collectSlots flattens indexed slots, skipping units that were never
// dispatched because of cancellation.
func collectSlots(slots []*types.AgentResult) []types.AgentResult {
	results := make([]types.AgentResult, 0, len(slots))
	for _, s := range slots {
		if s != nil {
			results = append(results, *s)
		}
	}
	return results
}
