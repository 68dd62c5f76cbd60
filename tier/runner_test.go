package tier

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/geepers/cascade/executor"
	"github.com/geepers/cascade/types"
)

// echoExecutor returns deterministic content keyed by agent index.
func echoExecutor() executor.WorkerExecutor {
	return executor.Func(func(ctx context.Context, agentIndex int, taskText string) (*executor.Result, error) {
		return &executor.Result{
			Content:    fmt.Sprintf("agent %d: %s", agentIndex, taskText),
			TokensUsed: 10 + agentIndex,
			Elapsed:    time.Millisecond,
		}, nil
	})
}

func TestRun_EmptyUnits(t *testing.T) {
	t.Parallel()

	r := NewRunner(echoExecutor(), Config{}, zap.NewNop())
	for _, mode := range []types.ExecMode{types.ModeParallel, types.ModeSequential, types.ModeHybrid} {
		results, err := r.Run(context.Background(), nil, mode)
		require.NoError(t, err, "mode %s", mode)
		assert.Empty(t, results, "mode %s", mode)
	}
}

func TestRun_ParallelPreservesInputOrder(t *testing.T) {
	t.Parallel()

	r := NewRunner(echoExecutor(), Config{MaxConcurrent: 4}, zap.NewNop())
	units := WorkerUnits("collect data", 8)

	results, err := r.Run(context.Background(), units, types.ModeParallel)
	require.NoError(t, err)
	require.Len(t, results, 8)
	for i, res := range results {
		assert.Equal(t, fmt.Sprintf("belter_%d", i), res.AgentID)
		assert.Equal(t, types.ResultCompleted, res.Status)
	}
}

func TestRun_SequentialIsolatesFailures(t *testing.T) {
	t.Parallel()

	exec := executor.Func(func(ctx context.Context, agentIndex int, taskText string) (*executor.Result, error) {
		if agentIndex == 1 {
			return nil, fmt.Errorf("provider unavailable")
		}
		return &executor.Result{Content: "ok", TokensUsed: 5}, nil
	})

	r := NewRunner(exec, Config{}, zap.NewNop())
	results, err := r.Run(context.Background(), WorkerUnits("t", 3), types.ModeSequential)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, types.ResultCompleted, results[0].Status)
	assert.Equal(t, types.ResultFailed, results[1].Status)
	assert.Contains(t, results[1].Content, "provider unavailable")
	assert.Equal(t, types.ResultCompleted, results[2].Status)
}

func TestRun_ParallelFailureNeverAbortsSiblings(t *testing.T) {
	t.Parallel()

	exec := executor.Func(func(ctx context.Context, agentIndex int, taskText string) (*executor.Result, error) {
		if agentIndex%2 == 0 {
			return nil, fmt.Errorf("boom %d", agentIndex)
		}
		return &executor.Result{Content: "ok", TokensUsed: 1}, nil
	})

	r := NewRunner(exec, Config{}, zap.NewNop())
	results, err := r.Run(context.Background(), WorkerUnits("t", 6), types.ModeParallel)
	require.NoError(t, err)
	require.Len(t, results, 6)
	for i, res := range results {
		if i%2 == 0 {
			assert.Equal(t, types.ResultFailed, res.Status, "unit %d", i)
		} else {
			assert.Equal(t, types.ResultCompleted, res.Status, "unit %d", i)
		}
	}
}

func TestRun_HybridConcatenatesPhases(t *testing.T) {
	t.Parallel()

	r := NewRunner(echoExecutor(), Config{}, zap.NewNop())
	units := WorkerUnits("investigate", 3)

	results, err := r.Run(context.Background(), units, types.ModeHybrid)
	require.NoError(t, err)
	require.Len(t, results, 6)

	for i := 0; i < 3; i++ {
		assert.Contains(t, results[i].Content, "Phase 1: research", "result %d", i)
	}
	for i := 3; i < 6; i++ {
		assert.Contains(t, results[i].Content, "Phase 2: synthesis", "result %d", i)
	}
	// Same stable agent ids across both passes.
	assert.Equal(t, results[0].AgentID, results[3].AgentID)
}

func TestRun_UnknownMode(t *testing.T) {
	t.Parallel()

	r := NewRunner(echoExecutor(), Config{}, zap.NewNop())
	_, err := r.Run(context.Background(), WorkerUnits("t", 1), "scatter")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrInvalidConfig))
}

func TestRun_SequentialStopsOnCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32

	exec := executor.Func(func(ctx context.Context, agentIndex int, taskText string) (*executor.Result, error) {
		if calls.Add(1) == 2 {
			cancel()
		}
		return &executor.Result{Content: "ok"}, nil
	})

	r := NewRunner(exec, Config{}, zap.NewNop())
	results, err := r.Run(ctx, WorkerUnits("t", 10), types.ModeSequential)
	require.ErrorIs(t, err, context.Canceled)

	// The two dispatched units ran to completion and are preserved.
	require.Len(t, results, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRun_DispatchedUnitsSurviveCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	exec := executor.Func(func(execCtx context.Context, agentIndex int, taskText string) (*executor.Result, error) {
		cancel()
		// The unit context must be shielded from run cancellation.
		if err := execCtx.Err(); err != nil {
			return nil, err
		}
		return &executor.Result{Content: strings.Repeat("x", 4)}, nil
	})

	r := NewRunner(exec, Config{}, zap.NewNop())
	results, err := r.Run(ctx, WorkerUnits("t", 1), types.ModeSequential)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 1)
	assert.Equal(t, types.ResultCompleted, results[0].Status)
}

func TestWorkerUnits(t *testing.T) {
	t.Parallel()

	units := WorkerUnits("task", 3)
	require.Len(t, units, 3)
	assert.Equal(t, "belter_0", units[0].AgentID)
	assert.Equal(t, "belter_2", units[2].AgentID)
	assert.Equal(t, 2, units[2].Index)

	assert.Empty(t, WorkerUnits("task", 0))
}

func TestTotalUnits(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 4, TotalUnits(4, types.ModeParallel))
	assert.Equal(t, 4, TotalUnits(4, types.ModeSequential))
	assert.Equal(t, 8, TotalUnits(4, types.ModeHybrid))
}
