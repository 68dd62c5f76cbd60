package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/geepers/cascade/executor"
	"github.com/geepers/cascade/internal/metrics"
	"github.com/geepers/cascade/internal/pool"
	"github.com/geepers/cascade/store"
	"github.com/geepers/cascade/synthesis"
	"github.com/geepers/cascade/tier"
	"github.com/geepers/cascade/types"
)

// Config configures an Orchestrator.
type Config struct {
	// MaxConcurrentUnits caps concurrently executing units within one tier.
	MaxConcurrentUnits int64

	// MaxPipelines caps concurrently running session pipelines.
	MaxPipelines int

	// PipelineQueueSize bounds accepted-but-not-running pipelines.
	PipelineQueueSize int

	// DefaultMidTierGroupSize applies when a task enables the mid tier
	// without specifying a cluster size.
	DefaultMidTierGroupSize int

	// CostPerKiloToken estimates run cost from total token usage (USD).
	CostPerKiloToken float64
}

// Orchestrator owns session lifecycle and pipeline execution.
type Orchestrator struct {
	exec     executor.WorkerExecutor
	sessions store.SessionStore
	stage    *synthesis.Stage
	pipes    *pool.Pool
	cfg      Config
	logger   *zap.Logger
	metrics  *metrics.Collector
	tracer   trace.Tracer

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	closed  bool
}

// New creates an orchestrator. The synthesis stage shares the worker
// executor so summaries go through the same provider path as workers.
// collector may be nil to disable metrics.
func New(exec executor.WorkerExecutor, sessions store.SessionStore, cfg Config, logger *zap.Logger, collector *metrics.Collector) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultMidTierGroupSize <= 0 {
		cfg.DefaultMidTierGroupSize = 3
	}

	o := &Orchestrator{
		exec:     exec,
		sessions: sessions,
		stage:    synthesis.NewStage(exec, logger),
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "orchestrator")),
		metrics:  collector,
		tracer:   otel.Tracer("cascade/orchestrator"),
		cancels:  make(map[string]context.CancelFunc),
	}

	o.pipes = pool.New(pool.Config{
		MaxWorkers: cfg.MaxPipelines,
		QueueSize:  cfg.PipelineQueueSize,
		PanicHandler: func(sessionID string, recovered any) {
			o.handlePanic(sessionID, recovered)
		},
	})

	return o
}

// Start validates the task, creates a session and schedules its pipeline.
// It returns the new session ID without waiting for the pipeline to run.
func (o *Orchestrator) Start(ctx context.Context, task types.Task) (string, error) {
	if task.EnableMidTier && task.MidTierGroupSize == 0 {
		task.MidTierGroupSize = o.cfg.DefaultMidTierGroupSize
	}
	if err := task.Validate(); err != nil {
		return "", err
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return "", types.NewError(types.ErrNotReady, "orchestrator is shut down")
	}
	o.mu.Unlock()

	id := uuid.New().String()
	session := &types.Session{
		ID:    id,
		Task:  task,
		State: types.StateCreated,
		Progress: types.Progress{
			TotalAgents: tier.TotalUnits(task.WorkerCount, task.Mode),
		},
		CreatedAt: time.Now(),
	}

	if err := o.sessions.Put(ctx, session); err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	// The pipeline outlives the Start call, so it gets its own context.
	runCtx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.cancels[id] = cancel
	o.mu.Unlock()

	err := o.pipes.Submit(runCtx, id, func(ctx context.Context) {
		o.runPipeline(ctx, id, task)
	})
	if err != nil {
		o.removeCancel(id)
		cancel()
		_ = o.sessions.Delete(context.WithoutCancel(ctx), id)
		return "", types.NewErrorf(types.ErrNotReady, "pipeline queue saturated: %v", err)
	}

	if o.metrics != nil {
		o.metrics.RecordSessionStarted()
	}

	o.logger.Info("session started",
		zap.String("session_id", id),
		zap.String("mode", string(task.Mode)),
		zap.Int("worker_count", task.WorkerCount),
	)

	return id, nil
}

// Status returns a snapshot of the session.
func (o *Orchestrator) Status(ctx context.Context, id string) (*types.Session, error) {
	return o.sessions.Get(ctx, id)
}

// ListSessions returns all known session IDs ordered by creation time.
func (o *Orchestrator) ListSessions(ctx context.Context) ([]string, error) {
	return o.sessions.ListIDs(ctx)
}

// Cancel requests cooperative cancellation of a session. It returns true
// when this call performed the transition to cancelled, and false when the
// session is unknown or already terminal. In-flight units run to
// completion; landed partial results are preserved.
func (o *Orchestrator) Cancel(ctx context.Context, id string) (bool, error) {
	ok, err := o.sessions.Cancel(ctx, id)
	if err != nil || !ok {
		return false, err
	}

	o.mu.Lock()
	cancel := o.cancels[id]
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	o.logger.Info("session cancelled", zap.String("session_id", id))
	return true, nil
}

// Results returns the final report of a completed session. It returns
// NOT_FOUND for unknown sessions and NOT_READY for sessions in any other
// state, terminal or not.
func (o *Orchestrator) Results(ctx context.Context, id string) (*types.Report, error) {
	session, err := o.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.State != types.StateCompleted {
		return nil, types.NewErrorf(types.ErrNotReady,
			"session %s is %s, results require completed", id, session.State)
	}
	return session.Report, nil
}

// Delete removes a session record.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	return o.sessions.Delete(ctx, id)
}

// Close cancels every running pipeline and waits for them to drain.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	cancels := make([]context.CancelFunc, 0, len(o.cancels))
	for _, c := range o.cancels {
		cancels = append(cancels, c)
	}
	o.mu.Unlock()

	for _, c := range cancels {
		c()
	}
	o.pipes.Close()
}

func (o *Orchestrator) removeCancel(id string) {
	o.mu.Lock()
	delete(o.cancels, id)
	o.mu.Unlock()
}

// handlePanic converts a pipeline panic into a failed session.
func (o *Orchestrator) handlePanic(sessionID string, recovered any) {
	o.logger.Error("pipeline panicked",
		zap.String("session_id", sessionID),
		zap.Any("panic", recovered),
	)
	o.removeCancel(sessionID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.sessions.Fail(ctx, sessionID, fmt.Sprintf("internal error: %v", recovered)); err != nil {
		o.logger.Warn("failed to record panic on session",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
	if o.metrics != nil {
		o.metrics.RecordSessionFinished(types.StateFailed, "", 0)
	}
}
