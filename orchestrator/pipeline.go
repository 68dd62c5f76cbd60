package orchestrator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/geepers/cascade/tier"
	"github.com/geepers/cascade/types"
)

// runPipeline executes one session end to end: worker tier, optional mid
// and executive synthesis, then report assembly. It runs on the pipeline
// pool; ctx is the session's cancellation context.
func (o *Orchestrator) runPipeline(ctx context.Context, id string, task types.Task) {
	defer o.removeCancel(id)

	logger := o.logger.With(zap.String("session_id", id))
	start := time.Now()

	ctx, span := o.tracer.Start(ctx, "session.pipeline")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", id),
		attribute.String("session.mode", string(task.Mode)),
		attribute.Int("session.worker_count", task.WorkerCount),
	)

	// A session cancelled before the pipeline was picked up is already
	// terminal; the transition fails and the pipeline never starts.
	if err := o.sessions.UpdateState(ctx, id, types.StateRunning); err != nil {
		logger.Info("pipeline skipped, session no longer startable", zap.Error(err))
		return
	}

	storeCtx := context.WithoutCancel(ctx)

	runner := tier.NewRunner(o.exec, tier.Config{
		MaxConcurrent: o.cfg.MaxConcurrentUnits,
		OnResult: func(res types.AgentResult) {
			if err := o.sessions.AppendPartial(storeCtx, id, res); err != nil {
				logger.Warn("failed to record partial result", zap.Error(err))
			}
			if o.metrics != nil {
				o.metrics.RecordUnitExecution("worker", res)
			}
		},
	}, logger)

	workers, err := runner.Run(ctx, tier.WorkerUnits(task.Description, task.WorkerCount), task.Mode)
	if err != nil {
		o.finishInterrupted(ctx, id, task, start, span, err)
		return
	}
	if ctx.Err() != nil {
		o.finishInterrupted(ctx, id, task, start, span, ctx.Err())
		return
	}

	var midTier []types.AgentResult
	if task.EnableMidTier {
		midTier, err = o.stage.SynthesizeMid(ctx, task.Description, workers, task.MidTierGroupSize)
		if err != nil {
			o.failPipeline(storeCtx, id, task, start, span, err)
			return
		}
		for _, res := range midTier {
			if o.metrics != nil {
				o.metrics.RecordUnitExecution("mid", res)
			}
		}
		if ctx.Err() != nil {
			o.finishInterrupted(ctx, id, task, start, span, ctx.Err())
			return
		}
	}

	var executive *types.AgentResult
	if task.EnableExecutive {
		input := workers
		if task.EnableMidTier {
			input = midTier
		}
		res, err := o.stage.SynthesizeExecutive(ctx, task.Description, input)
		if err != nil {
			o.failPipeline(storeCtx, id, task, start, span, err)
			return
		}
		executive = &res
		if o.metrics != nil {
			o.metrics.RecordUnitExecution("executive", res)
		}
		if ctx.Err() != nil {
			o.finishInterrupted(ctx, id, task, start, span, ctx.Err())
			return
		}
	}

	elapsed := time.Since(start)
	totalTokens := types.TotalTokens(workers, midTier, executive)
	cost := float64(totalTokens) / 1000 * o.cfg.CostPerKiloToken

	report := &types.Report{
		Title:     task.DisplayTitle(),
		Workers:   workers,
		MidTier:   midTier,
		Executive: executive,
		Metadata: types.ReportMetadata{
			AgentCount:    len(workers),
			TotalTokens:   totalTokens,
			Elapsed:       elapsed,
			EstimatedCost: cost,
		},
	}

	if err := o.sessions.Complete(storeCtx, id, report); err != nil {
		// A concurrent cancel can win the race to the terminal state.
		logger.Info("completion lost to a concurrent terminal transition", zap.Error(err))
		span.SetStatus(codes.Error, "completion superseded")
		return
	}

	span.SetAttributes(
		attribute.Int("session.total_tokens", totalTokens),
		attribute.Float64("session.estimated_cost", cost),
	)
	span.SetStatus(codes.Ok, "")

	if o.metrics != nil {
		o.metrics.RecordSessionFinished(types.StateCompleted, task.Mode, elapsed)
		o.metrics.RecordCost(cost)
	}

	logger.Info("session completed",
		zap.Duration("elapsed", elapsed),
		zap.Int("total_tokens", totalTokens),
		zap.Int("worker_results", len(workers)),
	)
}

// finishInterrupted handles a pipeline cut short by cancellation. The
// session is normally already cancelled by the Cancel call that fired the
// context; the store transition here covers shutdown-driven cancellation.
func (o *Orchestrator) finishInterrupted(ctx context.Context, id string, task types.Task, start time.Time, span trace.Span, cause error) {
	storeCtx := context.WithoutCancel(ctx)
	if _, err := o.sessions.Cancel(storeCtx, id); err != nil {
		o.logger.Warn("failed to mark interrupted session cancelled",
			zap.String("session_id", id),
			zap.Error(err),
		)
	}
	span.SetStatus(codes.Error, cause.Error())

	if o.metrics != nil {
		o.metrics.RecordSessionFinished(types.StateCancelled, task.Mode, time.Since(start))
	}

	o.logger.Info("session pipeline interrupted",
		zap.String("session_id", id),
		zap.Error(cause),
	)
}

// failPipeline records an unexpected pipeline error as a failed session.
func (o *Orchestrator) failPipeline(storeCtx context.Context, id string, task types.Task, start time.Time, span trace.Span, cause error) {
	wrapped := types.NewError(types.ErrPipelineFailure, "pipeline stage failed").WithCause(cause)
	if err := o.sessions.Fail(storeCtx, id, wrapped.Error()); err != nil {
		o.logger.Warn("failed to mark session failed",
			zap.String("session_id", id),
			zap.Error(err),
		)
	}
	span.SetStatus(codes.Error, cause.Error())

	if o.metrics != nil {
		o.metrics.RecordSessionFinished(types.StateFailed, task.Mode, time.Since(start))
	}

	o.logger.Error("session pipeline failed",
		zap.String("session_id", id),
		zap.Error(cause),
	)
}
