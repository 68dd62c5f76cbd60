package synthesis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/geepers/cascade/executor"
	"github.com/geepers/cascade/types"
)

// Stage synthesizes ordered AgentResults into a smaller ordered set.
type Stage struct {
	exec   executor.WorkerExecutor
	logger *zap.Logger
}

// NewStage creates a synthesis stage. A nil executor selects the
// deterministic concatenation path.
func NewStage(exec executor.WorkerExecutor, logger *zap.Logger) *Stage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stage{
		exec:   exec,
		logger: logger.With(zap.String("component", "synthesis_stage")),
	}
}

// SynthesizeMid splits the ordered results into contiguous clusters of
// groupSize (the last cluster may be smaller) and produces one synthesis
// result per cluster, ordered by cluster index.
//
// An empty input yields a single explicit result rather than a silent skip.
func (s *Stage) SynthesizeMid(ctx context.Context, task string, results []types.AgentResult, groupSize int) ([]types.AgentResult, error) {
	if groupSize <= 0 {
		return nil, types.NewErrorf(types.ErrInvalidConfig, "group size must be > 0, got %d", groupSize)
	}

	if len(results) == 0 {
		return []types.AgentResult{emptyInputResult("drummer_0")}, nil
	}

	clusters := clusterResults(results, groupSize)
	out := make([]types.AgentResult, 0, len(clusters))

	for i, cluster := range clusters {
		agentID := fmt.Sprintf("drummer_%d", i)
		out = append(out, s.synthesizeCluster(ctx, agentID, i, task, cluster))
	}

	s.logger.Debug("mid-tier synthesis completed",
		zap.Int("inputs", len(results)),
		zap.Int("clusters", len(clusters)),
	)

	return out, nil
}

// SynthesizeExecutive reduces the full ordered input into exactly one
// result. An empty input yields a single explicit result.
func (s *Stage) SynthesizeExecutive(ctx context.Context, task string, results []types.AgentResult) (types.AgentResult, error) {
	if len(results) == 0 {
		return emptyInputResult("camina"), nil
	}

	res := s.synthesizeCluster(ctx, "camina", 0, task, results)

	s.logger.Debug("executive synthesis completed",
		zap.Int("inputs", len(results)),
		zap.String("status", string(res.Status)),
	)

	return res, nil
}

// synthesizeCluster produces one synthesis result from a cluster. With an
// executor configured the summarization is a unit call whose failure is
// recorded, never propagated; without one the combination is a
// deterministic concatenation with attribution.
func (s *Stage) synthesizeCluster(ctx context.Context, agentID string, index int, task string, cluster []types.AgentResult) types.AgentResult {
	combined := combineWithAttribution(cluster)

	if s.exec == nil {
		return types.AgentResult{
			AgentID: agentID,
			Status:  types.ResultCompleted,
			Content: combined,
		}
	}

	prompt := fmt.Sprintf("Synthesize the following %d agent findings for task %q into a concise summary:\n\n%s",
		len(cluster), task, combined)

	start := time.Now()
	res, err := s.exec.Execute(ctx, index, prompt)
	if err != nil {
		s.logger.Warn("synthesis unit failed",
			zap.String("agent_id", agentID),
			zap.Error(err),
		)
		return types.AgentResult{
			AgentID: agentID,
			Status:  types.ResultFailed,
			Content: err.Error(),
			Elapsed: time.Since(start),
		}
	}

	return types.AgentResult{
		AgentID:    agentID,
		Status:     types.ResultCompleted,
		Content:    res.Content,
		TokensUsed: res.TokensUsed,
		Elapsed:    res.Elapsed,
	}
}

// clusterResults splits results into contiguous groups of size groupSize.
func clusterResults(results []types.AgentResult, groupSize int) [][]types.AgentResult {
	clusters := make([][]types.AgentResult, 0, (len(results)+groupSize-1)/groupSize)
	for start := 0; start < len(results); start += groupSize {
		end := start + groupSize
		if end > len(results) {
			end = len(results)
		}
		clusters = append(clusters, results[start:end])
	}
	return clusters
}

// combineWithAttribution concatenates cluster member contents, each under
// its agent id heading. Deterministic and reproducible for identical input.
func combineWithAttribution(cluster []types.AgentResult) string {
	var b strings.Builder
	for i, r := range cluster {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "### %s (%s)\n%s", r.AgentID, r.Status, r.Content)
	}
	return b.String()
}

// emptyInputResult makes the degenerate zero-input case explicit in the
// output instead of skipping silently.
func emptyInputResult(agentID string) types.AgentResult {
	return types.AgentResult{
		AgentID: agentID,
		Status:  types.ResultCompleted,
		Content: "No agent results were available to synthesize.",
	}
}
