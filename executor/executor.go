package executor

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Result is the outcome of a single unit execution.
type Result struct {
	// Content is the produced text.
	Content string

	// TokensUsed is the token count for the unit, non-negative.
	TokensUsed int

	// Elapsed is the wall-clock duration of the call.
	Elapsed time.Duration
}

// WorkerExecutor executes one unit of work. The engine never inspects
// provider identity; this contract is its only dependency on the outside.
//
// Implementations should honor ctx cancellation and deadlines. A returned
// error is recorded by the caller as a failed AgentResult and never aborts
// sibling units.
type WorkerExecutor interface {
	Execute(ctx context.Context, agentIndex int, taskText string) (*Result, error)
}

// Func adapts a plain function to the WorkerExecutor interface.
type Func func(ctx context.Context, agentIndex int, taskText string) (*Result, error)

// Execute implements WorkerExecutor.
func (f Func) Execute(ctx context.Context, agentIndex int, taskText string) (*Result, error) {
	return f(ctx, agentIndex, taskText)
}

// timeoutExecutor bounds each unit invocation individually. A deadline hit
// surfaces as an ordinary executor error, not a fatal pipeline error.
type timeoutExecutor struct {
	next    WorkerExecutor
	timeout time.Duration
}

// WithTimeout wraps exec so every Execute call is bounded by timeout.
// A non-positive timeout returns exec unchanged.
func WithTimeout(exec WorkerExecutor, timeout time.Duration) WorkerExecutor {
	if timeout <= 0 {
		return exec
	}
	return &timeoutExecutor{next: exec, timeout: timeout}
}

func (e *timeoutExecutor) Execute(ctx context.Context, agentIndex int, taskText string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.next.Execute(ctx, agentIndex, taskText)
}

// rateLimitedExecutor caps the rate of outbound executor calls across all
// sessions sharing the wrapper.
type rateLimitedExecutor struct {
	next    WorkerExecutor
	limiter *rate.Limiter
}

// WithRateLimit wraps exec with a token-bucket limiter of rps requests per
// second and the given burst. A non-positive rps returns exec unchanged.
func WithRateLimit(exec WorkerExecutor, rps float64, burst int) WorkerExecutor {
	if rps <= 0 {
		return exec
	}
	return &rateLimitedExecutor{
		next:    exec,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (e *rateLimitedExecutor) Execute(ctx context.Context, agentIndex int, taskText string) (*Result, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return e.next.Execute(ctx, agentIndex, taskText)
}
