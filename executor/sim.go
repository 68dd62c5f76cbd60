package executor

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// SimConfig configures the simulated executor.
type SimConfig struct {
	// BaseDelay is the minimum latency per unit.
	BaseDelay time.Duration `json:"base_delay" yaml:"base_delay"`

	// Jitter adds up to this much random extra latency per unit.
	Jitter time.Duration `json:"jitter" yaml:"jitter"`

	// FailEvery makes every Nth call (1-based) fail. Zero disables failures.
	FailEvery int `json:"fail_every" yaml:"fail_every"`

	// Seed seeds the jitter source for reproducible runs. Zero uses the
	// current time.
	Seed int64 `json:"seed" yaml:"seed"`
}

// DefaultSimConfig returns sensible defaults for demos.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		BaseDelay: 50 * time.Millisecond,
		Jitter:    100 * time.Millisecond,
	}
}

// SimExecutor simulates unit work with configurable latency, jitter and
// failure injection. Used by tests and the demo CLI path; production wires a
// real provider behind the WorkerExecutor interface instead.
type SimExecutor struct {
	cfg     SimConfig
	counter TokenCounter

	mu    sync.Mutex
	rng   *rand.Rand
	calls int
}

// NewSimExecutor creates a simulated executor.
// A nil counter falls back to character-based estimation.
func NewSimExecutor(cfg SimConfig, counter TokenCounter) *SimExecutor {
	if counter == nil {
		counter = EstimateCounter{}
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SimExecutor{
		cfg:     cfg,
		counter: counter,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Execute simulates one unit of work.
func (e *SimExecutor) Execute(ctx context.Context, agentIndex int, taskText string) (*Result, error) {
	start := time.Now()

	e.mu.Lock()
	e.calls++
	call := e.calls
	delay := e.cfg.BaseDelay
	if e.cfg.Jitter > 0 {
		delay += time.Duration(e.rng.Int63n(int64(e.cfg.Jitter)))
	}
	e.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if e.cfg.FailEvery > 0 && call%e.cfg.FailEvery == 0 {
		return nil, fmt.Errorf("simulated failure on call %d", call)
	}

	content := fmt.Sprintf("Agent %d processed: %s", agentIndex, taskText)
	return &Result{
		Content:    content,
		TokensUsed: e.counter.CountTokens(content),
		Elapsed:    time.Since(start),
	}, nil
}
