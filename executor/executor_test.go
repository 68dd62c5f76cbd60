package executor

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestSimExecutor_Execute(t *testing.T) {
	t.Parallel()

	exec := NewSimExecutor(SimConfig{BaseDelay: time.Millisecond, Seed: 1}, nil)

	res, err := exec.Execute(context.Background(), 3, "analyze the data")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(res.Content, "Agent 3") {
		t.Errorf("content should mention agent index, got %q", res.Content)
	}
	if res.TokensUsed <= 0 {
		t.Errorf("expected positive token count, got %d", res.TokensUsed)
	}
	if res.Elapsed <= 0 {
		t.Errorf("expected positive elapsed time")
	}
}

func TestSimExecutor_FailEvery(t *testing.T) {
	t.Parallel()

	exec := NewSimExecutor(SimConfig{FailEvery: 2, Seed: 1}, nil)
	ctx := context.Background()

	if _, err := exec.Execute(ctx, 0, "x"); err != nil {
		t.Fatalf("call 1 should succeed: %v", err)
	}
	if _, err := exec.Execute(ctx, 1, "x"); err == nil {
		t.Fatalf("call 2 should fail")
	}
	if _, err := exec.Execute(ctx, 2, "x"); err != nil {
		t.Fatalf("call 3 should succeed: %v", err)
	}
}

func TestWithTimeout_DeadlineSurfacesAsError(t *testing.T) {
	t.Parallel()

	slow := NewSimExecutor(SimConfig{BaseDelay: time.Second, Seed: 1}, nil)
	exec := WithTimeout(slow, 10*time.Millisecond)

	_, err := exec.Execute(context.Background(), 0, "x")
	if err == nil {
		t.Fatalf("expected deadline error")
	}
}

func TestWithTimeout_Disabled(t *testing.T) {
	t.Parallel()

	exec := NewSimExecutor(SimConfig{Seed: 1}, nil)
	if WithTimeout(exec, 0) != WorkerExecutor(exec) {
		t.Fatalf("non-positive timeout should return executor unchanged")
	}
}

func TestWithRateLimit_PassesThrough(t *testing.T) {
	t.Parallel()

	exec := WithRateLimit(NewSimExecutor(SimConfig{Seed: 1}, nil), 1000, 10)
	res, err := exec.Execute(context.Background(), 0, "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Content == "" {
		t.Fatalf("expected content")
	}
}

func TestEstimateCounter(t *testing.T) {
	t.Parallel()

	c := EstimateCounter{}
	if got := c.CountTokens(""); got != 0 {
		t.Errorf("empty text: got %d, want 0", got)
	}
	if got := c.CountTokens("ab"); got != 1 {
		t.Errorf("short text: got %d, want 1", got)
	}
	if got := c.CountTokens(strings.Repeat("a", 40)); got != 10 {
		t.Errorf("40 chars: got %d, want 10", got)
	}
}
