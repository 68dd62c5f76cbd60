package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/geepers/cascade/types"
)

func TestCollector_RecordsSessionAndUnitMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("cascade", reg, nil)

	c.RecordSessionStarted()
	c.RecordSessionStarted()
	c.RecordSessionFinished(types.StateCompleted, types.ModeParallel, 3*time.Second)

	c.RecordUnitExecution("worker", types.AgentResult{
		AgentID:    "belter_0",
		Status:     types.ResultCompleted,
		TokensUsed: 120,
		Elapsed:    time.Second,
	})
	c.RecordUnitExecution("worker", types.AgentResult{
		AgentID: "belter_1",
		Status:  types.ResultFailed,
	})
	c.RecordCost(0.05)

	if got := testutil.ToFloat64(c.sessionsStarted); got != 2 {
		t.Errorf("sessions started: got %v", got)
	}
	if got := testutil.ToFloat64(c.sessionsFinished.WithLabelValues("completed")); got != 1 {
		t.Errorf("sessions finished: got %v", got)
	}
	if got := testutil.ToFloat64(c.unitExecutions.WithLabelValues("worker", "completed")); got != 1 {
		t.Errorf("completed units: got %v", got)
	}
	if got := testutil.ToFloat64(c.unitExecutions.WithLabelValues("worker", "failed")); got != 1 {
		t.Errorf("failed units: got %v", got)
	}
	if got := testutil.ToFloat64(c.tokensUsed); got != 120 {
		t.Errorf("tokens used: got %v", got)
	}
	if got := testutil.ToFloat64(c.estimatedCost); got != 0.05 {
		t.Errorf("estimated cost: got %v", got)
	}
}

func TestCollector_HTTPMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("cascade", reg, nil)

	c.RecordHTTPRequest("POST", "/api/v1/sessions", "202", 10*time.Millisecond)

	if got := testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/api/v1/sessions", "202")); got != 1 {
		t.Errorf("http requests: got %v", got)
	}
}
