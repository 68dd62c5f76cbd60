// Package metrics provides Prometheus metrics for the orchestration engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/geepers/cascade/types"
)

// Collector aggregates cascade metrics for a Prometheus registry.
type Collector struct {
	// Session metrics
	sessionsStarted  prometheus.Counter
	sessionsFinished *prometheus.CounterVec
	sessionDuration  *prometheus.HistogramVec

	// Unit metrics
	unitExecutions *prometheus.CounterVec
	unitDuration   *prometheus.HistogramVec
	tokensUsed     prometheus.Counter
	estimatedCost  prometheus.Counter

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector creates and registers cascade metrics on the given registry.
// A nil registerer falls back to the default one.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.sessionsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_started_total",
		Help:      "Total number of orchestration sessions started",
	})

	c.sessionsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_finished_total",
		Help:      "Total number of sessions reaching a terminal state",
	}, []string{"state"})

	c.sessionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "session_duration_seconds",
		Help:      "Session duration from start to terminal state",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"state", "mode"})

	c.unitExecutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "unit_executions_total",
		Help:      "Total number of agent unit executions",
	}, []string{"tier", "status"})

	c.unitDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "unit_duration_seconds",
		Help:      "Agent unit execution duration",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"tier"})

	c.tokensUsed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tokens_used_total",
		Help:      "Total tokens consumed across all sessions",
	})

	c.estimatedCost = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "estimated_cost_usd_total",
		Help:      "Estimated cumulative cost in USD",
	})

	c.httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	c.httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	reg.MustRegister(
		c.sessionsStarted,
		c.sessionsFinished,
		c.sessionDuration,
		c.unitExecutions,
		c.unitDuration,
		c.tokensUsed,
		c.estimatedCost,
		c.httpRequestsTotal,
		c.httpRequestDuration,
	)

	return c
}

// RecordSessionStarted counts a new session.
func (c *Collector) RecordSessionStarted() {
	c.sessionsStarted.Inc()
}

// RecordSessionFinished counts a terminal session and its duration.
func (c *Collector) RecordSessionFinished(state types.SessionState, mode types.ExecMode, duration time.Duration) {
	c.sessionsFinished.WithLabelValues(string(state)).Inc()
	c.sessionDuration.WithLabelValues(string(state), string(mode)).Observe(duration.Seconds())
}

// RecordUnitExecution counts one unit result.
func (c *Collector) RecordUnitExecution(tier string, result types.AgentResult) {
	c.unitExecutions.WithLabelValues(tier, string(result.Status)).Inc()
	c.unitDuration.WithLabelValues(tier).Observe(result.Elapsed.Seconds())
	if result.TokensUsed > 0 {
		c.tokensUsed.Add(float64(result.TokensUsed))
	}
}

// RecordCost adds to the cumulative estimated cost.
func (c *Collector) RecordCost(usd float64) {
	if usd > 0 {
		c.estimatedCost.Add(usd)
	}
}

// RecordHTTPRequest counts one HTTP request.
func (c *Collector) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
