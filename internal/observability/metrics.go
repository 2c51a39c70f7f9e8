package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the runtime's Prometheus metrics: step throughput and
// latency, retries, tool executions, compactions, and token usage.
type Metrics struct {
	// StepCounter counts agent steps.
	// Labels: model, status (success|error)
	StepCounter *prometheus.CounterVec

	// StepDuration measures step latency in seconds.
	// Labels: model
	StepDuration *prometheus.HistogramVec

	// RetryCounter counts retried stream attempts.
	// Labels: error_kind (rate_limited|timeout|connection|server_error|unknown)
	RetryCounter *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// CompactionCounter counts history compactions.
	// Labels: strategy
	CompactionCounter *prometheus.CounterVec

	// TokensUsed tracks token consumption.
	// Labels: provider, model, type (input|output|cache_write|cache_read)
	TokensUsed *prometheus.CounterVec

	// ActiveRuns is a gauge of runs currently executing.
	ActiveRuns prometheus.Gauge
}

// NewMetrics creates and registers all collectors on reg; nil selects
// the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		StepCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "praxis_steps_total",
				Help: "Total number of agent steps by model and status",
			},
			[]string{"model", "status"},
		),

		StepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "praxis_step_duration_seconds",
				Help:    "Duration of agent steps in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"model"},
		),

		RetryCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "praxis_retries_total",
				Help: "Total number of retried stream attempts by error kind",
			},
			[]string{"error_kind"},
		),

		ToolExecutionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "praxis_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "praxis_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		CompactionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "praxis_compactions_total",
				Help: "Total number of history compactions by strategy",
			},
			[]string{"strategy"},
		),

		TokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "praxis_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		ActiveRuns: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "praxis_active_runs",
				Help: "Number of agent runs currently executing",
			},
		),
	}
}

// RecordStep records one completed step.
func (m *Metrics) RecordStep(model, status string, durationSeconds float64) {
	m.StepCounter.WithLabelValues(model, status).Inc()
	m.StepDuration.WithLabelValues(model).Observe(durationSeconds)
}

// RecordRetry records one retried stream attempt.
func (m *Metrics) RecordRetry(errorKind string) {
	m.RetryCounter.WithLabelValues(errorKind).Inc()
}

// RecordToolExecution records one tool invocation.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordCompaction records one history compaction.
func (m *Metrics) RecordCompaction(strategy string) {
	m.CompactionCounter.WithLabelValues(strategy).Inc()
}

// RecordTokens records per-step token usage.
func (m *Metrics) RecordTokens(provider, model string, input, output, cacheWrite, cacheRead int64) {
	if input > 0 {
		m.TokensUsed.WithLabelValues(provider, model, "input").Add(float64(input))
	}
	if output > 0 {
		m.TokensUsed.WithLabelValues(provider, model, "output").Add(float64(output))
	}
	if cacheWrite > 0 {
		m.TokensUsed.WithLabelValues(provider, model, "cache_write").Add(float64(cacheWrite))
	}
	if cacheRead > 0 {
		m.TokensUsed.WithLabelValues(provider, model, "cache_read").Add(float64(cacheRead))
	}
}

// RunStarted increments the active run gauge.
func (m *Metrics) RunStarted() { m.ActiveRuns.Inc() }

// RunEnded decrements the active run gauge.
func (m *Metrics) RunEnded() { m.ActiveRuns.Dec() }
