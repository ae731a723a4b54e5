package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects host-level counters and histograms.
//
// Tracked surfaces:
//   - hook dispatches and failures by domain/event
//   - tool executions and latency by tool id
//   - LLM requests by provider/model/status and overflow retries
//   - gateway RPC calls by method/status
type Metrics struct {
	// HookDispatches counts dispatch calls. Labels: domain, event.
	HookDispatches *prometheus.CounterVec

	// HookFailures counts handler failures. Labels: domain, event, timed_out.
	HookFailures *prometheus.CounterVec

	// ToolExecutions counts tool invocations. Labels: tool, status.
	ToolExecutions *prometheus.CounterVec

	// ToolDuration measures tool execution time in seconds. Labels: tool.
	ToolDuration *prometheus.HistogramVec

	// LLMRequests counts model calls. Labels: provider, model, status.
	LLMRequests *prometheus.CounterVec

	// OverflowRetries counts overflow-recovery retries. Labels: strategy.
	OverflowRetries *prometheus.CounterVec

	// GatewayRequests counts RPC dispatches. Labels: method, status.
	GatewayRequests *prometheus.CounterVec
}

// NewMetrics creates metrics registered on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		HookDispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "slashbot_hook_dispatches_total",
			Help: "Hook dispatch calls by domain and event.",
		}, []string{"domain", "event"}),
		HookFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "slashbot_hook_failures_total",
			Help: "Hook handler failures by domain, event, and timeout flag.",
		}, []string{"domain", "event", "timed_out"}),
		ToolExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "slashbot_tool_executions_total",
			Help: "Tool invocations by tool id and status.",
		}, []string{"tool", "status"}),
		ToolDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "slashbot_tool_duration_seconds",
			Help:    "Tool execution latency.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"tool"}),
		LLMRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "slashbot_llm_requests_total",
			Help: "LLM requests by provider, model, and status.",
		}, []string{"provider", "model", "status"}),
		OverflowRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "slashbot_overflow_retries_total",
			Help: "Context overflow recovery retries by strategy.",
		}, []string{"strategy"}),
		GatewayRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "slashbot_gateway_requests_total",
			Help: "Gateway RPC dispatches by method and status.",
		}, []string{"method", "status"}),
	}
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// Default returns the process-wide metrics instance, registered on the
// default Prometheus registry.
func Default() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}
