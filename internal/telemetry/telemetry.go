package telemetry

import (
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Telemetry aggregates the service's Prometheus metrics and a running LLM
// cost total. A nil *Telemetry is valid: every method no-ops, so callers can
// run with metrics disabled without guarding each call site.
type Telemetry struct {
	registry *prometheus.Registry
	logger   *log.Logger

	llmRequests  *prometheus.CounterVec
	llmTokens    *prometheus.CounterVec
	llmCost      *prometheus.CounterVec
	researchRuns *prometheus.CounterVec
	researchTime *prometheus.HistogramVec
	toolCalls    *prometheus.CounterVec
	httpRequests *prometheus.CounterVec

	mu        sync.Mutex
	totalCost float64
}

// New builds a Telemetry instance with its own registry.
func New(logger *log.Logger) *Telemetry {
	if logger == nil {
		logger = log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags)
	}
	t := &Telemetry{
		registry: prometheus.NewRegistry(),
		logger:   logger,
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quest_llm_requests_total",
			Help: "LLM requests by provider and model.",
		}, []string{"provider", "model"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quest_llm_tokens_total",
			Help: "Token usage by model and direction.",
		}, []string{"model", "direction"}),
		llmCost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quest_llm_cost_dollars_total",
			Help: "Estimated LLM spend in dollars by model.",
		}, []string{"model"}),
		researchRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quest_research_runs_total",
			Help: "Research runs by depth and outcome.",
		}, []string{"depth", "outcome"}),
		researchTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quest_research_duration_seconds",
			Help:    "Wall-clock duration of research runs.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"depth"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quest_tool_calls_total",
			Help: "Agent tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quest_http_requests_total",
			Help: "HTTP requests by route and status class.",
		}, []string{"route", "status"}),
	}
	t.registry.MustRegister(
		t.llmRequests, t.llmTokens, t.llmCost,
		t.researchRuns, t.researchTime, t.toolCalls, t.httpRequests,
	)
	return t
}

// Registry exposes the underlying registry for the metrics endpoint.
func (t *Telemetry) Registry() *prometheus.Registry {
	if t == nil {
		return nil
	}
	return t.registry
}

// RecordLLMUsage tracks one model call's tokens and estimated cost.
func (t *Telemetry) RecordLLMUsage(provider, model string, inputTokens, outputTokens int64, cost float64) {
	if t == nil {
		return
	}
	t.llmRequests.WithLabelValues(provider, model).Inc()
	t.llmTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	t.llmTokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	t.llmCost.WithLabelValues(model).Add(cost)

	t.mu.Lock()
	t.totalCost += cost
	t.mu.Unlock()
}

// TotalCost returns the accumulated spend since startup.
func (t *Telemetry) TotalCost() float64 {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalCost
}

// RecordResearchRun tracks one completed or failed research flow.
func (t *Telemetry) RecordResearchRun(depth string, steps int, d time.Duration, success bool) {
	if t == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	t.researchRuns.WithLabelValues(depth, outcome).Inc()
	t.researchTime.WithLabelValues(depth).Observe(d.Seconds())
	if !success {
		t.logger.Printf("research run failed after %d steps (%v)", steps, d)
	}
}

// RecordToolCall tracks one agent tool invocation.
func (t *Telemetry) RecordToolCall(tool string, success bool) {
	if t == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	t.toolCalls.WithLabelValues(tool, outcome).Inc()
}

// RecordHTTPRequest tracks one served request.
func (t *Telemetry) RecordHTTPRequest(route string, status int) {
	if t == nil {
		return
	}
	t.httpRequests.WithLabelValues(route, statusClass(status)).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
