package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the orchestrator.
// A nil *Metrics is valid and records nothing.
//
// Metrics:
//   - techassist_requests_total{agent_type,status}
//   - techassist_request_duration_seconds{agent_type}
//   - techassist_classifications_total{method}
//   - techassist_classifier_cache_total{result}
//   - techassist_routing_decisions_total{agent_type,reason}
//   - techassist_llm_calls_total{provider,status}
//   - techassist_llm_tokens_total{provider,kind}
//   - techassist_registry_refreshes_total{status}
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal        *prometheus.CounterVec
	RequestDuration      *prometheus.HistogramVec
	ClassificationsTotal *prometheus.CounterVec
	ClassifierCache      *prometheus.CounterVec
	RoutingDecisions     *prometheus.CounterVec
	LLMCalls             *prometheus.CounterVec
	LLMTokens            *prometheus.CounterVec
	RegistryRefreshes    *prometheus.CounterVec
}

// New creates collectors on a private registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "techassist_requests_total",
			Help: "Orchestrator requests processed, by answering agent type and outcome",
		}, []string{"agent_type", "status"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "techassist_request_duration_seconds",
			Help:    "End-to-end orchestrator request latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"agent_type"}),
		ClassificationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "techassist_classifications_total",
			Help: "Classifications by method (quick, llm, fallback)",
		}, []string{"method"}),
		ClassifierCache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "techassist_classifier_cache_total",
			Help: "Classifier cache lookups by result (hit, miss)",
		}, []string{"result"}),
		RoutingDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "techassist_routing_decisions_total",
			Help: "Routing decisions by selected agent type and reason",
		}, []string{"agent_type", "reason"}),
		LLMCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "techassist_llm_calls_total",
			Help: "LLM chat calls by provider and outcome",
		}, []string{"provider", "status"}),
		LLMTokens: f.NewCounterVec(prometheus.CounterOpts{
			Name: "techassist_llm_tokens_total",
			Help: "LLM tokens consumed by provider and kind (prompt, completion)",
		}, []string{"provider", "kind"}),
		RegistryRefreshes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "techassist_registry_refreshes_total",
			Help: "Agent registry rebuilds by outcome",
		}, []string{"status"}),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveRequest(agentType, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(agentType, status).Inc()
	m.RequestDuration.WithLabelValues(agentType).Observe(d.Seconds())
}

func (m *Metrics) IncClassification(method string) {
	if m == nil {
		return
	}
	m.ClassificationsTotal.WithLabelValues(method).Inc()
}

func (m *Metrics) IncCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.ClassifierCache.WithLabelValues(result).Inc()
}

func (m *Metrics) IncRouting(agentType, reason string) {
	if m == nil {
		return
	}
	m.RoutingDecisions.WithLabelValues(agentType, reason).Inc()
}

func (m *Metrics) ObserveLLMCall(provider string, err error, promptTokens, completionTokens int) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.LLMCalls.WithLabelValues(provider, status).Inc()
	if promptTokens > 0 {
		m.LLMTokens.WithLabelValues(provider, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokens.WithLabelValues(provider, "completion").Add(float64(completionTokens))
	}
}

func (m *Metrics) IncRegistryRefresh(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RegistryRefreshes.WithLabelValues(status).Inc()
}
