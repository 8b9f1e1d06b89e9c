// Package metrics exposes Prometheus collectors for catalog refreshes, node
// executions and workflow persistence.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "agentflow"

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	catalogRefreshes *prometheus.CounterVec
	catalogModels    prometheus.Gauge
	nodeExecutions   *prometheus.CounterVec
	nodeDuration     *prometheus.HistogramVec
	tokens           *prometheus.CounterVec
	workflowSaves    *prometheus.CounterVec
}

// New creates the collectors on a dedicated registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		catalogRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "refreshes_total",
			Help:      "Model catalog fetches by outcome.",
		}, []string{"outcome"}),
		catalogModels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "models",
			Help:      "AI component definitions currently loaded.",
		}),
		nodeExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "node_executions_total",
			Help:      "Node executions by category and outcome.",
		}, []string{"category", "outcome"}),
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "node_duration_seconds",
			Help:      "Node execution latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"category"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "tokens_total",
			Help:      "Tokens reported by the inference endpoint.",
		}, []string{"model", "kind"}),
		workflowSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "saves_total",
			Help:      "Workflow persistence operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.catalogRefreshes,
		m.catalogModels,
		m.nodeExecutions,
		m.nodeDuration,
		m.tokens,
		m.workflowSaves,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Gatherer exposes the underlying registry, mostly for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *Metrics) CatalogRefreshed(models int, err error) {
	if m == nil {
		return
	}

	if err != nil {
		m.catalogRefreshes.WithLabelValues("failure").Inc()

		return
	}

	m.catalogRefreshes.WithLabelValues("success").Inc()
	m.catalogModels.Set(float64(models))
}

func (m *Metrics) NodeExecuted(category string, success bool, elapsed time.Duration) {
	if m == nil {
		return
	}

	m.nodeExecutions.WithLabelValues(category, outcome(success)).Inc()
	m.nodeDuration.WithLabelValues(category).Observe(elapsed.Seconds())
}

func (m *Metrics) TokensUsed(model string, prompt, completion int) {
	if m == nil {
		return
	}

	m.tokens.WithLabelValues(model, "prompt").Add(float64(prompt))
	m.tokens.WithLabelValues(model, "completion").Add(float64(completion))
}

func (m *Metrics) WorkflowPersisted(operation string, err error) {
	if m == nil {
		return
	}

	m.workflowSaves.WithLabelValues(operation, outcome(err == nil)).Inc()
}

func outcome(success bool) string {
	if success {
		return "success"
	}

	return "failure"
}
