// Package metrics exposes Prometheus instrumentation for agent runs and
// search calls.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "policy_tracker"

// Metrics holds the collectors on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal      *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	itemsFound     *prometheus.CounterVec
	itemsUpdated   *prometheus.CounterVec
	runErrors      *prometheus.CounterVec
	runCostUSD     *prometheus.CounterVec
	lastSuccess    *prometheus.GaugeVec
	searchTotal    *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec
	webSearches    *prometheus.CounterVec
	circuitState   *prometheus.GaugeVec
	leaseRejected  *prometheus.CounterVec
}

// New registers every collector plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "agent_runs_total",
		Help:      "Agent runs by agent, trigger and outcome",
	}, []string{"agent", "trigger", "outcome"})
	m.runDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "agent_run_duration_seconds",
		Help:      "Wall-clock duration of agent runs",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"agent"})
	m.itemsFound = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "agent_items_found_total",
		Help:      "New items persisted by agent runs",
	}, []string{"agent"})
	m.itemsUpdated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "agent_items_updated_total",
		Help:      "Existing items updated by agent runs",
	}, []string{"agent"})
	m.runErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "agent_run_errors_total",
		Help:      "Error strings recorded in agent run logs",
	}, []string{"agent"})
	m.runCostUSD = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "agent_run_cost_usd_total",
		Help:      "Search-service spend attributed to agent runs",
	}, []string{"agent"})
	m.lastSuccess = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "agent_last_success_timestamp_seconds",
		Help:      "Unix time of the last successful run",
	}, []string{"agent"})
	m.searchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "search_requests_total",
		Help:      "Search service calls by provider and outcome",
	}, []string{"provider", "outcome"})
	m.searchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "search_request_duration_seconds",
		Help:      "Latency of search service calls",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
	}, []string{"provider"})
	m.webSearches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "web_searches_total",
		Help:      "Web searches performed by the model",
	}, []string{"provider"})
	m.circuitState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "search_circuit_state",
		Help:      "Circuit breaker state per provider (0 closed, 1 open, 2 half-open)",
	}, []string{"provider"})
	m.leaseRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "agent_runs_rejected_total",
		Help:      "Runs refused because another run of the same agent held the lease",
	}, []string{"agent"})

	m.registry.MustRegister(
		m.runsTotal, m.runDuration, m.itemsFound, m.itemsUpdated, m.runErrors,
		m.runCostUSD, m.lastSuccess, m.searchTotal, m.searchDuration,
		m.webSearches, m.circuitState, m.leaseRejected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Run is the summary of one finished agent run.
type Run struct {
	Agent        string
	Trigger      string
	Success      bool
	Duration     time.Duration
	ItemsFound   int
	ItemsUpdated int
	Errors       int
	CostUSD      float64
	FinishedAt   time.Time
}

// ObserveRun records a finished agent run.
func (m *Metrics) ObserveRun(r Run) {
	if m == nil {
		return
	}
	outcome := "failure"
	if r.Success {
		outcome = "success"
		m.lastSuccess.WithLabelValues(r.Agent).Set(float64(r.FinishedAt.Unix()))
	}
	m.runsTotal.WithLabelValues(r.Agent, r.Trigger, outcome).Inc()
	m.runDuration.WithLabelValues(r.Agent).Observe(r.Duration.Seconds())
	m.itemsFound.WithLabelValues(r.Agent).Add(float64(r.ItemsFound))
	m.itemsUpdated.WithLabelValues(r.Agent).Add(float64(r.ItemsUpdated))
	m.runErrors.WithLabelValues(r.Agent).Add(float64(r.Errors))
	m.runCostUSD.WithLabelValues(r.Agent).Add(r.CostUSD)
}

// ObserveSearch records one search service call.
func (m *Metrics) ObserveSearch(provider string, d time.Duration, webSearches int, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.searchTotal.WithLabelValues(provider, outcome).Inc()
	m.searchDuration.WithLabelValues(provider).Observe(d.Seconds())
	m.webSearches.WithLabelValues(provider).Add(float64(webSearches))
}

// SetCircuitState records a breaker transition. state follows
// resilience.CircuitState ordering.
func (m *Metrics) SetCircuitState(provider string, state int) {
	if m == nil {
		return
	}
	m.circuitState.WithLabelValues(provider).Set(float64(state))
}

// LeaseRejected counts a run refused because the agent was already running.
func (m *Metrics) LeaseRejected(agent string) {
	if m == nil {
		return
	}
	m.leaseRejected.WithLabelValues(agent).Inc()
}

// Registry exposes the underlying registry for tests and custom handlers.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
