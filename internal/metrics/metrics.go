// Package metrics holds the Prometheus collectors for the service. Each
// Metrics owns its registry so tests can create as many as they like.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hackhub"

// Workflow outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomePartial  = "partial"
	OutcomeFailure  = "failure"
	OutcomeRejected = "rejected"
)

type Metrics struct {
	registry *prometheus.Registry

	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	workflows        *prometheus.CounterVec
	workflowDuration *prometheus.HistogramVec
	roleResolutions  *prometheus.CounterVec
	outboxEntries    *prometheus.CounterVec
	activeSessions   prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		workflows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_runs_total",
			Help:      "Multi-step write workflows by name and outcome.",
		}, []string{"workflow", "outcome"}),
		workflowDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_duration_seconds",
			Help:      "Workflow latency including every backend call.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"workflow"}),
		roleResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "role_resolutions_total",
			Help:      "Role lookups by resulting status.",
		}, []string{"status"}),
		outboxEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "membership_outbox_total",
			Help:      "Pending leader memberships by event (recorded, resolved, retried, abandoned).",
		}, []string{"event"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Browser session stores held in memory.",
		}),
	}
	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.workflows,
		m.workflowDuration,
		m.roleResolutions,
		m.outboxEntries,
		m.activeSessions,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// ObserveWorkflow records one finished workflow run.
func (m *Metrics) ObserveWorkflow(workflow, outcome string, d time.Duration) {
	m.workflows.WithLabelValues(workflow, outcome).Inc()
	m.workflowDuration.WithLabelValues(workflow).Observe(d.Seconds())
}

func (m *Metrics) RoleResolved(status string) {
	m.roleResolutions.WithLabelValues(status).Inc()
}

func (m *Metrics) Outbox(event string) {
	m.outboxEntries.WithLabelValues(event).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}
