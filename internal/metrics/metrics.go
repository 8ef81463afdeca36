// Package metrics exposes Prometheus collectors for the relay and dispatch cycles.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatbot"

// Cycle outcomes.
const (
	OutcomeReply    = "reply"
	OutcomeError    = "error"
	OutcomeRejected = "rejected"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	relayRequests  *prometheus.CounterVec
	relayDuration  prometheus.Histogram
	cycles         *prometheus.CounterVec
	cycleDuration  prometheus.Histogram
	activeSessions prometheus.Gauge
	rateLimited    prometheus.Counter
}

// New registers the collectors on a fresh registry together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		relayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "requests_total",
			Help:      "Relay requests by response status code.",
		}, []string{"code"}),
		relayDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "upstream_duration_seconds",
			Help:      "Time spent waiting on the inference endpoint.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "cycles_total",
			Help:      "Dispatch cycles by outcome.",
		}, []string{"outcome"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of accepted dispatch cycles.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Conversations currently held by the server.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "rate_limited_total",
			Help:      "Relay requests rejected by the rate limiter.",
		}),
	}

	reg.MustRegister(m.relayRequests, m.relayDuration, m.cycles, m.cycleDuration, m.activeSessions, m.rateLimited)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveRelay(code int, upstream time.Duration) {
	if m == nil {
		return
	}
	m.relayRequests.WithLabelValues(strconv.Itoa(code)).Inc()
	if upstream > 0 {
		m.relayDuration.Observe(upstream.Seconds())
	}
}

func (m *Metrics) ObserveCycle(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(outcome).Inc()
	if outcome != OutcomeRejected {
		m.cycleDuration.Observe(took.Seconds())
	}
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}
