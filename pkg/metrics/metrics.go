// Package metrics exposes the debugger's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics collectors. A nil *Metrics is valid
// and records nothing, so instrumentation points need no guards.
type Metrics struct {
	haltsTotal     *prometheus.CounterVec
	errorsTotal    prometheus.Counter
	packetsTotal   *prometheus.CounterVec
	sessionsTotal  prometheus.Counter
	breakpointsSet prometheus.Gauge
	watchesSet     prometheus.Gauge

	registry *prometheus.Registry
}

// Config holds configuration for metrics
type Config struct {
	Namespace string
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{Namespace: "pawndbg"}
}

// NewMetrics creates and registers all collectors on a fresh registry.
func NewMetrics(config Config) *Metrics {
	if config.Namespace == "" {
		config = DefaultConfig()
	}

	registry := prometheus.NewRegistry()
	m := &Metrics{registry: registry}

	m.haltsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "halts_total",
			Help:      "Total number of debugger halts",
		},
		[]string{"reason"},
	)

	m.errorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "script_errors_total",
			Help:      "Unhandled script errors routed into the debugger",
		},
	)

	m.packetsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "rsp_packets_total",
			Help:      "RSP packets by direction",
		},
		[]string{"direction"},
	)

	m.sessionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "rsp_sessions_total",
			Help:      "Accepted remote debugging sessions",
		},
	)

	m.breakpointsSet = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "breakpoints",
			Help:      "Breakpoints currently set",
		},
	)

	m.watchesSet = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "watches",
			Help:      "Watches currently set",
		},
	)

	registry.MustRegister(
		m.haltsTotal,
		m.errorsTotal,
		m.packetsTotal,
		m.sessionsTotal,
		m.breakpointsSet,
		m.watchesSet,
	)
	return m
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// IncHalt counts one halt, split by whether a breakpoint caused it.
func (m *Metrics) IncHalt(breakpoint bool) {
	if m == nil {
		return
	}
	reason := "step"
	if breakpoint {
		reason = "breakpoint"
	}
	m.haltsTotal.WithLabelValues(reason).Inc()
}

// IncError counts one unhandled script error.
func (m *Metrics) IncError() {
	if m == nil {
		return
	}
	m.errorsTotal.Inc()
}

// IncPacket counts one RSP packet; direction is "in" or "out".
func (m *Metrics) IncPacket(direction string) {
	if m == nil {
		return
	}
	m.packetsTotal.WithLabelValues(direction).Inc()
}

// IncSession counts one accepted remote client.
func (m *Metrics) IncSession() {
	if m == nil {
		return
	}
	m.sessionsTotal.Inc()
}

// SetBreakpoints records the current breakpoint count.
func (m *Metrics) SetBreakpoints(n int) {
	if m == nil {
		return
	}
	m.breakpointsSet.Set(float64(n))
}

// SetWatches records the current watch count.
func (m *Metrics) SetWatches(n int) {
	if m == nil {
		return
	}
	m.watchesSet.Set(float64(n))
}
