// Package metrics exposes Prometheus instruments for the token lifecycle.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mps"

const (
	RefreshSuccess   = "success"
	RefreshFailure   = "failure"
	RefreshCoalesced = "coalesced"
	RefreshReused    = "reused"
)

const (
	CallSuccess        = "success"
	CallBackendError   = "backend_error"
	CallAuthExpired    = "auth_expired"
	CallNoCredentials  = "no_credentials"
	CallTransportError = "transport_error"
)

type Metrics struct {
	registry        *prometheus.Registry
	refreshTotal    *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	callTotal       *prometheus.CounterVec
	callRetries     prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		refreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refresh_total",
			Help:      "Token refresh attempts by result.",
		}, []string{"result"}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "token_refresh_duration_seconds",
			Help:      "Latency of refresh exchanges against the backend.",
			Buckets:   []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		callTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_call_total",
			Help:      "Authenticated backend calls by final outcome.",
		}, []string{"outcome"}),
		callRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_call_retries_total",
			Help:      "Backend calls retried after a token refresh.",
		}),
	}

	registry.MustRegister(
		m.refreshTotal,
		m.refreshDuration,
		m.callTotal,
		m.callRetries,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// ObserveRefresh records one refresh outcome. Only backend exchanges
// carry a duration; reused and coalesced results pass zero.
func (m *Metrics) ObserveRefresh(result string, elapsed time.Duration) {
	if m == nil {
		return
	}

	m.refreshTotal.WithLabelValues(result).Inc()
	if elapsed > 0 {
		m.refreshDuration.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) ObserveCall(outcome string, retried bool) {
	if m == nil {
		return
	}

	m.callTotal.WithLabelValues(outcome).Inc()
	if retried {
		m.callRetries.Inc()
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RefreshTotal(result string) prometheus.Counter {
	return m.refreshTotal.WithLabelValues(result)
}

func (m *Metrics) CallTotal(outcome string) prometheus.Counter {
	return m.callTotal.WithLabelValues(outcome)
}

func (m *Metrics) CallRetries() prometheus.Counter {
	return m.callRetries
}
