// Package monitoring exposes the gateway's Prometheus metrics.
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the gateway's metric set. All record methods are safe on a nil
// receiver so callers can run without monitoring wired.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal       *prometheus.CounterVec
	cacheHitsTotal      *prometheus.CounterVec
	raceWinsTotal       *prometheus.CounterVec
	providerErrorsTotal *prometheus.CounterVec
	requestLatency      *prometheus.HistogramVec
	dailySpend          prometheus.Gauge
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "switchyard_requests_total",
			Help: "Requests received, by operation.",
		}, []string{"op"}),
		cacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "switchyard_cache_hits_total",
			Help: "Cache hits, by tier.",
		}, []string{"tier"}),
		raceWinsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "switchyard_race_wins_total",
			Help: "Race and sequential wins, by provider.",
		}, []string{"provider"}),
		providerErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "switchyard_provider_errors_total",
			Help: "Provider call failures, by provider.",
		}, []string{"provider"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "switchyard_request_latency_seconds",
			Help:    "End-to-end request latency, by operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		dailySpend: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "switchyard_daily_spend_usd",
			Help: "Estimated spend since the last daily reset.",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.cacheHitsTotal,
		m.raceWinsTotal,
		m.providerErrorsTotal,
		m.requestLatency,
		m.dailySpend,
	)
	return m
}

// Handler serves the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordRequest(op string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(op).Inc()
}

func (m *Metrics) RecordCacheHit(tier string) {
	if m == nil {
		return
	}
	m.cacheHitsTotal.WithLabelValues(tier).Inc()
}

func (m *Metrics) RecordWin(provider string) {
	if m == nil {
		return
	}
	m.raceWinsTotal.WithLabelValues(provider).Inc()
}

func (m *Metrics) RecordProviderError(provider string) {
	if m == nil {
		return
	}
	m.providerErrorsTotal.WithLabelValues(provider).Inc()
}

func (m *Metrics) ObserveLatency(op string, seconds float64) {
	if m == nil {
		return
	}
	m.requestLatency.WithLabelValues(op).Observe(seconds)
}

func (m *Metrics) SetDailySpend(amount float64) {
	if m == nil {
		return
	}
	m.dailySpend.Set(amount)
}
