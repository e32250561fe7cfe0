// Package metrics exports client counters in Prometheus format. The
// collector hangs off the router; exposition is an optional HTTP
// listener so the stdio transport stays clean.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector tracks per-site, per-operation client metrics.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	requestDurations *prometheus.HistogramVec
	cacheHits        *prometheus.CounterVec
	cacheMisses      *prometheus.CounterVec
	retriesTotal     *prometheus.CounterVec
	breakerState     *prometheus.GaugeVec
	rateWaits        *prometheus.CounterVec
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wpmcp_requests_total",
			Help: "Completed operations by site, operation and outcome.",
		}, []string{"site", "op", "outcome"}),
		requestDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wpmcp_request_duration_seconds",
			Help:    "Operation latency including retries.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"site", "op"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wpmcp_cache_hits_total",
			Help: "Operations served from cache.",
		}, []string{"site", "op"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wpmcp_cache_misses_total",
			Help: "Cacheable operations that went upstream.",
		}, []string{"site", "op"}),
		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wpmcp_retries_total",
			Help: "Retry attempts spent on operations.",
		}, []string{"site", "op"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wpmcp_circuit_breaker_state",
			Help: "Circuit breaker state per site: 0 closed, 1 open, 2 half-open.",
		}, []string{"site"}),
		rateWaits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wpmcp_rate_limit_waits_total",
			Help: "Operations that waited on the per-site rate limiter.",
		}, []string{"site"}),
	}
	reg.MustRegister(c.requestsTotal, c.requestDurations, c.cacheHits,
		c.cacheMisses, c.retriesTotal, c.breakerState, c.rateWaits)
	return c
}

// RecordRequest records a completed operation. Outcome is "ok", the
// error kind on failure, or "cached" for cache-served reads.
func (c *Collector) RecordRequest(site, op, outcome string, duration time.Duration) {
	c.requestsTotal.WithLabelValues(site, op, outcome).Inc()
	c.requestDurations.WithLabelValues(site, op).Observe(duration.Seconds())
}

func (c *Collector) RecordCacheHit(site, op string) {
	c.cacheHits.WithLabelValues(site, op).Inc()
}

func (c *Collector) RecordCacheMiss(site, op string) {
	c.cacheMisses.WithLabelValues(site, op).Inc()
}

func (c *Collector) RecordRetries(site, op string, n int) {
	if n > 0 {
		c.retriesTotal.WithLabelValues(site, op).Add(float64(n))
	}
}

func (c *Collector) SetBreakerState(site string, state int) {
	c.breakerState.WithLabelValues(site).Set(float64(state))
}

func (c *Collector) RecordRateWait(site string) {
	c.rateWaits.WithLabelValues(site).Inc()
}

// Handler serves the registry in Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
