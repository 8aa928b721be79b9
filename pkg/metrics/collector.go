// Package metrics exposes cachegate's Prometheus instruments.
//
// A nil *Collector is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Cache tiers reported on the hits counter.
const (
	TierMemory     = "memory"
	TierPersistent = "persistent"
)

// Collector holds the registered instruments.
type Collector struct {
	cacheHits        *prometheus.CounterVec
	cacheMisses      prometheus.Counter
	cacheRequests    prometheus.Counter
	proxyRequests    *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// NewCollector registers every instrument on reg under namespace.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	f := promauto.With(reg)
	c := &Collector{}

	c.cacheHits = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Cache lookups answered from a tier",
		},
		[]string{"tier"},
	)

	c.cacheMisses = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_misses_total",
		Help:      "Cache lookups found in neither tier",
	})

	c.cacheRequests = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_requests_total",
		Help:      "Requests seen by the cache, including uncached ones",
	})

	c.proxyRequests = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxy_requests_total",
			Help:      "Proxy requests by service and outcome",
		},
		[]string{"service", "outcome"},
	)

	c.upstreamDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      "Upstream provider call duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"service"},
	)

	c.httpRequests = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	c.httpDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	logger.With(zap.String("component", "metrics")).
		Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RecordCacheHit counts a hit served by tier.
func (c *Collector) RecordCacheHit(tier string) {
	if c == nil {
		return
	}
	c.cacheHits.WithLabelValues(tier).Inc()
}

// RecordCacheMiss counts a miss.
func (c *Collector) RecordCacheMiss() {
	if c == nil {
		return
	}
	c.cacheMisses.Inc()
}

// RecordCacheRequest counts a request that reached the cache layer.
func (c *Collector) RecordCacheRequest() {
	if c == nil {
		return
	}
	c.cacheRequests.Inc()
}

// RecordProxyRequest counts a finished proxy request.
func (c *Collector) RecordProxyRequest(service, outcome string) {
	if c == nil {
		return
	}
	c.proxyRequests.WithLabelValues(service, outcome).Inc()
}

// ObserveUpstream records how long an upstream call took.
func (c *Collector) ObserveUpstream(service string, d time.Duration) {
	if c == nil {
		return
	}
	c.upstreamDuration.WithLabelValues(service).Observe(d.Seconds())
}

// RecordHTTPRequest records a served HTTP request.
func (c *Collector) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
