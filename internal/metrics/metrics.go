package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters.
type Metrics struct {
	aggregations    prometheus.Counter
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	sourceErrors    prometheus.Counter
	persistFailures prometheus.Counter
	storeFallbacks  prometheus.Counter
	rateLimitWaits  prometheus.Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// Init initializes global metrics (idempotent).
func Init() *Metrics {
	once.Do(func() {
		metrics = &Metrics{
			aggregations: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "chainhist_aggregations_total",
				Help: "Total number of upstream aggregation runs",
			}),
			cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "chainhist_cache_hits_total",
				Help: "Total number of history cache hits",
			}),
			cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "chainhist_cache_misses_total",
				Help: "Total number of history cache misses",
			}),
			sourceErrors: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "chainhist_source_errors_total",
				Help: "Total number of failed source fetches",
			}),
			persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "chainhist_persist_failures_total",
				Help: "Total number of failed durable-store writes",
			}),
			storeFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "chainhist_store_fallbacks_total",
				Help: "Total number of reads served from the durable store after aggregation failure",
			}),
			rateLimitWaits: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "chainhist_rate_limit_waits_total",
				Help: "Total number of suspensions in the rate limiter",
			}),
		}
		prometheus.MustRegister(
			metrics.aggregations,
			metrics.cacheHits,
			metrics.cacheMisses,
			metrics.sourceErrors,
			metrics.persistFailures,
			metrics.storeFallbacks,
			metrics.rateLimitWaits,
		)
	})
	return metrics
}

// Aggregations increments the aggregation counter.
func (m *Metrics) Aggregations() {
	if m != nil {
		m.aggregations.Inc()
	}
}

// CacheHit increments the cache hit counter.
func (m *Metrics) CacheHit() {
	if m != nil {
		m.cacheHits.Inc()
	}
}

// CacheMiss increments the cache miss counter.
func (m *Metrics) CacheMiss() {
	if m != nil {
		m.cacheMisses.Inc()
	}
}

// SourceError increments the source error counter.
func (m *Metrics) SourceError() {
	if m != nil {
		m.sourceErrors.Inc()
	}
}

// PersistFailure increments the persistence failure counter.
func (m *Metrics) PersistFailure() {
	if m != nil {
		m.persistFailures.Inc()
	}
}

// StoreFallback increments the store fallback counter.
func (m *Metrics) StoreFallback() {
	if m != nil {
		m.storeFallbacks.Inc()
	}
}

// RateLimitWait increments the rate limit wait counter.
func (m *Metrics) RateLimitWait() {
	if m != nil {
		m.rateLimitWaits.Inc()
	}
}

// Handler returns an HTTP handler for /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
