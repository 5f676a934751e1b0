// Package metrics defines the Prometheus collectors used by the search
// service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service. A nil *Metrics
// is valid and records nothing, so components can run without metrics in
// tests.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchResultsCount   *prometheus.HistogramVec
	SearchMatchesTotal   *prometheus.CounterVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	IndexRebuildsTotal   *prometheus.CounterVec
	IndexedItems         *prometheus.GaugeVec
	IndexTerms           *prometheus.GaugeVec
	CircuitBreakerState  *prometheus.GaugeVec
	RateLimitedTotal     prometheus.Counter
}

// New creates all collectors and registers them with reg. Passing nil
// registers with the Prometheus default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by scope and outcome (hit, zero_result, error).",
			},
			[]string{"scope", "outcome"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search latency in seconds, including any index refresh.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"scope"},
		),
		SearchResultsCount: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of results returned per search.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
			[]string{"scope"},
		),
		SearchMatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_matches_total",
				Help: "Returned results by the stage that admitted them.",
			},
			[]string{"scope", "match_type"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_cache_hits_total",
				Help: "Total number of result cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_cache_misses_total",
				Help: "Total number of result cache misses.",
			},
		),
		IndexRebuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_index_rebuilds_total",
				Help: "Index rebuilds by index and status.",
			},
			[]string{"index", "status"},
		),
		IndexedItems: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "search_indexed_items",
				Help: "Number of items in the current index snapshot.",
			},
			[]string{"index"},
		),
		IndexTerms: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "search_index_terms",
				Help: "Number of distinct tokens in the current index snapshot.",
			},
			[]string{"index"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		RateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rate_limited_requests_total",
				Help: "Requests rejected by the rate limiter.",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.SearchMatchesTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.IndexRebuildsTotal,
		m.IndexedItems,
		m.IndexTerms,
		m.CircuitBreakerState,
		m.RateLimitedTotal,
	)

	return m
}

// ObserveSearch records one completed search.
func (m *Metrics) ObserveSearch(scope string, latency time.Duration, returned int, err error) {
	if m == nil {
		return
	}
	outcome := "hit"
	switch {
	case err != nil:
		outcome = "error"
	case returned == 0:
		outcome = "zero_result"
	}
	m.SearchQueriesTotal.WithLabelValues(scope, outcome).Inc()
	m.SearchLatency.WithLabelValues(scope).Observe(latency.Seconds())
	if err == nil {
		m.SearchResultsCount.WithLabelValues(scope).Observe(float64(returned))
	}
}

// ObserveMatch counts a returned result by the stage that admitted it.
func (m *Metrics) ObserveMatch(scope, matchType string) {
	if m == nil {
		return
	}
	m.SearchMatchesTotal.WithLabelValues(scope, matchType).Inc()
}

// ObserveRebuild records an index rebuild attempt and, on success, the
// size of the new snapshot.
func (m *Metrics) ObserveRebuild(index string, items, terms int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.IndexRebuildsTotal.WithLabelValues(index, "error").Inc()
		return
	}
	m.IndexRebuildsTotal.WithLabelValues(index, "success").Inc()
	m.IndexedItems.WithLabelValues(index).Set(float64(items))
	m.IndexTerms.WithLabelValues(index).Set(float64(terms))
}

// ObserveCache records a result cache lookup.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.Inc()
		return
	}
	m.CacheMissesTotal.Inc()
}

// SetBreakerState publishes a circuit breaker state.
func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
