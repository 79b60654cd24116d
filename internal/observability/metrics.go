// Package observability collects the Prometheus metrics for the service:
// HTTP traffic, upstream ledger queries, and cache effectiveness.
package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the registry and the application metric series.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	ledgerQueries   *prometheus.CounterVec
	ledgerDuration  prometheus.Histogram
	cacheRequests   *prometheus.CounterVec
}

// NewMetrics initialises the registry and the base series.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerlens_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledgerlens_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	ledgerQueries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerlens_ledger_queries_total",
		Help: "Upstream ledger queries by outcome.",
	}, []string{"status"})
	ledgerDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "ledgerlens_ledger_query_duration_seconds",
		Help: "Upstream ledger query duration.",
		// Upstream scans run far longer than local HTTP handling.
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 180},
	})
	cacheRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerlens_cache_requests_total",
		Help: "Cache batch reads by tier and result.",
	}, []string{"tier", "result"})
	registry.MustRegister(requests, duration, ledgerQueries, ledgerDuration, cacheRequests)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		ledgerQueries:   ledgerQueries,
		ledgerDuration:  ledgerDuration,
		cacheRequests:   cacheRequests,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveQuery implements the ledger client's observer hook.
func (m *Metrics) ObserveQuery(_ context.Context, _ string, duration time.Duration, _ int, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "failed"
	}
	m.ledgerQueries.WithLabelValues(status).Inc()
	m.ledgerDuration.Observe(duration.Seconds())
}

// ObserveCache records a cache batch read outcome; hit means every key of
// the batch was present.
func (m *Metrics) ObserveCache(tier string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheRequests.WithLabelValues(tier, result).Inc()
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
