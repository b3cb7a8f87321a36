package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jobmetrics "github.com/clubspace/clubspace/internal/jobs"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	cacheLookups     *prometheus.CounterVec
	rateLimitRejects *prometheus.CounterVec
	permissionChecks *prometheus.CounterVec
	failOpen         *prometheus.CounterVec
	jobs             *jobmetrics.Metrics
}

// NewMetrics initialises the registry with HTTP, middleware and job collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clubspace_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clubspace_http_request_duration_seconds",
		Help:    "HTTP request latency per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	cache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clubspace_cache_lookups_total",
		Help: "Cache lookups by cache name and result.",
	}, []string{"cache", "result"})
	rejects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clubspace_ratelimit_rejections_total",
		Help: "Requests rejected by the rate limiter per endpoint class.",
	}, []string{"class"})
	checks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clubspace_permission_checks_total",
		Help: "Permission checks by outcome.",
	}, []string{"outcome"})
	failOpen := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clubspace_middleware_failopen_total",
		Help: "Middleware store errors that let the request through.",
	}, []string{"component"})
	registry.MustRegister(requests, duration, cache, rejects, checks, failOpen)
	return &Metrics{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:    requests,
		requestDuration:  duration,
		cacheLookups:     cache,
		rateLimitRejects: rejects,
		permissionChecks: checks,
		failOpen:         failOpen,
		jobs:             jobmetrics.NewMetrics(registry),
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

// Middleware records request count and latency per route.
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

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// Jobs returns the background job collectors registered on this registry.
func (m *Metrics) Jobs() *jobmetrics.Metrics {
	if m == nil {
		return nil
	}
	return m.jobs
}

// CacheLookup counts a hit or miss for the named cache.
func (m *Metrics) CacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(cache, result).Inc()
}

// RateLimited counts a rejected request for the endpoint class.
func (m *Metrics) RateLimited(class string) {
	if m == nil {
		return
	}
	m.rateLimitRejects.WithLabelValues(class).Inc()
}

// PermissionCheck counts a permission decision: allowed, denied or error.
func (m *Metrics) PermissionCheck(outcome string) {
	if m == nil {
		return
	}
	m.permissionChecks.WithLabelValues(outcome).Inc()
}

// FailOpen counts a store failure that did not block the request.
func (m *Metrics) FailOpen(component string) {
	if m == nil {
		return
	}
	m.failOpen.WithLabelValues(component).Inc()
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
