// Package metrics exposes pipeline measurements in the Prometheus text format.
//
// Registry implements the hook interfaces of the other packages
// (ingestion.Recorder, aggregation.Sink, and the publish, query, cache and
// rate-limit observers), so those packages never import Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pulseops"

// Registry owns every collector of one process.
type Registry struct {
	reg *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	eventsIngested    *prometheus.CounterVec
	ingestionDuration *prometheus.HistogramVec
	ingestionErrors   *prometheus.CounterVec

	publishedMessages prometheus.Counter
	publishErrors     prometheus.Counter

	dbQueryDuration *prometheus.HistogramVec

	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter

	rateLimitHits prometheus.Counter

	workerEvents   *prometheus.CounterVec
	workerFailures *prometheus.CounterVec
	workerDuration prometheus.Histogram
}

// New builds a registry with the Go runtime and process collectors attached.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "route", "status"}),

		eventsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_ingested_total",
			Help:      "Events accepted by the gateway.",
		}, []string{"kind"}),
		ingestionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingestion_duration_seconds",
			Help:      "Time from request to bus acceptance.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"kind"}),
		ingestionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestion_errors_total",
			Help:      "Rejected or failed ingestion requests.",
		}, []string{"kind", "reason"}),

		publishedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_published_messages_total",
			Help:      "Messages accepted by the bus.",
		}),
		publishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_publish_errors_total",
			Help:      "Failed publish calls.",
		}),

		dbQueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Store round trip latency by query type.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"query_type"}),

		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Credential cache hits.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Credential cache misses.",
		}),

		rateLimitHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Requests rejected with 429.",
		}),

		workerEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_events_total",
			Help:      "Bus messages handled by the worker, by outcome.",
		}, []string{"outcome"}),
		workerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_failures_total",
			Help:      "Nacked messages by reason.",
		}, []string{"reason"}),
		workerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "worker_processing_duration_seconds",
			Help:      "Time to persist and aggregate one event.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.httpRequests, r.httpDuration,
		r.eventsIngested, r.ingestionDuration, r.ingestionErrors,
		r.publishedMessages, r.publishErrors,
		r.dbQueryDuration,
		r.cacheHits, r.cacheMisses,
		r.rateLimitHits,
		r.workerEvents, r.workerFailures, r.workerDuration,
	)
	return r
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves GET /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// GinMiddleware records request count and latency by matched route, so path
// parameters never explode label cardinality.
func (r *Registry) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		r.httpRequests.WithLabelValues(c.Request.Method, route, status).Inc()
		r.httpDuration.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
	}
}

// ingestion.Recorder

func (r *Registry) EventsIngested(kind string, n int) {
	r.eventsIngested.WithLabelValues(kind).Add(float64(n))
}

func (r *Registry) IngestionDuration(kind string, d time.Duration) {
	r.ingestionDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (r *Registry) IngestionError(kind, reason string) {
	r.ingestionErrors.WithLabelValues(kind, reason).Inc()
}

// aggregation.Sink

func (r *Registry) EventProcessed(d time.Duration) {
	r.workerEvents.WithLabelValues("processed").Inc()
	r.workerDuration.Observe(d.Seconds())
}

func (r *Registry) EventDuplicate() {
	r.workerEvents.WithLabelValues("duplicate").Inc()
}

func (r *Registry) EventFailed(reason string) {
	r.workerEvents.WithLabelValues("failed").Inc()
	r.workerFailures.WithLabelValues(reason).Inc()
}

func (r *Registry) EventPoisoned() {
	r.workerEvents.WithLabelValues("poison").Inc()
}

// ObservePublish matches bus.PublishObserver.
func (r *Registry) ObservePublish(count int, err error) {
	if err != nil {
		r.publishErrors.Inc()
		return
	}
	r.publishedMessages.Add(float64(count))
}

// ObserveQuery matches postgres.QueryObserver.
func (r *Registry) ObserveQuery(queryType string, elapsed time.Duration) {
	r.dbQueryDuration.WithLabelValues(queryType).Observe(elapsed.Seconds())
}

// ObserveCache matches auth.CacheObserver.
func (r *Registry) ObserveCache(hit bool) {
	if hit {
		r.cacheHits.Inc()
		return
	}
	r.cacheMisses.Inc()
}

// RateLimited is installed with ratelimit.Limiter.OnLimited.
func (r *Registry) RateLimited() {
	r.rateLimitHits.Inc()
}
