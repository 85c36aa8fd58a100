package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/eduplan-api/internal/models"
)

// Outcome labels for generation_requests_total.
const (
	OutcomeSuccess = "success"
	OutcomeDenied  = "denied"
	OutcomeFailed  = "failed"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	dbQueryDuration *prometheus.HistogramVec

	generationRequests *prometheus.CounterVec
	limitDenied        *prometheus.CounterVec
	failOpen           *prometheus.CounterVec
	recordFailures     *prometheus.CounterVec
	alertsSent         *prometheus.CounterVec
	gradingJobs        *prometheus.CounterVec

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	generationRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "generation_requests_total",
		Help: "Metered operations by usage category and outcome",
	}, []string{"category", "outcome"})

	limitDenied := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "usage_limit_denied_total",
		Help: "Requests denied because the monthly limit was reached",
	}, []string{"category", "tier"})

	failOpen := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "usage_fail_open_total",
		Help: "Usage or cooldown lookups that failed and were allowed through",
	}, []string{"source"})

	recordFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "usage_record_failures_total",
		Help: "Usage events that could not be written after a successful operation",
	}, []string{"kind"})

	alertsSent := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "usage_alerts_total",
		Help: "Threshold alerts by threshold and delivery status",
	}, []string{"threshold", "status"})

	gradingJobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grading_jobs_total",
		Help: "Grading jobs by final submission status",
	}, []string{"status"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses, dbQueryDuration,
		generationRequests, limitDenied, failOpen, recordFailures, alertsSent, gradingJobs, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:           registry,
		handler:            handler,
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		cacheLatency:       cacheLatency,
		cacheWrite:         cacheWrite,
		cacheHitRatio:      cacheHitRatio,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
		dbQueryDuration:    dbQueryDuration,
		generationRequests: generationRequests,
		limitDenied:        limitDenied,
		failOpen:           failOpen,
		recordFailures:     recordFailures,
		alertsSent:         alertsSent,
		gradingJobs:        gradingJobs,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// RecordGeneration counts a metered operation outcome.
func (m *MetricsService) RecordGeneration(category models.UsageCategory, outcome string) {
	if m == nil {
		return
	}
	m.generationRequests.WithLabelValues(string(category), outcome).Inc()
}

// RecordLimitDenied counts a request rejected by the usage gate.
func (m *MetricsService) RecordLimitDenied(category models.UsageCategory, tier models.SubscriptionTier) {
	if m == nil {
		return
	}
	m.limitDenied.WithLabelValues(string(category), string(tier)).Inc()
}

// RecordFailOpen counts a collaborator failure that was allowed through. source is
// "usage" or "cooldown".
func (m *MetricsService) RecordFailOpen(source string) {
	if m == nil {
		return
	}
	m.failOpen.WithLabelValues(source).Inc()
}

// RecordUsageWriteFailure counts a usage event lost after a successful operation.
func (m *MetricsService) RecordUsageWriteFailure(kind models.GenerationKind) {
	if m == nil {
		return
	}
	m.recordFailures.WithLabelValues(string(kind)).Inc()
}

// RecordAlert counts a threshold alert by delivery status.
func (m *MetricsService) RecordAlert(template, status string) {
	if m == nil {
		return
	}
	m.alertsSent.WithLabelValues(template, status).Inc()
}

// RecordGradingJob counts a finished grading job.
func (m *MetricsService) RecordGradingJob(status models.SubmissionStatus) {
	if m == nil {
		return
	}
	m.gradingJobs.WithLabelValues(string(status)).Inc()
}
