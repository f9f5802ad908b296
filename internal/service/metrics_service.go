package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/course-admission-api/internal/models"
)

const metricsNamespace = "admission"

// Admission decision labels.
const (
	DecisionEnrolled   = "enrolled"
	DecisionWaitlisted = "waitlisted"
	DecisionRejected   = "rejected"
	DecisionDropped    = "dropped"
	DecisionFailed     = "failed"
)

// decisionTally mirrors the decision counter for the JSON stats endpoint.
type decisionTally struct {
	enrolled   atomic.Uint64
	waitlisted atomic.Uint64
	rejected   atomic.Uint64
	dropped    atomic.Uint64
	promoted   atomic.Uint64
	skipped    atomic.Uint64
}

// MetricsService owns a private Prometheus registry. Every recorder is safe
// on a nil receiver so components can run uninstrumented.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	httpLatency   *prometheus.HistogramVec
	httpRequests  *prometheus.CounterVec
	decisions     *prometheus.CounterVec
	promotions    *prometheus.CounterVec
	sectionHeld   *prometheus.HistogramVec
	notifications *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	cacheLatency  *prometheus.HistogramVec

	requests     atomic.Uint64
	requestNanos atomic.Uint64
	cacheHits    atomic.Uint64
	cacheMisses  atomic.Uint64
	notifyFailed atomic.Uint64
	tally        decisionTally
}

// NewMetricsService registers the admission collectors plus Go runtime metrics.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	m := &MetricsService{registry: registry}

	m.httpLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace, Subsystem: "http", Name: "request_duration_seconds",
		Help:    "HTTP request latency by route template",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
	m.httpRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace, Subsystem: "http", Name: "requests_total",
		Help: "HTTP requests by route template",
	}, []string{"method", "path", "status"})
	m.decisions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace, Name: "decisions_total",
		Help: "Admission decisions by operation and outcome",
	}, []string{"operation", "outcome"})
	m.promotions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace, Name: "promotions_total",
		Help: "Waitlist promotion attempts by result",
	}, []string{"result"})
	m.sectionHeld = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace, Name: "section_duration_seconds",
		Help:    "Time spent holding a course's exclusive section",
		Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"operation"})
	m.notifications = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace, Name: "notifications_total",
		Help: "Notification deliveries by sink and result",
	}, []string{"sink", "result"})
	m.cacheLookups = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace, Subsystem: "cache", Name: "lookups_total",
		Help: "Course metadata cache lookups by result",
	}, []string{"result"})
	m.cacheLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace, Subsystem: "cache", Name: "duration_seconds",
		Help:    "Course metadata cache latency by operation",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace, Subsystem: "cache", Name: "hit_ratio",
		Help: "Share of cache lookups that hit",
	}, m.cacheHitRatio)

	registry.MustRegister(collectors.NewGoCollector())

	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
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

// ObserveHTTPRequest records one served request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.httpLatency.WithLabelValues(method, path, code).Observe(duration.Seconds())
	m.httpRequests.WithLabelValues(method, path, code).Inc()
	m.requests.Add(1)
	m.requestNanos.Add(uint64(duration.Nanoseconds()))
}

// RecordDecision counts the outcome of an enroll or drop.
func (m *MetricsService) RecordDecision(operation, outcome string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(operation, outcome).Inc()
	switch outcome {
	case DecisionEnrolled:
		m.tally.enrolled.Add(1)
	case DecisionWaitlisted:
		m.tally.waitlisted.Add(1)
	case DecisionRejected:
		m.tally.rejected.Add(1)
	case DecisionDropped:
		m.tally.dropped.Add(1)
	}
}

// RecordPromotion counts a promotion attempt; skipped candidates failed re-validation.
func (m *MetricsService) RecordPromotion(promoted bool) {
	if m == nil {
		return
	}
	if promoted {
		m.promotions.WithLabelValues("promoted").Inc()
		m.tally.promoted.Add(1)
		return
	}
	m.promotions.WithLabelValues("skipped").Inc()
	m.tally.skipped.Add(1)
}

// ObserveSection records how long a course section was held.
func (m *MetricsService) ObserveSection(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.sectionHeld.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordNotification counts a delivery attempt for sink.
func (m *MetricsService) RecordNotification(sink string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.notifications.WithLabelValues(sink, "failed").Inc()
		m.notifyFailed.Add(1)
		return
	}
	m.notifications.WithLabelValues(sink, "delivered").Inc()
}

// RecordCacheOperation counts a cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.WithLabelValues("get").Observe(duration.Seconds())
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		m.cacheHits.Add(1)
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
	m.cacheMisses.Add(1)
}

// ObserveCacheWrite tracks the duration of a cache write.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.WithLabelValues("set").Observe(duration.Seconds())
}

func (m *MetricsService) cacheHitRatio() float64 {
	hits := m.cacheHits.Load()
	total := hits + m.cacheMisses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// Snapshot returns aggregated counters for the JSON stats endpoint.
func (m *MetricsService) Snapshot() models.AdmissionMetricsSnapshot {
	if m == nil {
		return models.AdmissionMetricsSnapshot{}
	}
	requests := m.requests.Load()
	var avgMs float64
	if requests > 0 {
		avgMs = float64(m.requestNanos.Load()) / float64(requests) / float64(time.Millisecond)
	}
	return models.AdmissionMetricsSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgMs,
		Enrolled:                 m.tally.enrolled.Load(),
		Waitlisted:               m.tally.waitlisted.Load(),
		Rejected:                 m.tally.rejected.Load(),
		Dropped:                  m.tally.dropped.Load(),
		Promoted:                 m.tally.promoted.Load(),
		PromotionsSkipped:        m.tally.skipped.Load(),
		NotificationsFailed:      m.notifyFailed.Load(),
		CacheHitRatio:            m.cacheHitRatio(),
		CacheHits:                m.cacheHits.Load(),
		CacheMisses:              m.cacheMisses.Load(),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
