package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Booking outcomes recorded by MetricsService.
const (
	BookingOutcomeBooked      = "booked"
	BookingOutcomeUnavailable = "unavailable"
	BookingOutcomeLedger      = "ledger_rejected"
	BookingOutcomeInvalid     = "invalid"
	BookingOutcomeError       = "error"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP layer and the scheduling core.
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

	bookings      *prometheus.CounterVec
	cancellations *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	ledgerHours   *prometheus.CounterVec
	events        *prometheus.CounterVec
	sweptPackages prometheus.Counter

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

	bookings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lesson_bookings_total",
		Help: "Booking attempts by outcome",
	}, []string{"outcome"})

	cancellations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lesson_cancellations_total",
		Help: "Lesson cancellations by refund decision",
	}, []string{"refunded"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lesson_transitions_total",
		Help: "Accepted lesson status transitions by target status",
	}, []string{"status"})

	ledgerHours := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_hours_total",
		Help: "Package hours moved by the ledger",
	}, []string{"direction"})

	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lesson_events_total",
		Help: "Lesson events dispatched after commit",
	}, []string{"type", "result"})

	sweptPackages := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "package_assignments_deactivated_total",
		Help: "Expired package assignments deactivated by the sweeper",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		bookings, cancellations, transitions, ledgerHours, events, sweptPackages, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		bookings:        bookings,
		cancellations:   cancellations,
		transitions:     transitions,
		ledgerHours:     ledgerHours,
		events:          events,
		sweptPackages:   sweptPackages,
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
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordBooking counts a booking attempt by outcome.
func (m *MetricsService) RecordBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(outcome).Inc()
}

// RecordCancellation counts a cancellation by its refund decision.
func (m *MetricsService) RecordCancellation(refunded bool) {
	if m == nil {
		return
	}
	m.cancellations.WithLabelValues(fmt.Sprintf("%t", refunded)).Inc()
}

// RecordTransition counts an accepted status change.
func (m *MetricsService) RecordTransition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}

// RecordLedgerHours counts hours debited or credited.
func (m *MetricsService) RecordLedgerHours(direction string, hours int) {
	if m == nil || hours <= 0 {
		return
	}
	m.ledgerHours.WithLabelValues(direction).Add(float64(hours))
}

// RecordEvent counts a dispatched lesson event.
func (m *MetricsService) RecordEvent(eventType string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.events.WithLabelValues(eventType, result).Inc()
}

// RecordSweep counts deactivated package assignments.
func (m *MetricsService) RecordSweep(deactivated int64) {
	if m == nil || deactivated <= 0 {
		return
	}
	m.sweptPackages.Add(float64(deactivated))
}
