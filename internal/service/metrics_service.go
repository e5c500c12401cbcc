package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-identity-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry             *prometheus.Registry
	handler              http.Handler
	requestDuration      *prometheus.HistogramVec
	requestTotal         *prometheus.CounterVec
	cacheLookups         *prometheus.CounterVec
	cacheLatency         prometheus.Observer
	provisioningTotal    *prometheus.CounterVec
	loginIDCollisions    *prometheus.CounterVec
	bulkRows             *prometheus.CounterVec
	leaveDecisions       *prometheus.CounterVec
	notificationFailures *prometheus.CounterVec
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

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Cache lookups by result",
	}, []string{"result"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	provisioningTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "provisioning_total",
		Help: "Provisioning attempts by role and outcome",
	}, []string{"role", "outcome"})

	loginIDCollisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "login_id_collisions_total",
		Help: "Login ID inserts rejected by the uniqueness constraint",
	}, []string{"role"})

	bulkRows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bulk_provisioning_rows_total",
		Help: "Bulk provisioning rows by outcome",
	}, []string{"outcome"})

	leaveDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leave_decisions_total",
		Help: "Leave decisions by track and decision",
	}, []string{"track", "decision"})

	notificationFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_failures_total",
		Help: "Credential notifications that could not be delivered",
	}, []string{"stage"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLookups, cacheLatency, provisioningTotal,
		loginIDCollisions, bulkRows, leaveDecisions, notificationFailures, goroutines)

	return &MetricsService{
		registry:             registry,
		handler:              promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:      requestDuration,
		requestTotal:         requestTotal,
		cacheLookups:         cacheLookups,
		cacheLatency:         cacheLatency,
		provisioningTotal:    provisioningTotal,
		loginIDCollisions:    loginIDCollisions,
		bulkRows:             bulkRows,
		leaveDecisions:       leaveDecisions,
		notificationFailures: notificationFailures,
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

// Registry returns the underlying registry.
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

// RecordCacheOperation records a cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

// RecordProvisioning counts one provisioning attempt.
func (m *MetricsService) RecordProvisioning(role models.UserRole, err error) {
	if m == nil {
		return
	}
	m.provisioningTotal.WithLabelValues(string(role), outcome(err)).Inc()
}

// RecordLoginIDCollision counts an insert rejected because the login ID was taken.
func (m *MetricsService) RecordLoginIDCollision(role models.UserRole) {
	if m == nil {
		return
	}
	m.loginIDCollisions.WithLabelValues(string(role)).Inc()
}

// RecordBulkRow counts a processed bulk row.
func (m *MetricsService) RecordBulkRow(err error) {
	if m == nil {
		return
	}
	m.bulkRows.WithLabelValues(outcome(err)).Inc()
}

// RecordLeaveDecision counts a recorded leave decision.
func (m *MetricsService) RecordLeaveDecision(track string, decision models.LeaveDecision) {
	if m == nil {
		return
	}
	m.leaveDecisions.WithLabelValues(track, string(decision)).Inc()
}

// RecordNotificationFailure counts a notification that was not delivered.
func (m *MetricsService) RecordNotificationFailure(stage string) {
	if m == nil {
		return
	}
	m.notificationFailures.WithLabelValues(stage).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
