package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queueline_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "queueline_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	queueOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queueline_queue_operations_total",
		Help: "Queue engine operations by name and result",
	}, []string{"operation", "result"})

	queueOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "queueline_queue_operation_duration_seconds",
		Help:    "Time spent inside the per-queue critical section",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"operation"})

	tokenTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queueline_token_transitions_total",
		Help: "Token status transitions",
	}, []string{"from", "to"})

	waitMinutes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "queueline_token_wait_minutes",
		Help:    "Minutes from join to call",
		Buckets: []float64{1, 2, 5, 10, 15, 30, 60, 120},
	})

	serviceMinutes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "queueline_token_service_minutes",
		Help:    "Minutes from call to completion",
		Buckets: []float64{1, 2, 5, 10, 15, 30, 60},
	})

	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queueline_events_total",
		Help: "Domain events by sink and result",
	}, []string{"sink", "result"})

	eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "queueline_events_dropped_total",
		Help: "Events dropped because the dispatch buffer was full",
	})

	notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queueline_notifications_total",
		Help: "Customer emails by kind and result",
	}, []string{"kind", "result"})

	streamSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "queueline_stream_subscribers",
		Help: "Open websocket subscriptions",
	})

	invariantViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queueline_invariant_violations_total",
		Help: "Audit findings by kind",
	}, []string{"kind"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, route, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// ObserveOperation records one engine operation and how long it held the queue.
func ObserveOperation(operation, result string, duration time.Duration) {
	queueOperations.WithLabelValues(operation, result).Inc()
	queueOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveTransition counts a status change.
func ObserveTransition(from, to string) {
	tokenTransitions.WithLabelValues(from, to).Inc()
}

// ObserveWait records a derived wait time.
func ObserveWait(minutes int) {
	waitMinutes.Observe(float64(minutes))
}

// ObserveService records a derived service time.
func ObserveService(minutes int) {
	serviceMinutes.Observe(float64(minutes))
}

// ObserveEvent counts a delivery attempt to one sink.
func ObserveEvent(sink, result string) {
	eventsPublished.WithLabelValues(sink, result).Inc()
}

// IncrementDropped counts an event lost to back-pressure.
func IncrementDropped() {
	eventsDropped.Inc()
}

// ObserveNotification counts an email attempt.
func ObserveNotification(kind, result string) {
	notifications.WithLabelValues(kind, result).Inc()
}

// IncrementSubscribers and DecrementSubscribers track open streams.
func IncrementSubscribers() {
	streamSubscribers.Inc()
}

func DecrementSubscribers() {
	streamSubscribers.Dec()
}

// ObserveViolation counts an audit finding.
func ObserveViolation(kind string) {
	invariantViolations.WithLabelValues(kind).Inc()
}
