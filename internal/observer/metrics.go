package observer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsEnabled = true // Flag to control metric collection

	eventLabels      = []string{"event_type"}
	eventErrorLabels = []string{"event_type", "error_type"}
	resolutionLabels = []string{"outcome"} // matched | unmatched | error

	// Webhook event counters
	EventsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "call_events_received_total",
			Help: "Total number of call events received on the webhook endpoint.",
		},
		eventLabels,
	)
	EventsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "call_events_processed_total",
			Help: "Total number of call events successfully persisted and broadcast.",
		},
		eventLabels,
	)
	EventsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "call_events_failed_total",
			Help: "Total number of call events that failed processing, labeled by error type.",
		},
		eventErrorLabels,
	)

	// Contact resolution outcomes
	ContactResolutionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "call_events_contact_resolution_total",
			Help: "Total number of contact resolution attempts by outcome.",
		},
		resolutionLabels,
	)

	// Event processing duration
	EventProcessingDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "call_events_processing_duration_seconds",
			Help:    "Histogram of webhook event processing durations.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		eventLabels,
	)

	// Streaming / broadcast metrics
	StreamConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "call_events_stream_connections_active",
			Help: "Current number of open streaming connections.",
		},
	)
	BroadcastDeliveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "call_events_broadcast_delivered_total",
			Help: "Total number of events delivered to individual subscribers.",
		},
	)
	BroadcastDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "call_events_broadcast_dropped_total",
			Help: "Total number of subscribers dropped because their channel was full.",
		},
	)

	// DB operation duration
	dbOperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "call_events_db_operation_duration_seconds",
			Help:    "Histogram of database operation durations.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"operation", "entity", "status"},
	)
)

// InitMetrics toggles metric collection. Registration happens at package init
// via promauto; this only controls whether observations are recorded.
func InitMetrics(enabled bool) {
	metricsEnabled = enabled
}

// IncEventReceived records one inbound webhook event.
func IncEventReceived(eventType string) {
	if !metricsEnabled {
		return
	}
	EventsReceivedTotal.WithLabelValues(eventType).Inc()
}

// IncEventProcessed records a fully processed webhook event.
func IncEventProcessed(eventType string) {
	if !metricsEnabled {
		return
	}
	EventsProcessedTotal.WithLabelValues(eventType).Inc()
}

// IncEventFailed records a failed webhook event.
func IncEventFailed(eventType, errorType string) {
	if !metricsEnabled {
		return
	}
	EventsFailedTotal.WithLabelValues(eventType, errorType).Inc()
}

// IncContactResolution records one contact resolution attempt.
func IncContactResolution(outcome string) {
	if !metricsEnabled {
		return
	}
	ContactResolutionTotal.WithLabelValues(outcome).Inc()
}

// ObserveEventProcessingDuration records how long one webhook event took.
func ObserveEventProcessingDuration(eventType string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	EventProcessingDurationSeconds.WithLabelValues(eventType).Observe(duration.Seconds())
}

// ObserveDbOperationDuration records the duration of a database operation.
func ObserveDbOperationDuration(operation, entity string, duration time.Duration, err error) {
	if !metricsEnabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	dbOperationDurationSeconds.WithLabelValues(operation, entity, status).Observe(duration.Seconds())
}
