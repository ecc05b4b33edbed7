// Package metrics provides Prometheus metrics for the chat service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks the number of registered websocket connections.
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_ws_active_connections",
			Help: "Number of currently registered websocket connections",
		},
	)

	// ConnectionsRejected counts handshakes refused for missing or invalid credentials.
	ConnectionsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_ws_connections_rejected_total",
			Help: "Total number of websocket handshakes rejected by authentication",
		},
	)

	// ConversationsCreated counts conversations inserted by get-or-create.
	ConversationsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_conversations_created_total",
			Help: "Total number of conversations created",
		},
	)

	// MessagesAppended counts messages durably stored.
	MessagesAppended = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_appended_total",
			Help: "Total number of messages appended",
		},
	)

	// FanoutDeliveries counts per-connection emissions by event type.
	FanoutDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_fanout_deliveries_total",
			Help: "Total number of real-time events queued to a connection",
		},
		[]string{"event"},
	)

	// FanoutFailures counts per-connection emissions that were dropped.
	FanoutFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_fanout_failures_total",
			Help: "Total number of real-time events that could not be queued to a connection",
		},
		[]string{"event"},
	)

	// RelayPublishErrors counts failed cross-instance publishes.
	RelayPublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_relay_publish_errors_total",
			Help: "Total number of failed cross-instance relay publishes",
		},
	)

	// HTTPRequestDuration tracks request latency by route and status.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)
)

// RecordConnectionOpened increments the active connection gauge.
func RecordConnectionOpened() {
	ActiveConnections.Inc()
}

// RecordConnectionClosed decrements the active connection gauge.
func RecordConnectionClosed() {
	ActiveConnections.Dec()
}

// RecordDelivery records the outcome of one per-connection emission.
func RecordDelivery(event string, err error) {
	if err != nil {
		FanoutFailures.WithLabelValues(event).Inc()
		return
	}
	FanoutDeliveries.WithLabelValues(event).Inc()
}

// RecordRequest observes one HTTP request.
func RecordRequest(method, endpoint, status string, seconds float64) {
	HTTPRequestDuration.WithLabelValues(method, endpoint, status).Observe(seconds)
}
