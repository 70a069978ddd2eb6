// Package metrics exposes prometheus collectors for the chat core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OpenConnections tracks currently registered websocket connections.
	OpenConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamchat_open_connections",
		Help: "Number of currently registered connections.",
	})

	// MessagesAccepted counts messages that passed the moderation gate and were stored.
	MessagesAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamchat_messages_accepted_total",
		Help: "Messages accepted and appended to the store.",
	})

	// MessagesDenied counts gate denials by reason code.
	MessagesDenied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamchat_messages_denied_total",
		Help: "Post attempts denied by the moderation gate.",
	}, []string{"reason"})

	// Deliveries counts successful per-connection event deliveries.
	Deliveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamchat_deliveries_total",
		Help: "Successful event deliveries to individual connections.",
	})

	// DeliveryFailures counts failed deliveries by class (permanent, transient).
	DeliveryFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamchat_delivery_failures_total",
		Help: "Failed event deliveries to individual connections.",
	}, []string{"class"})

	// PrunedConnections counts connections removed by the fan-out engine.
	PrunedConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamchat_pruned_connections_total",
		Help: "Connections pruned after a permanent delivery failure.",
	})

	// BroadcastDuration observes the wall time of a full broadcast pass.
	BroadcastDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "streamchat_broadcast_duration_seconds",
		Help:    "Duration of a full fan-out pass over the registry snapshot.",
		Buckets: prometheus.DefBuckets,
	})
)
