package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GatewayOperations counts remote operations by name and outcome.
	GatewayOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "photogram_gateway_operations_total",
		Help: "Total number of remote operations by name and outcome",
	}, []string{"operation", "outcome"})

	// GatewayOperationLatency records remote operation latency by name.
	GatewayOperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "photogram_gateway_operation_latency_seconds",
		Help:    "Remote operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// ReconcileEvents counts optimistic cache events by kind and outcome
	// (applied, confirmed, rolled_back, superseded).
	ReconcileEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "photogram_reconcile_events_total",
		Help: "Total optimistic cache events by kind and outcome",
	}, []string{"kind", "outcome"})

	// FeedFetches counts feed page fetches by result (page, empty, error).
	FeedFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "photogram_feed_fetches_total",
		Help: "Total feed page fetches by result",
	}, []string{"result"})

	// SubscriptionSnapshots counts live snapshots applied by operation.
	SubscriptionSnapshots = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "photogram_subscription_snapshots_total",
		Help: "Total subscription snapshots applied by operation",
	}, []string{"operation"})

	// CacheDocuments is the gauge of documents held in the normalized cache.
	CacheDocuments = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "photogram_cache_documents",
		Help: "Number of documents held in the normalized cache by kind",
	}, []string{"kind"})

	// RedisErrors counts snapshot-store errors by operation type.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "photogram_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// WebSocketConnectionsTotal is the gauge of active push connections.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "photogram_websocket_connections_total",
		Help: "Total number of active WebSocket push connections",
	})

	// WebSocketEventsTotal counts push events by type.
	WebSocketEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "photogram_websocket_events_total",
		Help: "Total WebSocket push events by type",
	}, []string{"event_type"})
)
