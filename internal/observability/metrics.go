// Package observability provides metrics and tracing.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GraphQLOperations counts executed GraphQL operations by name and outcome.
	GraphQLOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zola_graphql_operations_total",
		Help: "Total number of GraphQL operations by operation name and status",
	}, []string{"operation", "status"})

	// GraphQLDuration records GraphQL execution latency.
	GraphQLDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zola_graphql_duration_seconds",
		Help:    "GraphQL execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// AuthEvents counts token issuance, refresh, revocation and failures.
	AuthEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zola_auth_events_total",
		Help: "Total authentication events by type",
	}, []string{"event"})

	// AvatarProcessing counts image normalizations by result.
	AvatarProcessing = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zola_avatar_processing_total",
		Help: "Total number of image normalizations by kind and result",
	}, []string{"kind", "result"})

	// DatabaseErrors counts failed repository operations.
	DatabaseErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zola_db_errors_total",
		Help: "Total number of database errors by table and operation",
	}, []string{"table", "operation"})

	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zola_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// CommentStreamConnections is the gauge of open comment-stream sockets.
	CommentStreamConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zola_comment_stream_connections",
		Help: "Number of open comment stream WebSocket connections",
	})

	// WebSocketBackpressureDrops counts messages dropped because a client could not keep up.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zola_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"reason"})
)

// ObserveGraphQL records one operation outcome.
func ObserveGraphQL(operation string, failed bool, start time.Time) {
	if operation == "" {
		operation = "anonymous"
	}
	status := "ok"
	if failed {
		status = "error"
	}
	GraphQLOperations.WithLabelValues(operation, status).Inc()
	GraphQLDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
