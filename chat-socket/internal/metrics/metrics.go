package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_socket_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_socket_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Connection metrics
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_socket_active_connections",
			Help: "Currently registered websocket connections",
		},
	)

	InboundEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_socket_inbound_events_total",
			Help: "Client events received",
		},
		[]string{"event"},
	)

	// Business metrics
	MessagesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_socket_messages_ingested_total",
			Help: "Messages persisted",
		},
		[]string{"type"}, // "text" or "file"
	)

	IngestFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_socket_ingest_failures_total",
			Help: "Rejected or rolled back send_message calls",
		},
		[]string{"code"},
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_socket_ingest_duration_seconds",
			Help:    "Time from send_message receipt to commit",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	ReadReceipts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_socket_read_receipts_total",
			Help: "MarkRead calls by outcome",
		},
		[]string{"result"},
	)

	MessagesMarkedRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_socket_messages_marked_read_total",
			Help: "Messages transitioned from sent to read",
		},
	)

	StatusUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_socket_status_updates_total",
			Help: "update_status calls by outcome",
		},
		[]string{"result"}, // "applied", "ignored", "failed"
	)

	// Broadcast metrics
	Broadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_socket_broadcasts_total",
			Help: "Room emits by event",
		},
		[]string{"event"},
	)

	DeliveriesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_socket_deliveries_dropped_total",
			Help: "Frames dropped because a send buffer was full",
		},
	)

	BackplaneErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_socket_backplane_errors_total",
			Help: "Backplane publish or decode failures",
		},
		[]string{"op"},
	)
)

// GinMiddleware records request counts and latency. The route template is used as the
// path label to keep cardinality bounded.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
