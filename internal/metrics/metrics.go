package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery results recorded by the broadcast fan-out.
const (
	ResultDelivered = "delivered"
	ResultFailed    = "failed"
	ResultSkipped   = "skipped"
)

// Disconnect reasons.
const (
	ReasonClient      = "client"
	ReasonWord        = "disconnect_word"
	ReasonReadError   = "read_error"
	ReasonRateLimited = "rate_limited"
	ReasonInvalid     = "invalid_payload"
	ReasonShutdown    = "shutdown"
)

// Config configures the chat server collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "chatroom").
	Namespace string

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Collector holds the Prometheus collectors for the chat server.
// A nil *Collector is valid and records nothing.
type Collector struct {
	activeConnections prometheus.Gauge
	connectionsTotal  prometheus.Counter
	handshakeFailures prometheus.Counter
	messagesReceived  prometheus.Counter
	messageBytes      prometheus.Histogram
	deliveries        *prometheus.CounterVec
	disconnects       *prometheus.CounterVec
}

// New registers the chat server collectors on cfg.Registry.
func New(cfg Config) *Collector {
	if cfg.Namespace == "" {
		cfg.Namespace = "chatroom"
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(cfg.Registry)

	return &Collector{
		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "active_connections",
			Help:      "Number of registered WebSocket connections",
		}),
		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "connections_total",
			Help:      "Total number of completed WebSocket handshakes",
		}),
		handshakeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "handshake_failures_total",
			Help:      "Total number of rejected or failed upgrade attempts",
		}),
		messagesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "messages_received_total",
			Help:      "Total number of text messages received from clients",
		}),
		messageBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "message_size_bytes",
			Help:      "Size of received text messages in bytes",
			Buckets:   prometheus.ExponentialBuckets(16, 4, 8),
		}),
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "deliveries_total",
			Help:      "Broadcast deliveries by result",
		}, []string{"result"}),
		disconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "disconnects_total",
			Help:      "Closed sessions by reason",
		}, []string{"reason"}),
	}
}

func (c *Collector) Connected() {
	if c == nil {
		return
	}
	c.connectionsTotal.Inc()
	c.activeConnections.Inc()
}

func (c *Collector) Disconnected(reason string) {
	if c == nil {
		return
	}
	c.activeConnections.Dec()
	c.disconnects.WithLabelValues(reason).Inc()
}

func (c *Collector) HandshakeFailed() {
	if c == nil {
		return
	}
	c.handshakeFailures.Inc()
}

func (c *Collector) MessageReceived(size int) {
	if c == nil {
		return
	}
	c.messagesReceived.Inc()
	c.messageBytes.Observe(float64(size))
}

func (c *Collector) Delivery(result string) {
	if c == nil {
		return
	}
	c.deliveries.WithLabelValues(result).Inc()
}
