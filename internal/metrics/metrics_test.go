package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorCounts(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := New(Config{Registry: reg})

	c.Connected()
	c.Connected()
	c.Disconnected(ReasonWord)
	c.HandshakeFailed()
	c.MessageReceived(5)
	c.Delivery(ResultDelivered)
	c.Delivery(ResultDelivered)
	c.Delivery(ResultFailed)

	if got := testutil.ToFloat64(c.activeConnections); got != 1 {
		t.Errorf("active_connections = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.connectionsTotal); got != 2 {
		t.Errorf("connections_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.handshakeFailures); got != 1 {
		t.Errorf("handshake_failures_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.messagesReceived); got != 1 {
		t.Errorf("messages_received_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.deliveries.WithLabelValues(ResultDelivered)); got != 2 {
		t.Errorf("deliveries_total{delivered} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.deliveries.WithLabelValues(ResultFailed)); got != 1 {
		t.Errorf("deliveries_total{failed} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.disconnects.WithLabelValues(ReasonWord)); got != 1 {
		t.Errorf("disconnects_total{disconnect_word} = %v, want 1", got)
	}
}

func TestCollectorNamespace(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := New(Config{Namespace: "custom", Registry: reg})
	c.Connected()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}

	found := false
	for _, f := range families {
		if f.GetName() == "custom_active_connections" {
			found = true
		}
	}
	if !found {
		t.Error("expected custom_active_connections to be registered")
	}
}

// TestNilCollector tests that a nil collector can be used safely
func TestNilCollector(t *testing.T) {
	t.Parallel()

	var c *Collector
	c.Connected()
	c.Disconnected(ReasonClient)
	c.HandshakeFailed()
	c.MessageReceived(10)
	c.Delivery(ResultSkipped)
}
