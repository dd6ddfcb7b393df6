package websocket

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/luciancaetano/chatroom/internal/metrics"
)

// Broadcast sends text to every open connection on behalf of the server.
func (s *Server) Broadcast(ctx context.Context, text []byte) (int, error) {
	return s.broadcast(ctx, nil, text)
}

// broadcast relays text to a snapshot of the registry. A failed send to one
// recipient is recorded and the remaining recipients are still served.
// Each send is bounded by the write timeout.
func (s *Server) broadcast(ctx context.Context, sender *Conn, text []byte) (int, error) {
	senderID := ""
	if sender != nil {
		senderID = sender.ID()
	}

	ctx, span := s.tracer.Start(ctx, "chatroom.broadcast",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("chatroom.sender_id", senderID),
			attribute.Int("chatroom.message_bytes", len(text)),
		),
	)
	defer span.End()

	recipients := s.registry.Snapshot()
	delivered := 0
	var errs []error

	for _, conn := range recipients {
		if s.excludeSender && conn == sender {
			continue
		}
		if !conn.IsAlive() {
			s.metrics.Delivery(metrics.ResultSkipped)
			continue
		}

		sendCtx, cancel := context.WithTimeout(ctx, s.writeTimeout)
		err := conn.Send(sendCtx, text)
		cancel()
		if err != nil {
			s.metrics.Delivery(metrics.ResultFailed)
			errs = append(errs, fmt.Errorf("send to %s: %w", conn.ID(), err))
			continue
		}
		s.metrics.Delivery(metrics.ResultDelivered)
		delivered++
	}

	span.SetAttributes(
		attribute.Int("chatroom.recipients", len(recipients)),
		attribute.Int("chatroom.delivered", delivered),
		attribute.Int("chatroom.failed", len(errs)),
	)

	err := errors.Join(errs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "partial delivery")
	}
	return delivered, err
}
