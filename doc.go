// Package chatroom provides a minimal WebSocket broadcast chat server and its
// interactive client.
//
// Any UTF-8 text frame received from one client is relayed, byte for byte, to
// every connected client, the sender included by default. There are no rooms,
// no persistence and no envelope: the payload is the raw text frame.
//
// # Quick Start
//
//	import "github.com/luciancaetano/chatroom/ws"
//
//	cfg := ws.NewConfig("127.0.0.1:2050")
//	server := ws.New(cfg)
//	if err := server.Start(ctx); err != nil {
//	    log.Fatal(err) // address already in use, etc.
//	}
//
// # Sessions
//
// Each accepted connection gets a uuid, is added to the connection registry and
// receives a one-time welcome frame. A receive loop then reads complete
// messages until the peer closes, a read fails, or the peer sends the
// disconnect word ("chao", case-insensitive). The disconnect word is relayed
// like any other message before the session ends.
//
// # Hardening
//
//   - Read timeout: 60s, refreshed by every frame and pong
//   - Write timeout: 10s per frame
//   - Keepalive ping at 9/10 of the read timeout
//   - Maximum message size: 10MB (close code 1009)
//   - Invalid UTF-8 text closes the session (close code 1007)
//   - Optional per-connection rate limit (close code 1008)
//
// # Observability
//
// The server logs through log/slog, exports Prometheus metrics on /metrics and
// records one OpenTelemetry span per broadcast using the global tracer
// provider.
package chatroom
