package chatroom

import (
	"context"
	"net"
	"net/http"
)

// Server defines the broadcast chat server.
//
// Every UTF-8 text frame received from a connected client is relayed to all
// open connections. Sending the disconnect word ends only the sender's session.
//
// Example usage:
//
//	import "github.com/luciancaetano/chatroom/ws"
//
//	server := ws.New(ws.NewConfig("127.0.0.1:2050"))
//	if err := server.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer server.Stop(context.Background())
type Server interface {
	// Start binds the listener and begins accepting connections in the background.
	//
	// Returns an error if the server is already running or if the address
	// cannot be bound. Nothing is left listening when an error is returned.
	Start(ctx context.Context) error

	// Stop closes the listener, sends a going-away close frame to every open
	// connection and waits for their receive loops to finish or ctx to expire.
	Stop(ctx context.Context) error

	// Broadcast sends text to every open connection and returns how many
	// connections accepted it. Per-connection failures are joined into the
	// returned error; they never stop delivery to the remaining connections.
	Broadcast(ctx context.Context, text []byte) (int, error)

	// ClientCount returns the number of registered connections.
	ClientCount() int

	// Addr returns the bound listener address, or nil before Start.
	Addr() net.Addr

	// Handler returns the HTTP handler serving the WebSocket endpoint,
	// health check and metrics. Useful to mount the server in tests.
	Handler() http.Handler

	// Errors reports a fatal listener failure that happened after Start.
	Errors() <-chan error
}

// Conn represents one registered WebSocket connection.
//
// The connection context is cancelled as soon as the connection leaves the
// Open state.
type Conn interface {
	// ID returns the unique identifier generated when the handshake completed.
	ID() string

	// RemoteAddr returns the peer address, typically "IP:port".
	RemoteAddr() string

	// Context returns the connection lifecycle context.
	Context() context.Context

	// State returns the current lifecycle state.
	State() State

	// Send queues a text frame for delivery.
	//
	// Returns ErrConnectionClosed if the connection is no longer open,
	// or the context error if ctx is done before the frame could be queued.
	Send(ctx context.Context, text []byte) error

	// Close closes the connection with a normal closure code.
	Close(ctx context.Context) error

	// CloseWithCode closes the connection with a specific WebSocket close code and reason.
	//
	// Common close codes:
	//   - 1000: normal closure
	//   - 1001: going away (server shutdown)
	//   - 1007: invalid UTF-8 payload
	//   - 1008: policy violation (rate limit)
	//   - 1009: message too big
	CloseWithCode(ctx context.Context, code int, reason string) error

	// IsAlive reports whether the connection is open.
	IsAlive() bool
}

// State is the lifecycle state of a connection.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
