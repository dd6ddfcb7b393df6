package chatroom

import "errors"

// Default deployment settings.
const (
	DefaultAddr           = "127.0.0.1:2050"
	DefaultDisconnectWord = "chao"
	DefaultWelcomeMessage = "Connection established with the WebSocket server."
)

// Connection errors
var (
	ErrServerAlreadyRunning = errors.New("server already running")
	ErrConnectionClosed     = errors.New("connection is closed")
	ErrDuplicateID          = errors.New("duplicate connection id")
	ErrNotUpgrade           = errors.New("request is not a websocket upgrade")
)

// Close reasons sent in close frames.
const (
	ReasonNormal         = "normal closure"
	ReasonShutdown       = "server shutting down"
	ReasonRateLimited    = "rate limit exceeded"
	ReasonInvalidPayload = "invalid UTF-8 payload"
)
