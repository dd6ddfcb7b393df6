package ws

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/luciancaetano/chatroom"
	"github.com/luciancaetano/chatroom/internal/protocol"
	"github.com/luciancaetano/chatroom/internal/websocket"
)

type RateLimitConfig = websocket.RateLimitConfig
type CheckOriginFn = websocket.CheckOriginFn
type OnConnectFn = websocket.OnConnectFn
type OnDisconnectFn = websocket.OnClientDisconnectFn
type ServerConfig = *websocket.ServerConfig

// New creates a broadcast chat server from cfg.
//
// Example:
//
//	cfg := ws.NewConfig("127.0.0.1:2050")
//	cfg.OnConnect = func(conn chatroom.Conn) {
//	    log.Printf("Client connected: %s", conn.ID())
//	}
//	server := ws.New(cfg)
func New(cfg ServerConfig) chatroom.Server {
	return websocket.New(cfg)
}

// NewConfig returns the default chat configuration:
// welcome frame, "chao" disconnect word, sender included in broadcasts,
// default rate limit and a private Prometheus registry.
func NewConfig(addr string) ServerConfig {
	if addr == "" {
		addr = chatroom.DefaultAddr
	}
	return &websocket.ServerConfig{
		Addr:            addr,
		RateLimitConfig: DefaultRateLimitConfig(),
		WelcomeMessage:  chatroom.DefaultWelcomeMessage,
		DisconnectWord:  protocol.DefaultDisconnectWord,
		MaxMessageSize:  protocol.DefaultMaxPayloadSize,
		Registry:        prometheus.NewRegistry(),
	}
}

// AllOrigins returns a checkOrigin function that allows all origins
func AllOrigins() CheckOriginFn {
	return func(r *http.Request) bool {
		return true
	}
}

// DefaultRateLimitConfig returns the default rate limit configuration
func DefaultRateLimitConfig() *RateLimitConfig {
	return websocket.DefaultRateLimitConfig()
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return websocket.NoRateLimit()
}
