// Package config defines runtime defaults for the chat server and client and
// loads overrides from the environment.
package config

import (
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/chatroom"
	"github.com/luciancaetano/chatroom/internal/protocol"
	"github.com/luciancaetano/chatroom/internal/websocket"
)

// LookupFunc reads an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Server holds the chat server settings.
type Server struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxMessageSize  int64
	RatePerSecond   float64
	RateBurst       int
	DisconnectWord  string
	WelcomeMessage  string
	EchoToSender    bool
	AllowAllOrigins bool
	Metrics         bool
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Client holds the interactive client settings.
type Client struct {
	Host             string
	Port             int
	HandshakeTimeout time.Duration
	Label            string
}

// DefaultServer returns the default settings: 127.0.0.1:2050, "chao" as
// the disconnect word, sender included in broadcasts.
func DefaultServer() Server {
	return Server{
		Addr:            chatroom.DefaultAddr,
		ReadTimeout:     60 * time.Second,
		WriteTimeout:    10 * time.Second,
		MaxMessageSize:  protocol.DefaultMaxPayloadSize,
		RatePerSecond:   100,
		RateBurst:       200,
		DisconnectWord:  protocol.DefaultDisconnectWord,
		WelcomeMessage:  chatroom.DefaultWelcomeMessage,
		EchoToSender:    true,
		Metrics:         true,
		LogLevel:        "info",
		LogFormat:       "text",
		ShutdownTimeout: 5 * time.Second,
	}
}

// DefaultClient returns the client defaults. Host and Port are empty so the
// client prompts for them.
func DefaultClient() Client {
	return Client{
		HandshakeTimeout: 10 * time.Second,
		Label:            protocol.DefaultIncomingLabel,
	}
}

// ServerFromEnv returns DefaultServer overridden by CHATROOM_* variables.
// Malformed values are ignored.
func ServerFromEnv(lookup LookupFunc) Server {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	cfg := DefaultServer()

	if v, ok := lookup("CHATROOM_ADDR"); ok && v != "" {
		cfg.Addr = v
	}
	if v, ok := lookup("CHATROOM_READ_TIMEOUT"); ok {
		cfg.ReadTimeout = parseDuration(v, cfg.ReadTimeout)
	}
	if v, ok := lookup("CHATROOM_WRITE_TIMEOUT"); ok {
		cfg.WriteTimeout = parseDuration(v, cfg.WriteTimeout)
	}
	if v, ok := lookup("CHATROOM_SHUTDOWN_TIMEOUT"); ok {
		cfg.ShutdownTimeout = parseDuration(v, cfg.ShutdownTimeout)
	}
	if v, ok := lookup("CHATROOM_MAX_MESSAGE_SIZE"); ok {
		cfg.MaxMessageSize = parseInt64(v, cfg.MaxMessageSize)
	}
	if v, ok := lookup("CHATROOM_RATE_LIMIT"); ok {
		cfg.RatePerSecond = parseRate(v, cfg.RatePerSecond)
	}
	if v, ok := lookup("CHATROOM_RATE_BURST"); ok {
		cfg.RateBurst = parseInt(v, cfg.RateBurst)
	}
	if v, ok := lookup("CHATROOM_DISCONNECT_WORD"); ok {
		cfg.DisconnectWord = strings.TrimSpace(v)
	}
	if v, ok := lookup("CHATROOM_WELCOME"); ok {
		cfg.WelcomeMessage = v
	}
	if v, ok := lookup("CHATROOM_ECHO_TO_SENDER"); ok {
		cfg.EchoToSender = parseBool(v, cfg.EchoToSender)
	}
	if v, ok := lookup("CHATROOM_ALLOW_ALL_ORIGINS"); ok {
		cfg.AllowAllOrigins = parseBool(v, cfg.AllowAllOrigins)
	}
	if v, ok := lookup("CHATROOM_METRICS"); ok {
		cfg.Metrics = parseBool(v, cfg.Metrics)
	}
	if v, ok := lookup("CHATROOM_LOG_LEVEL"); ok && v != "" {
		cfg.LogLevel = v
	}
	if v, ok := lookup("CHATROOM_LOG_FORMAT"); ok && v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// ClientFromEnv returns DefaultClient overridden by CHATROOM_CLIENT_* variables.
func ClientFromEnv(lookup LookupFunc) Client {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	cfg := DefaultClient()

	if v, ok := lookup("CHATROOM_CLIENT_HOST"); ok {
		cfg.Host = strings.TrimSpace(v)
	}
	if v, ok := lookup("CHATROOM_CLIENT_PORT"); ok {
		cfg.Port = parseInt(v, cfg.Port)
	}
	if v, ok := lookup("CHATROOM_CLIENT_HANDSHAKE_TIMEOUT"); ok {
		cfg.HandshakeTimeout = parseDuration(v, cfg.HandshakeTimeout)
	}
	return cfg
}

// WebSocket converts the settings into a server configuration. A zero rate
// disables rate limiting; metrics get a private registry.
func (c Server) WebSocket(logger *slog.Logger) *websocket.ServerConfig {
	rl := websocket.NoRateLimit()
	if c.RatePerSecond > 0 {
		rl = &websocket.RateLimitConfig{
			MessagesPerSecond: rate.Limit(c.RatePerSecond),
			Burst:             c.RateBurst,
			Enabled:           true,
		}
	}

	cfg := &websocket.ServerConfig{
		Addr:            c.Addr,
		RateLimitConfig: rl,
		WelcomeMessage:  c.WelcomeMessage,
		DisconnectWord:  c.DisconnectWord,
		ExcludeSender:   !c.EchoToSender,
		ReadTimeout:     c.ReadTimeout,
		WriteTimeout:    c.WriteTimeout,
		MaxMessageSize:  c.MaxMessageSize,
		Logger:          logger,
	}
	if c.AllowAllOrigins {
		cfg.CheckOrigin = func(*http.Request) bool { return true }
	}
	if c.Metrics {
		cfg.Registry = prometheus.NewRegistry()
	}
	return cfg
}

func parseDuration(value string, defaultValue time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

func parseInt(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseInt64(value string, defaultValue int64) int64 {
	if parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

// parseRate accepts zero, which disables rate limiting.
func parseRate(value string, defaultValue float64) float64 {
	if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil && parsed >= 0 {
		return parsed
	}
	return defaultValue
}

func parseBool(value string, defaultValue bool) bool {
	if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
		return parsed
	}
	return defaultValue
}
