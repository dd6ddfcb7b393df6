package websocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/chatroom"
	"github.com/luciancaetano/chatroom/internal/metrics"
	"github.com/luciancaetano/chatroom/internal/protocol"
)

const (
	defaultReadTimeout   = 60 * time.Second
	defaultWriteTimeout  = 10 * time.Second
	defaultSendQueueSize = 256
	stopOnCancelTimeout  = 5 * time.Second
	tracerName           = "github.com/luciancaetano/chatroom"
)

// CheckOriginFn validates the Origin of an upgrade request.
// Return true to allow the connection, false to reject it.
type CheckOriginFn = func(r *http.Request) bool

// OnConnectFn is called after a connection is registered and its welcome frame
// queued, before the receive loop starts. It runs synchronously on the
// handshake goroutine; keep it short.
type OnConnectFn = func(conn chatroom.Conn)

// OnClientDisconnectFn is called once a connection has left the registry.
// voluntary is true when the peer closed the session itself, either with a
// close frame or by sending the disconnect word.
type OnClientDisconnectFn = func(conn chatroom.Conn, voluntary bool)

// ServerConfig configures a Server. Zero values fall back to defaults.
type ServerConfig struct {
	Addr               string
	RateLimitConfig    *RateLimitConfig
	CheckOrigin        CheckOriginFn
	OnConnect          OnConnectFn
	OnClientDisconnect OnClientDisconnectFn

	// WelcomeMessage is sent once to every new connection. Empty disables it.
	WelcomeMessage string
	// DisconnectWord ends the sender's session, compared case-insensitively.
	DisconnectWord string
	// ExcludeSender skips the sender during fan-out. By default the sender
	// receives its own messages.
	ExcludeSender bool

	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64
	SendQueueSize  int

	Logger *slog.Logger
	// Registry receives the server collectors and is served on /metrics.
	// Nil disables metrics.
	Registry *prometheus.Registry
	// TracerProvider defaults to the global OpenTelemetry provider.
	TracerProvider trace.TracerProvider
}

// RateLimitConfig defines rate limiting configuration for inbound messages
type RateLimitConfig struct {
	// MessagesPerSecond defines how many messages a client can send per second
	MessagesPerSecond rate.Limit
	// Burst defines the maximum burst size (token bucket capacity)
	Burst int
	// Enabled determines if rate limiting is active
	Enabled bool
}

// DefaultRateLimitConfig returns the default rate limit configuration
// Allows 100 messages per second with burst of 200
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		MessagesPerSecond: 100,
		Burst:             200,
		Enabled:           true,
	}
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return &RateLimitConfig{
		Enabled: false,
	}
}

// Server implements chatroom.Server.
type Server struct {
	addr           string
	registry       *Registry
	upgrader       websocket.Upgrader
	rateLimit      *RateLimitConfig
	onConnect      OnConnectFn
	onDisconnect   OnClientDisconnectFn
	welcome        string
	disconnectWord string
	excludeSender  bool
	readTimeout    time.Duration
	writeTimeout   time.Duration
	maxMessageSize int64
	sendQueueSize  int
	logger         *slog.Logger
	metrics        *metrics.Collector
	promRegistry   *prometheus.Registry
	tracer         trace.Tracer
	handler        http.Handler

	mu         sync.RWMutex
	running    bool
	stopping   bool
	listener   net.Listener
	httpServer *http.Server
	stopAfter  func() bool
	wg         sync.WaitGroup
	errCh      chan error
}

// New creates a Server from cfg. Nothing listens until Start is called.
func New(cfg *ServerConfig) *Server {
	if cfg == nil {
		cfg = &ServerConfig{}
	}
	s := &Server{
		addr:           cfg.Addr,
		registry:       NewRegistry(),
		rateLimit:      cfg.RateLimitConfig,
		onConnect:      cfg.OnConnect,
		onDisconnect:   cfg.OnClientDisconnect,
		welcome:        cfg.WelcomeMessage,
		disconnectWord: cfg.DisconnectWord,
		excludeSender:  cfg.ExcludeSender,
		readTimeout:    cfg.ReadTimeout,
		writeTimeout:   cfg.WriteTimeout,
		maxMessageSize: cfg.MaxMessageSize,
		sendQueueSize:  cfg.SendQueueSize,
		logger:         cfg.Logger,
		promRegistry:   cfg.Registry,
		errCh:          make(chan error, 1),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
	}

	if s.addr == "" {
		s.addr = chatroom.DefaultAddr
	}
	if s.rateLimit == nil {
		s.rateLimit = DefaultRateLimitConfig()
	}
	if s.readTimeout <= 0 {
		s.readTimeout = defaultReadTimeout
	}
	if s.writeTimeout <= 0 {
		s.writeTimeout = defaultWriteTimeout
	}
	if s.maxMessageSize <= 0 {
		s.maxMessageSize = protocol.DefaultMaxPayloadSize
	}
	if s.sendQueueSize <= 0 {
		s.sendQueueSize = defaultSendQueueSize
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.promRegistry != nil {
		s.metrics = metrics.New(metrics.Config{Registry: s.promRegistry})
	}

	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	s.tracer = tp.Tracer(tracerName)
	s.handler = s.routes()

	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if s.promRegistry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.promRegistry, promhttp.HandlerOpts{}))
	}
	// Any other path is the chat endpoint, as clients dial ws://host:port/.
	r.HandleFunc("/*", s.handleWebSocket)
	return r
}

// Handler returns the HTTP handler serving the chat endpoint, /healthz and /metrics.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start binds the listener and serves connections in the background.
// The server stops when Stop is called or ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return chatroom.ErrServerAlreadyRunning
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}

	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.writeTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	s.running = true
	s.stopping = false

	srv := s.httpServer
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("listener failed", "addr", ln.Addr().String(), "error", err)
			select {
			case s.errCh <- err:
			default:
			}
		}
	}()

	s.stopAfter = context.AfterFunc(ctx, func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopOnCancelTimeout)
		defer cancel()
		if err := s.Stop(stopCtx); err != nil {
			s.logger.Warn("stop after context cancellation failed", "error", err)
		}
	})

	s.logger.Info("server listening", "addr", ln.Addr().String())
	return nil
}

// Stop closes the listener, sends a going-away close frame to every
// connection and waits for the receive loops to exit.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.stopping = true
	srv := s.httpServer
	if s.stopAfter != nil {
		s.stopAfter()
	}
	s.mu.Unlock()

	s.logger.Info("shutting down", "clients", s.registry.Len())

	var errs []error
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
	}

	for _, conn := range s.registry.Snapshot() {
		if err := conn.CloseWithCode(ctx, websocket.CloseGoingAway, chatroom.ReasonShutdown); err != nil && !isExpectedCloseError(err) {
			s.logger.Warn("close handshake failed", "client_id", conn.ID(), "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("shutdown complete")
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for connections: %w", ctx.Err()))
	}

	return errors.Join(errs...)
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Errors reports a listener failure after a successful Start.
func (s *Server) Errors() <-chan error {
	return s.errCh
}

// ClientCount returns the number of registered connections
func (s *Server) ClientCount() int {
	return s.registry.Len()
}

// GetClient returns a connection by ID
func (s *Server) GetClient(id string) (*Conn, bool) {
	return s.registry.Get(id)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "ok clients=%d\n", s.registry.Len())
}

// handleWebSocket performs the upgrade handshake and hands the connection to
// its receive loop. Failures only abandon this attempt.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		s.metrics.HandshakeFailed()
		s.logger.Warn("rejected non-upgrade request", "remote_addr", r.RemoteAddr, "method", r.Method, "path", r.URL.Path)
		http.Error(w, chatroom.ErrNotUpgrade.Error(), http.StatusBadRequest)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the error response.
		s.metrics.HandshakeFailed()
		s.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	ws.SetReadLimit(s.maxMessageSize)

	conn := newConn(ws, r.RemoteAddr, connOptions{
		rateLimit:    s.rateLimit,
		writeTimeout: s.writeTimeout,
		pingPeriod:   s.readTimeout * 9 / 10,
		queueSize:    s.sendQueueSize,
		logger:       s.logger,
	})

	s.mu.RLock()
	if s.stopping {
		s.mu.RUnlock()
		conn.CloseWithCode(r.Context(), websocket.CloseGoingAway, chatroom.ReasonShutdown)
		return
	}
	s.wg.Add(1)
	s.mu.RUnlock()

	if err := s.register(conn); err != nil {
		s.wg.Done()
		s.logger.Error("register connection", "client_id", conn.ID(), "error", err)
		conn.CloseWithCode(context.Background(), websocket.CloseInternalServerErr, "")
		return
	}

	go s.serve(conn)
}

// register opens conn, adds it to the registry and queues the welcome frame.
func (s *Server) register(conn *Conn) error {
	conn.open()
	if err := s.registry.Add(conn.ID(), conn); err != nil {
		return err
	}
	s.metrics.Connected()
	s.logger.Info("client connected", "client_id", conn.ID(), "remote_addr", conn.RemoteAddr(), "clients", s.registry.Len())

	if s.welcome != "" {
		if err := conn.Send(conn.Context(), []byte(s.welcome)); err != nil {
			s.logger.Warn("welcome message not sent", "client_id", conn.ID(), "error", err)
		}
	}

	if s.onConnect != nil {
		s.onConnect(conn)
	}
	return nil
}

// serve is the receive loop for one connection. It reads whole messages,
// relays text frames and ends on the disconnect word, a close frame or an
// I/O error.
func (s *Server) serve(conn *Conn) {
	reason := metrics.ReasonReadError
	voluntary := false
	defer func() {
		s.disconnect(conn, reason, voluntary)
		s.wg.Done()
	}()

	ws := conn.conn
	ws.SetReadDeadline(time.Now().Add(s.readTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.readTimeout))
	})

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			reason, voluntary = s.classifyReadError(conn, err)
			return
		}

		ws.SetReadDeadline(time.Now().Add(s.readTimeout))

		if messageType != websocket.TextMessage {
			s.logger.Debug("ignoring non-text frame", "client_id", conn.ID(), "type", messageType)
			continue
		}

		if !conn.CheckRateLimit() {
			s.logger.Warn("rate limit exceeded", "client_id", conn.ID(), "remote_addr", conn.RemoteAddr())
			conn.closeDraining(context.Background(), websocket.ClosePolicyViolation, chatroom.ReasonRateLimited)
			reason = metrics.ReasonRateLimited
			return
		}

		if err := protocol.Validate(data, s.maxMessageSize); err != nil {
			s.logger.Warn("invalid message", "client_id", conn.ID(), "error", err)
			conn.closeDraining(context.Background(), websocket.CloseInvalidFramePayloadData, chatroom.ReasonInvalidPayload)
			reason = metrics.ReasonInvalid
			return
		}

		s.metrics.MessageReceived(len(data))
		s.logger.Info("message received", "client_id", conn.ID(), "bytes", len(data), "message", string(data))

		if _, err := s.broadcast(context.Background(), conn, data); err != nil {
			s.logger.Warn("broadcast partially failed", "client_id", conn.ID(), "error", err)
		}

		if protocol.IsDisconnect(data, s.disconnectWord) {
			reason = metrics.ReasonWord
			voluntary = true
			return
		}
	}
}

// classifyReadError maps a read failure to a disconnect reason and logs the
// unexpected ones.
func (s *Server) classifyReadError(conn *Conn, err error) (string, bool) {
	s.mu.RLock()
	stopping := s.stopping
	s.mu.RUnlock()

	switch {
	case stopping:
		return metrics.ReasonShutdown, false
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		return metrics.ReasonClient, true
	case errors.Is(err, websocket.ErrReadLimit):
		s.logger.Warn("message exceeded maximum size", "client_id", conn.ID(), "max_bytes", s.maxMessageSize)
		return metrics.ReasonInvalid, false
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), isExpectedCloseError(err):
		s.logger.Debug("connection closed", "client_id", conn.ID(), "error", err)
		return metrics.ReasonReadError, false
	default:
		s.logger.Warn("websocket read error", "client_id", conn.ID(), "error", err)
		return metrics.ReasonReadError, false
	}
}

// disconnect removes conn from the registry and closes it. Close failures
// are logged and never prevent removal.
func (s *Server) disconnect(conn *Conn, reason string, voluntary bool) {
	removed := s.registry.Remove(conn.ID())

	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()
	if err := conn.closeDraining(ctx, websocket.CloseNormalClosure, chatroom.ReasonNormal); err != nil && !isExpectedCloseError(err) {
		s.logger.Warn("close handshake failed", "client_id", conn.ID(), "error", err)
	}

	if !removed {
		return
	}
	s.metrics.Disconnected(reason)

	if s.onDisconnect != nil {
		s.onDisconnect(conn, voluntary)
	}
	s.logger.Info("client disconnected", "client_id", conn.ID(), "reason", reason, "voluntary", voluntary, "clients", s.registry.Len())
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}
