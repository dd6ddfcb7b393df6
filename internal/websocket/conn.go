package websocket

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/chatroom"
)

// connOptions carries the per-connection settings derived from ServerConfig.
type connOptions struct {
	rateLimit    *RateLimitConfig
	writeTimeout time.Duration
	pingPeriod   time.Duration
	queueSize    int
	logger       *slog.Logger
}

// Conn is a registered WebSocket connection. It implements chatroom.Conn.
//
// Outbound frames go through a buffered queue drained by a single write pump,
// so Send may be called from any goroutine.
type Conn struct {
	id          string
	conn        *websocket.Conn
	remoteAddr  string
	ctx         context.Context
	cancel      context.CancelFunc
	sendCh      chan []byte
	pumpDone    chan struct{}
	mu          sync.RWMutex
	state       chatroom.State
	closeCode   int
	closeReason string
	rateLimiter *rate.Limiter
	opts        connOptions
}

// newConn wraps an upgraded socket. The connection starts in the Connecting
// state; open starts the write pump and makes it eligible for delivery.
func newConn(conn *websocket.Conn, remoteAddr string, opts connOptions) *Conn {
	ctx, cancel := context.WithCancel(context.Background())

	var limiter *rate.Limiter
	if opts.rateLimit != nil && opts.rateLimit.Enabled {
		limiter = rate.NewLimiter(opts.rateLimit.MessagesPerSecond, opts.rateLimit.Burst)
	}
	if opts.queueSize <= 0 {
		opts.queueSize = defaultSendQueueSize
	}
	if opts.logger == nil {
		opts.logger = slog.Default()
	}

	return &Conn{
		id:          uuid.NewString(),
		conn:        conn,
		remoteAddr:  remoteAddr,
		ctx:         ctx,
		cancel:      cancel,
		sendCh:      make(chan []byte, opts.queueSize),
		pumpDone:    make(chan struct{}),
		state:       chatroom.StateConnecting,
		closeCode:   websocket.CloseNormalClosure,
		rateLimiter: limiter,
		opts:        opts,
	}
}

// open moves the connection to Open and starts the write pump.
func (c *Conn) open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != chatroom.StateConnecting {
		return false
	}
	c.state = chatroom.StateOpen
	go c.writePump()
	return true
}

// ID returns a unique identifier for the connection
func (c *Conn) ID() string {
	return c.id
}

// RemoteAddr returns the connection's remote network address
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}

// Context returns the connection's lifecycle context
func (c *Conn) Context() context.Context {
	return c.ctx
}

// State returns the current lifecycle state
func (c *Conn) State() chatroom.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsAlive returns true while the connection is open
func (c *Conn) IsAlive() bool {
	return c.State() == chatroom.StateOpen
}

// Send queues a text frame for the write pump
func (c *Conn) Send(ctx context.Context, text []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.state != chatroom.StateOpen || c.ctx.Err() != nil {
		return chatroom.ErrConnectionClosed
	}

	// The read lock is held while queueing so Close cannot close sendCh underneath us.
	select {
	case c.sendCh <- text:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return chatroom.ErrConnectionClosed
	}
}

// Close closes the connection with a normal closure
func (c *Conn) Close(ctx context.Context) error {
	return c.CloseWithCode(ctx, websocket.CloseNormalClosure, chatroom.ReasonNormal)
}

// CloseWithCode flushes queued frames, sends a close frame with code and
// reason, then closes the socket. Calling it more than once is a no-op.
func (c *Conn) CloseWithCode(ctx context.Context, code int, reason string) error {
	return c.close(ctx, code, reason, false)
}

// closeDraining is CloseWithCode for the receive loop, the connection's only
// reader: it waits for the peer's close frame before dropping the socket so
// unread input does not turn the FIN into a reset.
func (c *Conn) closeDraining(ctx context.Context, code int, reason string) error {
	return c.close(ctx, code, reason, true)
}

func (c *Conn) close(ctx context.Context, code int, reason string, drain bool) error {
	// Cancel first so a Send blocked on a full queue releases its read lock.
	c.cancel()

	c.mu.Lock()
	if c.state == chatroom.StateClosing || c.state == chatroom.StateClosed {
		c.mu.Unlock()
		return nil
	}
	pumping := c.state == chatroom.StateOpen
	c.state = chatroom.StateClosing
	c.closeCode = code
	c.closeReason = reason
	close(c.sendCh)
	c.mu.Unlock()

	if pumping {
		select {
		case <-c.pumpDone:
		case <-ctx.Done():
		case <-time.After(c.opts.writeTimeout):
		}
	} else {
		c.writeClose()
	}

	if drain {
		c.drain(ctx)
	}

	err := c.conn.Close()

	c.mu.Lock()
	c.state = chatroom.StateClosed
	c.mu.Unlock()

	return err
}

// drain discards inbound frames until the peer's close frame, a read error or
// the deadline. Read errors are sticky, so an already failed socket returns at once.
func (c *Conn) drain(ctx context.Context) {
	deadline := c.writeDeadline()
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetReadDeadline(deadline)
	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			return
		}
	}
}

// CheckRateLimit reports whether another inbound message is allowed.
// Always true when rate limiting is disabled.
func (c *Conn) CheckRateLimit() bool {
	if c.rateLimiter == nil {
		return true
	}
	return c.rateLimiter.Allow()
}

func (c *Conn) writeDeadline() time.Time {
	return time.Now().Add(c.opts.writeTimeout)
}

// writeClose sends the close frame recorded by CloseWithCode.
func (c *Conn) writeClose() {
	c.mu.RLock()
	message := websocket.FormatCloseMessage(c.closeCode, c.closeReason)
	c.mu.RUnlock()

	if err := c.conn.WriteControl(websocket.CloseMessage, message, c.writeDeadline()); err != nil && !isExpectedCloseError(err) {
		c.opts.logger.Debug("close frame not sent", "client_id", c.id, "error", err)
	}
}

// writePump drains the send queue to the socket. It exits once the queue is
// closed, after writing the close frame, or on the first write failure.
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.opts.pingPeriod)
	defer func() {
		ticker.Stop()
		close(c.pumpDone)
	}()

	for {
		select {
		case message, ok := <-c.sendCh:
			if !ok {
				c.writeClose()
				return
			}

			c.conn.SetWriteDeadline(c.writeDeadline())
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.abort("write", err)
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, c.writeDeadline()); err != nil {
				c.abort("ping", err)
				return
			}
		}
	}
}

// abort tears down the socket after a write failure so the receive loop
// observes the error and runs the normal disconnect path.
func (c *Conn) abort(op string, err error) {
	if !isExpectedCloseError(err) {
		c.opts.logger.Warn("websocket write failed", "client_id", c.id, "op", op, "error", err)
	}
	c.cancel()
	c.conn.Close()
}
