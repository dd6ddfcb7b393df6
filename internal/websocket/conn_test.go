package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/luciancaetano/chatroom"
)

// TestConnID tests that each connection has a unique UUID
func TestConnID(t *testing.T) {
	t.Parallel()

	ids := make(map[string]bool)
	count := 100

	for i := 0; i < count; i++ {
		c := newConn(nil, "127.0.0.1:1", connOptions{})
		if ids[c.ID()] {
			t.Errorf("duplicate ID generated: %s", c.ID())
		}
		ids[c.ID()] = true

		if _, err := uuid.Parse(c.ID()); err != nil {
			t.Errorf("ID %s is not a valid UUID: %v", c.ID(), err)
		}
	}

	if len(ids) != count {
		t.Errorf("expected %d unique IDs, got %d", count, len(ids))
	}
}

// TestRateLimiterCreation tests rate limiter creation with different configs
func TestRateLimiterCreation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  *RateLimitConfig
		wantNil bool
	}{
		{
			name:    "with rate limiting enabled",
			config:  DefaultRateLimitConfig(),
			wantNil: false,
		},
		{
			name:    "with rate limiting disabled",
			config:  NoRateLimit(),
			wantNil: true,
		},
		{
			name:    "with nil config",
			config:  nil,
			wantNil: true,
		},
		{
			name: "with custom config enabled",
			config: &RateLimitConfig{
				MessagesPerSecond: 10,
				Burst:             20,
				Enabled:           true,
			},
			wantNil: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := newConn(nil, "127.0.0.1:1", connOptions{rateLimit: tt.config})
			if tt.wantNil && c.rateLimiter != nil {
				t.Error("expected nil rate limiter")
			}
			if !tt.wantNil && c.rateLimiter == nil {
				t.Error("expected non-nil rate limiter")
			}
		})
	}
}

func TestCheckRateLimit(t *testing.T) {
	t.Parallel()

	c := newConn(nil, "127.0.0.1:1", connOptions{rateLimit: &RateLimitConfig{
		MessagesPerSecond: 0.001,
		Burst:             2,
		Enabled:           true,
	}})

	if !c.CheckRateLimit() || !c.CheckRateLimit() {
		t.Fatal("burst should allow two messages")
	}
	if c.CheckRateLimit() {
		t.Error("third message should be rate limited")
	}

	unlimited := newConn(nil, "127.0.0.1:1", connOptions{rateLimit: NoRateLimit()})
	for i := 0; i < 1000; i++ {
		if !unlimited.CheckRateLimit() {
			t.Fatal("disabled rate limit rejected a message")
		}
	}
}

// TestSendBeforeOpen tests that a connecting entry refuses frames
func TestSendBeforeOpen(t *testing.T) {
	t.Parallel()

	c := newConn(nil, "127.0.0.1:1", connOptions{})

	if c.State() != chatroom.StateConnecting {
		t.Errorf("State() = %v, want connecting", c.State())
	}
	if c.IsAlive() {
		t.Error("connecting entry should not be alive")
	}
	if err := c.Send(context.Background(), []byte("x")); !errors.Is(err, chatroom.ErrConnectionClosed) {
		t.Errorf("Send() error = %v, want ErrConnectionClosed", err)
	}
}

// serverSideConn upgrades one request and hands the server side socket to the test.
func serverSideConn(t *testing.T) (*websocket.Conn, <-chan *websocket.Conn) {
	t.Helper()

	accepted := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		accepted <- ws
	}))
	t.Cleanup(ts.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client, accepted
}

// TestConnLifecycle tests Open -> Closed with flushing, close code and idempotent close
func TestConnLifecycle(t *testing.T) {
	t.Parallel()

	client, accepted := serverSideConn(t)
	ws := <-accepted

	c := newConn(ws, "peer", connOptions{writeTimeout: time.Second, pingPeriod: time.Minute})
	if !c.open() {
		t.Fatal("open() = false")
	}
	if c.open() {
		t.Error("second open() = true")
	}
	if !c.IsAlive() {
		t.Fatal("open entry should be alive")
	}

	for _, msg := range []string{"one", "two"} {
		if err := c.Send(context.Background(), []byte(msg)); err != nil {
			t.Fatalf("Send(%q) error: %v", msg, err)
		}
	}

	// Answer the close frame in the background so the server side can finish.
	received := make(chan []string, 1)
	closeCode := make(chan int, 1)
	go func() {
		var msgs []string
		for {
			client.SetReadDeadline(time.Now().Add(5 * time.Second))
			_, data, err := client.ReadMessage()
			if err != nil {
				var ce *websocket.CloseError
				if errors.As(err, &ce) {
					closeCode <- ce.Code
				} else {
					closeCode <- -1
				}
				received <- msgs
				return
			}
			msgs = append(msgs, string(data))
		}
	}()

	if err := c.CloseWithCode(context.Background(), websocket.CloseGoingAway, "bye"); err != nil && !isExpectedCloseError(err) {
		t.Errorf("CloseWithCode() error: %v", err)
	}

	msgs := <-received
	if len(msgs) != 2 || msgs[0] != "one" || msgs[1] != "two" {
		t.Errorf("received %q, want [one two]", msgs)
	}
	if code := <-closeCode; code != websocket.CloseGoingAway {
		t.Errorf("close code = %d, want %d", code, websocket.CloseGoingAway)
	}

	if c.State() != chatroom.StateClosed {
		t.Errorf("State() = %v, want closed", c.State())
	}
	if err := c.Close(context.Background()); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
	if err := c.Send(context.Background(), []byte("late")); !errors.Is(err, chatroom.ErrConnectionClosed) {
		t.Errorf("Send() after close error = %v, want ErrConnectionClosed", err)
	}
	select {
	case <-c.Context().Done():
	default:
		t.Error("context not cancelled after close")
	}
}

// TestSendRespectsContext tests that a full queue does not block past ctx
func TestSendRespectsContext(t *testing.T) {
	t.Parallel()

	c := newConn(nil, "peer", connOptions{queueSize: 1})
	// Open without a pump so nothing drains the queue.
	c.state = chatroom.StateOpen

	if err := c.Send(context.Background(), []byte("fills queue")); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := c.Send(ctx, []byte("blocked")); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Send() error = %v, want DeadlineExceeded", err)
	}
}
