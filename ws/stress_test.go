package ws_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/luciancaetano/chatroom/ws"
)

// TestStressBroadcast floods the server from many clients at once and checks
// that every client receives every message exactly once.
func TestStressBroadcast(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stress test in short mode")
	}

	const (
		numClients        = 40
		messagesPerClient = 10
		expected          = numClients * messagesPerClient
	)

	server := startServer(t)
	url := "ws://" + server.Addr().String() + "/"

	conns := make([]*websocket.Conn, numClients)
	for i := range conns {
		conn, _, err := newDialer().Dial(url, nil)
		if err != nil {
			t.Fatalf("client %d failed to connect: %v", i, err)
		}
		defer conn.Close()
		read(t, conn)
		conns[i] = conn
	}

	var received atomic.Int64
	var readers sync.WaitGroup
	counts := make([]map[string]int, numClients)

	for i, conn := range conns {
		counts[i] = make(map[string]int)
		readers.Add(1)
		go func(i int, conn *websocket.Conn) {
			defer readers.Done()
			conn.SetReadDeadline(time.Now().Add(30 * time.Second))
			for n := 0; n < expected; n++ {
				_, data, err := conn.ReadMessage()
				if err != nil {
					t.Errorf("client %d read after %d messages: %v", i, n, err)
					return
				}
				counts[i][string(data)]++
				received.Add(1)
			}
		}(i, conn)
	}

	start := time.Now()
	var writers sync.WaitGroup
	for i, conn := range conns {
		writers.Add(1)
		go func(i int, conn *websocket.Conn) {
			defer writers.Done()
			for m := 0; m < messagesPerClient; m++ {
				msg := fmt.Sprintf("client-%d-msg-%d", i, m)
				if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
					t.Errorf("client %d write: %v", i, err)
					return
				}
			}
		}(i, conn)
	}
	writers.Wait()
	readers.Wait()

	t.Logf("delivered %d messages to %d clients in %v", received.Load(), numClients, time.Since(start))

	for i, c := range counts {
		if len(c) != expected {
			t.Errorf("client %d saw %d distinct messages, want %d", i, len(c), expected)
		}
		for msg, n := range c {
			if n != 1 {
				t.Errorf("client %d received %q %d times", i, msg, n)
			}
		}
	}

	if server.ClientCount() != numClients {
		t.Errorf("ClientCount() = %d, want %d", server.ClientCount(), numClients)
	}
}

func BenchmarkServerBroadcast(b *testing.B) {
	cfg := ws.NewConfig("127.0.0.1:0")
	cfg.RateLimitConfig = ws.NoRateLimit()
	cfg.WelcomeMessage = ""
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	server := ws.New(cfg)
	if err := server.Start(context.Background()); err != nil {
		b.Fatalf("Failed to start server: %v", err)
	}
	defer server.Stop(context.Background())

	const clients = 10
	url := "ws://" + server.Addr().String() + "/"
	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		conn, _, err := newDialer().Dial(url, nil)
		if err != nil {
			b.Fatalf("Failed to connect: %v", err)
		}
		defer conn.Close()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
	for server.ClientCount() < clients {
		time.Sleep(time.Millisecond)
	}

	msg := []byte("benchmark")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := server.Broadcast(context.Background(), msg); err != nil {
			b.Fatal(err)
		}
	}
}
