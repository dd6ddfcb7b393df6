// Package client implements the interactive chat client: it sends stdin lines
// as text frames and prints every frame received from the server.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/luciancaetano/chatroom/internal/protocol"
)

const closeTimeout = 5 * time.Second

// Config configures a client connection.
type Config struct {
	URL              string
	HandshakeTimeout time.Duration
	// Label prefixes every received frame when printed.
	Label string
}

// Client is a connected chat client.
type Client struct {
	conn  *websocket.Conn
	label string
}

// URL builds the chat endpoint address for host and port.
func URL(host string, port int) string {
	u := url.URL{
		Scheme: "ws",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/",
	}
	return u.String()
}

// Dial connects to the chat server.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, cfg.URL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.URL, err)
	}

	label := cfg.Label
	if label == "" {
		label = protocol.DefaultIncomingLabel
	}
	return &Client{conn: conn, label: label}, nil
}

// Run sends each line read from in and prints each received text frame to out,
// concurrently. It returns when the server closes the session, when in is
// exhausted and the close handshake completes, or when ctx is cancelled.
// A normal or going-away close from the server is not an error.
func (c *Client) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	recvDone := make(chan error, 1)
	go func() {
		recvDone <- c.receive(out)
	}()

	sendDone := make(chan error, 1)
	go func() {
		sendDone <- c.send(in)
	}()

	select {
	case err := <-recvDone:
		return normalizeClose(err)

	case sendErr := <-sendDone:
		if sendErr == nil {
			c.closeHandshake()
		}
		recvErr := normalizeClose(c.waitReceive(recvDone))
		if sendErr != nil && recvErr != nil {
			return sendErr
		}
		return recvErr

	case <-ctx.Done():
		c.closeHandshake()
		c.waitReceive(recvDone)
		return ctx.Err()
	}
}

// Close closes the underlying connection without a close handshake.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) receive(out io.Writer) error {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if _, err := fmt.Fprintln(out, protocol.FormatIncoming(c.label, data)); err != nil {
			return fmt.Errorf("print message: %w", err)
		}
	}
}

func (c *Client) send(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), protocol.DefaultMaxPayloadSize)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if err := c.conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}

func (c *Client) closeHandshake() {
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(closeTimeout))
}

// waitReceive waits for the receive loop to see the server's close frame,
// forcing the socket closed if it does not arrive in time.
func (c *Client) waitReceive(recvDone <-chan error) error {
	select {
	case err := <-recvDone:
		return err
	case <-time.After(closeTimeout):
		_ = c.conn.Close()
		return <-recvDone
	}
}

func normalizeClose(err error) error {
	if err == nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return fmt.Errorf("server closed the connection: %w", err)
	}
	return fmt.Errorf("receive message: %w", err)
}
