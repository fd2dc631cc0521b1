// Package transport delivers the dialog event stream from the gateway to
// the reconciliation engine over a WebSocket, with reconnect/backoff. The
// engine never sees the connection; it receives decoded wire events one at
// a time through a callback.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/longrun-ai/dominds-sub008/internal/wire"
)

// ConnState tracks the gateway connection lifecycle.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// hello is the first frame sent after the socket opens.
type hello struct {
	Type     string `json:"type"`
	Client   string `json:"client"`
	Version  string `json:"version"`
	Token    string `json:"token,omitempty"`
	Protocol int    `json:"protocol"`
}

// helloAck is the gateway's acceptance of a hello.
type helloAck struct {
	Type       string `json:"type"`
	Status     string `json:"status"`
	SessionKey string `json:"session_key,omitempty"`
	Error      string `json:"error,omitempty"`
}

const protocolVersion = 1

// Client maintains the WebSocket connection to the dialog gateway.
type Client struct {
	url    string
	token  string
	logger *slog.Logger

	dialer *websocket.Dialer

	// onEvent receives every decoded frame, in arrival order, from the
	// read loop goroutine. The callback owns serialization into the
	// engine's event loop.
	onEvent func(wire.Event)
	// onDecodeErr receives frames that failed to decode.
	onDecodeErr func(data []byte, err error)

	mu         sync.RWMutex
	conn       *websocket.Conn
	state      ConnState
	sessionKey string

	// Backoff bounds for reconnect. Doubling from Initial up to Max.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// NewClient creates a client for the gateway at url.
func NewClient(url, token string, logger *slog.Logger) *Client {
	return &Client{
		url:    url,
		token:  token,
		logger: logger,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

// OnEvent sets the decoded-frame callback. Must be set before Run.
func (c *Client) OnEvent(fn func(wire.Event)) { c.onEvent = fn }

// OnDecodeError sets the callback for undecodable frames. Optional.
func (c *Client) OnDecodeError(fn func(data []byte, err error)) { c.onDecodeErr = fn }

// State returns the current connection state.
func (c *Client) State() ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SessionKey returns the session key issued by the gateway, if connected.
func (c *Client) SessionKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionKey
}

func (c *Client) setState(s ConnState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Run connects and keeps delivering events until ctx is canceled,
// reconnecting with exponential backoff after any failure. It returns
// ctx.Err() on cancellation.
func (c *Client) Run(ctx context.Context) error {
	if c.onEvent == nil {
		return fmt.Errorf("transport: OnEvent callback not set")
	}

	backoff := c.InitialBackoff
	for {
		err := c.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("gateway connection lost",
			slog.String("error", err.Error()),
			slog.Duration("retry_in", backoff))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.MaxBackoff {
			backoff = c.MaxBackoff
		}
	}
}

// connectAndRead performs one connection lifetime: dial, hello handshake,
// then read frames until the socket fails or ctx is canceled.
func (c *Client) connectAndRead(ctx context.Context) error {
	c.setState(StateConnecting)

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		conn.Close()
		c.mu.Lock()
		c.conn = nil
		c.sessionKey = ""
		c.mu.Unlock()
		c.setState(StateDisconnected)
	}()

	if err := c.handshake(conn); err != nil {
		return err
	}
	c.setState(StateConnected)
	c.logger.Info("connected to gateway",
		slog.String("url", c.url),
		slog.String("session_key", c.SessionKey()))

	// Close the socket when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read frame: %w", err)
		}

		ev, err := wire.Decode(data)
		if err != nil {
			c.logger.Warn("undecodable frame", slog.String("error", err.Error()))
			if c.onDecodeErr != nil {
				c.onDecodeErr(data, err)
			}
			continue
		}
		c.onEvent(ev)
	}
}

// handshake sends the hello frame and waits for the gateway's ack.
func (c *Client) handshake(conn *websocket.Conn) error {
	h := hello{
		Type:     "hello",
		Client:   "dialogview",
		Version:  "0.1.0",
		Token:    c.token,
		Protocol: protocolVersion,
	}
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshal hello: %w", err)
	}
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send hello: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	defer conn.SetReadDeadline(time.Time{})

	_, ackData, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read hello ack: %w", err)
	}
	var ack helloAck
	if err := json.Unmarshal(ackData, &ack); err != nil {
		return fmt.Errorf("parse hello ack: %w", err)
	}
	if ack.Status != "ok" {
		return fmt.Errorf("gateway rejected hello: %s", ack.Error)
	}

	c.mu.Lock()
	c.sessionKey = ack.SessionKey
	c.mu.Unlock()
	return nil
}
