// Package push maintains the long-lived websocket to the translation server
// over which confirmed messages for one conversation are delivered
// asynchronously.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bosley/medtalk/chat"
)

const (
	// Time allowed to write a ping to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	reconnectMin = 1 * time.Second
	reconnectMax = 30 * time.Second
)

const (
	StatusConnecting   = "connecting"
	StatusOpen         = "open"
	StatusDisconnected = "disconnected"
	StatusReconnecting = "reconnecting"
)

// Channel is one conversation-scoped push channel handle. It dials lazily,
// reconnects with capped exponential backoff, and emits inbound messages on
// Events until closed. No event is emitted while disconnected; the server
// does not replay across a reconnect gap, so delivery is at most once.
type Channel struct {
	url    string
	events chan chat.Message
	cancel context.CancelFunc

	mu     sync.Mutex
	status string
}

// Open creates the handle for a conversation and starts its connection
// loop. serverURL is the http(s) base address of the translation server.
func Open(ctx context.Context, serverURL, conversationID string) (*Channel, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported server URL scheme %q", u.Scheme)
	}
	u.Path = "/ws/" + conversationID

	ctx, cancel := context.WithCancel(ctx)
	c := &Channel{
		url:    u.String(),
		events: make(chan chat.Message, 256),
		cancel: cancel,
		status: StatusConnecting,
	}
	go c.run(ctx)
	return c, nil
}

// Events is the inbound message stream. The channel is closed when the
// handle is closed.
func (c *Channel) Events() <-chan chat.Message {
	return c.events
}

// Status reports connectivity: connecting, open, disconnected or
// reconnecting.
func (c *Channel) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Close tears the connection down and ends the event stream.
func (c *Channel) Close() error {
	c.cancel()
	return nil
}

func (c *Channel) setStatus(status string) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
}

func (c *Channel) run(ctx context.Context) {
	defer func() {
		c.setStatus(StatusDisconnected)
		close(c.events)
	}()

	backoff := reconnectMin
	connectedBefore := false

	for {
		if ctx.Err() != nil {
			return
		}
		if connectedBefore {
			c.setStatus(StatusReconnecting)
		} else {
			c.setStatus(StatusConnecting)
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Debug("Push channel dial failed",
				"error", err,
				"url", c.url,
				"retryIn", backoff)
			c.setStatus(StatusDisconnected)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > reconnectMax {
				backoff = reconnectMax
			}
			continue
		}

		connectedBefore = true
		backoff = reconnectMin
		c.setStatus(StatusOpen)
		slog.Debug("Push channel connected", "url", c.url)

		c.readLoop(ctx, conn)

		conn.Close()
		c.setStatus(StatusDisconnected)
		if ctx.Err() != nil {
			return
		}
		slog.Info("Push channel lost, reconnecting", "url", c.url)
	}
}

// readLoop pumps one connection until it errors or the context ends. A
// companion goroutine keeps the connection alive with pings.
func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)

	go pingLoop(conn, done)

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("Push channel read error", "error", err)
			}
			return
		}

		var msg chat.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Dropping malformed push event", "error", err)
			continue
		}
		msg.Status = chat.StatusConfirmed

		select {
		case c.events <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
