// Package client is a terminal-side participant of the call room. It speaks
// the same JSON frames as the browser page, which makes it useful for
// poking at a running relay and for talking to the AI agent from a shell.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 64 * 1024
)

var ErrClosed = errors.New("client: connection closed")

// Client manages one WebSocket connection to the relay.
type Client struct {
	conn     *websocket.Conn
	incoming chan protocol.Envelope
	outgoing chan []byte
	done     chan struct{}

	// idle bounds the silence the read side tolerates; any frame, ping or
	// pong restarts it.
	idle time.Duration

	closeOnce sync.Once

	mu      sync.Mutex
	readErr error
}

// WebSocketURL turns a relay base URL (http://host:3000) into the signaling
// endpoint (ws://host:3000/ws). ws:// and wss:// URLs are kept as given,
// gaining the /ws path only when they have none.
func WebSocketURL(server string) (string, error) {
	server = strings.TrimSpace(server)
	if server == "" {
		return "", errors.New("server URL is empty")
	}
	if !strings.Contains(server, "://") {
		server = "http://" + server
	}
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid server URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("server URL has no host")
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

// Dial connects to a signaling endpoint (ws:// or wss://).
func Dial(ctx context.Context, wsURL string) (*Client, error) {
	return dialIdle(ctx, wsURL, pongWait)
}

func dialIdle(ctx context.Context, wsURL string, idle time.Duration) (*Client, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect: %w (HTTP %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c := &Client{
		conn:     conn,
		incoming: make(chan protocol.Envelope, 16),
		outgoing: make(chan []byte, 16),
		done:     make(chan struct{}),
		idle:     idle,
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})
	conn.SetPingHandler(func(appData string) error {
		c.extendReadDeadline()
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	go c.readPump()
	go c.writePump()

	return c, nil
}

// Incoming yields every well-formed frame from the relay. It is closed when
// the connection ends; Err then reports why.
func (c *Client) Incoming() <-chan protocol.Envelope {
	return c.incoming
}

// Err returns the error that ended the read side, or nil while it is open.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readErr
}

// Send queues a frame. v is marshalled with protocol.Encode.
func (c *Client) Send(v any) error {
	return c.sendRaw(protocol.Encode(v))
}

func (c *Client) SendAIMessage(text string) error {
	return c.Send(protocol.AIMessage{Type: protocol.KindAIMessage, Message: text})
}

func (c *Client) SetAIMode(enabled bool) error {
	kind := protocol.KindAIModeDisable
	if enabled {
		kind = protocol.KindAIModeEnable
	}
	return c.Send(protocol.Control{Type: kind})
}

func (c *Client) sendRaw(frame []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.outgoing <- frame:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Close sends a normal close frame and releases the connection.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}

func (c *Client) readPump() {
	defer func() {
		_ = c.conn.Close()
		close(c.incoming)
	}()

	c.extendReadDeadline()

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			// Stop the write pump too.
			c.closeOnce.Do(func() { close(c.done) })
			return
		}
		c.extendReadDeadline()
		if msgType != websocket.TextMessage {
			continue
		}
		env, err := protocol.DecodeEnvelope(data)
		if err != nil {
			continue
		}
		select {
		case c.incoming <- env:
		case <-c.done:
			return
		}
	}
}

func (c *Client) extendReadDeadline() {
	_ = c.conn.SetReadDeadline(time.Now().Add(c.idle))
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.idle * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.outgoing:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		}
	}
}

// WaitFor consumes incoming frames until one of the given kinds arrives.
// Frames of other kinds are dropped.
func (c *Client) WaitFor(ctx context.Context, kinds ...protocol.Kind) (protocol.Envelope, error) {
	for {
		select {
		case env, ok := <-c.incoming:
			if !ok {
				if err := c.Err(); err != nil {
					return protocol.Envelope{}, err
				}
				return protocol.Envelope{}, ErrClosed
			}
			for _, k := range kinds {
				if env.Kind() == k {
					return env, nil
				}
			}
		case <-ctx.Done():
			return protocol.Envelope{}, ctx.Err()
		}
	}
}
