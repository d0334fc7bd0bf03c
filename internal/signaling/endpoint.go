package signaling

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/room"
)

const wsWriteWait = 1 * time.Second

// closeRequest asks the write pump to flush one last frame and send a close
// control frame.
type closeRequest struct {
	frame  []byte
	code   int
	reason string
}

// wsEndpoint is a room.Endpoint backed by a WebSocket connection. All writes
// go through a single write pump goroutine; Send only enqueues.
type wsEndpoint struct {
	id   string
	conn *websocket.Conn
	log  *slog.Logger

	pingInterval time.Duration
	idleTimeout  time.Duration

	send     chan []byte
	closeReq chan closeRequest
	done     chan struct{}
	// pumpDone is closed when the write pump has returned.
	pumpDone chan struct{}

	closeOnce sync.Once
}

var _ room.Endpoint = (*wsEndpoint)(nil)

func newWSEndpoint(conn *websocket.Conn, logger *slog.Logger, queueSize int, pingInterval, idleTimeout time.Duration) *wsEndpoint {
	if queueSize <= 0 {
		queueSize = DefaultSendQueueSize
	}
	id := uuid.NewString()
	return &wsEndpoint{
		id:           id,
		conn:         conn,
		log:          logger.With("endpoint_id", id, "remote_addr", conn.RemoteAddr().String()),
		pingInterval: pingInterval,
		idleTimeout:  idleTimeout,
		send:         make(chan []byte, queueSize),
		closeReq:     make(chan closeRequest, 1),
		done:         make(chan struct{}),
		pumpDone:     make(chan struct{}),
	}
}

func (e *wsEndpoint) ID() string { return e.id }

// Send enqueues frame without blocking.
func (e *wsEndpoint) Send(frame []byte) error {
	select {
	case <-e.done:
		return room.ErrEndpointClosed
	default:
	}
	select {
	case e.send <- frame:
		return nil
	case <-e.done:
		return room.ErrEndpointClosed
	default:
		return room.ErrSendQueueFull
	}
}

// Close tears the connection down immediately, dropping queued frames.
func (e *wsEndpoint) Close() error {
	e.closeOnce.Do(func() {
		close(e.done)
		_ = e.conn.Close()
	})
	return nil
}

// fail sends frame followed by a close frame, waits briefly for the write
// pump to flush them, then closes the connection.
func (e *wsEndpoint) fail(frame []byte, code int, reason string) {
	select {
	case e.closeReq <- closeRequest{frame: frame, code: code, reason: reason}:
	default:
	}
	select {
	case <-e.pumpDone:
	case <-time.After(2 * wsWriteWait):
	}
	_ = e.Close()
}

// extendReadDeadline pushes the idle deadline forward. Any inbound frame or
// pong counts as activity.
func (e *wsEndpoint) extendReadDeadline() {
	if e.idleTimeout <= 0 {
		return
	}
	_ = e.conn.SetReadDeadline(time.Now().Add(e.idleTimeout))
}

func (e *wsEndpoint) writePump() {
	defer close(e.pumpDone)

	var tick <-chan time.Time
	if e.pingInterval > 0 {
		ticker := time.NewTicker(e.pingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case frame := <-e.send:
			if err := e.write(websocket.TextMessage, frame); err != nil {
				e.log.Debug("signaling write failed", "err", err)
				_ = e.Close()
				return
			}
		case req := <-e.closeReq:
			// Flush frames queued ahead of the final frame so peers see a
			// consistent sequence.
			e.flushQueued()
			if req.frame != nil {
				_ = e.write(websocket.TextMessage, req.frame)
			}
			_ = e.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(req.code, req.reason), time.Now().Add(wsWriteWait))
			return
		case <-tick:
			if err := e.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				e.log.Debug("signaling ping failed", "err", err)
				_ = e.Close()
				return
			}
		case <-e.done:
			return
		}
	}
}

func (e *wsEndpoint) flushQueued() {
	for {
		select {
		case frame := <-e.send:
			if err := e.write(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (e *wsEndpoint) write(messageType int, data []byte) error {
	_ = e.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return e.conn.WriteMessage(messageType, data)
}
