package signaling

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/origin"
	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/protocol"
	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/ratelimit"
	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/room"
)

const (
	DefaultIdleTimeout          = 60 * time.Second
	DefaultPingInterval         = 20 * time.Second
	DefaultMaxMessageBytes      = int64(64 * 1024)
	DefaultSendQueueSize        = 256
)

// Config wires the runtime dependencies of the signaling WebSocket server.
type Config struct {
	Store   *room.Store
	Router  *Router
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// AllowedOrigins builds an origin.Policy: empty means same host only.
	// Requests without an Origin header (non-browser clients) are accepted.
	AllowedOrigins []string

	// IdleTimeout closes connections with no inbound frames or pongs.
	// PingInterval must be shorter. Zero disables either.
	IdleTimeout  time.Duration
	PingInterval time.Duration

	// MaxMessageBytes caps a single inbound frame. Zero uses the default.
	MaxMessageBytes int64
	// MaxMessagesPerSecond caps inbound frames per endpoint. <= 0 disables.
	MaxMessagesPerSecond int
	SendQueueSize        int

	// Clock drives per-endpoint rate limiting. Defaults to the wall clock.
	Clock ratelimit.Clock
}

// Server accepts WebSocket connections into the room and runs one read loop
// per admitted endpoint.
//
// Lifecycle per connection: upgrade, admit (room full gets one error frame and
// a try-again-later close), read frames into the Router, and on exit remove
// from the store, which notifies the remaining peer.
type Server struct {
	cfg      Config
	log      *slog.Logger
	upgrader websocket.Upgrader
	origins  origin.Policy

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = DefaultSendQueueSize
	}
	if cfg.Clock == nil {
		cfg.Clock = ratelimit.RealClock{}
	}

	s := &Server{cfg: cfg, log: cfg.Logger, origins: origin.NewPolicy(cfg.AllowedOrigins)}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// RegisterRoutes mounts the dedicated signaling path.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("GET /ws", s)
}

// UpgradeOr serves WebSocket upgrade requests on any path and passes every
// other request to fallback. Browser clients connect to the page's own URL.
func (s *Server) UpgradeOr(fallback http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			s.ServeHTTP(w, r)
			return
		}
		fallback.ServeHTTP(w, r)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		s.log.Debug("signaling upgrade failed", "remote_addr", r.RemoteAddr, "err", err)
		return
	}

	ep := newWSEndpoint(conn, s.log, s.cfg.SendQueueSize, s.cfg.PingInterval, s.cfg.IdleTimeout)
	go ep.writePump()

	if err := s.cfg.Store.Admit(ep); err != nil {
		ep.log.Info("rejecting endpoint", "err", err)
		ep.fail(protocol.Encode(protocol.NewError(protocol.RoomFullMessage)), websocket.CloseTryAgainLater, "room full")
		return
	}

	s.readLoop(ep)
}

func (s *Server) readLoop(ep *wsEndpoint) {
	defer func() {
		s.cfg.Store.Remove(ep)
		_ = ep.Close()
	}()

	conn := ep.conn
	conn.SetReadLimit(s.cfg.MaxMessageBytes)
	ep.extendReadDeadline()
	conn.SetPongHandler(func(string) error {
		ep.extendReadDeadline()
		return nil
	})

	limiter := ratelimit.PerSecond(s.cfg.Clock, s.cfg.MaxMessagesPerSecond)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			switch {
			case isTimeout(err):
				ep.log.Info("signaling connection idle; closing", "idle_timeout", s.cfg.IdleTimeout)
				ep.fail(nil, websocket.CloseNormalClosure, "idle timeout")
			case errors.Is(err, websocket.ErrReadLimit):
				s.cfg.Metrics.Inc(metrics.FrameTooLarge)
				ep.log.Info("signaling frame exceeds limit; closing", "limit_bytes", s.cfg.MaxMessageBytes)
			case websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
				ep.log.Debug("signaling connection closed", "err", err)
			}
			return
		}
		ep.extendReadDeadline()

		// Rate limiting applies after the read so the close handshake is not
		// lost to unread bytes in the socket buffer.
		if !limiter.AllowFrame() {
			s.cfg.Metrics.Inc(metrics.FrameRateLimited)
			ep.log.Info("signaling rate limit exceeded; closing")
			ep.fail(protocol.Encode(protocol.NewError(protocol.RateLimitedMessage)), websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}

		if msgType != websocket.TextMessage {
			s.cfg.Metrics.Inc(metrics.FrameMalformed)
			ep.log.Debug("dropping non-text signaling frame", "message_type", msgType)
			continue
		}

		_, _ = s.cfg.Router.Dispatch(ep, data)
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if _, _, allowed := s.origins.Check(r); allowed {
		return true
	}
	s.cfg.Metrics.Inc(metrics.EndpointRejectedOrigin)
	s.log.Info("rejecting signaling origin", "origin", r.Header.Get("Origin"), "remote_addr", r.RemoteAddr)
	return false
}

// Shutdown stops accepting connections, closes every member and waits for
// their handlers to return or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cfg.Store.CloseAll()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
