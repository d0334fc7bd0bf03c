// Package room tracks the endpoints connected to the single call room and
// fans frames out between them.
package room

import (
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/protocol"
)

// DefaultCapacity is the number of participants in a call.
const DefaultCapacity = 2

var (
	ErrRoomFull       = errors.New("room: room is full")
	ErrAlreadyMember  = errors.New("room: endpoint already admitted")
	ErrEndpointClosed = errors.New("room: endpoint closed")
	ErrSendQueueFull  = errors.New("room: send queue full")
	errNilEndpoint    = errors.New("room: nil endpoint")
)

// Endpoint is one live participant connection.
//
// Send must not block: implementations queue the frame or fail with
// ErrSendQueueFull / ErrEndpointClosed. Close must be safe to call more than
// once and from any goroutine.
type Endpoint interface {
	ID() string
	Send(frame []byte) error
	Close() error
}

// Status is the derived readiness of the room.
type Status struct {
	ClientCount int  `json:"clientCount"`
	Ready       bool `json:"ready"`
	Capacity    int  `json:"capacity"`
}

type Config struct {
	// Capacity defaults to DefaultCapacity when <= 0.
	Capacity int
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// Store owns room membership. Membership changes and the status broadcasts
// they trigger happen under one lock so every member observes transitions in
// the same order.
type Store struct {
	capacity int
	log      *slog.Logger
	metrics  *metrics.Metrics

	mu      sync.Mutex
	members []Endpoint
}

func New(cfg Config) *Store {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{
		capacity: capacity,
		log:      logger,
		metrics:  cfg.Metrics,
	}
}

func (s *Store) Capacity() int { return s.capacity }

// Admit adds ep to the room and broadcasts the new status to every member,
// including ep. It returns ErrRoomFull without touching membership when the
// room is at capacity; the caller owns rejecting and closing ep.
func (s *Store) Admit(ep Endpoint) error {
	if ep == nil {
		return errNilEndpoint
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexLocked(ep) >= 0 {
		return ErrAlreadyMember
	}
	if len(s.members) >= s.capacity {
		s.metrics.Inc(metrics.EndpointRejectedRoomFull)
		return ErrRoomFull
	}

	s.members = append(s.members, ep)
	s.metrics.Inc(metrics.EndpointAdmitted)
	s.log.Info("endpoint admitted", "endpoint_id", ep.ID(), "client_count", len(s.members))
	s.broadcastStatusLocked()
	return nil
}

// Remove drops ep from the room. When ep was a member, the remaining members
// receive a status update followed by a single peer-disconnected frame.
// Removing an absent endpoint is a no-op and reports false.
func (s *Store) Remove(ep Endpoint) bool {
	if ep == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(ep)
	if i < 0 {
		return false
	}
	s.members = append(s.members[:i], s.members[i+1:]...)
	s.metrics.Inc(metrics.EndpointRemoved)
	s.log.Info("endpoint removed", "endpoint_id", ep.ID(), "client_count", len(s.members))

	s.broadcastStatusLocked()
	s.sendAllLocked(protocol.Encode(protocol.NewPeerDisconnected()), nil)
	return true
}

// BroadcastStatus sends the current status to every member.
func (s *Store) BroadcastStatus() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcastStatusLocked()
}

// Relay delivers frame unmodified to every member other than origin and
// returns the number of recipients. Frames from an endpoint that is not a
// member are dropped.
func (s *Store) Relay(origin Endpoint, frame []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexLocked(origin) < 0 {
		return 0
	}
	n := s.sendAllLocked(frame, origin)
	s.metrics.Add(metrics.FrameRelayed, uint64(n))
	return n
}

func (s *Store) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members)
}

// Members returns a snapshot of the current members in admission order.
func (s *Store) Members() []Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Endpoint, len(s.members))
	copy(out, s.members)
	return out
}

// CloseAll closes every member endpoint. Members leave the room through the
// normal Remove path once their connections unwind.
func (s *Store) CloseAll() {
	for _, ep := range s.Members() {
		_ = ep.Close()
	}
}

func (s *Store) statusLocked() Status {
	n := len(s.members)
	return Status{ClientCount: n, Ready: n == s.capacity, Capacity: s.capacity}
}

func (s *Store) broadcastStatusLocked() {
	st := s.statusLocked()
	s.sendAllLocked(protocol.Encode(protocol.NewConnectionStatus(st.ClientCount, st.Ready)), nil)
}

func (s *Store) sendAllLocked(frame []byte, except Endpoint) int {
	sent := 0
	for _, m := range s.members {
		if except != nil && m == except {
			continue
		}
		if err := m.Send(frame); err != nil {
			s.dropSlowLocked(m, err)
			continue
		}
		sent++
	}
	return sent
}

// dropSlowLocked closes a member that cannot accept frames. The member's
// connection handler calls Remove once its read loop exits.
func (s *Store) dropSlowLocked(m Endpoint, err error) {
	if errors.Is(err, ErrSendQueueFull) {
		s.metrics.Inc(metrics.SendQueueOverflow)
		s.log.Warn("endpoint send queue full; closing", "endpoint_id", m.ID())
	} else if !errors.Is(err, ErrEndpointClosed) {
		s.log.Warn("endpoint send failed; closing", "endpoint_id", m.ID(), "err", err)
	}
	_ = m.Close()
}

func (s *Store) indexLocked(ep Endpoint) int {
	for i, m := range s.members {
		if m == ep {
			return i
		}
	}
	return -1
}
