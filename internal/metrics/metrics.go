package metrics

import "sync"

// Event names recorded by the relay.
const (
	EndpointAdmitted         = "endpoint_admitted"
	EndpointRejectedRoomFull = "endpoint_rejected_room_full"
	EndpointRejectedOrigin   = "endpoint_rejected_origin"
	EndpointRemoved          = "endpoint_removed"

	FrameRelayed     = "frame_relayed"
	FrameMalformed   = "frame_malformed"
	FrameRateLimited = "frame_rate_limited"
	FrameTooLarge    = "frame_too_large"

	SendQueueOverflow = "send_queue_overflow"

	AIRequest             = "ai_request"
	AIReply               = "ai_reply"
	AIFallbackRateLimited = "ai_fallback_rate_limited"
	AIFallbackAuth        = "ai_fallback_auth"
	AIFallbackOther       = "ai_fallback_other"
	AIReplyDiscarded      = "ai_reply_discarded"
	AIBusy                = "ai_busy"
	AIModeEnabled         = "ai_mode_enabled"
	AIModeDisabled        = "ai_mode_disabled"
)

// Metrics is a concurrency-safe counter registry. A nil *Metrics discards
// every update.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, delta uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.m[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of every counter.
func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return map[string]uint64{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
