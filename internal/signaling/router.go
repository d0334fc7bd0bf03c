package signaling

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/assistant"
	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/protocol"
	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/room"
)

// DefaultAIQueueSize bounds the number of user turns waiting for the
// assistant.
const DefaultAIQueueSize = 16

type RouterConfig struct {
	Store   *room.Store
	Bridge  *assistant.Bridge
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// AIQueueSize defaults to DefaultAIQueueSize.
	AIQueueSize int
}

type aiJob struct {
	ep    room.Endpoint
	text  string
	epoch uint64
}

// Router classifies inbound frames. Negotiation frames are relayed through
// the store on the caller's goroutine, which keeps per-endpoint ordering.
// AI turns are queued for a single worker (Run) so provider latency never
// stalls relay traffic.
type Router struct {
	store   *room.Store
	bridge  *assistant.Bridge
	log     *slog.Logger
	metrics *metrics.Metrics

	jobs chan aiJob
	// epoch advances whenever a conversation is started or ended; queued
	// turns from an older epoch are dropped. A refused enable leaves it alone.
	epoch atomic.Uint64
}

func NewRouter(cfg RouterConfig) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	size := cfg.AIQueueSize
	if size <= 0 {
		size = DefaultAIQueueSize
	}
	return &Router{
		store:   cfg.Store,
		bridge:  cfg.Bridge,
		log:     logger,
		metrics: cfg.Metrics,
		jobs:    make(chan aiJob, size),
	}
}

// Dispatch handles one text frame from ep. Malformed frames are logged and
// dropped without a reply; the returned error is informational.
func (r *Router) Dispatch(ep room.Endpoint, data []byte) (protocol.Route, error) {
	in, err := protocol.Decode(data)
	if err != nil {
		r.metrics.Inc(metrics.FrameMalformed)
		r.log.Debug("dropping malformed signaling frame", "endpoint_id", ep.ID(), "err", err, "bytes", len(data))
		return protocol.RouteRelay, err
	}

	route := in.Kind.Route()
	switch route {
	case protocol.RouteAI:
		r.enqueueTurn(ep, in.Message)
	case protocol.RouteAIMode:
		r.toggleMode(ep, in.Kind)
	case protocol.RouteRelay:
		n := r.store.Relay(ep, in.Raw)
		r.log.Debug("relayed signaling frame", "endpoint_id", ep.ID(), "type", in.Type, "recipients", n)
	}
	return route, nil
}

func (r *Router) toggleMode(ep room.Endpoint, kind protocol.Kind) {
	switch kind {
	case protocol.KindAIModeEnable:
		if err := r.bridge.StartConversation(); err != nil {
			r.log.Info("ai mode enable refused", "endpoint_id", ep.ID(), "err", err)
			r.reply(ep, protocol.NewAIModeStatus(false, protocol.AINotConfiguredMessage))
			return
		}
		r.epoch.Add(1)
		r.metrics.Inc(metrics.AIModeEnabled)
		r.reply(ep, protocol.NewAIModeStatus(true, ""))
	case protocol.KindAIModeDisable:
		r.epoch.Add(1)
		r.bridge.EndConversation()
		r.metrics.Inc(metrics.AIModeDisabled)
		r.reply(ep, protocol.NewAIModeStatus(false, ""))
	}
}

func (r *Router) enqueueTurn(ep room.Endpoint, text string) {
	if strings.TrimSpace(text) == "" {
		r.reply(ep, protocol.NewAIError(protocol.AIEmptyMessage))
		return
	}

	select {
	case r.jobs <- aiJob{ep: ep, text: text, epoch: r.epoch.Load()}:
	default:
		r.metrics.Inc(metrics.AIBusy)
		r.log.Warn("ai queue full; rejecting turn", "endpoint_id", ep.ID())
		r.reply(ep, protocol.NewAIError(protocol.AIBusyMessage))
	}
}

// Run processes queued AI turns in arrival order until ctx is done.
func (r *Router) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-r.jobs:
			r.runTurn(ctx, job)
		}
	}
}

func (r *Router) runTurn(ctx context.Context, job aiJob) {
	if job.epoch != r.epoch.Load() {
		r.metrics.Inc(metrics.AIReplyDiscarded)
		r.log.Debug("dropping ai turn queued before mode change", "endpoint_id", job.ep.ID())
		return
	}

	reply, err := r.bridge.SendMessage(ctx, job.text)
	switch {
	case errors.Is(err, assistant.ErrConversationReset):
		return
	case err != nil:
		r.log.Warn("ai turn failed", "endpoint_id", job.ep.ID(), "err", err)
		r.reply(job.ep, protocol.NewAIError(protocol.AIFailedMessage))
		return
	}
	if job.epoch != r.epoch.Load() {
		r.metrics.Inc(metrics.AIReplyDiscarded)
		return
	}
	r.reply(job.ep, protocol.NewAIResponse(reply))
}

func (r *Router) reply(ep room.Endpoint, v any) {
	if err := ep.Send(protocol.Encode(v)); err != nil && !errors.Is(err, room.ErrEndpointClosed) {
		r.log.Debug("signaling reply dropped", "endpoint_id", ep.ID(), "err", err)
	}
}
