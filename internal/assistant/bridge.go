// Package assistant bridges user text from the call room to an external
// completion provider, keeping a bounded rolling transcript as context.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/metrics"
)

const (
	DefaultAgentName   = "AI Assistant"
	DefaultPersonality = "friendly and helpful assistant"

	// PlaceholderCredential is the value shipped in the sample .env file. It
	// is treated as an absent credential.
	PlaceholderCredential = "your_anthropic_api_key_here"
)

// User-facing replies. Provider failures never escape the bridge as errors;
// they become one of these strings instead.
const (
	DisabledReply     = "AI Agent is not configured. Please set up your Anthropic API key."
	RateLimitedReply  = "I'm receiving too many requests right now. Please wait a moment and try again."
	AuthFailureReply  = "API key issue. Please check your configuration."
	OtherFailureReply = "I'm having trouble processing that. Could you try rephrasing?"
)

var (
	// ErrNotConfigured is returned by StartConversation on a disabled bridge.
	ErrNotConfigured = errors.New("assistant: not configured; set ANTHROPIC_API_KEY")
	// ErrConversationReset reports that the conversation was started or ended
	// while a reply was pending. The late reply is discarded.
	ErrConversationReset = errors.New("assistant: conversation reset while reply was pending")
)

type Config struct {
	AgentName   string
	Personality string
	// Credential is the provider API key. Empty or PlaceholderCredential
	// disables the bridge for the life of the process.
	Credential string
	// LocalProvider marks a provider that needs no credential (ollama).
	LocalProvider bool

	// TranscriptTurns defaults to DefaultTranscriptTurns.
	TranscriptTurns int
	// RequestTimeout bounds each provider call. Zero means no bound beyond
	// the caller's context.
	RequestTimeout time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// CredentialConfigured reports whether cred is a usable provider credential.
func CredentialConfigured(cred string) bool {
	cred = strings.TrimSpace(cred)
	return cred != "" && cred != PlaceholderCredential
}

// Bridge owns the single process-wide conversation.
type Bridge struct {
	provider Provider
	system   string
	enabled  bool
	timeout  time.Duration
	log      *slog.Logger
	metrics  *metrics.Metrics

	// turnMu serializes SendMessage so overlapping turns never interleave
	// their transcript mutations.
	turnMu sync.Mutex

	mu         sync.Mutex
	transcript *Transcript
	generation uint64
}

// New builds a bridge. A nil provider or an unusable credential yields a
// disabled bridge that never performs network calls.
func New(cfg Config, provider Provider) *Bridge {
	name := strings.TrimSpace(cfg.AgentName)
	if name == "" {
		name = DefaultAgentName
	}
	personality := strings.TrimSpace(cfg.Personality)
	if personality == "" {
		personality = DefaultPersonality
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Bridge{
		provider:   provider,
		system:     SystemDirective(name, personality),
		enabled:    provider != nil && (cfg.LocalProvider || CredentialConfigured(cfg.Credential)),
		timeout:    cfg.RequestTimeout,
		log:        logger,
		metrics:    cfg.Metrics,
		transcript: NewTranscript(cfg.TranscriptTurns),
	}
}

// SystemDirective is the fixed instruction sent ahead of every conversation.
func SystemDirective(agentName, personality string) string {
	return fmt.Sprintf("You are %s, a %s.\n"+
		"You are having a voice conversation with someone through a video chat application.\n"+
		"Keep your responses natural, conversational, and concise (2-3 sentences max).\n"+
		"Be engaging and ask follow-up questions when appropriate.\n"+
		"Remember the context of the conversation.", agentName, personality)
}

func (b *Bridge) Enabled() bool { return b.enabled }

func (b *Bridge) SystemPrompt() string { return b.system }

// StartConversation clears the transcript.
func (b *Bridge) StartConversation() error {
	if !b.enabled {
		return ErrNotConfigured
	}
	b.reset()
	b.log.Info("ai conversation started")
	return nil
}

// EndConversation clears the transcript. It succeeds even when disabled.
func (b *Bridge) EndConversation() {
	b.reset()
	b.log.Info("ai conversation ended")
}

func (b *Bridge) reset() {
	b.mu.Lock()
	b.transcript.Reset()
	b.generation++
	b.mu.Unlock()
}

// Transcript returns the retained turns oldest first.
func (b *Bridge) Transcript() []Turn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.transcript.Turns()
}

// SendMessage records text as a user turn and returns the assistant reply.
//
// Provider failures are reported as a fallback reply with a nil error and
// leave the user turn in the transcript without an assistant turn. The only
// errors returned are ErrConversationReset and the caller's context error
// when it was canceled before the provider was reached.
func (b *Bridge) SendMessage(ctx context.Context, text string) (string, error) {
	if !b.enabled {
		return DisabledReply, nil
	}

	b.turnMu.Lock()
	defer b.turnMu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	// The request carries the full window plus the pending turn; the window
	// is only trimmed once the exchange settles.
	user := Turn{Role: RoleUser, Text: text}
	b.mu.Lock()
	gen := b.generation
	turns := append(b.transcript.Turns(), user)
	b.mu.Unlock()

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	b.metrics.Inc(metrics.AIRequest)
	start := time.Now()
	reply, err := b.provider.Complete(ctx, b.system, turns)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = errors.New("empty completion")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.generation != gen {
		b.metrics.Inc(metrics.AIReplyDiscarded)
		b.log.Info("ai reply discarded after conversation reset", "duration_ms", time.Since(start).Milliseconds())
		return "", ErrConversationReset
	}

	b.transcript.Append(user)
	if err != nil {
		kind := classify(err)
		b.metrics.Inc(fallbackMetric(kind))
		b.log.Warn("ai provider failed", "kind", kind.String(), "err", err, "duration_ms", time.Since(start).Milliseconds())
		return fallbackReply(kind), nil
	}

	b.transcript.Append(Turn{Role: RoleAssistant, Text: reply})
	b.metrics.Inc(metrics.AIReply)
	b.log.Debug("ai reply", "duration_ms", time.Since(start).Milliseconds(), "transcript_turns", b.transcript.Len())
	return reply, nil
}

func classify(err error) ErrorKind {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return ErrorKindOther
}

func fallbackReply(kind ErrorKind) string {
	switch kind {
	case ErrorKindRateLimited:
		return RateLimitedReply
	case ErrorKindAuth:
		return AuthFailureReply
	default:
		return OtherFailureReply
	}
}

func fallbackMetric(kind ErrorKind) string {
	switch kind {
	case ErrorKindRateLimited:
		return metrics.AIFallbackRateLimited
	case ErrorKindAuth:
		return metrics.AIFallbackAuth
	default:
		return metrics.AIFallbackOther
	}
}
