// Package protocol defines the JSON frames exchanged over the callroom
// signaling WebSocket.
//
// Every frame is a single JSON object with a "type" discriminator. The relay
// only interprets the AI control frames; negotiation frames (offer, answer,
// ice-candidate, ...) are treated as opaque and forwarded byte-for-byte.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedFrame wraps every Decode failure.
var ErrMalformedFrame = errors.New("protocol: malformed frame")

type Kind string

const (
	// KindUnknown is assigned to frames whose type is well-formed but not one
	// of the enumerated kinds. They are relayed unmodified.
	KindUnknown Kind = ""

	KindConnectionStatus Kind = "connection-status"
	KindStartCall        Kind = "start-call"
	KindOffer            Kind = "offer"
	KindAnswer           Kind = "answer"
	KindICECandidate     Kind = "ice-candidate"
	KindHangUp           Kind = "hang-up"
	KindPeerDisconnected Kind = "peer-disconnected"
	KindAIMessage        Kind = "ai-message"
	KindAIModeEnable     Kind = "ai-mode-enable"
	KindAIModeDisable    Kind = "ai-mode-disable"
	KindAIResponse       Kind = "ai-response"
	KindAIModeStatus     Kind = "ai-mode-status"
	KindAIError          Kind = "ai-error"
	KindError            Kind = "error"
)

var knownKinds = map[string]Kind{
	string(KindConnectionStatus): KindConnectionStatus,
	string(KindStartCall):        KindStartCall,
	string(KindOffer):            KindOffer,
	string(KindAnswer):           KindAnswer,
	string(KindICECandidate):     KindICECandidate,
	string(KindHangUp):           KindHangUp,
	string(KindPeerDisconnected): KindPeerDisconnected,
	string(KindAIMessage):        KindAIMessage,
	string(KindAIModeEnable):     KindAIModeEnable,
	string(KindAIModeDisable):    KindAIModeDisable,
	string(KindAIResponse):       KindAIResponse,
	string(KindAIModeStatus):     KindAIModeStatus,
	string(KindAIError):          KindAIError,
	string(KindError):            KindError,
}

// ParseKind maps a wire type string to its Kind. ok is false for types that
// are not enumerated.
func ParseKind(typ string) (kind Kind, ok bool) {
	kind, ok = knownKinds[typ]
	return kind, ok
}

// Route is the dispatch class of an inbound frame.
type Route int

const (
	// RouteRelay frames are forwarded verbatim to every other room member.
	RouteRelay Route = iota
	// RouteAI frames carry a user turn for the conversation bridge.
	RouteAI
	// RouteAIMode frames toggle AI mode for the conversation bridge.
	RouteAIMode
)

func (r Route) String() string {
	switch r {
	case RouteRelay:
		return "relay"
	case RouteAI:
		return "ai"
	case RouteAIMode:
		return "ai_mode"
	default:
		return fmt.Sprintf("route(%d)", int(r))
	}
}

// Route classifies k. The switch is exhaustive over the enumerated kinds so
// adding a kind forces a decision here.
func (k Kind) Route() Route {
	switch k {
	case KindAIMessage:
		return RouteAI
	case KindAIModeEnable, KindAIModeDisable:
		return RouteAIMode
	case KindConnectionStatus,
		KindStartCall,
		KindOffer,
		KindAnswer,
		KindICECandidate,
		KindHangUp,
		KindPeerDisconnected,
		KindAIResponse,
		KindAIModeStatus,
		KindAIError,
		KindError,
		KindUnknown:
		return RouteRelay
	default:
		return RouteRelay
	}
}

// Inbound is a decoded client frame.
type Inbound struct {
	Kind Kind
	// Type is the raw discriminator as sent by the client.
	Type string
	// Message is the user text of an ai-message frame. It is empty for other
	// kinds and when the field is absent or not a string.
	Message string
	// Raw is the frame exactly as received.
	Raw []byte
}

// Decode parses a text frame. The frame must be a JSON object with a
// non-empty string "type" field.
func Decode(data []byte) (Inbound, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if fields == nil {
		return Inbound{}, fmt.Errorf("%w: not an object", ErrMalformedFrame)
	}

	rawType, ok := fields["type"]
	if !ok {
		return Inbound{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	var typ string
	if err := json.Unmarshal(rawType, &typ); err != nil {
		return Inbound{}, fmt.Errorf("%w: type is not a string", ErrMalformedFrame)
	}
	if strings.TrimSpace(typ) == "" {
		return Inbound{}, fmt.Errorf("%w: empty type", ErrMalformedFrame)
	}

	kind, _ := ParseKind(typ)
	in := Inbound{Kind: kind, Type: typ, Raw: data}
	if kind == KindAIMessage {
		if rawMsg, ok := fields["message"]; ok {
			// Non-string messages are treated as empty text.
			_ = json.Unmarshal(rawMsg, &in.Message)
		}
	}
	return in, nil
}
