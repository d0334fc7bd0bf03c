package protocol

import (
	"encoding/json"
)

// Fixed user-facing strings carried by relay-originated frames.
const (
	RoomFullMessage        = "Room is full. Maximum 2 clients allowed."
	RateLimitedMessage     = "rate limit exceeded"
	AINotConfiguredMessage = "AI Agent not configured. Please set ANTHROPIC_API_KEY in .env file."
	AIFailedMessage        = "Failed to get AI response. Please try again."
	AIBusyMessage          = "AI is busy with earlier messages. Please wait a moment."
	AIEmptyMessage         = "Message text is required."
)

// ConnectionStatus reports room membership after every admit and removal.
type ConnectionStatus struct {
	Type        Kind `json:"type"`
	ClientCount int  `json:"clientCount"`
	Ready       bool `json:"ready"`
}

type PeerDisconnected struct {
	Type Kind `json:"type"`
}

type AIResponse struct {
	Type    Kind   `json:"type"`
	Message string `json:"message"`
}

type AIModeStatus struct {
	Type    Kind   `json:"type"`
	Enabled bool   `json:"enabled"`
	Error   string `json:"error,omitempty"`
}

type AIError struct {
	Type  Kind   `json:"type"`
	Error string `json:"error"`
}

// Error is sent for connection-scoped failures such as a full room.
type Error struct {
	Type    Kind   `json:"type"`
	Message string `json:"message"`
}

// AIMessage is the client-originated user turn.
type AIMessage struct {
	Type    Kind   `json:"type"`
	Message string `json:"message"`
}

// Control is a frame with no payload beyond its type (ai-mode-enable,
// ai-mode-disable, start-call, hang-up).
type Control struct {
	Type Kind `json:"type"`
}

func NewConnectionStatus(count int, ready bool) ConnectionStatus {
	return ConnectionStatus{Type: KindConnectionStatus, ClientCount: count, Ready: ready}
}

func NewPeerDisconnected() PeerDisconnected {
	return PeerDisconnected{Type: KindPeerDisconnected}
}

func NewAIResponse(text string) AIResponse {
	return AIResponse{Type: KindAIResponse, Message: text}
}

func NewAIModeStatus(enabled bool, errMsg string) AIModeStatus {
	return AIModeStatus{Type: KindAIModeStatus, Enabled: enabled, Error: errMsg}
}

func NewAIError(msg string) AIError {
	return AIError{Type: KindAIError, Error: msg}
}

func NewError(msg string) Error {
	return Error{Type: KindError, Message: msg}
}

// Encode marshals an outbound frame. The frame types in this package only
// contain strings, ints and bools, so Encode cannot fail for them.
func Encode(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic("protocol: encode outbound frame: " + err.Error())
	}
	return b
}

// Envelope is a loosely typed view of any frame, used by clients that need
// to switch on type and read the common payload fields.
type Envelope struct {
	Type        string `json:"type"`
	Message     string `json:"message,omitempty"`
	Error       string `json:"error,omitempty"`
	Enabled     *bool  `json:"enabled,omitempty"`
	ClientCount *int   `json:"clientCount,omitempty"`
	Ready       *bool  `json:"ready,omitempty"`
}

// Kind returns the enumerated kind of the envelope, or KindUnknown.
func (e Envelope) Kind() Kind {
	k, _ := ParseKind(e.Type)
	return k
}

// DecodeEnvelope parses a frame into an Envelope.
func DecodeEnvelope(data []byte) (Envelope, error) {
	in, err := Decode(data)
	if err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if err := json.Unmarshal(in.Raw, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}
