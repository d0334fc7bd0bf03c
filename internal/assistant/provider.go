package assistant

import (
	"context"
	"fmt"
	"net/http"
)

// Provider produces one assistant reply for a system directive and the
// conversation so far. The last turn is always the pending user turn.
type Provider interface {
	Complete(ctx context.Context, system string, turns []Turn) (string, error)
}

// ErrorKind is the closed set of provider failure classes the bridge maps to
// user-facing fallbacks.
type ErrorKind int

const (
	ErrorKindOther ErrorKind = iota
	ErrorKindRateLimited
	ErrorKindAuth
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindRateLimited:
		return "rate_limited"
	case ErrorKindAuth:
		return "auth"
	default:
		return "other"
	}
}

// ProviderError is returned by Provider implementations for failures they
// can classify. Any other error is treated as ErrorKindOther.
type ProviderError struct {
	Kind ErrorKind
	// StatusCode is the upstream HTTP status, or 0 when no response arrived.
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("assistant provider %s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("assistant provider %s: %v", e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// KindForStatus classifies an upstream HTTP status code.
func KindForStatus(status int) ErrorKind {
	switch status {
	case http.StatusTooManyRequests:
		return ErrorKindRateLimited
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrorKindAuth
	default:
		return ErrorKindOther
	}
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, system string, turns []Turn) (string, error)

func (f ProviderFunc) Complete(ctx context.Context, system string, turns []Turn) (string, error) {
	return f(ctx, system, turns)
}
