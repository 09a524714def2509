// Package cascadeerr defines the typed error taxonomy shared across the
// cascade executor, protocol adapters, and translation bridge.
package cascadeerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies which bucket of the error taxonomy an error belongs to.
type Kind string

const (
	ConfigError         Kind = "config_error"
	RouteResolutionError Kind = "route_resolution_error"
	UpstreamRateLimited  Kind = "upstream_rate_limited"
	UpstreamClient4xx    Kind = "upstream_client_4xx"
	UpstreamServer5xx    Kind = "upstream_server_5xx"
	UpstreamTransport    Kind = "upstream_transport"
	TranslationError     Kind = "translation_error"
	CancellationError    Kind = "cancellation_error"
	CascadeExhausted     Kind = "cascade_exhausted"
)

// Error is the typed error value carried through the cascade. Every non-nil
// error returned by cascade/protocol/bridge code should be an *Error (or
// wrap one), so callers can dispatch on Kind with errors.As.
type Error struct {
	Kind    Kind
	Tier    string // tier label, empty if not tier-scoped
	Message string
	Status  int   // upstream HTTP status, 0 if none
	Err     error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Tier != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s[%s]: %s: %v", e.Kind, e.Tier, e.Message, e.Err)
		}
		return fmt.Sprintf("%s[%s]: %s", e.Kind, e.Tier, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, cascadeerr.CascadeExhausted) style comparisons
// against the Kind constants by wrapping them as sentinel errors.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

func New(kind Kind, tier, message string, cause error) *Error {
	return &Error{Kind: kind, Tier: tier, Message: message, Err: cause}
}

func WithStatus(kind Kind, tier, message string, status int, cause error) *Error {
	return &Error{Kind: kind, Tier: tier, Message: message, Status: status, Err: cause}
}

// Retryable reports whether the cascade executor should retry the same tier
// (as opposed to advancing or skipping outright) for errors of this Kind.
func (k Kind) Retryable() bool {
	return k == UpstreamServer5xx || k == UpstreamTransport
}

// FromStatus classifies a non-2xx upstream HTTP status into a Kind.
func FromStatus(status int) Kind {
	switch {
	case status == http.StatusTooManyRequests:
		return UpstreamRateLimited
	case status >= 500:
		return UpstreamServer5xx
	case status >= 400:
		return UpstreamClient4xx
	default:
		return UpstreamTransport
	}
}
