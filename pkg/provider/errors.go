package provider

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an adapter failure. The set is closed: adapters map
// every SDK error onto one of these so the router never has to inspect
// backend-specific types.
type Kind string

const (
	// KindRateLimited means the backend rejected the call with a 429
	KindRateLimited Kind = "rate_limited"
	// KindAuthInvalid means credentials were rejected (401/403)
	KindAuthInvalid Kind = "auth_invalid"
	// KindTimeout means the attempt deadline expired
	KindTimeout Kind = "timeout"
	// KindMalformed means the backend replied but the adapter could not
	// extract text from the payload
	KindMalformed Kind = "malformed"
	// KindUnavailable means a network failure or 5xx
	KindUnavailable Kind = "unavailable"
)

// Error is the normalized adapter failure.
type Error struct {
	Backend string
	Kind    Kind
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Backend, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Backend, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient reports whether the failure is recoverable by trying
// another backend without operator intervention.
func (e *Error) Transient() bool {
	switch e.Kind {
	case KindRateLimited, KindTimeout, KindUnavailable:
		return true
	}
	return false
}

// NewError builds a normalized adapter error.
func NewError(backend string, kind Kind, err error) *Error {
	return &Error{Backend: backend, Kind: kind, Err: err}
}

// AsError extracts a *provider.Error from an error chain.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// fromStatus maps an HTTP status code onto the taxonomy. Adapters call
// this after extracting the code from their SDK's error type.
func fromStatus(backend string, status int, err error) *Error {
	switch {
	case status == 429:
		return NewError(backend, KindRateLimited, err)
	case status == 401 || status == 403:
		return NewError(backend, KindAuthInvalid, err)
	case status == 408:
		return NewError(backend, KindTimeout, err)
	case status >= 500:
		return NewError(backend, KindUnavailable, err)
	default:
		return NewError(backend, KindUnavailable, err)
	}
}

// normalize maps transport-level failures that carry no HTTP status.
// Context expiry becomes Timeout so the router can treat an adapter
// that never answered like any other transient failure.
func normalize(backend string, err error) *Error {
	if pe, ok := AsError(err); ok {
		return pe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(backend, KindTimeout, err)
	}
	return NewError(backend, KindUnavailable, err)
}
