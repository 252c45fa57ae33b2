package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies model invocation failures.
type ErrorKind string

// Model error kinds.
const (
	KindTimeout           ErrorKind = "timeout"
	KindUnreachable       ErrorKind = "unreachable"
	KindRateLimited       ErrorKind = "rate_limited"
	KindMalformedResponse ErrorKind = "malformed_response"
)

// ModelError is a typed failure from a model backend.
type ModelError struct {
	Err  error
	Kind ErrorKind
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("model %s", e.Kind)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// newModelError wraps err with a kind.
func newModelError(kind ErrorKind, err error) *ModelError {
	return &ModelError{Kind: kind, Err: err}
}

// classifyTransportError maps an http.Client error to a ModelError.
func classifyTransportError(err error) *ModelError {
	if errors.Is(err, context.DeadlineExceeded) {
		return newModelError(KindTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newModelError(KindTimeout, err)
	}
	return newModelError(KindUnreachable, err)
}

// ErrorKindOf extracts the kind from err, or "" if err is not a
// ModelError.
func ErrorKindOf(err error) ErrorKind {
	var modelErr *ModelError
	if errors.As(err, &modelErr) {
		return modelErr.Kind
	}
	return ""
}

// IsTransient reports whether err is a model error worth one retry:
// timeouts and rate limits per the orchestrator's policy. Unreachable
// backends fail fast and malformed responses are non-retryable.
func IsTransient(err error) bool {
	switch ErrorKindOf(err) {
	case KindTimeout, KindRateLimited:
		return true
	default:
		return false
	}
}
