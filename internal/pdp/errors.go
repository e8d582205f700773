package pdp

import (
	"errors"
	"fmt"
)

// Sentinel errors for decision evaluation.
var (
	// ErrInvalidRequest indicates the request lacks a principal or action.
	ErrInvalidRequest = errors.New("invalid authorization request")

	// ErrMalformedResponse indicates the backend answered without a usable verdict.
	ErrMalformedResponse = errors.New("malformed decision response")

	// ErrCircuitOpen indicates the breaker rejected the call.
	ErrCircuitOpen = errors.New("decision service circuit open")

	// ErrPolicyNotFound indicates a policy id is unknown to the store.
	ErrPolicyNotFound = errors.New("policy not found")

	// ErrPolicyLookupUnsupported indicates the backend has no policy lookup.
	ErrPolicyLookupUnsupported = errors.New("policy lookup not supported by backend")
)

// BackendError describes a failed call to a decision backend.
type BackendError struct {
	Backend    string
	Operation  string
	StatusCode int
	Retryable  bool
	Cause      error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	msg := fmt.Sprintf("%s %s failed", e.Backend, e.Operation)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.StatusCode)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *BackendError) Unwrap() error {
	return e.Cause
}

// Transient reports whether another attempt may succeed.
func (e *BackendError) Transient() bool {
	return e.Retryable
}

// IsMalformedResponse checks if err is a malformed response error.
func IsMalformedResponse(err error) bool {
	return errors.Is(err, ErrMalformedResponse)
}

// IsCircuitOpen checks if err is a circuit-open rejection.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}
