package auth

import (
	"errors"
	"fmt"
)

// Sentinel errors for claims extraction.
var (
	// ErrMissingPrincipal indicates that the token carries no stable
	// subject identifier.
	ErrMissingPrincipal = errors.New("missing principal")

	// ErrMalformedToken indicates that the token or its claims are
	// absent or have the wrong shape.
	ErrMalformedToken = errors.New("malformed token")

	// ErrInvalidSignature indicates that in-process verification rejected
	// the token.
	ErrInvalidSignature = errors.New("invalid signature")
)

// Error represents a claims extraction failure with additional context.
type Error struct {
	// Claim is the claim that caused the failure, if any.
	Claim string
	// Reason is a short, log-safe description.
	Reason string
	// Cause is one of the package sentinels, optionally wrapping a parser error.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Claim != "" {
		return fmt.Sprintf("claims extraction failed (%s): %s: %v", e.Claim, e.Reason, e.Cause)
	}
	return fmt.Sprintf("claims extraction failed: %s: %v", e.Reason, e.Cause)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(cause error, claim, reason string) *Error {
	return &Error{Claim: claim, Reason: reason, Cause: cause}
}

// IsMissingPrincipal reports whether err is a missing-subject failure.
func IsMissingPrincipal(err error) bool {
	return errors.Is(err, ErrMissingPrincipal)
}

// IsMalformedToken reports whether err is a malformed-token failure.
func IsMalformedToken(err error) bool {
	return errors.Is(err, ErrMalformedToken)
}
