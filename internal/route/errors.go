package route

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for request normalization.
var (
	// ErrUnknownRoute indicates a route that is not in the table.
	ErrUnknownRoute = errors.New("unknown route")

	// ErrInvalidRequest indicates a request missing a required parameter.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidTable indicates a malformed route table.
	ErrInvalidTable = errors.New("invalid route table")
)

// Error represents a normalization failure with the offending route.
type Error struct {
	Method   string
	Template string
	Param    string
	Cause    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%v: %s %s: parameter %q", e.Cause, e.Method, e.Template, e.Param)
	}
	return fmt.Sprintf("%v: %s %s", e.Cause, e.Method, e.Template)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsUnknownRoute reports whether err is an unknown route failure.
func IsUnknownRoute(err error) bool {
	return errors.Is(err, ErrUnknownRoute)
}

// IsInvalidRequest reports whether err is an invalid request failure.
func IsInvalidRequest(err error) bool {
	return errors.Is(err, ErrInvalidRequest)
}

// ValidationError lists the mismatches between the route table and the
// routes registered on the server.
type ValidationError struct {
	// Unmapped are registered protected routes missing from the table.
	Unmapped []string
	// Unregistered are table entries with no registered route.
	Unregistered []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Unmapped) > 0 {
		parts = append(parts, "routes without a table entry: "+strings.Join(e.Unmapped, ", "))
	}
	if len(e.Unregistered) > 0 {
		parts = append(parts, "table entries without a registered route: "+strings.Join(e.Unregistered, ", "))
	}
	return "route table validation failed: " + strings.Join(parts, "; ")
}

// Unwrap returns ErrUnknownRoute so callers can match on it.
func (e *ValidationError) Unwrap() error {
	return ErrUnknownRoute
}
