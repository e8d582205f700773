package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"
)

// ErrAttemptTimeout marks an attempt abandoned because its own deadline
// expired while the caller's context was still live.
var ErrAttemptTimeout = errors.New("attempt timed out")

// Transient is implemented by errors that know whether they are transient.
type Transient interface {
	Transient() bool
}

// IsTransient reports whether err is a transport failure worth one more
// attempt: a connection error, a per-attempt timeout, or an error that
// declares itself transient. Caller cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrAttemptTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var t Transient
	if errors.As(err, &t) {
		return t.Transient()
	}

	return IsNetworkError(err)
}

// IsNetworkError reports whether err is a connection-level failure.
func IsNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

// IsRetryableStatus reports whether an HTTP status is transient: any 5xx
// or 429.
func IsRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code < 600)
}
