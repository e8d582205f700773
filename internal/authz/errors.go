package authz

import (
	"errors"
	"fmt"
	"net/http"
)

// Cause classifies why a request was denied.
type Cause string

// Denial causes.
const (
	// CauseAuthentication means no usable principal could be extracted.
	CauseAuthentication Cause = "authentication"

	// CauseConfiguration means the request could not be mapped to an action.
	CauseConfiguration Cause = "configuration"

	// CauseDecisionClient means no definitive verdict could be obtained.
	CauseDecisionClient Cause = "decision_client"

	// CausePolicyDenied means the policy store answered DENY.
	CausePolicyDenied Cause = "policy_denied"
)

// String returns the cause name.
func (c Cause) String() string {
	return string(c)
}

// StatusCode returns the HTTP status a denial with this cause produces.
// Only authentication failures are distinguishable; every other cause is
// an identical 403. The 401 tells a client to fetch a new credential and
// reveals nothing about policies or routes, so it is the one split kept
// from an otherwise uniform denial shape.
func (c Cause) StatusCode() int {
	if c == CauseAuthentication {
		return http.StatusUnauthorized
	}
	return http.StatusForbidden
}

// ErrDenied is the sentinel wrapped by every DenialError.
var ErrDenied = errors.New("request denied")

// DenialError records why the gate denied a request. It is for logs and
// metrics; clients only ever see the generic body for its status.
type DenialError struct {
	Cause   Cause
	State   State
	Verdict string
	Err     error
}

// Error implements the error interface.
func (e *DenialError) Error() string {
	msg := fmt.Sprintf("request denied (%s) at %s", e.Cause, e.State)
	if e.Verdict != "" {
		msg = fmt.Sprintf("%s: verdict %s", msg, e.Verdict)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying errors.
func (e *DenialError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDenied}
	}
	return []error{ErrDenied, e.Err}
}

// StatusCode returns the HTTP status for the denial.
func (e *DenialError) StatusCode() int {
	return e.Cause.StatusCode()
}

// CauseOf returns the denial cause of err, if any.
func CauseOf(err error) (Cause, bool) {
	var de *DenialError
	if errors.As(err, &de) {
		return de.Cause, true
	}
	return "", false
}
