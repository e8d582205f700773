package pdp

import (
	"strings"

	"github.com/vyrodovalexey/catalog-authz/internal/auth"
	"github.com/vyrodovalexey/catalog-authz/internal/route"
)

// Verdict is the outcome of a policy evaluation.
type Verdict string

// Verdicts.
const (
	VerdictAllow         Verdict = "ALLOW"
	VerdictDeny          Verdict = "DENY"
	VerdictIndeterminate Verdict = "INDETERMINATE"
)

// String returns the verdict name.
func (v Verdict) String() string {
	return string(v)
}

// Definitive reports whether the verdict came from a policy evaluation.
func (v Verdict) Definitive() bool {
	return v == VerdictAllow || v == VerdictDeny
}

// ParseVerdict parses a wire verdict. Anything other than ALLOW or DENY is
// rejected.
func ParseVerdict(s string) (Verdict, bool) {
	switch Verdict(strings.ToUpper(strings.TrimSpace(s))) {
	case VerdictAllow:
		return VerdictAllow, true
	case VerdictDeny:
		return VerdictDeny, true
	default:
		return VerdictIndeterminate, false
	}
}

// Request is one authorization question.
type Request struct {
	Principal *auth.Principal
	Action    route.Action
	Resource  route.Resource
	Context   map[string]string
}

// Decision is the answer to a Request.
type Decision struct {
	Verdict Verdict

	// DeterminingPolicies lists the policy ids that produced the verdict.
	DeterminingPolicies []string

	// Cached is true when the decision was served from the cache.
	Cached bool

	// Cause is set for INDETERMINATE decisions. It is for logs only.
	Cause error
}

// Allowed reports whether the decision is exactly ALLOW.
func (d Decision) Allowed() bool {
	return d.Verdict == VerdictAllow
}

func indeterminate(cause error) Decision {
	return Decision{Verdict: VerdictIndeterminate, Cause: cause}
}

// Result is a definitive answer from a backend.
type Result struct {
	Verdict             Verdict
	DeterminingPolicies []string
}
