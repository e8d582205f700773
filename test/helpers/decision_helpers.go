package helpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/vyrodovalexey/catalog-authz/internal/pdp"
)

// DecisionFunc decides one is-authorized request. A status other than 200
// is written as-is with an empty body.
type DecisionFunc func(in *pdp.IsAuthorizedInput) (status int, out *pdp.IsAuthorizedOutput)

// DecisionService is a scripted decision service for tests.
type DecisionService struct {
	*httptest.Server

	mu          sync.Mutex
	decide      DecisionFunc
	policies    map[string]pdp.GetPolicyOutput
	calls       int32
	policyCalls int32
	requests    []pdp.IsAuthorizedInput
}

// StartDecisionService starts a decision service closed at test cleanup.
func StartDecisionService(t *testing.T, decide DecisionFunc) *DecisionService {
	t.Helper()

	ds := &DecisionService{
		decide:   decide,
		policies: make(map[string]pdp.GetPolicyOutput),
	}
	ds.Server = httptest.NewServer(http.HandlerFunc(ds.serve))
	t.Cleanup(ds.Close)

	return ds
}

// AllowAll answers ALLOW with the given determining policies.
func AllowAll(policyIDs ...string) DecisionFunc {
	return Fixed("ALLOW", policyIDs...)
}

// DenyAll answers DENY with the given determining policies.
func DenyAll(policyIDs ...string) DecisionFunc {
	return Fixed("DENY", policyIDs...)
}

// Fixed answers decision for every request.
func Fixed(decision string, policyIDs ...string) DecisionFunc {
	return func(*pdp.IsAuthorizedInput) (int, *pdp.IsAuthorizedOutput) {
		out := &pdp.IsAuthorizedOutput{Decision: decision}
		for _, id := range policyIDs {
			out.DeterminingPolicies = append(out.DeterminingPolicies, pdp.DeterminingPolicy{PolicyID: id})
		}
		return http.StatusOK, out
	}
}

// AddPolicy registers a policy served by the get-policy endpoint.
func (ds *DecisionService) AddPolicy(id, description string) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.policies[id] = pdp.GetPolicyOutput{
		PolicyID:   id,
		PolicyType: "STATIC",
		Definition: pdp.PolicyDefinition{Static: &pdp.StaticPolicyDefinition{Description: description}},
	}
}

// SetDecision replaces the decision function.
func (ds *DecisionService) SetDecision(decide DecisionFunc) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.decide = decide
}

// Calls returns the number of is-authorized calls received.
func (ds *DecisionService) Calls() int {
	return int(atomic.LoadInt32(&ds.calls))
}

// PolicyCalls returns the number of get-policy calls received.
func (ds *DecisionService) PolicyCalls() int {
	return int(atomic.LoadInt32(&ds.policyCalls))
}

// Requests returns the is-authorized requests received.
func (ds *DecisionService) Requests() []pdp.IsAuthorizedInput {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return append([]pdp.IsAuthorizedInput(nil), ds.requests...)
}

func (ds *DecisionService) serve(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/is-authorized"):
		atomic.AddInt32(&ds.calls, 1)

		var in pdp.IsAuthorizedInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeJSON(w, http.StatusBadRequest, pdp.ErrorOutput{Message: err.Error()})
			return
		}

		ds.mu.Lock()
		ds.requests = append(ds.requests, in)
		decide := ds.decide
		ds.mu.Unlock()

		status, out := decide(&in)
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		writeJSON(w, http.StatusOK, out)

	case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/policies/"):
		atomic.AddInt32(&ds.policyCalls, 1)
		id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		ds.mu.Lock()
		p, ok := ds.policies[id]
		ds.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusNotFound, pdp.ErrorOutput{Message: "policy not found"})
			return
		}
		writeJSON(w, http.StatusOK, p)

	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set(pdp.HeaderContentType, pdp.ContentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
