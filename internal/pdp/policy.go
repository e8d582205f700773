package pdp

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vyrodovalexey/catalog-authz/internal/observability"
)

// Default policy lookup settings.
const (
	DefaultPolicyLookupTTL     = 5 * time.Minute
	DefaultPolicyLookupTimeout = 500 * time.Millisecond
)

type policyEntry struct {
	policy    *Policy
	expiresAt time.Time
}

// PolicyLookup resolves policy ids to definitions with a TTL cache. It is
// used after an ALLOW to shape responses and is never consulted by the
// gate. Lookups are bounded by a timeout and not retried.
type PolicyLookup struct {
	getter  PolicyGetter
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
	logger  observability.Logger
	metrics *Metrics

	mu      sync.RWMutex
	entries map[string]policyEntry
}

// PolicyLookupOption is a functional option for the policy lookup.
type PolicyLookupOption func(*PolicyLookup)

// WithPolicyTTL sets how long definitions are cached.
func WithPolicyTTL(ttl time.Duration) PolicyLookupOption {
	return func(l *PolicyLookup) {
		l.ttl = ttl
	}
}

// WithPolicyTimeout bounds each lookup.
func WithPolicyTimeout(timeout time.Duration) PolicyLookupOption {
	return func(l *PolicyLookup) {
		if timeout > 0 {
			l.timeout = timeout
		}
	}
}

// WithPolicyLogger sets the logger.
func WithPolicyLogger(logger observability.Logger) PolicyLookupOption {
	return func(l *PolicyLookup) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithPolicyMetrics sets the metrics.
func WithPolicyMetrics(metrics *Metrics) PolicyLookupOption {
	return func(l *PolicyLookup) {
		l.metrics = metrics
	}
}

// NewPolicyLookup creates a lookup backed by getter. A nil getter makes
// every lookup fail with ErrPolicyLookupUnsupported.
func NewPolicyLookup(getter PolicyGetter, opts ...PolicyLookupOption) *PolicyLookup {
	l := &PolicyLookup{
		getter:  getter,
		ttl:     DefaultPolicyLookupTTL,
		timeout: DefaultPolicyLookupTimeout,
		now:     time.Now,
		logger:  observability.NopLogger(),
		entries: make(map[string]policyEntry),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LookupPolicy returns the policy with id policyID.
func (l *PolicyLookup) LookupPolicy(ctx context.Context, policyID string) (*Policy, error) {
	if l == nil || l.getter == nil {
		return nil, ErrPolicyLookupUnsupported
	}

	l.mu.RLock()
	entry, ok := l.entries[policyID]
	l.mu.RUnlock()
	if ok && l.now().Before(entry.expiresAt) {
		l.metrics.recordPolicyLookup("cache")
		cp := *entry.policy
		return &cp, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	policy, err := l.getter.GetPolicy(lookupCtx, policyID)
	if err != nil {
		result := "error"
		if errors.Is(err, ErrPolicyNotFound) {
			result = "not_found"
		}
		l.metrics.recordPolicyLookup(result)
		l.logger.Warn("policy lookup failed",
			observability.String("policyId", policyID),
			observability.Error(err),
		)
		return nil, err
	}

	l.metrics.recordPolicyLookup("backend")

	if l.ttl > 0 && ctx.Err() == nil {
		l.mu.Lock()
		l.entries[policyID] = policyEntry{policy: policy, expiresAt: l.now().Add(l.ttl)}
		l.mu.Unlock()
	}

	cp := *policy
	return &cp, nil
}

// Descriptions resolves each id to its description, skipping ids that
// cannot be resolved. The returned error is the first failure, if any.
func (l *PolicyLookup) Descriptions(ctx context.Context, policyIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(policyIDs))
	var firstErr error
	for _, id := range policyIDs {
		p, err := l.LookupPolicy(ctx, id)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out[id] = p.Description
	}
	return out, firstErr
}

// Flush drops every cached definition.
func (l *PolicyLookup) Flush() {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.entries = make(map[string]policyEntry)
	l.mu.Unlock()
}
