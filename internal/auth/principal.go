package auth

import (
	"context"
	"sort"
)

// Principal is the authenticated caller of a single request. It is built
// once by the Extractor and never mutated afterwards.
type Principal struct {
	subjectID  string
	attributes map[string]string
}

// NewPrincipal creates a principal. The subject must be non-empty.
func NewPrincipal(subjectID string, attributes map[string]string) (*Principal, error) {
	if subjectID == "" {
		return nil, newError(ErrMissingPrincipal, "", "subject is empty")
	}
	attrs := make(map[string]string, len(attributes))
	for k, v := range attributes {
		attrs[k] = v
	}
	return &Principal{subjectID: subjectID, attributes: attrs}, nil
}

// SubjectID returns the stable subject identifier.
func (p *Principal) SubjectID() string {
	return p.subjectID
}

// Attributes returns a copy of the principal attributes.
func (p *Principal) Attributes() map[string]string {
	out := make(map[string]string, len(p.attributes))
	for k, v := range p.attributes {
		out[k] = v
	}
	return out
}

// Attribute returns a single attribute.
func (p *Principal) Attribute(name string) (string, bool) {
	v, ok := p.attributes[name]
	return v, ok
}

// AttributeNames returns the attribute names in sorted order.
func (p *Principal) AttributeNames() []string {
	names := make([]string, 0, len(p.attributes))
	for k := range p.attributes {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

type principalContextKey struct{}

// ContextWithPrincipal returns a context carrying the principal.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the principal stored in ctx.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	if ctx == nil {
		return nil, false
	}
	p, ok := ctx.Value(principalContextKey{}).(*Principal)
	return p, ok && p != nil
}
