package catalog

import (
	"context"

	"github.com/vyrodovalexey/catalog-authz/internal/authz"
	"github.com/vyrodovalexey/catalog-authz/internal/observability"
	"github.com/vyrodovalexey/catalog-authz/internal/pdp"
	"github.com/vyrodovalexey/catalog-authz/internal/route"
)

// Policy descriptions that change what an allowed principal sees. They are
// matched exactly against the descriptions of the determining policies.
const (
	PolicyPublishersView   = "Allows publishers to see books they have published"
	PolicyPublisherOneBook = "Allows specific user to see a specific book"
	PolicyPremiumOffers    = "Allows customers with specific value for yearsAsMember attribute to list premium offers"
	PolicyNoPremiumOffers  = "Denies customers with specific value for yearsAsMember attribute to list premium offers"
)

// Roles with special visibility.
const (
	RoleAdmin     = "Admin"
	RolePublisher = "Publisher"
)

// DescriptionResolver resolves policy ids to their descriptions.
type DescriptionResolver interface {
	Descriptions(ctx context.Context, policyIDs []string) (map[string]string, error)
}

// Visibility is the subset of the catalog an authorized principal sees.
type Visibility struct {
	// Publisher restricts results to books from this publisher when set.
	Publisher string
	// Premium includes premium offers.
	Premium bool
	// Books are granted one by one and visible regardless of the other
	// fields.
	Books map[string]bool
}

// Allows reports whether p is visible.
func (v Visibility) Allows(p Product) bool {
	if v.Books[p.ID] {
		return true
	}
	if v.Publisher != "" && p.Publisher != v.Publisher {
		return false
	}
	if p.PremiumOffer && !v.Premium {
		return false
	}
	return true
}

// Filter returns the visible products, preserving order.
func (v Visibility) Filter(products []Product) []Product {
	out := make([]Product, 0, len(products))
	for _, p := range products {
		if v.Allows(p) {
			out = append(out, p)
		}
	}
	return out
}

func (v *Visibility) grant(id string) {
	if v.Books == nil {
		v.Books = make(map[string]bool)
	}
	v.Books[id] = true
}

// Shaper derives visibility from the policies that allowed a request.
type Shaper struct {
	resolver DescriptionResolver
	decider  authz.Decider
	logger   observability.Logger
}

// ShaperOption is a functional option for the shaper.
type ShaperOption func(*Shaper)

// WithDecider lets the shaper ask for single-book grants when a publisher
// lists the catalog. Without a decider publishers only see their own books.
func WithDecider(decider authz.Decider) ShaperOption {
	return func(s *Shaper) {
		s.decider = decider
	}
}

// NewShaper creates a shaper. A nil resolver always yields the most
// restrictive visibility.
func NewShaper(resolver DescriptionResolver, logger observability.Logger, opts ...ShaperOption) *Shaper {
	if logger == nil {
		logger = observability.NopLogger()
	}
	s := &Shaper{resolver: resolver, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Visibility returns what the principal of grant may see. Lookup failures
// degrade to the most restrictive visibility and are never returned.
func (s *Shaper) Visibility(ctx context.Context, grant *authz.Grant) Visibility {
	role, _ := grant.Principal.Attribute("role")
	username := principalName(grant)

	descriptions, err := s.descriptions(ctx, grant.DeterminingPolicies)
	if err != nil {
		s.logger.WithContext(ctx).Warn("policy lookup failed, applying restrictive visibility",
			observability.String("subject", grant.Principal.SubjectID()),
			observability.Strings("policies", grant.DeterminingPolicies),
			observability.Error(err),
		)
		v := Visibility{}
		if role == RolePublisher {
			v.Publisher = username
		}
		return v
	}

	var publishersView, oneBook, premium, noPremium bool
	for _, d := range descriptions {
		switch d {
		case PolicyPublishersView:
			publishersView = true
		case PolicyPublisherOneBook:
			oneBook = true
		case PolicyPremiumOffers:
			premium = true
		case PolicyNoPremiumOffers:
			noPremium = true
		}
	}

	v := Visibility{Premium: (premium || role == RoleAdmin) && !noPremium}
	if publishersView && role == RolePublisher {
		v.Publisher = username
	}
	if oneBook && grant.Resource.HasID() {
		v.grant(grant.Resource.ID)
	}
	return v
}

// ListVisibility is Visibility for a catalog listing. A publisher also
// sees every book of another publisher that a single-book policy grants;
// each candidate is decided as a GetProduct request, so the answers share
// the decision cache with direct reads.
func (s *Shaper) ListVisibility(ctx context.Context, grant *authz.Grant, products []Product) Visibility {
	v := s.Visibility(ctx, grant)
	if v.Publisher == "" || s.decider == nil {
		return v
	}

	region, ok := grant.Principal.Attribute("region")
	if !ok || region == "" {
		region = authz.UnknownRegion
	}

	for _, p := range products {
		if v.Allows(p) {
			continue
		}
		if s.grantsBook(ctx, grant, p.ID, region) {
			v.grant(p.ID)
		}
	}
	return v
}

func (s *Shaper) grantsBook(ctx context.Context, grant *authz.Grant, id, region string) bool {
	decision := s.decider.Evaluate(ctx, &pdp.Request{
		Principal: grant.Principal,
		Action:    route.ActionGetProduct,
		Resource:  route.Resource{Type: route.ResourceTypeProduct, ID: id},
		Context:   map[string]string{authz.ContextKeyRegion: region},
	})
	if !decision.Allowed() || len(decision.DeterminingPolicies) == 0 {
		return false
	}

	descriptions, err := s.descriptions(ctx, decision.DeterminingPolicies)
	if err != nil {
		s.logger.WithContext(ctx).Warn("policy lookup failed, book not granted",
			observability.String("subject", grant.Principal.SubjectID()),
			observability.String("product", id),
			observability.Error(err),
		)
		return false
	}
	for _, d := range descriptions {
		if d == PolicyPublisherOneBook {
			return true
		}
	}
	return false
}

func (s *Shaper) descriptions(ctx context.Context, ids []string) (map[string]string, error) {
	if len(ids) == 0 {
		return map[string]string{}, nil
	}
	if s.resolver == nil {
		return nil, pdp.ErrPolicyLookupUnsupported
	}
	return s.resolver.Descriptions(ctx, ids)
}

func principalName(grant *authz.Grant) string {
	if name, ok := grant.Principal.Attribute("username"); ok && name != "" {
		return name
	}
	return grant.Principal.SubjectID()
}
