package pdp

import (
	"context"
	"time"

	"github.com/vyrodovalexey/catalog-authz/internal/route"
)

// Backend names used in logs, spans and metric labels.
const (
	BackendHTTP    = "http"
	BackendOpenFGA = "openfga"
)

// DefaultEntityNamespace prefixes entity and action types.
const DefaultEntityNamespace = "Bookstore"

// Backend evaluates one request against the policy store. Implementations
// return a definitive Result or an error; they never guess a verdict.
type Backend interface {
	// Name returns the backend name.
	Name() string

	// IsAuthorized evaluates req.
	IsAuthorized(ctx context.Context, req *Request) (*Result, error)
}

// Policy is a stored policy as returned by a policy lookup.
type Policy struct {
	ID            string
	PolicyStoreID string
	Type          string
	Description   string
	Statement     string
	LastUpdated   time.Time
}

// PolicyGetter fetches a single policy by id.
type PolicyGetter interface {
	GetPolicy(ctx context.Context, policyID string) (*Policy, error)
}

// EntityTypes names the entity types of a namespace.
type EntityTypes struct {
	User              string
	Role              string
	Action            string
	Product           string
	ProductCollection string
}

// NewEntityTypes returns the entity types for namespace.
func NewEntityTypes(namespace string) EntityTypes {
	if namespace == "" {
		namespace = DefaultEntityNamespace
	}
	return EntityTypes{
		User:              namespace + "::User",
		Role:              namespace + "::Role",
		Action:            namespace + "::Action",
		Product:           namespace + "::Product",
		ProductCollection: namespace + "::ProductCollection",
	}
}

// ResourceType maps a route resource type to its entity type.
func (t EntityTypes) ResourceType(resourceType string) string {
	switch resourceType {
	case route.ResourceTypeProduct:
		return t.Product
	case route.ResourceTypeProductCollection:
		return t.ProductCollection
	default:
		return resourceType
	}
}
