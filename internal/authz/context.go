package authz

import (
	"context"

	"github.com/vyrodovalexey/catalog-authz/internal/auth"
	"github.com/vyrodovalexey/catalog-authz/internal/route"
)

// Grant is what a handler learns about an authorized request.
type Grant struct {
	Principal           *auth.Principal
	Action              route.Action
	Resource            route.Resource
	DeterminingPolicies []string
}

type grantContextKey struct{}

// ContextWithGrant stores g and its principal in ctx.
func ContextWithGrant(ctx context.Context, g *Grant) context.Context {
	ctx = auth.ContextWithPrincipal(ctx, g.Principal)
	return context.WithValue(ctx, grantContextKey{}, g)
}

// GrantFromContext returns the grant stored by the gate.
func GrantFromContext(ctx context.Context) (*Grant, bool) {
	g, ok := ctx.Value(grantContextKey{}).(*Grant)
	return g, ok && g != nil
}

func grantFromOutcome(out *Outcome) *Grant {
	return &Grant{
		Principal:           out.Principal,
		Action:              out.Action,
		Resource:            out.Resource,
		DeterminingPolicies: append([]string(nil), out.Decision.DeterminingPolicies...),
	}
}
