package decisiond

import (
	"context"
	"fmt"
	"strings"

	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/vyrodovalexey/catalog-authz/internal/pdp"
)

// matchQuery is the rule every policy module defines.
const matchQuery = "data.policy.match"

// Decisions.
const (
	DecisionAllow = "ALLOW"
	DecisionDeny  = "DENY"
)

// matcher reports whether a policy applies to an input.
type matcher interface {
	Match(ctx context.Context, input Input) (bool, error)
}

type compiledPolicy struct {
	doc     PolicyDoc
	matcher matcher
}

// Engine evaluates requests against a store. Forbid overrides permit and
// the default is deny. Engine is safe for concurrent use.
type Engine struct {
	store    *Store
	policies []compiledPolicy
}

// NewEngine compiles every policy of store.
func NewEngine(ctx context.Context, store *Store) (*Engine, error) {
	e := &Engine{store: store, policies: make([]compiledPolicy, 0, len(store.Policies))}

	env, err := newCELEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	for _, doc := range store.Policies {
		var m matcher
		if doc.Condition != "" {
			m, err = compileCEL(env, doc.Condition)
		} else {
			m, err = compileRego(ctx, doc)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: policy %s: %w", ErrInvalidStore, doc.ID, err)
		}
		e.policies = append(e.policies, compiledPolicy{doc: doc, matcher: m})
	}
	return e, nil
}

type regoMatcher struct {
	query rego.PreparedEvalQuery
}

func compileRego(ctx context.Context, doc PolicyDoc) (*regoMatcher, error) {
	q, err := rego.New(
		rego.Query(matchQuery),
		rego.Module(doc.ID+".rego", doc.Rego),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}
	return &regoMatcher{query: q}, nil
}

// Store returns the store the engine was built from.
func (e *Engine) Store() *Store {
	return e.store
}

// Input is the document policies see as input.
type Input struct {
	Principal Principal         `json:"principal"`
	Action    Identifier        `json:"action"`
	Resource  Identifier        `json:"resource"`
	Context   map[string]string `json:"context"`
}

// Principal is the principal as seen by policies.
type Principal struct {
	Type       string            `json:"type"`
	ID         string            `json:"id"`
	Attributes map[string]string `json:"attributes"`
	Roles      []string          `json:"roles"`
}

// Identifier names an action or a resource. Type is the unqualified
// entity type, for example Product rather than Bookstore::Product.
type Identifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// NewInput converts a wire request into the policy input. Attributes of
// the principal entity and its Role parents are taken from the entity
// list; other entities are ignored.
func NewInput(in *pdp.IsAuthorizedInput) Input {
	out := Input{
		Principal: Principal{
			Type:       unqualified(in.Principal.EntityType),
			ID:         in.Principal.EntityID,
			Attributes: map[string]string{},
			Roles:      []string{},
		},
		Action:   Identifier{Type: unqualified(in.Action.ActionType), ID: in.Action.ActionID},
		Resource: Identifier{Type: unqualified(in.Resource.EntityType), ID: in.Resource.EntityID},
		Context:  map[string]string{},
	}

	if in.Context != nil {
		for k, v := range in.Context.ContextMap {
			if v.String != nil {
				out.Context[k] = *v.String
			}
		}
	}

	if in.Entities == nil {
		return out
	}
	for _, item := range in.Entities.EntityList {
		if item.Identifier != in.Principal {
			continue
		}
		for k, v := range item.Attributes {
			if v.String != nil {
				out.Principal.Attributes[k] = *v.String
			}
		}
		for _, parent := range item.Parents {
			if unqualified(parent.EntityType) == "Role" {
				out.Principal.Roles = append(out.Principal.Roles, parent.EntityID)
			}
		}
	}
	return out
}

func unqualified(entityType string) string {
	if i := strings.LastIndex(entityType, "::"); i >= 0 {
		return entityType[i+2:]
	}
	return entityType
}

// Evaluate decides input. A policy whose evaluation fails is skipped and
// reported in the output errors.
func (e *Engine) Evaluate(ctx context.Context, input Input) *pdp.IsAuthorizedOutput {
	var permits, forbids []pdp.DeterminingPolicy
	out := &pdp.IsAuthorizedOutput{
		DeterminingPolicies: []pdp.DeterminingPolicy{},
		Errors:              []pdp.EvaluationError{},
	}

	for _, p := range e.policies {
		matched, err := p.matcher.Match(ctx, input)
		if err != nil {
			out.Errors = append(out.Errors, pdp.EvaluationError{
				ErrorDescription: fmt.Sprintf("policy %s: %v", p.doc.ID, err),
			})
			continue
		}
		if !matched {
			continue
		}
		if p.doc.Effect == EffectForbid {
			forbids = append(forbids, pdp.DeterminingPolicy{PolicyID: p.doc.ID})
		} else {
			permits = append(permits, pdp.DeterminingPolicy{PolicyID: p.doc.ID})
		}
	}

	switch {
	case len(forbids) > 0:
		out.Decision = DecisionDeny
		out.DeterminingPolicies = forbids
	case len(permits) > 0:
		out.Decision = DecisionAllow
		out.DeterminingPolicies = permits
	default:
		out.Decision = DecisionDeny
	}
	return out
}

func (m *regoMatcher) Match(ctx context.Context, input Input) (bool, error) {
	rs, err := m.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, err
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	v, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("match is %T, want boolean", rs[0].Expressions[0].Value)
	}
	return v, nil
}
