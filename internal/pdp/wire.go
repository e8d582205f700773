package pdp

// JSON shapes of the decision service API. The emulator in
// internal/decisiond serves the same types.

// EntityIdentifier names an entity.
type EntityIdentifier struct {
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId,omitempty"`
}

// ActionIdentifier names an action.
type ActionIdentifier struct {
	ActionType string `json:"actionType"`
	ActionID   string `json:"actionId"`
}

// AttributeValue is a typed attribute value. Only strings are sent.
type AttributeValue struct {
	String *string `json:"string,omitempty"`
}

// StringValue wraps s as an attribute value.
func StringValue(s string) AttributeValue {
	return AttributeValue{String: &s}
}

// ContextDefinition carries the evaluation context.
type ContextDefinition struct {
	ContextMap map[string]AttributeValue `json:"contextMap,omitempty"`
}

// EntityItem describes an entity and its attributes for one evaluation.
type EntityItem struct {
	Identifier EntityIdentifier          `json:"identifier"`
	Attributes map[string]AttributeValue `json:"attributes,omitempty"`
	Parents    []EntityIdentifier        `json:"parents,omitempty"`
}

// EntitiesDefinition carries the entity list.
type EntitiesDefinition struct {
	EntityList []EntityItem `json:"entityList,omitempty"`
}

// IsAuthorizedInput is the body of an is-authorized call.
type IsAuthorizedInput struct {
	PolicyStoreID string              `json:"policyStoreId"`
	Principal     EntityIdentifier    `json:"principal"`
	Action        ActionIdentifier    `json:"action"`
	Resource      EntityIdentifier    `json:"resource"`
	Context       *ContextDefinition  `json:"context,omitempty"`
	Entities      *EntitiesDefinition `json:"entities,omitempty"`
}

// DeterminingPolicy is a policy that contributed to a verdict.
type DeterminingPolicy struct {
	PolicyID string `json:"policyId"`
}

// EvaluationError is an error reported during evaluation.
type EvaluationError struct {
	ErrorDescription string `json:"errorDescription"`
}

// IsAuthorizedOutput is the response of an is-authorized call.
type IsAuthorizedOutput struct {
	Decision            string              `json:"decision"`
	DeterminingPolicies []DeterminingPolicy `json:"determiningPolicies"`
	Errors              []EvaluationError   `json:"errors"`
}

// StaticPolicyDefinition is the body of a static policy.
type StaticPolicyDefinition struct {
	Description string `json:"description,omitempty"`
	Statement   string `json:"statement"`
}

// PolicyDefinition wraps a policy body.
type PolicyDefinition struct {
	Static *StaticPolicyDefinition `json:"static,omitempty"`
}

// GetPolicyOutput is the response of a get-policy call.
type GetPolicyOutput struct {
	PolicyID      string           `json:"policyId"`
	PolicyStoreID string           `json:"policyStoreId"`
	PolicyType    string           `json:"policyType"`
	Definition    PolicyDefinition `json:"definition"`
	LastUpdated   string           `json:"lastUpdatedDate,omitempty"`
}

// ErrorOutput is the body of a non-2xx response.
type ErrorOutput struct {
	Message string `json:"message"`
}
