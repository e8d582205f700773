package pdp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vyrodovalexey/catalog-authz/internal/config"
	"github.com/vyrodovalexey/catalog-authz/internal/observability"
	"github.com/vyrodovalexey/catalog-authz/internal/retry"
)

// HTTP header names and content types.
const (
	HeaderContentType = "Content-Type"
	HeaderAccept      = "Accept"
	ContentTypeJSON   = "application/json"
)

// maxResponseBytes bounds the decision service response body.
const maxResponseBytes = 1 << 20

// attributeRole is the principal attribute that becomes a parent Role entity.
const attributeRole = "role"

// HTTPBackend calls a decision service over HTTP JSON. It performs exactly
// one HTTP call per method call; timeouts and retries belong to the Client.
type HTTPBackend struct {
	baseURL       string
	policyStoreID string
	headers       map[string]string
	types         EntityTypes
	httpClient    *http.Client
	logger        observability.Logger
}

// HTTPBackendOption is a functional option for the HTTP backend.
type HTTPBackendOption func(*HTTPBackend)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) HTTPBackendOption {
	return func(b *HTTPBackend) {
		if client != nil {
			b.httpClient = client
		}
	}
}

// WithHTTPLogger sets the logger.
func WithHTTPLogger(logger observability.Logger) HTTPBackendOption {
	return func(b *HTTPBackend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithHeaders adds static headers to every call.
func WithHeaders(headers map[string]string) HTTPBackendOption {
	return func(b *HTTPBackend) {
		for k, v := range headers {
			b.headers[k] = v
		}
	}
}

// WithEntityNamespace sets the entity type namespace.
func WithEntityNamespace(namespace string) HTTPBackendOption {
	return func(b *HTTPBackend) {
		b.types = NewEntityTypes(namespace)
	}
}

// NewHTTPBackend creates an HTTP backend for the policy store at baseURL.
func NewHTTPBackend(baseURL, policyStoreID string, opts ...HTTPBackendOption) (*HTTPBackend, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("decision service URL is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid decision service URL: %w", err)
	}
	if policyStoreID == "" {
		return nil, fmt.Errorf("policy store id is required")
	}

	b := &HTTPBackend{
		baseURL:       strings.TrimRight(baseURL, "/"),
		policyStoreID: policyStoreID,
		headers:       make(map[string]string),
		types:         NewEntityTypes(DefaultEntityNamespace),
		httpClient:    &http.Client{},
		logger:        observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b, nil
}

// NewHTTPBackendFromConfig creates an HTTP backend from configuration.
func NewHTTPBackendFromConfig(cfg *config.AuthorizationConfig, logger observability.Logger) (*HTTPBackend, error) {
	return NewHTTPBackend(cfg.HTTP.URL, cfg.PolicyStoreID,
		WithHeaders(cfg.HTTP.Headers),
		WithEntityNamespace(cfg.EntityNamespace),
		WithHTTPLogger(logger),
	)
}

// Name returns the backend name.
func (b *HTTPBackend) Name() string {
	return BackendHTTP
}

// IsAuthorized evaluates req with one is-authorized call.
func (b *HTTPBackend) IsAuthorized(ctx context.Context, req *Request) (*Result, error) {
	input := b.BuildInput(req)

	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/policy-stores/%s/is-authorized", b.baseURL, url.PathEscape(b.policyStoreID))
	respBody, err := b.do(ctx, "IsAuthorized", http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}

	var out IsAuthorizedOutput
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	verdict, ok := ParseVerdict(out.Decision)
	if !ok {
		return nil, fmt.Errorf("%w: decision %q", ErrMalformedResponse, out.Decision)
	}

	for _, e := range out.Errors {
		b.logger.Warn("decision service reported evaluation error",
			observability.String("error", e.ErrorDescription),
		)
	}

	result := &Result{Verdict: verdict}
	for _, p := range out.DeterminingPolicies {
		if p.PolicyID != "" {
			result.DeterminingPolicies = append(result.DeterminingPolicies, p.PolicyID)
		}
	}

	return result, nil
}

// GetPolicy fetches one policy definition.
func (b *HTTPBackend) GetPolicy(ctx context.Context, policyID string) (*Policy, error) {
	if policyID == "" {
		return nil, ErrPolicyNotFound
	}

	endpoint := fmt.Sprintf("%s/policy-stores/%s/policies/%s",
		b.baseURL, url.PathEscape(b.policyStoreID), url.PathEscape(policyID))
	respBody, err := b.do(ctx, "GetPolicy", http.MethodGet, endpoint, nil)
	if err != nil {
		var be *BackendError
		if errors.As(err, &be) && be.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrPolicyNotFound, policyID)
		}
		return nil, err
	}

	var out GetPolicyOutput
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	policy := &Policy{
		ID:            out.PolicyID,
		PolicyStoreID: out.PolicyStoreID,
		Type:          out.PolicyType,
	}
	if out.Definition.Static != nil {
		policy.Description = out.Definition.Static.Description
		policy.Statement = out.Definition.Static.Statement
	}
	if out.LastUpdated != "" {
		if ts, err := time.Parse(time.RFC3339, out.LastUpdated); err == nil {
			policy.LastUpdated = ts
		}
	}

	return policy, nil
}

// BuildInput converts req into the wire request. The principal entity
// carries its attributes as strings and, when a role attribute is present,
// a parent Role entity.
func (b *HTTPBackend) BuildInput(req *Request) *IsAuthorizedInput {
	principal := EntityIdentifier{
		EntityType: b.types.User,
		EntityID:   req.Principal.SubjectID(),
	}

	item := EntityItem{Identifier: principal}
	attrs := req.Principal.Attributes()
	if len(attrs) > 0 {
		item.Attributes = make(map[string]AttributeValue, len(attrs))
		for k, v := range attrs {
			item.Attributes[k] = StringValue(v)
		}
	}
	if role, ok := attrs[attributeRole]; ok && role != "" {
		item.Parents = []EntityIdentifier{{EntityType: b.types.Role, EntityID: role}}
	}

	input := &IsAuthorizedInput{
		PolicyStoreID: b.policyStoreID,
		Principal:     principal,
		Action: ActionIdentifier{
			ActionType: b.types.Action,
			ActionID:   req.Action.String(),
		},
		Resource: EntityIdentifier{
			EntityType: b.types.ResourceType(req.Resource.Type),
			EntityID:   req.Resource.ID,
		},
		Entities: &EntitiesDefinition{EntityList: []EntityItem{item}},
	}

	if len(req.Context) > 0 {
		input.Context = &ContextDefinition{ContextMap: make(map[string]AttributeValue, len(req.Context))}
		for k, v := range req.Context {
			input.Context.ContextMap[k] = StringValue(v)
		}
	}

	return input
}

// do performs one HTTP call and classifies failures.
func (b *HTTPBackend) do(ctx context.Context, op, method, endpoint string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(HeaderAccept, ContentTypeJSON)
	if body != nil {
		httpReq.Header.Set(HeaderContentType, ContentTypeJSON)
	}
	for k, v := range b.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, &BackendError{
			Backend:   BackendHTTP,
			Operation: op,
			Retryable: retry.IsTransient(err),
			Cause:     err,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &BackendError{
			Backend:   BackendHTTP,
			Operation: op,
			Retryable: retry.IsTransient(err),
			Cause:     fmt.Errorf("failed to read response: %w", err),
		}
	}

	if resp.StatusCode != http.StatusOK {
		be := &BackendError{
			Backend:    BackendHTTP,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Retryable:  retry.IsRetryableStatus(resp.StatusCode),
		}
		var out ErrorOutput
		if json.Unmarshal(respBody, &out) == nil && out.Message != "" {
			be.Cause = errors.New(out.Message)
		}
		return nil, be
	}

	return respBody, nil
}
