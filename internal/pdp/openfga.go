package pdp

import (
	"context"
	"errors"
	"fmt"

	openfga "github.com/openfga/go-sdk"
	fga "github.com/openfga/go-sdk/client"

	"github.com/vyrodovalexey/catalog-authz/internal/config"
	"github.com/vyrodovalexey/catalog-authz/internal/retry"
	"github.com/vyrodovalexey/catalog-authz/internal/route"
)

// Relations checked for each action.
const (
	RelationList = "can_list"
	RelationView = "can_view"
)

// Object types and the fixed collection object of the OpenFGA model.
const (
	ObjectTypeUser              = "user"
	ObjectTypeProduct           = "product"
	ObjectTypeProductCollection = "product_collection"
	CatalogCollectionID         = "catalog"
)

// fgaChecker is the subset of the OpenFGA SDK client the backend uses.
type fgaChecker interface {
	Check(ctx context.Context, req fga.ClientCheckRequest) (*fga.ClientCheckResponse, error)
}

// sdkChecker adapts the SDK's fluent request builder.
type sdkChecker struct {
	client *fga.OpenFgaClient
}

func (s sdkChecker) Check(ctx context.Context, req fga.ClientCheckRequest) (*fga.ClientCheckResponse, error) {
	return s.client.Check(ctx).Body(req).Execute()
}

// OpenFGABackend answers requests with an OpenFGA relationship check.
// Principal attributes and the evaluation context are sent as the check
// context for conditional tuples. OpenFGA does not report determining
// policies, so results carry none.
type OpenFGABackend struct {
	checker fgaChecker
}

// NewOpenFGABackend creates a backend for the store in cfg.
func NewOpenFGABackend(cfg config.OpenFGABackendConfig) (*OpenFGABackend, error) {
	conf := &fga.ClientConfiguration{
		ApiUrl:  cfg.APIURL,
		StoreId: cfg.StoreID,
		// Retries are owned by the Client.
		RetryParams: &openfga.RetryParams{MaxRetry: 0, MinWaitInMs: 50},
	}
	if cfg.ModelID != "" {
		conf.AuthorizationModelId = cfg.ModelID
	}

	client, err := fga.NewSdkClient(conf)
	if err != nil {
		return nil, fmt.Errorf("openfga client init: %w", err)
	}

	return &OpenFGABackend{checker: sdkChecker{client: client}}, nil
}

// Name returns the backend name.
func (b *OpenFGABackend) Name() string {
	return BackendOpenFGA
}

// IsAuthorized runs one check for req.
func (b *OpenFGABackend) IsAuthorized(ctx context.Context, req *Request) (*Result, error) {
	relation, object, err := checkTarget(req)
	if err != nil {
		return nil, err
	}

	checkCtx := make(map[string]interface{}, len(req.Context)+1)
	for k, v := range req.Context {
		checkCtx[k] = v
	}
	attrs := make(map[string]interface{})
	for k, v := range req.Principal.Attributes() {
		attrs[k] = v
	}
	checkCtx["principal"] = attrs

	resp, err := b.checker.Check(ctx, fga.ClientCheckRequest{
		User:     ObjectTypeUser + ":" + req.Principal.SubjectID(),
		Relation: relation,
		Object:   object,
		Context:  &checkCtx,
	})
	if err != nil {
		return nil, &BackendError{
			Backend:   BackendOpenFGA,
			Operation: "Check",
			Retryable: isTransientFGAError(err),
			Cause:     err,
		}
	}

	if resp == nil || resp.Allowed == nil {
		return nil, fmt.Errorf("%w: check returned no allowed field", ErrMalformedResponse)
	}

	if *resp.Allowed {
		return &Result{Verdict: VerdictAllow}, nil
	}
	return &Result{Verdict: VerdictDeny}, nil
}

// checkTarget maps an action and resource to an OpenFGA relation and object.
func checkTarget(req *Request) (relation, object string, err error) {
	switch req.Action {
	case route.ActionListProducts:
		return RelationList, ObjectTypeProductCollection + ":" + CatalogCollectionID, nil
	case route.ActionGetProduct:
		if !req.Resource.HasID() {
			return "", "", fmt.Errorf("%w: %s requires a resource id", ErrInvalidRequest, req.Action)
		}
		return RelationView, ObjectTypeProduct + ":" + req.Resource.ID, nil
	default:
		return "", "", fmt.Errorf("%w: unknown action %q", ErrInvalidRequest, req.Action)
	}
}

func isTransientFGAError(err error) bool {
	var internal openfga.FgaApiInternalError
	if errors.As(err, &internal) {
		return true
	}
	var rateLimited openfga.FgaApiRateLimitExceededError
	if errors.As(err, &rateLimited) {
		return true
	}
	return retry.IsTransient(err)
}
