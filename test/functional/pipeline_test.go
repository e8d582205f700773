//go:build functional
// +build functional

package functional

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/catalog-authz/internal/auth"
	"github.com/vyrodovalexey/catalog-authz/internal/authz"
	"github.com/vyrodovalexey/catalog-authz/internal/cache"
	"github.com/vyrodovalexey/catalog-authz/internal/catalog"
	"github.com/vyrodovalexey/catalog-authz/internal/config"
	"github.com/vyrodovalexey/catalog-authz/internal/decisiond"
	"github.com/vyrodovalexey/catalog-authz/internal/observability"
	"github.com/vyrodovalexey/catalog-authz/internal/pdp"
	"github.com/vyrodovalexey/catalog-authz/internal/route"
	"github.com/vyrodovalexey/catalog-authz/internal/server"
	"github.com/vyrodovalexey/catalog-authz/test/helpers"
)

const (
	bundledPolicies = "../../configs/policies.yaml"
	bundledConfig   = "../../configs/catalog-api.yaml"
)

type pipeline struct {
	handler http.Handler
	redis   *miniredis.Miniredis
}

// newPipeline wires the catalog API to a decisiond instance serving the
// bundled policies, with decisions cached in Redis.
func newPipeline(t *testing.T) *pipeline {
	t.Helper()

	store, err := decisiond.LoadStore(bundledPolicies)
	require.NoError(t, err)
	engine, err := decisiond.NewEngine(context.Background(), store)
	require.NoError(t, err)
	pdpServer := httptest.NewServer(decisiond.NewHandler(engine, nil))
	t.Cleanup(pdpServer.Close)

	mr := miniredis.RunT(t)

	cfg, err := config.NewLoader(config.WithLookupEnv(func(key string) (string, bool) {
		switch key {
		case "DECISION_SERVICE_URL":
			return pdpServer.URL, true
		case "POLICY_STORE_ID":
			return store.PolicyStoreID, true
		}
		return "", false
	})).Load(bundledConfig)
	require.NoError(t, err)
	cfg.Authorization.Cache.Type = config.CacheTypeRedis
	cfg.Authorization.Cache.Redis.URL = "redis://" + mr.Addr()
	require.NoError(t, config.ValidateConfig(cfg))

	logger := observability.NopLogger()
	metrics := observability.NewMetrics("functional")

	decisionCache, err := cache.New(context.Background(), cfg.Authorization.Cache, logger,
		cache.NewMetricsWithRegisterer("functional", metrics.Registry()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = decisionCache.Close() })

	client, lookup, err := pdp.NewClientFromConfig(&cfg.Authorization, decisionCache, logger, nil)
	require.NoError(t, err)

	products, err := catalog.NewStore(cfg.Catalog.ProductsFile)
	require.NoError(t, err)

	table := route.DefaultTable()
	srv, err := server.New(cfg, server.Deps{
		Gate: authz.NewGate(
			auth.NewExtractor(
				auth.WithSubjectClaim(cfg.Identity.SubjectClaim),
				auth.WithAttributeClaims(cfg.Identity.AttributeClaims),
			),
			table,
			client,
		),
		Catalog: catalog.NewHandler(products, catalog.NewShaper(lookup, nil, catalog.WithDecider(client)), nil),
		Table:   table,
		Metrics: metrics,
	})
	require.NoError(t, err)

	return &pipeline{handler: srv.Handler(), redis: mr}
}

func (p *pipeline) get(t *testing.T, path string, claims map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	if claims != nil {
		req.Header.Set(authz.HeaderAuthorization, helpers.BearerHeader(helpers.UnsignedToken(claims)))
	}
	w := httptest.NewRecorder()
	p.handler.ServeHTTP(w, req)
	return w
}

func claimsWith(subject, username, role string, extra map[string]interface{}) map[string]interface{} {
	claims := helpers.CognitoClaims(subject, username, role)
	for k, v := range extra {
		claims[k] = v
	}
	return claims
}

func productIDs(t *testing.T, w *httptest.ResponseRecorder) []string {
	t.Helper()

	var body struct {
		Products []catalog.Product `json:"products"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	ids := make([]string, 0, len(body.Products))
	for _, p := range body.Products {
		ids = append(ids, p.ID)
	}
	sort.Strings(ids)
	return ids
}

func TestFunctional_ListProducts(t *testing.T) {
	t.Parallel()

	p := newPipeline(t)

	nonPremium := []string{
		"em1oadaa-b22k-4ea8-kk33-f6m217604o3m",
		"fn2padaa-c33l-4ea8-ll44-g7n217604p4n",
		"ir5sdgdd-f66o-4hd1-oo77-j0q540937s7q",
	}
	all := []string{
		"em1oadaa-b22k-4ea8-kk33-f6m217604o3m",
		"fn2padaa-c33l-4ea8-ll44-g7n217604p4n",
		"gp3qbebb-d44m-4fb9-mm55-h8o328715q5o",
		"hq4rcfcc-e55n-4gc0-nn66-i9p439826r6p",
		"ir5sdgdd-f66o-4hd1-oo77-j0q540937s7q",
	}

	tests := []struct {
		name       string
		claims     map[string]interface{}
		wantStatus int
		wantIDs    []string
	}{
		{
			name:       "new customer sees regular offers",
			claims:     claimsWith("c1", "alice", "Customer", nil),
			wantStatus: http.StatusOK,
			wantIDs:    nonPremium,
		},
		{
			name:       "loyal customer sees premium offers",
			claims:     claimsWith("c2", "bob", "Customer", map[string]interface{}{"custom:yearsAsMember": "3"}),
			wantStatus: http.StatusOK,
			wantIDs:    all,
		},
		{
			name:       "publisher sees own books and granted books",
			claims:     claimsWith("p1", "Dante", "Publisher", nil),
			wantStatus: http.StatusOK,
			wantIDs:    []string{"em1oadaa-b22k-4ea8-kk33-f6m217604o3m", "fn2padaa-c33l-4ea8-ll44-g7n217604p4n"},
		},
		{
			name:       "other publisher sees only own books",
			claims:     claimsWith("p2", "Penguin", "Publisher", nil),
			wantStatus: http.StatusOK,
			wantIDs:    []string{"ir5sdgdd-f66o-4hd1-oo77-j0q540937s7q"},
		},
		{
			name:       "admin sees everything",
			claims:     claimsWith("a1", "root", "Admin", nil),
			wantStatus: http.StatusOK,
			wantIDs:    all,
		},
		{
			name:       "restricted region is forbidden",
			claims:     claimsWith("c3", "carol", "Customer", map[string]interface{}{"custom:region": "Restricted"}),
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "unknown role is forbidden",
			claims:     claimsWith("g1", "guest", "Guest", nil),
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "anonymous is unauthorized",
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := p.get(t, "/product", tt.claims)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantIDs, productIDs(t, w))
			}
		})
	}
}

func TestFunctional_GetProduct(t *testing.T) {
	t.Parallel()

	p := newPipeline(t)
	customer := claimsWith("c1", "alice", "Customer", nil)

	w := p.get(t, "/product/em1oadaa-b22k-4ea8-kk33-f6m217604o3m", customer)
	require.Equal(t, http.StatusOK, w.Code)

	w = p.get(t, "/product/gp3qbebb-d44m-4fb9-mm55-h8o328715q5o", customer)
	assert.Equal(t, http.StatusNotFound, w.Code)

	publisher := claimsWith("p1", "Dante", "Publisher", nil)
	w = p.get(t, "/product/em1oadaa-b22k-4ea8-kk33-f6m217604o3m", publisher)
	assert.Equal(t, http.StatusOK, w.Code)

	w = p.get(t, "/product/gp3qbebb-d44m-4fb9-mm55-h8o328715q5o", publisher)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFunctional_DecisionsCachedInRedis(t *testing.T) {
	t.Parallel()

	p := newPipeline(t)
	customer := claimsWith("c1", "alice", "Customer", nil)

	require.Equal(t, http.StatusOK, p.get(t, "/product", customer).Code)
	keys := p.redis.Keys()
	require.Len(t, keys, 1)
	assert.Contains(t, keys[0], config.DefaultRedisKeyPrefix)

	require.Equal(t, http.StatusOK, p.get(t, "/product", customer).Code)
	assert.Len(t, p.redis.Keys(), 1)
}
