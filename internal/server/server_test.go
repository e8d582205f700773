package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/catalog-authz/internal/auth"
	"github.com/vyrodovalexey/catalog-authz/internal/authz"
	"github.com/vyrodovalexey/catalog-authz/internal/cache"
	"github.com/vyrodovalexey/catalog-authz/internal/catalog"
	"github.com/vyrodovalexey/catalog-authz/internal/config"
	"github.com/vyrodovalexey/catalog-authz/internal/observability"
	"github.com/vyrodovalexey/catalog-authz/internal/pdp"
	"github.com/vyrodovalexey/catalog-authz/internal/route"
	"github.com/vyrodovalexey/catalog-authz/test/helpers"
)

const (
	testOrigin  = "https://shop.example.com"
	testStoreID = "store-1"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	server   *Server
	decision *helpers.DecisionService
	metrics  *observability.Metrics
}

func newTestEnv(t *testing.T, decide helpers.DecisionFunc) *testEnv {
	t.Helper()

	ds := helpers.StartDecisionService(t, decide)
	ds.AddPolicy("premium", catalog.PolicyPremiumOffers)

	cfg := config.DefaultConfig()
	cfg.CORS.AllowedOrigin = testOrigin
	cfg.Server.Address = "127.0.0.1:0"

	metrics := observability.NewMetrics("test")
	backend, err := pdp.NewHTTPBackend(ds.URL, testStoreID)
	require.NoError(t, err)

	decisionCache := cache.NewMemoryCache(time.Minute, 100)
	t.Cleanup(func() { _ = decisionCache.Close() })

	client, err := pdp.NewClient(backend,
		pdp.WithCache(decisionCache),
		pdp.WithMetrics(pdp.NewMetricsWithRegisterer("test", metrics.Registry())),
	)
	require.NoError(t, err)

	store, err := catalog.NewStore("")
	require.NoError(t, err)

	gate := authz.NewGate(
		auth.NewExtractor(auth.WithAttributeClaims(config.DefaultAttributeClaims())),
		route.DefaultTable(),
		client,
		authz.WithMetrics(authz.NewMetricsWithRegisterer("test", metrics.Registry())),
	)

	srv, err := New(cfg, Deps{
		Gate:    gate,
		Catalog: catalog.NewHandler(store, catalog.NewShaper(pdp.NewPolicyLookup(backend), nil), nil),
		Table:   route.DefaultTable(),
		Metrics: metrics,
		Health:  NewChecker("test"),
	})
	require.NoError(t, err)

	return &testEnv{server: srv, decision: ds, metrics: metrics}
}

func (e *testEnv) do(t *testing.T, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set(authz.HeaderAuthorization, helpers.BearerHeader(token))
	}
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func customerToken() string {
	return helpers.UnsignedToken(helpers.CognitoClaims("u1", "alice", "Customer"))
}

func TestServer_OperationalEndpoints(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, helpers.AllowAll())

	w := env.do(t, http.MethodGet, PathHealthz, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, PathReadyz, "")
	require.Equal(t, http.StatusOK, w.Code)
	var ready ReadinessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ready))
	assert.Equal(t, StatusHealthy, ready.Checks[ReadinessCheckRoutes].Status)

	w = env.do(t, http.MethodGet, config.DefaultMetricsPath, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_http_requests_total")

	assert.Equal(t, 0, env.decision.Calls())
}

func TestServer_ListProducts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		decide      helpers.DecisionFunc
		token       string
		wantStatus  int
		wantPremium bool
	}{
		{
			name:        "allow with premium policy",
			decide:      helpers.AllowAll("premium"),
			token:       customerToken(),
			wantStatus:  http.StatusOK,
			wantPremium: true,
		},
		{
			name:       "allow without determining policies",
			decide:     helpers.AllowAll(),
			token:      customerToken(),
			wantStatus: http.StatusOK,
		},
		{
			name:       "deny",
			decide:     helpers.DenyAll(),
			token:      customerToken(),
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "decision service down",
			decide:     func(*pdp.IsAuthorizedInput) (int, *pdp.IsAuthorizedOutput) { return http.StatusServiceUnavailable, nil },
			token:      customerToken(),
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "no token",
			decide:     helpers.AllowAll(),
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t, tt.decide)
			w := env.do(t, http.MethodGet, "/product", tt.token)
			require.Equal(t, tt.wantStatus, w.Code)

			if tt.wantStatus != http.StatusOK {
				return
			}
			var body struct {
				Products []catalog.Product `json:"products"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			require.NotEmpty(t, body.Products)

			premium := false
			for _, p := range body.Products {
				premium = premium || p.PremiumOffer
			}
			assert.Equal(t, tt.wantPremium, premium)
		})
	}
}

func TestServer_DenialsLookAlike(t *testing.T) {
	t.Parallel()

	deny := newTestEnv(t, helpers.DenyAll())
	down := newTestEnv(t, func(*pdp.IsAuthorizedInput) (int, *pdp.IsAuthorizedOutput) {
		return http.StatusInternalServerError, nil
	})

	bodies := []string{
		deny.do(t, http.MethodGet, "/product/missing-id", customerToken()).Body.String(),
		down.do(t, http.MethodGet, "/product/missing-id", customerToken()).Body.String(),
		deny.do(t, http.MethodGet, "/no/such/path", customerToken()).Body.String(),
		deny.do(t, http.MethodDelete, "/product/1", customerToken()).Body.String(),
	}
	for _, b := range bodies {
		assert.JSONEq(t, `{"message":"Forbidden"}`, b)
	}

	w := deny.do(t, http.MethodGet, "/no/such/path", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServer_DecisionsAreCached(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, helpers.AllowAll())
	token := customerToken()

	for i := 0; i < 3; i++ {
		w := env.do(t, http.MethodGet, "/product/em1oadaa-b22k-4ea8-kk33-f6m217604o3m", token)
		require.Equal(t, http.StatusOK, w.Code)
	}
	assert.Equal(t, 1, env.decision.Calls())

	reqs := env.decision.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, testStoreID, reqs[0].PolicyStoreID)
	assert.Equal(t, "em1oadaa-b22k-4ea8-kk33-f6m217604o3m", reqs[0].Resource.EntityID)
}

func TestServer_GetProductNotFoundAfterAllow(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, helpers.AllowAll())

	w := env.do(t, http.MethodGet, "/product/does-not-exist", customerToken())
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"message":"Not Found"}`, w.Body.String())
}

func TestServer_Preflight(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, helpers.DenyAll())

	req := httptest.NewRequest(http.MethodOptions, "/product", nil)
	req.Header.Set("Origin", testOrigin)
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, testOrigin, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "OPTIONS,GET", w.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, 0, env.decision.Calls())
}

func TestNew_RejectsMismatchedTable(t *testing.T) {
	t.Parallel()

	table, err := route.NewTable(route.DefaultEntries()[0])
	require.NoError(t, err)

	store, err := catalog.NewStore("")
	require.NoError(t, err)

	health := NewChecker("test")
	_, err = New(config.DefaultConfig(), Deps{
		Gate:    authz.NewGate(auth.NewExtractor(), table, &pdp.Client{}),
		Catalog: catalog.NewHandler(store, nil, nil),
		Table:   table,
		Health:  health,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, route.ErrUnknownRoute)
	assert.Equal(t, StatusUnhealthy, health.Readiness().Status)
}

func TestNew_RequiresDeps(t *testing.T) {
	t.Parallel()

	_, err := New(config.DefaultConfig(), Deps{})
	assert.Error(t, err)
}

func TestServer_ServeAndShutdown(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, helpers.AllowAll())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- env.server.Serve(ln) }()

	url := "http://" + ln.Addr().String() + PathHealthz
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, ln.Addr().String(), env.server.Addr())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, env.server.Shutdown(ctx))
	require.NoError(t, <-errCh)

	assert.Equal(t, StatusUnhealthy, env.server.health.Readiness().Status)
}
