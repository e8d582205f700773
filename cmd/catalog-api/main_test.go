package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/catalog-authz/internal/catalog"
	"github.com/vyrodovalexey/catalog-authz/internal/config"
	"github.com/vyrodovalexey/catalog-authz/internal/observability"
	"github.com/vyrodovalexey/catalog-authz/internal/server"
	"github.com/vyrodovalexey/catalog-authz/test/helpers"
)

func TestGetEnvOrDefault(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		setEnv       bool
		expected     string
	}{
		{
			name:         "returns default when env not set",
			key:          "CATALOG_TEST_GETENV_NOTSET",
			defaultValue: "default-value",
			expected:     "default-value",
		},
		{
			name:         "returns env value when set",
			key:          "CATALOG_TEST_GETENV_SET",
			defaultValue: "default-value",
			envValue:     "env-value",
			setEnv:       true,
			expected:     "env-value",
		},
		{
			name:         "returns default when env is empty string",
			key:          "CATALOG_TEST_GETENV_EMPTY",
			defaultValue: "default-value",
			setEnv:       true,
			expected:     "default-value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setEnv {
				t.Setenv(tt.key, tt.envValue)
			}
			assert.Equal(t, tt.expected, getEnvOrDefault(tt.key, tt.defaultValue))
		})
	}
}

func TestMetricsNamespace(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "bookstore", want: "bookstore"},
		{in: "book-store.prod", want: "book_store_prod"},
		{in: "9lives", want: "_9lives"},
		{in: "", want: "_"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, metricsNamespace(tt.in))
		})
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "catalog-api.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAndValidateConfig(t *testing.T) {
	t.Parallel()

	valid := writeConfig(t, `
server:
  address: 127.0.0.1:0
logging:
  level: info
authorization:
  policyStoreId: store-1
  http:
    url: http://127.0.0.1:8181
`)

	tests := []struct {
		name      string
		flags     cliFlags
		wantErr   string
		wantLevel string
	}{
		{name: "file", flags: cliFlags{configPath: valid}, wantLevel: "info"},
		{name: "flag overrides level", flags: cliFlags{configPath: valid, logLevel: "debug"}, wantLevel: "debug"},
		{name: "invalid flag", flags: cliFlags{configPath: valid, logFormat: "xml"}, wantErr: "invalid configuration"},
		{name: "missing file", flags: cliFlags{configPath: filepath.Join(t.TempDir(), "nope.yaml")}, wantErr: "failed to load configuration"},
		{name: "defaults lack a decision service", flags: cliFlags{}, wantErr: "authorization.http.url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := loadAndValidateConfig(tt.flags)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLevel, cfg.Logging.Level)
			assert.Equal(t, "store-1", cfg.Authorization.PolicyStoreID)
		})
	}
}

func newTestConfig(t *testing.T, ds *helpers.DecisionService) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Server.Address = "127.0.0.1:0"
	cfg.Service.Namespace = "catalog-test"
	cfg.Authorization.PolicyStoreID = "store-1"
	cfg.Authorization.HTTP.URL = ds.URL
	require.NoError(t, config.ValidateConfig(cfg))
	return cfg
}

func TestInitApplication(t *testing.T) {
	t.Parallel()

	ds := helpers.StartDecisionService(t, helpers.AllowAll())
	cfg := newTestConfig(t, ds)
	cfg.Authorization.Cache.PolicyVersionFile = filepath.Join(t.TempDir(), "policy-version")
	require.NoError(t, os.WriteFile(cfg.Authorization.Cache.PolicyVersionFile, []byte("v1"), 0o600))

	app, err := initApplication(context.Background(), cfg, observability.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { app.close(context.Background()) })

	require.NotNil(t, app.watcher)
	assert.Equal(t, server.StatusHealthy, app.health.Readiness().Status)

	req := httptest.NewRequest(http.MethodGet, "/product", nil)
	req.Header.Set("Authorization", helpers.BearerHeader(
		helpers.UnsignedToken(helpers.CognitoClaims("u1", "alice", "Customer"))))
	w := httptest.NewRecorder()
	app.server.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, ds.Calls())

	w = httptest.NewRecorder()
	app.server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, cfg.Metrics.Path, nil))
	assert.Contains(t, w.Body.String(), "catalog_test_authz_gate_outcomes_total")
	assert.Contains(t, w.Body.String(), "catalog_test_build_info")
}

func TestInitApplication_PolicyVersionChangeFlushesCaches(t *testing.T) {
	t.Parallel()

	ds := helpers.StartDecisionService(t, helpers.AllowAll("premium"))
	ds.AddPolicy("premium", catalog.PolicyPremiumOffers)

	cfg := newTestConfig(t, ds)
	versionFile := filepath.Join(t.TempDir(), "policy-version")
	cfg.Authorization.Cache.PolicyVersionFile = versionFile
	cfg.Authorization.Cache.PollInterval = config.Duration(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(versionFile, []byte("v1"), 0o600))

	app, err := initApplication(context.Background(), cfg, observability.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { app.close(context.Background()) })

	token := helpers.BearerHeader(helpers.UnsignedToken(helpers.CognitoClaims("u1", "alice", "Customer")))
	list := func() int {
		req := httptest.NewRequest(http.MethodGet, "/product", nil)
		req.Header.Set("Authorization", token)
		w := httptest.NewRecorder()
		app.server.Handler().ServeHTTP(w, req)
		return w.Code
	}

	require.Equal(t, http.StatusOK, list())
	require.Equal(t, http.StatusOK, list())
	assert.Equal(t, 1, ds.Calls())
	assert.Equal(t, 1, ds.PolicyCalls())

	require.NoError(t, os.WriteFile(versionFile, []byte("v2"), 0o600))

	// Both the decision and the policy description are fetched again.
	require.Eventually(t, func() bool {
		return list() == http.StatusOK && ds.PolicyCalls() >= 2
	}, 3*time.Second, 20*time.Millisecond)
	assert.GreaterOrEqual(t, ds.Calls(), 2)
}

func TestInitApplication_Errors(t *testing.T) {
	t.Parallel()

	ds := helpers.StartDecisionService(t, helpers.AllowAll())

	tests := []struct {
		name    string
		mutate  func(cfg *config.Config)
		wantErr string
	}{
		{
			name:    "missing catalog file",
			mutate:  func(cfg *config.Config) { cfg.Catalog.ProductsFile = "/nonexistent/products.json" },
			wantErr: "failed to load catalog",
		},
		{
			name:    "missing policy version file",
			mutate:  func(cfg *config.Config) { cfg.Authorization.Cache.PolicyVersionFile = "/nonexistent/dir/version" },
			wantErr: "policy version watcher",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := newTestConfig(t, ds)
			tt.mutate(cfg)

			_, err := initApplication(context.Background(), cfg, observability.NopLogger())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRunServer_ShutsDownOnSignal(t *testing.T) {
	t.Parallel()

	ds := helpers.StartDecisionService(t, helpers.AllowAll())
	cfg := newTestConfig(t, ds)

	app, err := initApplication(context.Background(), cfg, observability.NopLogger())
	require.NoError(t, err)

	sigCh := make(chan os.Signal, 1)
	done := make(chan struct{})
	go func() {
		runServer(app, sigCh, observability.NopLogger())
		close(done)
	}()

	var url string
	require.Eventually(t, func() bool {
		addr := app.server.Addr()
		if strings.HasSuffix(addr, ":0") {
			return false
		}
		url = "http://" + addr + server.PathHealthz
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	sigCh <- syscall.SIGTERM

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	assert.Equal(t, server.StatusUnhealthy, app.health.Readiness().Status)
	_, err = http.Get(url)
	assert.Error(t, err)
}
