package config

import "time"

// Default values applied by ApplyDefaults.
const (
	DefaultServerAddress         = ":8080"
	DefaultReadTimeout           = 10 * time.Second
	DefaultWriteTimeout          = 10 * time.Second
	DefaultShutdownTimeout       = 15 * time.Second
	DefaultServiceName           = "product-service"
	DefaultServiceNamespace      = "bookstore"
	DefaultSubjectClaim          = "sub"
	DefaultEntityNamespace       = "Bookstore"
	DefaultDecisionTimeout       = 250 * time.Millisecond
	DefaultMaxRetries            = 1
	DefaultCacheTTL              = 60 * time.Second
	DefaultCacheMaxEntries       = 10000
	DefaultRedisKeyPrefix        = "authz:decision:"
	DefaultPolicyPollInterval    = 30 * time.Second
	DefaultPolicyLookupTTL       = 5 * time.Minute
	DefaultBreakerThreshold      = 5
	DefaultBreakerTimeout        = 30 * time.Second
	DefaultJWKSRefreshInterval   = 15 * time.Minute
	DefaultMetricsPath           = "/metrics"
	DefaultTracingSamplingRate   = 1.0
	DefaultDecisiondAddress      = ":8181"
	DefaultDecisiondPolicyFile   = "configs/policies.yaml"
	DefaultAuthorizationBackend  = BackendHTTP
	DefaultCacheType             = CacheTypeMemory
	DefaultAllowedOrigin         = "*"
	maxDecisionRetries           = 1
)

// Decision backend types.
const (
	BackendHTTP    = "http"
	BackendOpenFGA = "openfga"
)

// Decision cache types.
const (
	CacheTypeMemory = "memory"
	CacheTypeRedis  = "redis"
)

// Config is the root configuration of the catalog API.
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
	Service       ServiceConfig       `yaml:"service" json:"service"`
	Tracing       TracingConfig       `yaml:"tracing" json:"tracing"`
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`
	CORS          CORSConfig          `yaml:"cors" json:"cors"`
	Identity      IdentityConfig      `yaml:"identity" json:"identity"`
	Authorization AuthorizationConfig `yaml:"authorization" json:"authorization"`
	Catalog       CatalogConfig       `yaml:"catalog" json:"catalog"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address         string   `yaml:"address" json:"address"`
	ReadTimeout     Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`
	WriteTimeout    Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout,omitempty" json:"shutdownTimeout,omitempty"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// ServiceConfig names the service in logs, metrics and traces.
type ServiceConfig struct {
	Name      string `yaml:"name" json:"name"`
	Namespace string `yaml:"namespace" json:"namespace"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	OTLPEndpoint string  `yaml:"otlpEndpoint,omitempty" json:"otlpEndpoint,omitempty"`
	SamplingRate float64 `yaml:"samplingRate,omitempty" json:"samplingRate,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path,omitempty" json:"path,omitempty"`
}

// CORSConfig holds the single allowed origin.
type CORSConfig struct {
	AllowedOrigin string `yaml:"allowedOrigin" json:"allowedOrigin"`
}

// IdentityConfig configures claims extraction.
type IdentityConfig struct {
	// UserPoolID identifies the identity provider pool the tokens come from.
	UserPoolID string `yaml:"userPoolId,omitempty" json:"userPoolId,omitempty"`

	// SubjectClaim is the claim holding the stable subject identifier.
	SubjectClaim string `yaml:"subjectClaim,omitempty" json:"subjectClaim,omitempty"`

	// AttributeClaims maps principal attribute names to claim names.
	AttributeClaims map[string]string `yaml:"attributeClaims,omitempty" json:"attributeClaims,omitempty"`

	Verify VerifyConfig `yaml:"verify" json:"verify"`
}

// VerifyConfig enables in-process signature verification. Tokens are
// normally verified by the fronting gateway.
type VerifyConfig struct {
	Enabled         bool     `yaml:"enabled" json:"enabled"`
	JWKSURL         string   `yaml:"jwksUrl,omitempty" json:"jwksUrl,omitempty"`
	RefreshInterval Duration `yaml:"refreshInterval,omitempty" json:"refreshInterval,omitempty"`
}

// AuthorizationConfig configures the policy decision client.
type AuthorizationConfig struct {
	PolicyStoreID   string               `yaml:"policyStoreId" json:"policyStoreId"`
	EntityNamespace string               `yaml:"entityNamespace,omitempty" json:"entityNamespace,omitempty"`
	Backend         string               `yaml:"backend,omitempty" json:"backend,omitempty"`
	HTTP            HTTPBackendConfig    `yaml:"http" json:"http"`
	OpenFGA         OpenFGABackendConfig `yaml:"openfga" json:"openfga"`
	Timeout         Duration             `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	MaxRetries      int                  `yaml:"maxRetries" json:"maxRetries"`
	RetryBackoff    Duration             `yaml:"retryBackoff,omitempty" json:"retryBackoff,omitempty"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuitBreaker" json:"circuitBreaker"`
	Cache           DecisionCacheConfig  `yaml:"cache" json:"cache"`
	PolicyLookup    PolicyLookupConfig   `yaml:"policyLookup" json:"policyLookup"`
}

// HTTPBackendConfig configures the HTTP decision service.
type HTTPBackendConfig struct {
	URL     string            `yaml:"url" json:"url"`
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
}

// OpenFGABackendConfig configures the OpenFGA decision backend.
type OpenFGABackendConfig struct {
	APIURL  string `yaml:"apiUrl" json:"apiUrl"`
	StoreID string `yaml:"storeId" json:"storeId"`
	ModelID string `yaml:"modelId,omitempty" json:"modelId,omitempty"`
}

// CircuitBreakerConfig configures the breaker around decision calls.
type CircuitBreakerConfig struct {
	Enabled   bool     `yaml:"enabled" json:"enabled"`
	Threshold int      `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	Timeout   Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// DecisionCacheConfig configures the decision cache.
type DecisionCacheConfig struct {
	Enabled    bool             `yaml:"enabled" json:"enabled"`
	Type       string           `yaml:"type,omitempty" json:"type,omitempty"`
	TTL        Duration         `yaml:"ttl,omitempty" json:"ttl,omitempty"`
	MaxEntries int              `yaml:"maxEntries,omitempty" json:"maxEntries,omitempty"`
	Redis      RedisCacheConfig `yaml:"redis" json:"redis"`

	// PolicyVersionFile is watched for changes; any change invalidates
	// every cached decision.
	PolicyVersionFile string   `yaml:"policyVersionFile,omitempty" json:"policyVersionFile,omitempty"`
	PollInterval      Duration `yaml:"pollInterval,omitempty" json:"pollInterval,omitempty"`
}

// RedisCacheConfig configures the shared Redis decision cache.
type RedisCacheConfig struct {
	URL       string `yaml:"url" json:"url"`
	KeyPrefix string `yaml:"keyPrefix,omitempty" json:"keyPrefix,omitempty"`
}

// PolicyLookupConfig configures policy description lookups.
type PolicyLookupConfig struct {
	TTL Duration `yaml:"ttl,omitempty" json:"ttl,omitempty"`
}

// CatalogConfig configures the product catalog.
type CatalogConfig struct {
	// ProductsFile overrides the embedded catalog when set.
	ProductsFile string `yaml:"productsFile,omitempty" json:"productsFile,omitempty"`
}

// DefaultAttributeClaims returns the default attribute claim mapping.
func DefaultAttributeClaims() map[string]string {
	return map[string]string{
		"username":      "cognito:username",
		"role":          "custom:role",
		"yearsAsMember": "custom:yearsAsMember",
		"region":        "custom:region",
		"groups":        "cognito:groups",
	}
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{
		Metrics: MetricsConfig{Enabled: true},
		Authorization: AuthorizationConfig{
			MaxRetries: DefaultMaxRetries,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled: true,
			},
			Cache: DecisionCacheConfig{
				Enabled: true,
			},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with defaults.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = DefaultServerAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = Duration(DefaultReadTimeout)
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = Duration(DefaultWriteTimeout)
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(DefaultShutdownTimeout)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Service.Name == "" {
		cfg.Service.Name = DefaultServiceName
	}
	if cfg.Service.Namespace == "" {
		cfg.Service.Namespace = DefaultServiceNamespace
	}

	if cfg.Tracing.SamplingRate == 0 {
		cfg.Tracing.SamplingRate = DefaultTracingSamplingRate
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.CORS.AllowedOrigin == "" {
		cfg.CORS.AllowedOrigin = DefaultAllowedOrigin
	}

	applyIdentityDefaults(&cfg.Identity)
	applyAuthorizationDefaults(&cfg.Authorization)
}

func applyIdentityDefaults(id *IdentityConfig) {
	if id.SubjectClaim == "" {
		id.SubjectClaim = DefaultSubjectClaim
	}
	if len(id.AttributeClaims) == 0 {
		id.AttributeClaims = DefaultAttributeClaims()
	}
	if id.Verify.RefreshInterval == 0 {
		id.Verify.RefreshInterval = Duration(DefaultJWKSRefreshInterval)
	}
}

func applyAuthorizationDefaults(az *AuthorizationConfig) {
	if az.EntityNamespace == "" {
		az.EntityNamespace = DefaultEntityNamespace
	}
	if az.Backend == "" {
		az.Backend = DefaultAuthorizationBackend
	}
	if az.Timeout == 0 {
		az.Timeout = Duration(DefaultDecisionTimeout)
	}
	// At most one retry on the decision path.
	if az.MaxRetries < 0 {
		az.MaxRetries = 0
	}
	if az.MaxRetries > maxDecisionRetries {
		az.MaxRetries = maxDecisionRetries
	}
	if az.CircuitBreaker.Threshold == 0 {
		az.CircuitBreaker.Threshold = DefaultBreakerThreshold
	}
	if az.CircuitBreaker.Timeout == 0 {
		az.CircuitBreaker.Timeout = Duration(DefaultBreakerTimeout)
	}
	if az.Cache.Type == "" {
		az.Cache.Type = DefaultCacheType
	}
	if az.Cache.TTL == 0 {
		az.Cache.TTL = Duration(DefaultCacheTTL)
	}
	if az.Cache.MaxEntries == 0 {
		az.Cache.MaxEntries = DefaultCacheMaxEntries
	}
	if az.Cache.Redis.KeyPrefix == "" {
		az.Cache.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if az.Cache.PollInterval == 0 {
		az.Cache.PollInterval = Duration(DefaultPolicyPollInterval)
	}
	if az.PolicyLookup.TTL == 0 {
		az.PolicyLookup.TTL = Duration(DefaultPolicyLookupTTL)
	}
}
