package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// HasErrors returns true if there are validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates the catalog API configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// ValidateConfig validates a configuration.
func ValidateConfig(cfg *Config) error {
	return NewValidator().Validate(cfg)
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = make(ValidationErrors, 0)

	if cfg == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	v.validateServer(&cfg.Server)
	v.validateLogging(&cfg.Logging)
	v.validateTracing(&cfg.Tracing)
	v.validateIdentity(&cfg.Identity)
	v.validateAuthorization(&cfg.Authorization)

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		v.addError("metrics.path", "path must start with '/'")
	}

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) validateServer(s *ServerConfig) {
	if s.Address == "" {
		v.addError("server.address", "address is required")
	}
	if s.ReadTimeout < 0 {
		v.addError("server.readTimeout", "must not be negative")
	}
	if s.WriteTimeout < 0 {
		v.addError("server.writeTimeout", "must not be negative")
	}
	if s.ShutdownTimeout < 0 {
		v.addError("server.shutdownTimeout", "must not be negative")
	}
}

func (v *Validator) validateLogging(l *LoggingConfig) {
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "error":
	default:
		v.addError("logging.level", fmt.Sprintf("unsupported level %q", l.Level))
	}
	switch l.Format {
	case "json", "console":
	default:
		v.addError("logging.format", fmt.Sprintf("unsupported format %q", l.Format))
	}
}

func (v *Validator) validateTracing(t *TracingConfig) {
	if t.SamplingRate < 0 || t.SamplingRate > 1 {
		v.addError("tracing.samplingRate", "must be between 0 and 1")
	}
}

func (v *Validator) validateIdentity(id *IdentityConfig) {
	if id.SubjectClaim == "" {
		v.addError("identity.subjectClaim", "subject claim is required")
	}
	for attr, claim := range id.AttributeClaims {
		if attr == "" || claim == "" {
			v.addError("identity.attributeClaims", "attribute and claim names must be non-empty")
			break
		}
	}
	if id.Verify.Enabled {
		v.validateURL("identity.verify.jwksUrl", id.Verify.JWKSURL)
	}
}

func (v *Validator) validateAuthorization(az *AuthorizationConfig) {
	if az.Timeout <= 0 {
		v.addError("authorization.timeout", "timeout must be positive")
	}
	if az.MaxRetries < 0 || az.MaxRetries > maxDecisionRetries {
		v.addError("authorization.maxRetries",
			fmt.Sprintf("must be between 0 and %d", maxDecisionRetries))
	}
	if az.RetryBackoff < 0 {
		v.addError("authorization.retryBackoff", "must not be negative")
	}

	switch az.Backend {
	case BackendHTTP:
		if az.PolicyStoreID == "" {
			v.addError("authorization.policyStoreId", "policy store id is required")
		}
		v.validateURL("authorization.http.url", az.HTTP.URL)
	case BackendOpenFGA:
		v.validateURL("authorization.openfga.apiUrl", az.OpenFGA.APIURL)
		if az.OpenFGA.StoreID == "" {
			v.addError("authorization.openfga.storeId", "store id is required")
		}
	default:
		v.addError("authorization.backend",
			fmt.Sprintf("unsupported backend %q, must be %q or %q", az.Backend, BackendHTTP, BackendOpenFGA))
	}

	if az.CircuitBreaker.Enabled && az.CircuitBreaker.Threshold <= 0 {
		v.addError("authorization.circuitBreaker.threshold", "threshold must be positive")
	}

	v.validateCache(&az.Cache)
}

func (v *Validator) validateCache(c *DecisionCacheConfig) {
	if !c.Enabled {
		return
	}
	if c.TTL <= 0 {
		v.addError("authorization.cache.ttl", "ttl must be positive")
	}
	switch c.Type {
	case CacheTypeMemory:
		if c.MaxEntries < 0 {
			v.addError("authorization.cache.maxEntries", "must not be negative")
		}
	case CacheTypeRedis:
		if c.Redis.URL == "" {
			v.addError("authorization.cache.redis.url", "redis url is required")
		}
	default:
		v.addError("authorization.cache.type",
			fmt.Sprintf("unsupported cache type %q, must be %q or %q", c.Type, CacheTypeMemory, CacheTypeRedis))
	}
}

func (v *Validator) validateURL(path, raw string) {
	if raw == "" {
		v.addError(path, "url is required")
		return
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		v.addError(path, fmt.Sprintf("invalid url %q", raw))
	}
}

// addError adds a validation error.
func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{
		Path:    path,
		Message: message,
	})
}
