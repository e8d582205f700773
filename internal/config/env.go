package config

// Environment variables that override the configuration file. Values are
// taken as opaque strings.
const (
	EnvLogLevel         = "LOG_LEVEL"
	EnvServiceName      = "POWERTOOLS_SERVICE_NAME"
	EnvMetricsNamespace = "POWERTOOLS_METRICS_NAMESPACE"
	EnvAllowedOrigin    = "ALLOWED_ORIGIN"
	EnvPolicyStoreID    = "POLICY_STORE_ID"
	EnvUserPoolID       = "USER_POOL_ID"
)

// ApplyEnvOverrides copies non-empty environment values into cfg.
func ApplyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) {
	if cfg == nil || lookup == nil {
		return
	}

	overrides := []struct {
		env    string
		target *string
	}{
		{EnvLogLevel, &cfg.Logging.Level},
		{EnvServiceName, &cfg.Service.Name},
		{EnvMetricsNamespace, &cfg.Service.Namespace},
		{EnvAllowedOrigin, &cfg.CORS.AllowedOrigin},
		{EnvPolicyStoreID, &cfg.Authorization.PolicyStoreID},
		{EnvUserPoolID, &cfg.Identity.UserPoolID},
	}

	for _, o := range overrides {
		if v, ok := lookup(o.env); ok && v != "" {
			*o.target = v
		}
	}
}
