// Package config provides configuration types and loading for the
// catalog API.
//
// Configuration is layered: built-in defaults, then a YAML file with
// ${VAR} and ${VAR:-default} substitution, then the LOG_LEVEL,
// POWERTOOLS_SERVICE_NAME, POWERTOOLS_METRICS_NAMESPACE, ALLOWED_ORIGIN,
// POLICY_STORE_ID and USER_POOL_ID environment variables.
//
//	cfg, err := config.LoadConfig("configs/catalog-api.yaml")
//	if err != nil {
//	    return err
//	}
//	if err := config.ValidateConfig(cfg); err != nil {
//	    return err
//	}
package config
