package pdp

import (
	"fmt"

	"github.com/vyrodovalexey/catalog-authz/internal/cache"
	"github.com/vyrodovalexey/catalog-authz/internal/config"
	"github.com/vyrodovalexey/catalog-authz/internal/observability"
	"github.com/vyrodovalexey/catalog-authz/internal/retry"
)

// NewBackendFromConfig creates the backend selected by cfg.Backend.
func NewBackendFromConfig(cfg *config.AuthorizationConfig, logger observability.Logger) (Backend, error) {
	switch cfg.Backend {
	case "", config.BackendHTTP:
		return NewHTTPBackendFromConfig(cfg, logger)
	case config.BackendOpenFGA:
		return NewOpenFGABackend(cfg.OpenFGA)
	default:
		return nil, fmt.Errorf("unsupported authorization backend %q", cfg.Backend)
	}
}

// NewClientFromConfig creates a decision client and the policy lookup for
// its backend. The lookup fails with ErrPolicyLookupUnsupported when the
// backend cannot fetch policies.
func NewClientFromConfig(
	cfg *config.AuthorizationConfig,
	decisionCache cache.Cache,
	logger observability.Logger,
	metrics *Metrics,
) (*Client, *PolicyLookup, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	backend, err := NewBackendFromConfig(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	opts := []ClientOption{
		WithCache(decisionCache),
		WithTimeout(cfg.Timeout.Duration()),
		WithRetryPolicy(retry.Policy{
			MaxRetries: cfg.MaxRetries,
			Backoff:    cfg.RetryBackoff.Duration(),
		}),
		WithLogger(logger),
		WithMetrics(metrics),
	}
	if cfg.CircuitBreaker.Enabled {
		opts = append(opts, WithBreaker(NewBreaker(
			"decision-service",
			cfg.CircuitBreaker.Threshold,
			cfg.CircuitBreaker.Timeout.Duration(),
			logger,
			metrics,
		)))
	}

	client, err := NewClient(backend, opts...)
	if err != nil {
		return nil, nil, err
	}

	var getter PolicyGetter
	if g, ok := backend.(PolicyGetter); ok {
		getter = g
	}
	lookup := NewPolicyLookup(getter,
		WithPolicyTTL(cfg.PolicyLookup.TTL.Duration()),
		WithPolicyTimeout(cfg.Timeout.Duration()),
		WithPolicyLogger(logger),
		WithPolicyMetrics(metrics),
	)

	logger.Info("decision client initialized",
		observability.String("backend", backend.Name()),
		observability.Duration("timeout", cfg.Timeout.Duration()),
		observability.Int("maxRetries", cfg.MaxRetries),
		observability.Bool("circuitBreaker", cfg.CircuitBreaker.Enabled),
	)

	return client, lookup, nil
}
