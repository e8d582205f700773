package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/vyrodovalexey/catalog-authz/internal/observability"
)

// minJWKSRefreshInterval bounds how often the key set may be refetched.
const minJWKSRefreshInterval = time.Minute

// JWKSVerifier verifies tokens against a remote JSON Web Key Set kept
// fresh by a background cache.
type JWKSVerifier struct {
	url    string
	set    jwk.Set
	cancel context.CancelFunc
	logger observability.Logger
}

// NewJWKSVerifier registers url with a refreshing key cache and performs
// the initial fetch. Close releases the background refresher.
func NewJWKSVerifier(
	ctx context.Context,
	url string,
	refreshInterval time.Duration,
	logger observability.Logger,
) (*JWKSVerifier, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if refreshInterval < minJWKSRefreshInterval {
		refreshInterval = minJWKSRefreshInterval
	}

	cacheCtx, cancel := context.WithCancel(context.Background())
	cache := jwk.NewCache(cacheCtx)

	if err := cache.Register(url, jwk.WithMinRefreshInterval(refreshInterval)); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to register JWKS %s: %w", url, err)
	}
	if _, err := cache.Refresh(ctx, url); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to fetch JWKS %s: %w", url, err)
	}

	logger.Info("JWKS verifier initialized",
		observability.String("url", url),
		observability.Duration("refresh_interval", refreshInterval),
	)

	return &JWKSVerifier{
		url:    url,
		set:    jwk.NewCachedSet(cache, url),
		cancel: cancel,
		logger: logger,
	}, nil
}

// Verify checks the signature and the time-based claims of raw.
func (v *JWKSVerifier) Verify(_ context.Context, raw string) (jwt.Token, error) {
	tok, err := jwt.ParseString(raw,
		jwt.WithKeySet(v.set, jws.WithInferAlgorithmFromKey(true)),
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(30*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return tok, nil
}

// Close stops the background key refresher.
func (v *JWKSVerifier) Close() error {
	if v.cancel != nil {
		v.cancel()
	}
	return nil
}
