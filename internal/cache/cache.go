package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/vyrodovalexey/catalog-authz/internal/config"
	"github.com/vyrodovalexey/catalog-authz/internal/observability"
)

// Backend names used in logs and metric labels.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendNoop   = "noop"
)

// Entry is a cached definitive decision.
type Entry struct {
	Verdict             string    `json:"verdict"`
	DeterminingPolicies []string  `json:"determiningPolicies,omitempty"`
	CachedAt            time.Time `json:"cachedAt"`
	ExpiresAt           time.Time `json:"expiresAt"`

	// Generation is the cache generation observed before the decision
	// was requested. An entry from an older generation is never served.
	Generation uint64 `json:"generation"`
}

// Expired reports whether the entry is past its validity window.
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

func (e *Entry) clone() *Entry {
	cp := *e
	cp.DeterminingPolicies = append([]string(nil), e.DeterminingPolicies...)
	return &cp
}

// Cache stores decisions by key. Implementations are safe for concurrent
// use; concurrent Puts of the same key leave the last writer's entry.
type Cache interface {
	// Get returns a live entry. Expired entries are reported as misses.
	Get(ctx context.Context, key string) (*Entry, bool)

	// Put stores an entry for the cache TTL.
	Put(ctx context.Context, key string, entry *Entry)

	// Invalidate removes one entry.
	Invalidate(ctx context.Context, key string)

	// InvalidateAll removes every entry and advances the generation, so
	// that decisions requested before the call are not stored afterwards.
	InvalidateAll(ctx context.Context)

	// Generation returns the current invalidation generation. Callers read
	// it before requesting a decision and stamp it on the entry they Put.
	Generation(ctx context.Context) uint64

	// Close releases background resources.
	Close() error
}

// New creates the cache selected by cfg. A disabled cache is a no-op.
func New(
	ctx context.Context,
	cfg config.DecisionCacheConfig,
	logger observability.Logger,
	metrics *Metrics,
) (Cache, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if !cfg.Enabled {
		logger.Info("decision cache disabled")
		return NewNoopCache(), nil
	}

	switch cfg.Type {
	case "", config.CacheTypeMemory:
		return NewMemoryCache(cfg.TTL.Duration(), cfg.MaxEntries,
			WithMemoryLogger(logger),
			WithMemoryMetrics(metrics),
		), nil
	case config.CacheTypeRedis:
		return NewRedisCache(ctx, cfg.Redis.URL, cfg.TTL.Duration(),
			WithRedisKeyPrefix(cfg.Redis.KeyPrefix),
			WithRedisLogger(logger),
			WithRedisMetrics(metrics),
		)
	default:
		return nil, fmt.Errorf("unsupported cache type %q", cfg.Type)
	}
}

// noopCache caches nothing.
type noopCache struct{}

// NewNoopCache returns a cache that never stores anything.
func NewNoopCache() Cache {
	return noopCache{}
}

func (noopCache) Get(context.Context, string) (*Entry, bool) { return nil, false }
func (noopCache) Put(context.Context, string, *Entry) {}
func (noopCache) Invalidate(context.Context, string) {}
func (noopCache) InvalidateAll(context.Context) {}
func (noopCache) Generation(context.Context) uint64 { return 0 }
func (noopCache) Close() error { return nil }
