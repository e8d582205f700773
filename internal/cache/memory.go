package cache

import (
	"context"
	"sync"
	"time"

	"github.com/vyrodovalexey/catalog-authz/internal/observability"
)

// defaultCleanupInterval is how often expired entries are swept.
const defaultCleanupInterval = time.Minute

// MemoryCache is an in-process decision cache bounded by TTL and entry
// count.
type MemoryCache struct {
	mu         sync.RWMutex
	entries    map[string]*Entry
	generation uint64
	ttl        time.Duration
	maxEntries int

	now             func() time.Time
	cleanupInterval time.Duration
	logger          observability.Logger
	metrics         *Metrics

	stopCh    chan struct{}
	stoppedCh chan struct{}
	closeOnce sync.Once
}

// MemoryOption is a functional option for the memory cache.
type MemoryOption func(*MemoryCache)

// WithMemoryLogger sets the logger.
func WithMemoryLogger(logger observability.Logger) MemoryOption {
	return func(c *MemoryCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMemoryMetrics sets the metrics.
func WithMemoryMetrics(metrics *Metrics) MemoryOption {
	return func(c *MemoryCache) {
		c.metrics = metrics
	}
}

// WithClock replaces the time source. Used by tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(c *MemoryCache) {
		c.now = now
	}
}

// WithCleanupInterval sets how often expired entries are swept.
func WithCleanupInterval(d time.Duration) MemoryOption {
	return func(c *MemoryCache) {
		if d > 0 {
			c.cleanupInterval = d
		}
	}
}

// NewMemoryCache creates an in-memory cache and starts its sweeper.
// maxEntries <= 0 means unbounded.
func NewMemoryCache(ttl time.Duration, maxEntries int, opts ...MemoryOption) *MemoryCache {
	c := &MemoryCache{
		entries:         make(map[string]*Entry),
		ttl:             ttl,
		maxEntries:      maxEntries,
		now:             time.Now,
		cleanupInterval: defaultCleanupInterval,
		logger:          observability.NopLogger(),
		stopCh:          make(chan struct{}),
		stoppedCh:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	go c.cleanupLoop()

	return c
}

// Get returns a live entry.
func (c *MemoryCache) Get(_ context.Context, key string) (*Entry, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	generation := c.generation
	c.mu.RUnlock()

	if !ok || entry.Generation != generation || entry.Expired(c.now()) {
		c.metrics.recordMiss(BackendMemory)
		return nil, false
	}

	c.metrics.recordHit(BackendMemory)
	return entry.clone(), true
}

// Put stores entry for the cache TTL, replacing any existing entry. An
// entry stamped with a generation other than the current one is dropped.
func (c *MemoryCache) Put(_ context.Context, key string, entry *Entry) {
	if entry == nil || c.ttl <= 0 {
		return
	}

	now := c.now()
	stored := entry.clone()
	stored.CachedAt = now
	stored.ExpiresAt = now.Add(c.ttl)

	c.mu.Lock()
	if stored.Generation != c.generation {
		c.mu.Unlock()
		c.logger.Debug("dropping decision from before invalidation",
			observability.Uint64("generation", stored.Generation),
		)
		return
	}
	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictLocked(now)
	}
	c.entries[key] = stored
	size := len(c.entries)
	c.mu.Unlock()

	c.metrics.setEntries(BackendMemory, size)
}

// Invalidate removes one entry.
func (c *MemoryCache) Invalidate(_ context.Context, key string) {
	c.mu.Lock()
	delete(c.entries, key)
	size := len(c.entries)
	c.mu.Unlock()

	c.metrics.recordInvalidation(BackendMemory, "key")
	c.metrics.setEntries(BackendMemory, size)
}

// InvalidateAll removes every entry.
func (c *MemoryCache) InvalidateAll(_ context.Context) {
	c.mu.Lock()
	dropped := len(c.entries)
	c.entries = make(map[string]*Entry)
	c.generation++
	c.mu.Unlock()

	c.logger.Info("decision cache invalidated", observability.Int("dropped", dropped))
	c.metrics.recordInvalidation(BackendMemory, "all")
	c.metrics.setEntries(BackendMemory, 0)
}

// Generation returns the current invalidation generation.
func (c *MemoryCache) Generation(_ context.Context) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// Len returns the number of stored entries, live or expired.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the sweeper.
func (c *MemoryCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopCh)
		<-c.stoppedCh
	})
	return nil
}

// evictLocked drops expired entries and, if still full, the oldest one.
// Must be called with c.mu held.
func (c *MemoryCache) evictLocked(now time.Time) {
	evicted := 0
	for k, e := range c.entries {
		if e.Expired(now) {
			delete(c.entries, k)
			evicted++
		}
	}

	if len(c.entries) >= c.maxEntries {
		var oldestKey string
		var oldest time.Time
		for k, e := range c.entries {
			if oldestKey == "" || e.CachedAt.Before(oldest) {
				oldestKey = k
				oldest = e.CachedAt
			}
		}
		if oldestKey != "" {
			delete(c.entries, oldestKey)
			evicted++
		}
	}

	c.metrics.recordEvictions(BackendMemory, evicted)
}

func (c *MemoryCache) cleanupLoop() {
	defer close(c.stoppedCh)

	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopCh:
			return
		}
	}
}

func (c *MemoryCache) cleanup() {
	now := c.now()

	c.mu.Lock()
	evicted := 0
	for k, e := range c.entries {
		if e.Expired(now) {
			delete(c.entries, k)
			evicted++
		}
	}
	size := len(c.entries)
	c.mu.Unlock()

	c.metrics.recordEvictions(BackendMemory, evicted)
	c.metrics.setEntries(BackendMemory, size)
}
