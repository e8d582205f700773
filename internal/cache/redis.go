package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/catalog-authz/internal/config"
	"github.com/vyrodovalexey/catalog-authz/internal/observability"
)

const (
	cacheTracerName = "catalog-authz/cache"

	// redisScanBatch is the SCAN COUNT hint used by InvalidateAll.
	redisScanBatch = 500

	pingTimeout = 5 * time.Second

	// generationKeySuffix names the generation counter under the prefix.
	// InvalidateAll advances it and never deletes it.
	generationKeySuffix = "generation"
)

// RedisCache shares decisions across replicas through Redis. Redis
// expires the keys; the stored ExpiresAt is checked as well so that clock
// skew never extends an entry past its TTL.
type RedisCache struct {
	client    redis.UniversalClient
	ttl       time.Duration
	keyPrefix string
	now       func() time.Time
	logger    observability.Logger
	metrics   *Metrics
}

// RedisOption is a functional option for the Redis cache.
type RedisOption func(*RedisCache)

// WithRedisKeyPrefix sets the key prefix.
func WithRedisKeyPrefix(prefix string) RedisOption {
	return func(c *RedisCache) {
		if prefix != "" {
			c.keyPrefix = prefix
		}
	}
}

// WithRedisLogger sets the logger.
func WithRedisLogger(logger observability.Logger) RedisOption {
	return func(c *RedisCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRedisMetrics sets the metrics.
func WithRedisMetrics(metrics *Metrics) RedisOption {
	return func(c *RedisCache) {
		c.metrics = metrics
	}
}

// NewRedisCache connects to redisURL (redis://host:port/db) and verifies
// the connection.
func NewRedisCache(ctx context.Context, redisURL string, ttl time.Duration, opts ...RedisOption) (*RedisCache, error) {
	if redisURL == "" {
		return nil, errors.New("redis URL is required")
	}

	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	c := NewRedisCacheWithClient(client, ttl, opts...)

	c.logger.Info("redis decision cache initialized",
		observability.String("addr", options.Addr),
		observability.String("keyPrefix", c.keyPrefix),
		observability.Duration("ttl", ttl),
	)

	return c, nil
}

// NewRedisCacheWithClient wraps an existing client. The cache owns the
// client and closes it on Close.
func NewRedisCacheWithClient(client redis.UniversalClient, ttl time.Duration, opts ...RedisOption) *RedisCache {
	c := &RedisCache{
		client:    client,
		ttl:       ttl,
		keyPrefix: config.DefaultRedisKeyPrefix,
		now:       time.Now,
		logger:    observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisCache) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return otel.Tracer(cacheTracerName).Start(ctx, "cache."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("cache.backend", BackendRedis)),
	)
}

// Get returns a live entry. Backend errors are logged and reported as
// misses.
func (c *RedisCache) Get(ctx context.Context, key string) (*Entry, bool) {
	ctx, span := c.startSpan(ctx, "Get")
	defer span.End()

	values, err := c.client.MGet(ctx, c.keyPrefix+key, c.generationKey()).Result()
	if err != nil {
		c.recordError(span, "get", err)
		span.SetAttributes(attribute.Bool("cache.hit", false))
		c.metrics.recordMiss(BackendRedis)
		return nil, false
	}

	data, ok := values[0].(string)
	if !ok {
		span.SetAttributes(attribute.Bool("cache.hit", false))
		c.metrics.recordMiss(BackendRedis)
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		c.recordError(span, "decode", err)
		c.metrics.recordMiss(BackendRedis)
		return nil, false
	}

	generation, err := parseGeneration(values[1])
	if err != nil {
		c.recordError(span, "decode", err)
		c.metrics.recordMiss(BackendRedis)
		return nil, false
	}

	if entry.Generation != generation || entry.Expired(c.now()) {
		span.SetAttributes(attribute.Bool("cache.hit", false))
		c.metrics.recordMiss(BackendRedis)
		return nil, false
	}

	span.SetAttributes(attribute.Bool("cache.hit", true))
	c.metrics.recordHit(BackendRedis)
	return &entry, true
}

// Put stores entry with the cache TTL. SET overwrites, so the last writer
// wins. An entry stamped with an older generation may still be written by
// a call that raced InvalidateAll; Get never serves it.
func (c *RedisCache) Put(ctx context.Context, key string, entry *Entry) {
	if entry == nil || c.ttl <= 0 {
		return
	}

	ctx, span := c.startSpan(ctx, "Put")
	defer span.End()

	now := c.now()
	stored := entry.clone()
	stored.CachedAt = now
	stored.ExpiresAt = now.Add(c.ttl)

	data, err := json.Marshal(stored)
	if err != nil {
		c.recordError(span, "encode", err)
		return
	}

	if err := c.client.Set(ctx, c.keyPrefix+key, data, c.ttl).Err(); err != nil {
		c.recordError(span, "set", err)
	}
}

// Invalidate removes one entry.
func (c *RedisCache) Invalidate(ctx context.Context, key string) {
	ctx, span := c.startSpan(ctx, "Invalidate")
	defer span.End()

	if err := c.client.Del(ctx, c.keyPrefix+key).Err(); err != nil {
		c.recordError(span, "delete", err)
		return
	}
	c.metrics.recordInvalidation(BackendRedis, "key")
}

// InvalidateAll advances the shared generation and removes every entry
// under the cache prefix. The generation is advanced first, so entries
// written by replicas while the scan runs are already stale.
func (c *RedisCache) InvalidateAll(ctx context.Context) {
	ctx, span := c.startSpan(ctx, "InvalidateAll")
	defer span.End()

	generation, err := c.client.Incr(ctx, c.generationKey()).Uint64()
	if err != nil {
		c.recordError(span, "incr", err)
		return
	}
	span.SetAttributes(attribute.Int64("cache.generation", int64(generation))) //nolint:gosec // counter stays far below MaxInt64

	var (
		cursor  uint64
		dropped int
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.keyPrefix+"*", redisScanBatch).Result()
		if err != nil {
			c.recordError(span, "scan", err)
			return
		}
		keys = c.withoutGenerationKey(keys)
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.recordError(span, "delete", err)
				return
			}
			dropped += len(keys)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	span.SetAttributes(attribute.Int("cache.dropped", dropped))
	c.logger.Info("decision cache invalidated",
		observability.String("backend", BackendRedis),
		observability.Int("dropped", dropped),
	)
	c.metrics.recordInvalidation(BackendRedis, "all")
}

// Generation returns the shared invalidation generation. A read failure
// reports zero; entries stamped with it are then never served once the
// real generation is readable again.
func (c *RedisCache) Generation(ctx context.Context) uint64 {
	raw, err := c.client.Get(ctx, c.generationKey()).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.metrics.recordError(BackendRedis, "generation")
			c.logger.Warn("failed to read decision cache generation", observability.Error(err))
		}
		return 0
	}
	generation, err := parseGeneration(raw)
	if err != nil {
		c.metrics.recordError(BackendRedis, "generation")
		return 0
	}
	return generation
}

func (c *RedisCache) generationKey() string {
	return c.keyPrefix + generationKeySuffix
}

func (c *RedisCache) withoutGenerationKey(keys []string) []string {
	genKey := c.generationKey()
	out := keys[:0]
	for _, k := range keys {
		if k != genKey {
			out = append(out, k)
		}
	}
	return out
}

// parseGeneration decodes a generation counter read from Redis. A missing
// counter is generation zero.
func parseGeneration(v interface{}) (uint64, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case string:
		return strconv.ParseUint(t, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected generation value %T", v)
	}
}

// Close closes the Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) recordError(span trace.Span, op string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	c.metrics.recordError(BackendRedis, op)
	c.logger.Warn("redis decision cache operation failed",
		observability.String("operation", op),
		observability.Error(err),
	)
}
