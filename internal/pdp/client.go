package pdp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/catalog-authz/internal/cache"
	"github.com/vyrodovalexey/catalog-authz/internal/observability"
	"github.com/vyrodovalexey/catalog-authz/internal/retry"
)

const (
	tracerName = "catalog-authz/pdp"

	// DefaultTimeout bounds a single backend attempt.
	DefaultTimeout = 250 * time.Millisecond
)

// Attempt results used as metric labels.
const (
	attemptDefinitive = "definitive"
	attemptTransient  = "transient_error"
	attemptMalformed  = "malformed"
	attemptRejected   = "rejected"
	attemptCanceled   = "canceled"
	attemptCircuit    = "circuit_open"
)

// Client answers authorization requests. Evaluate never returns an error:
// every failure becomes an INDETERMINATE decision carrying its cause.
// Client is safe for concurrent use.
type Client struct {
	backend     Backend
	cache       cache.Cache
	timeout     time.Duration
	retryPolicy retry.Policy
	breaker     *Breaker
	logger      observability.Logger
	metrics     *Metrics
	tracer      trace.Tracer
}

// ClientOption is a functional option for the client.
type ClientOption func(*Client)

// WithCache sets the decision cache.
func WithCache(c cache.Cache) ClientOption {
	return func(cl *Client) {
		if c != nil {
			cl.cache = c
		}
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(cl *Client) {
		if timeout > 0 {
			cl.timeout = timeout
		}
	}
}

// WithRetryPolicy sets the retry policy. MaxRetries is clamped to one.
func WithRetryPolicy(policy retry.Policy) ClientOption {
	return func(cl *Client) {
		cl.retryPolicy = policy.Normalize()
	}
}

// WithBreaker sets the circuit breaker.
func WithBreaker(b *Breaker) ClientOption {
	return func(cl *Client) {
		cl.breaker = b
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) ClientOption {
	return func(cl *Client) {
		if logger != nil {
			cl.logger = logger
		}
	}
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) ClientOption {
	return func(cl *Client) {
		cl.metrics = metrics
	}
}

// NewClient creates a decision client for backend.
func NewClient(backend Backend, opts ...ClientOption) (*Client, error) {
	if backend == nil {
		return nil, fmt.Errorf("decision backend is required")
	}

	c := &Client{
		backend:     backend,
		cache:       cache.NewNoopCache(),
		timeout:     DefaultTimeout,
		retryPolicy: retry.Policy{MaxRetries: retry.MaxAllowedRetries},
		logger:      observability.NopLogger(),
		tracer:      otel.Tracer(tracerName),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Evaluate decides req. The cache is consulted first; on a miss the
// backend is called with a bounded timeout and at most one retry on a
// transient failure. Only definitive verdicts from a live request are
// cached, and only if the cache was not invalidated while the request was
// in flight.
func (c *Client) Evaluate(ctx context.Context, req *Request) Decision {
	ctx, span := c.tracer.Start(ctx, "pdp.evaluate",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("pdp.backend", c.backend.Name())),
	)
	defer span.End()

	decision := c.evaluate(ctx, req)

	span.SetAttributes(
		attribute.String("authz.verdict", decision.Verdict.String()),
		attribute.Bool("authz.cached", decision.Cached),
	)
	if decision.Cause != nil {
		span.RecordError(decision.Cause)
		span.SetStatus(codes.Error, decision.Cause.Error())
	}
	c.metrics.recordDecision(decision.Verdict, decision.Cached)

	return decision
}

func (c *Client) evaluate(ctx context.Context, req *Request) Decision {
	if err := validateRequest(req); err != nil {
		return indeterminate(err)
	}

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("authz.action", req.Action.String()),
		attribute.String("authz.resource_type", req.Resource.Type),
	)

	key := CacheKey(req)
	if entry, ok := c.cache.Get(ctx, key); ok {
		if verdict, valid := ParseVerdict(entry.Verdict); valid {
			return Decision{
				Verdict:             verdict,
				DeterminingPolicies: entry.DeterminingPolicies,
				Cached:              true,
			}
		}
		c.cache.Invalidate(ctx, key)
	}

	// Read before the backend call: an invalidation that happens while the
	// call is in flight must discard its verdict.
	generation := c.cache.Generation(ctx)

	var result *Result
	err := retry.Do(ctx, c.retryPolicy, func(ctx context.Context, attempt int) error {
		r, err := c.attempt(ctx, req)
		if err != nil {
			return err
		}
		result = r
		return nil
	}, &retry.Options{
		ShouldRetry: retry.IsTransient,
		OnRetry: func(attempt int, err error) {
			c.metrics.recordRetry(c.backend.Name())
			c.logger.Debug("retrying decision service call",
				observability.Int("attempt", attempt),
				observability.Error(err),
			)
		},
	})

	if ctxErr := ctx.Err(); ctxErr != nil {
		return indeterminate(ctxErr)
	}
	if err != nil {
		c.logger.Warn("decision service call failed",
			observability.String("backend", c.backend.Name()),
			observability.String("action", req.Action.String()),
			observability.Error(err),
		)
		return indeterminate(err)
	}

	decision := Decision{
		Verdict:             result.Verdict,
		DeterminingPolicies: result.DeterminingPolicies,
	}

	c.cache.Put(ctx, key, &cache.Entry{
		Verdict:             result.Verdict.String(),
		DeterminingPolicies: result.DeterminingPolicies,
		Generation:          generation,
	})

	return decision
}

// attempt makes one bounded backend call through the breaker.
func (c *Client) attempt(ctx context.Context, req *Request) (*Result, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	call := func() (*Result, error) {
		return c.backend.IsAuthorized(attemptCtx, req)
	}

	var (
		result *Result
		err    error
	)
	if c.breaker != nil {
		result, err = c.breaker.Execute(attemptCtx, call)
	} else {
		result, err = call()
	}

	// The attempt's own deadline expired while the caller is still waiting.
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s: %w", retry.ErrAttemptTimeout, c.timeout, err)
	}
	if err == nil && (result == nil || !result.Verdict.Definitive()) {
		err = fmt.Errorf("%w: backend returned no definitive verdict", ErrMalformedResponse)
	}

	c.metrics.recordAttempt(c.backend.Name(), attemptResult(ctx, err), time.Since(start))

	return result, err
}

func attemptResult(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return attemptDefinitive
	case ctx.Err() != nil:
		return attemptCanceled
	case IsCircuitOpen(err):
		return attemptCircuit
	case IsMalformedResponse(err):
		return attemptMalformed
	case retry.IsTransient(err):
		return attemptTransient
	default:
		return attemptRejected
	}
}

func validateRequest(req *Request) error {
	switch {
	case req == nil:
		return fmt.Errorf("%w: nil request", ErrInvalidRequest)
	case req.Principal == nil:
		return fmt.Errorf("%w: missing principal", ErrInvalidRequest)
	case !req.Action.Valid():
		return fmt.Errorf("%w: unknown action %q", ErrInvalidRequest, req.Action)
	case req.Resource.Type == "":
		return fmt.Errorf("%w: missing resource type", ErrInvalidRequest)
	}
	return nil
}

// CacheKey derives the decision cache key from the evaluation tuple.
func CacheKey(req *Request) string {
	return cache.Key(cache.KeyInput{
		Subject:      req.Principal.SubjectID(),
		Action:       req.Action.String(),
		ResourceType: req.Resource.Type,
		ResourceID:   req.Resource.ID,
		Attributes:   req.Principal.Attributes(),
		Context:      req.Context,
	})
}
