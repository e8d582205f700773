package pdp

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/catalog-authz/internal/observability"
	"github.com/vyrodovalexey/catalog-authz/internal/retry"
)

// Breaker wraps gobreaker.CircuitBreaker around backend attempts. Only
// transient failures count toward tripping; a definitive DENY, a 4xx or
// caller cancellation leave the breaker untouched.
type Breaker struct {
	cb      *gobreaker.CircuitBreaker
	logger  observability.Logger
	metrics *Metrics
}

// NewBreaker creates a breaker that opens after threshold consecutive
// transient failures and retries again after timeout.
func NewBreaker(name string, threshold int, timeout time.Duration, logger observability.Logger, metrics *Metrics) *Breaker {
	if logger == nil {
		logger = observability.NopLogger()
	}
	b := &Breaker{logger: logger, metrics: metrics}

	thresholdU32 := safeIntToUint32(threshold)
	if thresholdU32 == 0 {
		thresholdU32 = 1
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= thresholdU32
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !retry.IsTransient(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			b.logger.Warn("decision service circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
			b.metrics.recordBreakerTransition(name, from.String(), to.String())
			b.metrics.setBreakerState(name, int(to))
		},
	}

	b.cb = gobreaker.NewCircuitBreaker(settings)
	b.metrics.setBreakerState(name, int(gobreaker.StateClosed))
	return b
}

// Execute runs fn through the breaker. A rejection is reported as
// ErrCircuitOpen.
func (b *Breaker) Execute(ctx context.Context, fn func() (*Result, error)) (*Result, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		trace.SpanFromContext(ctx).AddEvent("circuit_open", trace.WithAttributes(
			attribute.String("circuitbreaker.name", b.cb.Name()),
		))
		return nil, ErrCircuitOpen
	}
	if err != nil {
		return nil, err
	}
	result, _ := out.(*Result)
	return result, nil
}

// State returns the breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// safeIntToUint32 safely converts int to uint32.
func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if n > int(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n) //nolint:gosec // bounds checked above
}
