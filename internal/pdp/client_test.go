package pdp

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/catalog-authz/internal/auth"
	"github.com/vyrodovalexey/catalog-authz/internal/cache"
	"github.com/vyrodovalexey/catalog-authz/internal/retry"
	"github.com/vyrodovalexey/catalog-authz/internal/route"
)

// fakeBackend answers with scripted responses, one per call. The last
// response repeats once the script is exhausted.
type fakeBackend struct {
	mu        sync.Mutex
	responses []fakeResponse
	calls     int32
}

type fakeResponse struct {
	result *Result
	err    error
	// block waits for the attempt context to end before returning its error.
	block bool
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) IsAuthorized(ctx context.Context, _ *Request) (*Result, error) {
	n := atomic.AddInt32(&f.calls, 1)

	f.mu.Lock()
	idx := int(n) - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	resp := f.responses[idx]
	f.mu.Unlock()

	if resp.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return resp.result, resp.err
}

func (f *fakeBackend) Calls() int {
	return int(atomic.LoadInt32(&f.calls))
}

func allow(policies ...string) fakeResponse {
	return fakeResponse{result: &Result{Verdict: VerdictAllow, DeterminingPolicies: policies}}
}

func deny(policies ...string) fakeResponse {
	return fakeResponse{result: &Result{Verdict: VerdictDeny, DeterminingPolicies: policies}}
}

func failWith(err error) fakeResponse {
	return fakeResponse{err: err}
}

func testRequest(t *testing.T, subject string) *Request {
	t.Helper()

	p, err := auth.NewPrincipal(subject, map[string]string{"role": "Customer"})
	require.NoError(t, err)

	return &Request{
		Principal: p,
		Action:    route.ActionGetProduct,
		Resource:  route.Resource{Type: route.ResourceTypeProduct, ID: "42"},
		Context:   map[string]string{"region": "US"},
	}
}

func newTestClient(t *testing.T, backend Backend, opts ...ClientOption) *Client {
	t.Helper()

	c, err := NewClient(backend, opts...)
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresBackend(t *testing.T) {
	t.Parallel()

	_, err := NewClient(nil)
	assert.Error(t, err)
}

func TestClient_Evaluate_Verdicts(t *testing.T) {
	t.Parallel()

	transient := &BackendError{Backend: "fake", Operation: "IsAuthorized", StatusCode: 503, Retryable: true}
	rejected := &BackendError{Backend: "fake", Operation: "IsAuthorized", StatusCode: 400}

	tests := []struct {
		name        string
		responses   []fakeResponse
		wantVerdict Verdict
		wantCalls   int
		wantCause   error
	}{
		{
			name:        "allow",
			responses:   []fakeResponse{allow("p1")},
			wantVerdict: VerdictAllow,
			wantCalls:   1,
		},
		{
			name:        "deny is never retried",
			responses:   []fakeResponse{deny("p2")},
			wantVerdict: VerdictDeny,
			wantCalls:   1,
		},
		{
			name:        "transient then allow",
			responses:   []fakeResponse{failWith(transient), allow()},
			wantVerdict: VerdictAllow,
			wantCalls:   2,
		},
		{
			name:        "transient twice",
			responses:   []fakeResponse{failWith(transient), failWith(transient)},
			wantVerdict: VerdictIndeterminate,
			wantCalls:   2,
		},
		{
			name:        "4xx is not retried",
			responses:   []fakeResponse{failWith(rejected), allow()},
			wantVerdict: VerdictIndeterminate,
			wantCalls:   1,
		},
		{
			name:        "malformed is not retried",
			responses:   []fakeResponse{failWith(ErrMalformedResponse), allow()},
			wantVerdict: VerdictIndeterminate,
			wantCalls:   1,
			wantCause:   ErrMalformedResponse,
		},
		{
			name:        "non-definitive result is malformed",
			responses:   []fakeResponse{{result: &Result{Verdict: VerdictIndeterminate}}},
			wantVerdict: VerdictIndeterminate,
			wantCalls:   1,
			wantCause:   ErrMalformedResponse,
		},
		{
			name:        "nil result is malformed",
			responses:   []fakeResponse{{}},
			wantVerdict: VerdictIndeterminate,
			wantCalls:   1,
			wantCause:   ErrMalformedResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			backend := &fakeBackend{responses: tt.responses}
			c := newTestClient(t, backend)

			d := c.Evaluate(context.Background(), testRequest(t, "u1"))

			assert.Equal(t, tt.wantVerdict, d.Verdict)
			assert.Equal(t, tt.wantCalls, backend.Calls())
			assert.False(t, d.Cached)
			if tt.wantVerdict == VerdictIndeterminate {
				assert.Error(t, d.Cause)
				assert.False(t, d.Allowed())
			}
			if tt.wantCause != nil {
				assert.ErrorIs(t, d.Cause, tt.wantCause)
			}
		})
	}
}

func TestClient_Evaluate_TimeoutTwiceIsIndeterminate(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{responses: []fakeResponse{{block: true}}}
	c := newTestClient(t, backend, WithTimeout(20*time.Millisecond))

	start := time.Now()
	d := c.Evaluate(context.Background(), testRequest(t, "u1"))

	assert.Equal(t, VerdictIndeterminate, d.Verdict)
	assert.Equal(t, 2, backend.Calls())
	assert.ErrorIs(t, d.Cause, retry.ErrAttemptTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestClient_Evaluate_CacheHitSkipsBackend(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{responses: []fakeResponse{allow("p1")}}
	mc := cache.NewMemoryCache(time.Minute, 100)
	defer mc.Close()
	c := newTestClient(t, backend, WithCache(mc))

	ctx := context.Background()
	first := c.Evaluate(ctx, testRequest(t, "u1"))
	second := c.Evaluate(ctx, testRequest(t, "u1"))

	assert.Equal(t, VerdictAllow, first.Verdict)
	assert.False(t, first.Cached)
	assert.Equal(t, VerdictAllow, second.Verdict)
	assert.True(t, second.Cached)
	assert.Equal(t, []string{"p1"}, second.DeterminingPolicies)
	assert.Equal(t, 1, backend.Calls())
}

func TestClient_Evaluate_ExpiredEntryCallsBackend(t *testing.T) {
	t.Parallel()

	now := time.Now()
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	backend := &fakeBackend{responses: []fakeResponse{allow()}}
	mc := cache.NewMemoryCache(time.Minute, 100, cache.WithClock(clock))
	defer mc.Close()
	c := newTestClient(t, backend, WithCache(mc))

	ctx := context.Background()
	c.Evaluate(ctx, testRequest(t, "u1"))

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()

	d := c.Evaluate(ctx, testRequest(t, "u1"))
	assert.False(t, d.Cached)
	assert.Equal(t, 2, backend.Calls())
}

// gatedBackend holds each call until release is closed, then answers
// with verdicts in order.
type gatedBackend struct {
	started  chan struct{}
	release  chan struct{}
	verdicts []Verdict
	calls    int32
}

func (g *gatedBackend) Name() string { return "gated" }

func (g *gatedBackend) IsAuthorized(ctx context.Context, _ *Request) (*Result, error) {
	n := int(atomic.AddInt32(&g.calls, 1))
	if n == 1 {
		close(g.started)
		select {
		case <-g.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	idx := n - 1
	if idx >= len(g.verdicts) {
		idx = len(g.verdicts) - 1
	}
	return &Result{Verdict: g.verdicts[idx]}, nil
}

func TestClient_Evaluate_InvalidationDuringCallDiscardsVerdict(t *testing.T) {
	t.Parallel()

	backend := &gatedBackend{
		started:  make(chan struct{}),
		release:  make(chan struct{}),
		verdicts: []Verdict{VerdictAllow, VerdictDeny},
	}
	mc := cache.NewMemoryCache(time.Minute, 100)
	defer mc.Close()
	c := newTestClient(t, backend, WithCache(mc), WithTimeout(5*time.Second))

	ctx := context.Background()
	req := testRequest(t, "u1")
	done := make(chan Decision, 1)
	go func() { done <- c.Evaluate(ctx, req) }()

	<-backend.started
	mc.InvalidateAll(ctx)
	close(backend.release)

	first := <-done
	assert.Equal(t, VerdictAllow, first.Verdict)
	assert.Equal(t, 0, mc.Len())

	second := c.Evaluate(ctx, testRequest(t, "u1"))
	assert.Equal(t, VerdictDeny, second.Verdict)
	assert.False(t, second.Cached)
	assert.Equal(t, 2, int(atomic.LoadInt32(&backend.calls)))

	third := c.Evaluate(ctx, testRequest(t, "u1"))
	assert.Equal(t, VerdictDeny, third.Verdict)
	assert.True(t, third.Cached)
}

func TestClient_Evaluate_DistinctSubjectsAreCachedSeparately(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{responses: []fakeResponse{allow(), deny()}}
	mc := cache.NewMemoryCache(time.Minute, 100)
	defer mc.Close()
	c := newTestClient(t, backend, WithCache(mc))

	ctx := context.Background()
	assert.Equal(t, VerdictAllow, c.Evaluate(ctx, testRequest(t, "u1")).Verdict)
	assert.Equal(t, VerdictDeny, c.Evaluate(ctx, testRequest(t, "u2")).Verdict)
	assert.Equal(t, 2, backend.Calls())
}

func TestClient_Evaluate_IndeterminateIsNotCached(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{responses: []fakeResponse{failWith(ErrMalformedResponse), allow()}}
	mc := cache.NewMemoryCache(time.Minute, 100)
	defer mc.Close()
	c := newTestClient(t, backend, WithCache(mc))

	ctx := context.Background()
	assert.Equal(t, VerdictIndeterminate, c.Evaluate(ctx, testRequest(t, "u1")).Verdict)
	assert.Equal(t, 0, mc.Len())
	assert.Equal(t, VerdictAllow, c.Evaluate(ctx, testRequest(t, "u1")).Verdict)
}

func TestClient_Evaluate_CanceledContextWritesNothing(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{responses: []fakeResponse{{block: true}}}
	mc := cache.NewMemoryCache(time.Minute, 100)
	defer mc.Close()
	c := newTestClient(t, backend, WithCache(mc), WithTimeout(5*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	d := c.Evaluate(ctx, testRequest(t, "u1"))

	assert.Equal(t, VerdictIndeterminate, d.Verdict)
	assert.ErrorIs(t, d.Cause, context.Canceled)
	assert.Equal(t, 1, backend.Calls())
	assert.Equal(t, 0, mc.Len())
	assert.Less(t, time.Since(start), time.Second)
}

func TestClient_Evaluate_InvalidRequest(t *testing.T) {
	t.Parallel()

	p, err := auth.NewPrincipal("u1", nil)
	require.NoError(t, err)

	tests := []struct {
		name string
		req  *Request
	}{
		{name: "nil request", req: nil},
		{name: "nil principal", req: &Request{Action: route.ActionListProducts, Resource: route.Resource{Type: "ProductCollection"}}},
		{name: "unknown action", req: &Request{Principal: p, Action: "DeleteProduct", Resource: route.Resource{Type: "Product"}}},
		{name: "missing resource", req: &Request{Principal: p, Action: route.ActionListProducts}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			backend := &fakeBackend{responses: []fakeResponse{allow()}}
			c := newTestClient(t, backend)

			d := c.Evaluate(context.Background(), tt.req)
			assert.Equal(t, VerdictIndeterminate, d.Verdict)
			assert.ErrorIs(t, d.Cause, ErrInvalidRequest)
			assert.Equal(t, 0, backend.Calls())
		})
	}
}

func TestClient_Evaluate_CircuitOpen(t *testing.T) {
	t.Parallel()

	transient := &BackendError{Backend: "fake", Operation: "IsAuthorized", Retryable: true}
	backend := &fakeBackend{responses: []fakeResponse{failWith(transient)}}
	breaker := NewBreaker("test", 2, time.Minute, nil, nil)
	c := newTestClient(t, backend, WithBreaker(breaker), WithRetryPolicy(retry.Policy{MaxRetries: 0}))

	ctx := context.Background()
	c.Evaluate(ctx, testRequest(t, "u1"))
	c.Evaluate(ctx, testRequest(t, "u1"))
	require.Equal(t, 2, backend.Calls())

	d := c.Evaluate(ctx, testRequest(t, "u1"))
	assert.Equal(t, VerdictIndeterminate, d.Verdict)
	assert.ErrorIs(t, d.Cause, ErrCircuitOpen)
	assert.Equal(t, 2, backend.Calls(), "open circuit must not reach the backend")
}

func TestClient_Evaluate_Metrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegisterer("test", reg)
	transient := &BackendError{Backend: "fake", Operation: "IsAuthorized", Retryable: true}
	backend := &fakeBackend{responses: []fakeResponse{failWith(transient), allow()}}
	mc := cache.NewMemoryCache(time.Minute, 100)
	defer mc.Close()
	c := newTestClient(t, backend, WithCache(mc), WithMetrics(m))

	ctx := context.Background()
	c.Evaluate(ctx, testRequest(t, "u1"))
	c.Evaluate(ctx, testRequest(t, "u1"))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.retriesTotal.WithLabelValues("fake")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.decisionsTotal.WithLabelValues("ALLOW", "backend")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.decisionsTotal.WithLabelValues("ALLOW", "cache")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.requestsTotal.WithLabelValues("fake", attemptTransient)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.requestsTotal.WithLabelValues("fake", attemptDefinitive)))
}

func TestClient_Evaluate_Concurrent(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{responses: []fakeResponse{allow()}}
	mc := cache.NewMemoryCache(time.Minute, 100)
	defer mc.Close()
	c := newTestClient(t, backend, WithCache(mc))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d := c.Evaluate(context.Background(), testRequest(t, "u1"))
			assert.Equal(t, VerdictAllow, d.Verdict)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, mc.Len())
}

func TestCacheKey_DependsOnTuple(t *testing.T) {
	t.Parallel()

	a := testRequest(t, "u1")
	b := testRequest(t, "u1")
	assert.Equal(t, CacheKey(a), CacheKey(b))

	b.Resource.ID = "43"
	assert.NotEqual(t, CacheKey(a), CacheKey(b))
}

func TestParseVerdict(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		want   Verdict
		wantOK bool
	}{
		{in: "ALLOW", want: VerdictAllow, wantOK: true},
		{in: "deny", want: VerdictDeny, wantOK: true},
		{in: " Allow ", want: VerdictAllow, wantOK: true},
		{in: "", want: VerdictIndeterminate},
		{in: "INDETERMINATE", want: VerdictIndeterminate},
		{in: "maybe", want: VerdictIndeterminate},
	}

	for _, tt := range tests {
		got, ok := ParseVerdict(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.wantOK, ok, tt.in)
	}
}

func TestBackendError(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := &BackendError{Backend: "http", Operation: "IsAuthorized", StatusCode: 503, Retryable: true, Cause: cause}

	assert.Equal(t, "http IsAuthorized failed: status 503: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, retry.IsTransient(err))
	assert.False(t, retry.IsTransient(&BackendError{Backend: "http", StatusCode: 403}))
}
