// Package retry provides a small, explicitly bounded retry policy for
// calls on a request's critical path.
//
// Unlike general-purpose retry helpers the policy uses a fixed backoff
// and a hard upper bound on retries, so the worst-case latency of a call
// is (MaxRetries+1) attempts plus MaxRetries backoffs.
//
//	policy := retry.Policy{MaxRetries: 1, Backoff: 10 * time.Millisecond}
//	err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) error {
//	    return callDecisionService(ctx)
//	}, &retry.Options{ShouldRetry: retry.IsTransient})
package retry
