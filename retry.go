package docflow

import (
	"time"

	"github.com/petrijr/docflow/pkg/api"
)

// RetryBuilder builds the RetryPolicy the engine applies when the Notifier
// fails to hand a work document to the approver.
//
// Submission retries run inside the call that delivered the last feedback
// signal, with the instance locked. Keep MaxWait short; use the worker's
// task retries for longer outages.
type RetryBuilder struct {
	policy RetryPolicy
}

// Retry starts from the default submission policy (100ms doubling up to 2s)
// with maxAttempts notifier calls in total.
//
// maxAttempts <= 0 is treated as 1 (no retries).
func Retry(maxAttempts int) RetryBuilder {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	p := api.DefaultRetryPolicy()
	p.MaxAttempts = maxAttempts
	return RetryBuilder{policy: p}
}

// NoRetry fails the instance on the first notifier error.
func NoRetry() RetryBuilder {
	return Retry(1)
}

// WithExponentialBackoff configures exponential backoff:
//
//   - initial is the delay before the first retry.
//   - multiplier > 1 grows the delay each attempt (default 2.0 if <= 0).
//   - max caps the delay; if <= 0 the current cap is kept.
//
// Example:
//
//	Retry(5).WithExponentialBackoff(200*time.Millisecond, 2.0, 5*time.Second)
func (r RetryBuilder) WithExponentialBackoff(initial time.Duration, multiplier float64, max time.Duration) RetryBuilder {
	p := r.policy
	p.InitialBackoff = initial
	if max > 0 {
		p.MaxBackoff = max
	}
	if multiplier <= 0 {
		multiplier = 2.0
	}
	p.BackoffMultiplier = multiplier
	return RetryBuilder{policy: p}
}

// WithConstantBackoff waits delay between every notifier call.
func (r RetryBuilder) WithConstantBackoff(delay time.Duration) RetryBuilder {
	p := r.policy
	p.InitialBackoff = delay
	p.MaxBackoff = 0
	p.BackoffMultiplier = 1.0
	return RetryBuilder{policy: p}
}

// Immediate retries the notifier back to back. Useful in tests and for
// notifiers that fail fast on transient errors.
func (r RetryBuilder) Immediate() RetryBuilder {
	p := r.policy
	p.InitialBackoff = 0
	p.MaxBackoff = 0
	p.BackoffMultiplier = 0
	return RetryBuilder{policy: p}
}

// MaxWait is the longest time the policy sleeps between notifier calls
// before the instance fails, not counting the calls themselves.
func (r RetryBuilder) MaxWait() time.Duration {
	p := r.policy
	multiplier := p.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}

	var total time.Duration
	backoff := p.InitialBackoff
	for retry := 1; retry < p.MaxAttempts && backoff > 0; retry++ {
		delay := backoff
		if p.MaxBackoff > 0 && delay > p.MaxBackoff {
			delay = p.MaxBackoff
		}
		total += delay

		backoff = time.Duration(float64(backoff) * multiplier)
		if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
		}
	}
	return total
}

// Policy returns the underlying RetryPolicy, ready for engine.Config.Retry
// or BundleOptions.Retry.
func (r RetryBuilder) Policy() RetryPolicy {
	return r.policy
}
