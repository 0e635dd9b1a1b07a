package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/petrijr/docflow/pkg/api"
)

// ErrAlreadyDispatched is returned by Invoke when the history already
// records a completed activity.
var ErrAlreadyDispatched = errors.New("activity already completed")

// Outcome classifies a dispatch.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRetryableFailure
	OutcomeFatalFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "Success"
	case OutcomeRetryableFailure:
		return "RetryableFailure"
	case OutcomeFatalFailure:
		return "FatalFailure"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// DispatchResult describes a finished dispatch. RetryableFailure means
// retries were exhausted.
type DispatchResult struct {
	Outcome      Outcome
	Acknowledged bool
	Attempts     int
	Err          error
}

// Dispatcher runs the submission activity with retries.
type Dispatcher struct {
	notifier api.Notifier
	policy   api.RetryPolicy
	observer api.Observer
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewDispatcher creates a Dispatcher. A nil observer is replaced with
// api.NoopObserver.
func NewDispatcher(n api.Notifier, policy api.RetryPolicy, obs api.Observer) *Dispatcher {
	if obs == nil {
		obs = api.NoopObserver{}
	}
	return &Dispatcher{
		notifier: n,
		policy:   policy,
		observer: obs,
		sleep:    sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Invoke calls the notifier with doc unless history already holds an
// ActivityCompleted entry. The returned error is non-nil only when the
// dispatch did not reach an outcome: it was refused or ctx ended.
func (d *Dispatcher) Invoke(ctx context.Context, instanceID string, history []api.HistoryEntry, doc api.WorkDocument) (DispatchResult, error) {
	for _, e := range history {
		if e.Kind == api.EntryActivityCompleted {
			return DispatchResult{}, fmt.Errorf("%w: instance %s", ErrAlreadyDispatched, instanceID)
		}
	}

	maxAttempts := d.policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	backoff := d.policy.InitialBackoff
	maxBackoff := d.policy.MaxBackoff
	multiplier := d.policy.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}

	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return DispatchResult{Attempts: attempt - 1}, err
		}

		start := time.Now()
		ack, err := d.notifier.Notify(ctx, instanceID, doc)
		d.observer.OnDispatchAttempt(ctx, instanceID, attempt, err, time.Since(start))

		if err == nil {
			return DispatchResult{Outcome: OutcomeSuccess, Acknowledged: ack, Attempts: attempt}, nil
		}
		if api.IsFatal(err) {
			return DispatchResult{Outcome: OutcomeFatalFailure, Attempts: attempt, Err: err}, nil
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}

		if backoff > 0 {
			delay := backoff
			if maxBackoff > 0 && delay > maxBackoff {
				delay = maxBackoff
			}
			if err := d.sleep(ctx, delay); err != nil {
				return DispatchResult{Attempts: attempt, Err: lastErr}, err
			}

			next := time.Duration(float64(backoff) * multiplier)
			if maxBackoff > 0 && next > maxBackoff {
				next = maxBackoff
			}
			backoff = next
		}
	}

	return DispatchResult{Outcome: OutcomeRetryableFailure, Attempts: maxAttempts, Err: lastErr}, nil
}
