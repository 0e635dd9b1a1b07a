package api

import (
	"context"
	"errors"
	"time"
)

// Notifier informs the downstream approver about a completed work document.
// It is the side effect performed by the submission activity.
//
// Errors are retried according to the engine's RetryPolicy unless wrapped
// with Fatal.
type Notifier interface {
	Notify(ctx context.Context, instanceID string, doc WorkDocument) (bool, error)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, instanceID string, doc WorkDocument) (bool, error)

func (f NotifierFunc) Notify(ctx context.Context, instanceID string, doc WorkDocument) (bool, error) {
	return f(ctx, instanceID, doc)
}

// RetryPolicy controls how the submission activity is retried when the
// notifier returns a retryable error. MaxAttempts includes the first attempt:
//
//	MaxAttempts = 1 => no retries (just the initial call)
//	MaxAttempts = 3 => initial call + up to 2 retries
type RetryPolicy struct {
	MaxAttempts int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// BackoffMultiplier grows the delay after each retry (default 2.0).
	BackoffMultiplier float64

	// MaxBackoff caps the delay; zero means no cap.
	MaxBackoff time.Duration
}

// DefaultRetryPolicy retries twice with a short exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    100 * time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        2 * time.Second,
	}
}

type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return "fatal: " + e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal marks err as non-retryable. A notifier returning a fatal error
// fails the instance immediately.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsFatal reports whether err was marked with Fatal.
func IsFatal(err error) bool {
	var f *fatalError
	return errors.As(err, &f)
}
