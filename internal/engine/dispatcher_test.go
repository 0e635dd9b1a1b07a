package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/petrijr/docflow/pkg/api"
)

var errUnavailable = errors.New("approver unavailable")

func TestDispatcherRetriesWithBackoff(t *testing.T) {
	n := newRecordingNotifier(errUnavailable, errUnavailable, errUnavailable)
	d := NewDispatcher(n, api.RetryPolicy{
		MaxAttempts:       4,
		InitialBackoff:    10 * time.Millisecond,
		BackoffMultiplier: 2,
		MaxBackoff:        25 * time.Millisecond,
	}, nil)

	var delays []time.Duration
	d.sleep = func(ctx context.Context, delay time.Duration) error {
		delays = append(delays, delay)
		return nil
	}

	res, err := d.Invoke(context.Background(), "i-1", nil, api.WorkDocument{})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if res.Outcome != OutcomeSuccess || res.Attempts != 4 || !res.Acknowledged {
		t.Fatalf("unexpected result %+v", res)
	}

	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 25 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("expected delays %v, got %v", want, delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("expected delays %v, got %v", want, delays)
		}
	}
}

func TestDispatcherExhaustsRetries(t *testing.T) {
	n := newRecordingNotifier(errUnavailable, errUnavailable)
	d := NewDispatcher(n, api.RetryPolicy{MaxAttempts: 2}, nil)

	res, err := d.Invoke(context.Background(), "i-1", nil, api.WorkDocument{})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if res.Outcome != OutcomeRetryableFailure || res.Attempts != 2 || !errors.Is(res.Err, errUnavailable) {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestDispatcherStopsOnFatal(t *testing.T) {
	n := newRecordingNotifier(api.Fatal(errors.New("document rejected")))
	d := NewDispatcher(n, api.RetryPolicy{MaxAttempts: 5}, nil)

	res, err := d.Invoke(context.Background(), "i-1", nil, api.WorkDocument{})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if res.Outcome != OutcomeFatalFailure || res.Attempts != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if n.total() != 1 {
		t.Fatalf("fatal error must not be retried, got %d calls", n.total())
	}
}

func TestDispatcherRefusesRecordedActivity(t *testing.T) {
	n := newRecordingNotifier()
	d := NewDispatcher(n, api.DefaultRetryPolicy(), nil)

	history := []api.HistoryEntry{
		{Sequence: 1, Kind: api.EntryInputRecorded},
		{Sequence: 2, Kind: api.EntryActivityCompleted},
	}
	_, err := d.Invoke(context.Background(), "i-1", history, api.WorkDocument{})
	if !errors.Is(err, ErrAlreadyDispatched) {
		t.Fatalf("expected ErrAlreadyDispatched, got %v", err)
	}
	if n.total() != 0 {
		t.Fatalf("notifier called despite recorded activity")
	}
}

func TestDispatcherHonoursContext(t *testing.T) {
	n := newRecordingNotifier(errUnavailable)
	d := NewDispatcher(n, api.RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Hour}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := d.Invoke(ctx, "i-1", nil, api.WorkDocument{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestRetryableDispatchRecordsAttempts(t *testing.T) {
	n := newRecordingNotifier(errUnavailable, errUnavailable)
	e := newTestEngine(t, testOptions{notifier: n})
	inst := mustStart(t, e)
	got := deliverFeedback(t, e, inst.ID, api.SignalInterviewFeedback, api.SignalContractFeedback, api.SignalBackgroundCheckFeedback)

	if got.State != api.StateRunning || got.Status != api.StatusAwaitingSubmission {
		t.Fatalf("expected retries to succeed, got %s %q", got.State, got.Status)
	}

	for _, entry := range mustHistory(t, e, inst.ID) {
		if entry.Kind != api.EntryActivityCompleted {
			continue
		}
		res, err := api.DecodePayload[api.ActivityResult](entry)
		if err != nil {
			t.Fatalf("decode activity: %v", err)
		}
		if res.Attempts != 3 || !res.Acknowledged {
			t.Fatalf("unexpected activity result %+v", res)
		}
		return
	}
	t.Fatalf("no ActivityCompleted recorded")
}

func TestDispatchFailureFailsInstance(t *testing.T) {
	cases := []struct {
		name   string
		errs   []error
		calls  int
		reason string
	}{
		{"retries exhausted", []error{errUnavailable, errUnavailable, errUnavailable}, 3, "after 3 attempts"},
		{"fatal", []error{api.Fatal(errors.New("document rejected"))}, 1, "document rejected"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n := newRecordingNotifier(tc.errs...)
			e := newTestEngine(t, testOptions{notifier: n})
			inst := mustStart(t, e)
			got := deliverFeedback(t, e, inst.ID, api.SignalInterviewFeedback, api.SignalContractFeedback, api.SignalBackgroundCheckFeedback)

			if got.State != api.StateFailed {
				t.Fatalf("expected failed, got %s", got.State)
			}
			if !strings.Contains(got.Failure, tc.reason) {
				t.Fatalf("failure %q does not mention %q", got.Failure, tc.reason)
			}
			// The last recorded status survives the failure.
			if got.Status != api.StatusBackgroundCheckCollected {
				t.Fatalf("expected last status to remain, got %q", got.Status)
			}
			if n.total() != tc.calls {
				t.Fatalf("expected %d notifier calls, got %d", tc.calls, n.total())
			}

			res := mustSignal(t, e, inst.ID, api.SignalSubmissionApproval, true)
			if res.Delivery != api.DeliveryAlreadySatisfied || res.Instance.State != api.StateFailed {
				t.Fatalf("failed instance accepted approval: %s %s", res.Delivery, res.Instance.State)
			}
		})
	}
}
