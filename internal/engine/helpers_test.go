package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/petrijr/docflow/internal/persistence"
	"github.com/petrijr/docflow/pkg/api"
)

var t0 = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// recordingNotifier counts calls and can fail the first calls with errs.
type recordingNotifier struct {
	mu    sync.Mutex
	calls map[string]int
	docs  []api.WorkDocument
	errs  []error
}

func newRecordingNotifier(errs ...error) *recordingNotifier {
	return &recordingNotifier{calls: make(map[string]int), errs: errs}
}

func (n *recordingNotifier) Notify(ctx context.Context, id string, doc api.WorkDocument) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls[id]++
	n.docs = append(n.docs, doc)
	if len(n.errs) > 0 {
		err := n.errs[0]
		n.errs = n.errs[1:]
		if err != nil {
			return false, err
		}
	}
	return true, nil
}

func (n *recordingNotifier) total() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	sum := 0
	for _, c := range n.calls {
		sum += c
	}
	return sum
}

func (n *recordingNotifier) lastDoc() api.WorkDocument {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.docs[len(n.docs)-1]
}

type testOptions struct {
	store    persistence.HistoryStore
	notifier api.Notifier
	observer api.Observer
	clock    *fakeClock
	retry    *api.RetryPolicy
}

func newTestEngine(t *testing.T, opts testOptions) *engineImpl {
	t.Helper()
	if opts.notifier == nil {
		opts.notifier = newRecordingNotifier()
	}
	if opts.clock == nil {
		opts.clock = newFakeClock(t0)
	}
	if opts.retry == nil {
		opts.retry = &api.RetryPolicy{MaxAttempts: 3}
	}
	return newEngine(Config{
		Store:    opts.store,
		Notifier: opts.notifier,
		Observer: opts.observer,
		Retry:    opts.retry,
		Clock:    opts.clock.Now,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func offerLetter() api.DocumentProperties {
	return api.DocumentProperties{
		Title:         "Offer Letter",
		CreatedDate:   t0,
		Creator:       "alice",
		ApplicationID: "A1",
	}
}

var (
	interviewFB  = api.Feedback{Feedback: "great fit", Passed: true}
	contractFB   = api.Feedback{Feedback: "terms ok", Passed: true}
	backgroundFB = api.Feedback{Feedback: "clear", Passed: true}
)

func feedbackFor(name api.SignalName) api.Feedback {
	switch name {
	case api.SignalInterviewFeedback:
		return interviewFB
	case api.SignalContractFeedback:
		return contractFB
	default:
		return backgroundFB
	}
}

func mustStart(t *testing.T, e *engineImpl) *api.Instance {
	t.Helper()
	inst, err := e.Start(context.Background(), offerLetter())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return inst
}

func mustSignal(t *testing.T, e *engineImpl, id string, name api.SignalName, payload any) *api.SignalResult {
	t.Helper()
	res, err := e.Signal(context.Background(), id, name, payload)
	if err != nil {
		t.Fatalf("Signal %s failed: %v", name, err)
	}
	return res
}

func deliverFeedback(t *testing.T, e *engineImpl, id string, order ...api.SignalName) *api.Instance {
	t.Helper()
	var inst *api.Instance
	for _, name := range order {
		res := mustSignal(t, e, id, name, feedbackFor(name))
		if res.Delivery != api.DeliveryAccepted {
			t.Fatalf("expected %s to be accepted, got %s", name, res.Delivery)
		}
		inst = res.Instance
	}
	return inst
}

func mustHistory(t *testing.T, e *engineImpl, id string) []api.HistoryEntry {
	t.Helper()
	h, err := e.History(context.Background(), id)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	return h
}

func statuses(history []api.HistoryEntry) []string {
	var out []string
	for _, e := range history {
		if e.Kind == api.EntryStatusChanged {
			s, _ := api.DecodePayload[string](e)
			out = append(out, s)
		}
	}
	return out
}

func countKind(history []api.HistoryEntry, kind api.EntryKind) int {
	n := 0
	for _, e := range history {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
