package engine

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/petrijr/docflow/internal/persistence"
	"github.com/petrijr/docflow/pkg/api"
)

type shape struct {
	Kind    api.EntryKind
	Name    string
	Payload string
}

func shapes(t *testing.T, history []api.HistoryEntry) []shape {
	t.Helper()
	out := make([]shape, len(history))
	for i, e := range history {
		var compact strings.Builder
		if len(e.Payload) > 0 {
			var v any
			if err := json.Unmarshal(e.Payload, &v); err != nil {
				t.Fatalf("entry %s has invalid payload: %v", e, err)
			}
			b, _ := json.Marshal(v)
			compact.Write(b)
		}
		out[i] = shape{Kind: e.Kind, Name: e.Name, Payload: compact.String()}
	}
	return out
}

// completeRun drives one instance through a fixed signal sequence and
// returns its history.
func completeRun(t *testing.T) (string, []api.HistoryEntry) {
	t.Helper()
	e := newTestEngine(t, testOptions{})
	inst := mustStart(t, e)
	mustSignal(t, e, inst.ID, api.SignalContractFeedback, contractFB)
	mustSignal(t, e, inst.ID, api.SignalSubmissionApproval, true)
	mustSignal(t, e, inst.ID, api.SignalInterviewFeedback, interviewFB)
	mustSignal(t, e, inst.ID, api.SignalBackgroundCheckFeedback, backgroundFB)
	return inst.ID, mustHistory(t, e, inst.ID)
}

func TestReplayFromEveryPrefix(t *testing.T) {
	ctx := context.Background()
	id, full := completeRun(t)
	want := shapes(t, full)

	if full[len(full)-1].Kind != api.EntryOutputSet {
		t.Fatalf("reference run did not complete: %s", full[len(full)-1])
	}

	for k := 1; k <= len(full); k++ {
		prefix := full[:k]

		store := persistence.NewInMemoryStore()
		if err := store.Append(ctx, id, prefix...); err != nil {
			t.Fatalf("prefix %d: seed failed: %v", k, err)
		}
		n := newRecordingNotifier()
		e := newTestEngine(t, testOptions{store: store, notifier: n})

		inst, err := e.Resume(ctx, id)
		if err != nil {
			t.Fatalf("prefix %d: Resume failed: %v", k, err)
		}

		for _, entry := range full[k:] {
			if entry.Kind != api.EntrySignalReceived {
				continue
			}
			res := mustSignal(t, e, id, api.SignalName(entry.Name), json.RawMessage(entry.Payload))
			if res.Delivery != api.DeliveryAccepted {
				t.Fatalf("prefix %d: %s not accepted", k, entry.Name)
			}
			inst = res.Instance
		}

		if inst.State != api.StateCompleted || inst.Output != "Submitted: True" {
			t.Fatalf("prefix %d: ended %s with %q", k, inst.State, inst.Output)
		}

		got := shapes(t, mustHistory(t, e, id))
		if len(got) != len(want) {
			t.Fatalf("prefix %d: history has %d entries, want %d", k, len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("prefix %d: entry %d is %+v, want %+v", k, i+1, got[i], want[i])
			}
		}

		dispatchedInPrefix := countKind(prefix, api.EntryActivityCompleted) > 0
		if dispatchedInPrefix && n.total() != 0 {
			t.Fatalf("prefix %d: recorded activity was dispatched again", k)
		}
		if !dispatchedInPrefix && n.total() != 1 {
			t.Fatalf("prefix %d: expected one dispatch, got %d", k, n.total())
		}
	}
}

func TestDispatchAtMostOnceAcrossResumes(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewInMemoryStore()
	n := newRecordingNotifier()
	e := newTestEngine(t, testOptions{store: store, notifier: n})

	inst := mustStart(t, e)
	deliverFeedback(t, e, inst.ID, api.SignalInterviewFeedback, api.SignalBackgroundCheckFeedback, api.SignalContractFeedback)

	for i := 0; i < 5; i++ {
		if _, err := e.Resume(ctx, inst.ID); err != nil {
			t.Fatalf("Resume %d failed: %v", i, err)
		}
	}

	// A second process over the same store starts with an empty table.
	other := newTestEngine(t, testOptions{store: store, notifier: n})
	got, err := other.Resume(ctx, inst.ID)
	if err != nil {
		t.Fatalf("Resume on fresh engine failed: %v", err)
	}
	if got.Status != api.StatusAwaitingSubmission {
		t.Fatalf("expected %q, got %q", api.StatusAwaitingSubmission, got.Status)
	}

	if n.total() != 1 {
		t.Fatalf("expected exactly one dispatch, got %d", n.total())
	}
	history := mustHistory(t, e, inst.ID)
	if c := countKind(history, api.EntryActivityCompleted); c != 1 {
		t.Fatalf("expected one ActivityCompleted, got %d", c)
	}
	if c := countKind(history, api.EntryStatusChanged); c != 5 {
		t.Fatalf("resumes appended statuses: %d StatusChanged entries", c)
	}
}

func TestResumeFinishedInstanceIsStable(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, testOptions{})
	inst := mustStart(t, e)
	deliverFeedback(t, e, inst.ID, api.SignalInterviewFeedback, api.SignalBackgroundCheckFeedback, api.SignalContractFeedback)
	mustSignal(t, e, inst.ID, api.SignalSubmissionApproval, false)
	before := len(mustHistory(t, e, inst.ID))

	got, err := e.Resume(ctx, inst.ID)
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if got.State != api.StateCompleted || got.Output != "Submitted: False" {
		t.Fatalf("unexpected outcome %s %q", got.State, got.Output)
	}
	if after := len(mustHistory(t, e, inst.ID)); after != before {
		t.Fatalf("resume of finished instance appended history")
	}
}

func seedHistory(t *testing.T, store persistence.HistoryStore, id string, entries ...api.HistoryEntry) {
	t.Helper()
	for i := range entries {
		entries[i].Sequence = int64(i + 1)
		entries[i].RecordedAt = t0
	}
	if err := store.Append(context.Background(), id, entries...); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

func entry(t *testing.T, kind api.EntryKind, name string, v any) api.HistoryEntry {
	t.Helper()
	e, err := api.NewEntry(0, kind, name, v, t0)
	if err != nil {
		t.Fatalf("NewEntry failed: %v", err)
	}
	return e
}

func TestReplayInconsistencyFailsInstance(t *testing.T) {
	cases := []struct {
		name    string
		entries func(t *testing.T) []api.HistoryEntry
	}{
		{
			name: "unknown entry kind",
			entries: func(t *testing.T) []api.HistoryEntry {
				return []api.HistoryEntry{
					entry(t, api.EntryInputRecorded, "", offerLetter()),
					entry(t, api.EntryStatusChanged, "", api.StatusWaitingForFeedback),
					entry(t, api.EntryKind("ChildWorkflowStarted"), "", nil),
				}
			},
		},
		{
			name: "unexpected status",
			entries: func(t *testing.T) []api.HistoryEntry {
				return []api.HistoryEntry{
					entry(t, api.EntryInputRecorded, "", offerLetter()),
					entry(t, api.EntryStatusChanged, "", "Validating document"),
				}
			},
		},
		{
			name: "status for a signal never received",
			entries: func(t *testing.T) []api.HistoryEntry {
				return []api.HistoryEntry{
					entry(t, api.EntryInputRecorded, "", offerLetter()),
					entry(t, api.EntryStatusChanged, "", api.StatusWaitingForFeedback),
					entry(t, api.EntrySignalReceived, string(api.SignalInterviewFeedback), interviewFB),
					entry(t, api.EntryStatusChanged, "", api.StatusContractCollected),
				}
			},
		},
		{
			name: "activity recorded before fan-in",
			entries: func(t *testing.T) []api.HistoryEntry {
				return []api.HistoryEntry{
					entry(t, api.EntryInputRecorded, "", offerLetter()),
					entry(t, api.EntryStatusChanged, "", api.StatusWaitingForFeedback),
					entry(t, api.EntryActivityCompleted, "", api.ActivityResult{Acknowledged: true, Attempts: 1}),
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			store := persistence.NewInMemoryStore()
			seeded := tc.entries(t)
			seedHistory(t, store, "bad", seeded...)

			n := newRecordingNotifier()
			e := newTestEngine(t, testOptions{store: store, notifier: n})

			inst, err := e.Resume(ctx, "bad")
			if err != nil {
				t.Fatalf("Resume failed: %v", err)
			}
			if inst.State != api.StateFailed {
				t.Fatalf("expected failed, got %s", inst.State)
			}
			if !strings.HasPrefix(inst.Failure, "replay: ") {
				t.Fatalf("expected replay diagnostic, got %q", inst.Failure)
			}
			if n.total() != 0 {
				t.Fatalf("inconsistent history must not dispatch")
			}

			history := mustHistory(t, e, "bad")
			if len(history) != len(seeded)+1 {
				t.Fatalf("expected only the failure appended, got %d entries", len(history))
			}
			if last := history[len(history)-1]; last.Kind != api.EntryInstanceFailed {
				t.Fatalf("expected InstanceFailed, got %s", last)
			}

			// The failure is final.
			res := mustSignal(t, e, "bad", api.SignalContractFeedback, contractFB)
			if res.Delivery != api.DeliveryAlreadySatisfied {
				t.Fatalf("expected signal to failed instance to be ignored, got %s", res.Delivery)
			}
		})
	}
}
