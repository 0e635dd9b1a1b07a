package engine

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/petrijr/docflow/internal/persistence"
	"github.com/petrijr/docflow/pkg/api"
)

func newSQLiteStore(t *testing.T) persistence.HistoryStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	store, err := persistence.NewSQLiteHistoryStore(db)
	if err != nil {
		t.Fatalf("NewSQLiteHistoryStore failed: %v", err)
	}
	return store
}

func TestSQLiteEngineSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	n := newRecordingNotifier()
	first := newTestEngine(t, testOptions{store: store, notifier: n})
	inst := mustStart(t, first)
	deliverFeedback(t, first, inst.ID, api.SignalBackgroundCheckFeedback, api.SignalInterviewFeedback, api.SignalContractFeedback)

	second := newTestEngine(t, testOptions{store: store, notifier: n})
	if _, err := second.Recover(ctx); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}

	got, err := second.GetInstance(ctx, inst.ID)
	if err != nil {
		t.Fatalf("GetInstance failed: %v", err)
	}
	if got.Status != api.StatusAwaitingSubmission {
		t.Fatalf("expected %q, got %q", api.StatusAwaitingSubmission, got.Status)
	}

	res := mustSignal(t, second, inst.ID, api.SignalSubmissionApproval, true)
	if res.Instance.State != api.StateCompleted || res.Instance.Output != "Submitted: True" {
		t.Fatalf("unexpected outcome %s %q", res.Instance.State, res.Instance.Output)
	}
	if n.total() != 1 {
		t.Fatalf("expected one dispatch across restart, got %d", n.total())
	}
}

func TestNewSQLiteEngine(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	defer db.Close()

	e, err := NewSQLiteEngine(db)
	if err != nil {
		t.Fatalf("NewSQLiteEngine failed: %v", err)
	}
	inst, err := e.Start(context.Background(), offerLetter())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if inst.Status != api.StatusWaitingForFeedback {
		t.Fatalf("unexpected status %q", inst.Status)
	}
}
