package docflow

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openSQLite(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// TestSQLiteBundle_SurvivesRestart runs half of an instance through one
// bundle, reopens the database and finishes it through a second bundle.
func TestSQLiteBundle_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "docflow.db")

	calls := 0
	notifier := NotifierFunc(func(context.Context, string, WorkDocument) (bool, error) {
		calls++
		return true, nil
	})

	db := openSQLite(t, path)
	bundle, err := NewSQLiteBundle(db, BundleOptions{Worker: quietConfig(), Notifier: notifier})
	require.NoError(t, err)

	inst, err := bundle.Worker.EnqueueStart(ctx, testProperties())
	require.NoError(t, err)
	require.Equal(t, 1, bundle.Pending())

	processed, err := bundle.Worker.ProcessOne(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	fb := Feedback{Feedback: "ok", Passed: true}
	require.NoError(t, bundle.Worker.EnqueueSignal(ctx, inst.ID, SignalInterviewFeedback, fb))
	require.NoError(t, bundle.Worker.EnqueueSignal(ctx, inst.ID, SignalContractFeedback, fb))
	require.NoError(t, db.Close())

	// Second process: the queued signals and the history survive.
	db2 := openSQLite(t, path)
	restarted, err := NewSQLiteBundle(db2, BundleOptions{Worker: quietConfig(), Notifier: notifier})
	require.NoError(t, err)

	resumed, err := Recover(ctx, restarted.Engine)
	require.NoError(t, err)
	require.Equal(t, 1, resumed)
	require.Equal(t, 2, restarted.Pending())

	for i := 0; i < 2; i++ {
		processed, err := restarted.Worker.ProcessOne(ctx)
		require.NoError(t, err)
		require.True(t, processed)
	}

	_, err = SendFeedback(ctx, restarted.Engine, inst.ID, SignalBackgroundCheckFeedback, fb)
	require.NoError(t, err)
	res, err := Approve(ctx, restarted.Engine, inst.ID, true)
	require.NoError(t, err)

	require.Equal(t, StateCompleted, res.Instance.State)
	require.Equal(t, "Submitted: True", res.Instance.Output)
	require.Equal(t, 1, calls, "submission must run exactly once")
}
