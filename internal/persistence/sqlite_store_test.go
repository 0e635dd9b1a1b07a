package persistence

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestSQLiteStore(t *testing.T) HistoryStore {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// A single connection keeps every query on the same in-memory database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = db.Close()
	})

	store, err := NewSQLiteHistoryStore(db)
	require.NoError(t, err)
	return store
}

func TestSQLiteHistoryStore(t *testing.T) {
	runHistoryStoreContract(t, newTestSQLiteStore)
}

func TestSQLiteHistoryStore_SchemaIsIdempotent(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = NewSQLiteHistoryStore(db)
	require.NoError(t, err)
	_, err = NewSQLiteHistoryStore(db)
	require.NoError(t, err)
}
