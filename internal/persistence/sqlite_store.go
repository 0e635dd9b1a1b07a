package persistence

import (
	"database/sql"
	"strings"
)

// SQLiteHistoryStore is a HistoryStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteHistoryStore struct {
	*sqlHistoryStore
}

// Ensure SQLiteHistoryStore implements HistoryStore.
var _ HistoryStore = (*SQLiteHistoryStore)(nil)

// NewSQLiteHistoryStore initializes the required schema in the given
// database and returns a new SQLiteHistoryStore.
func NewSQLiteHistoryStore(db *sql.DB) (*SQLiteHistoryStore, error) {
	inner, err := newSQLHistoryStore(db, sqlDialect{
		name: "sqlite",
		schema: `
			CREATE TABLE IF NOT EXISTS history (
				instance_id TEXT NOT NULL,
				seq INTEGER NOT NULL,
				kind TEXT NOT NULL,
				name TEXT NOT NULL DEFAULT '',
				recorded_at INTEGER NOT NULL,
				payload BLOB,
				PRIMARY KEY (instance_id, seq)
			);`,
		placeholder: func(int) string { return "?" },
		isUniqueViolation: func(err error) bool {
			return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
				strings.Contains(err.Error(), "constraint failed: UNIQUE")
		},
	})
	if err != nil {
		return nil, err
	}
	return &SQLiteHistoryStore{sqlHistoryStore: inner}, nil
}
