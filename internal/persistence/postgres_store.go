package persistence

import (
	"database/sql"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresHistoryStore is a HistoryStore backed by PostgreSQL.
//
// It expects an *sql.DB that uses the pgx stdlib driver. The caller is
// responsible for:
//   - importing the driver for its side effects, e.g.:
//     _ "github.com/jackc/pgx/v5/stdlib"
//   - providing a DSN via sql.Open("pgx", dsn).
type PostgresHistoryStore struct {
	*sqlHistoryStore
}

// Ensure PostgresHistoryStore implements HistoryStore.
var _ HistoryStore = (*PostgresHistoryStore)(nil)

const pgUniqueViolation = "23505"

// NewPostgresHistoryStore initializes the required schema in the given
// database and returns a new PostgresHistoryStore.
func NewPostgresHistoryStore(db *sql.DB) (*PostgresHistoryStore, error) {
	inner, err := newSQLHistoryStore(db, sqlDialect{
		name: "postgres",
		schema: `
			CREATE TABLE IF NOT EXISTS history (
				instance_id TEXT NOT NULL,
				seq BIGINT NOT NULL,
				kind TEXT NOT NULL,
				name TEXT NOT NULL DEFAULT '',
				recorded_at BIGINT NOT NULL,
				payload BYTEA,
				PRIMARY KEY (instance_id, seq)
			);`,
		placeholder: postgresPlaceholder,
		isUniqueViolation: func(err error) bool {
			var pgErr *pgconn.PgError
			return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
		},
	})
	if err != nil {
		return nil, err
	}
	return &PostgresHistoryStore{sqlHistoryStore: inner}, nil
}

// postgresPlaceholder renders $n bind parameters.
func postgresPlaceholder(n int) string {
	return "$" + strconv.Itoa(n)
}
