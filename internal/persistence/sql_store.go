package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/petrijr/docflow/pkg/api"
)

// sqlDialect captures the few differences between the SQL backends.
type sqlDialect struct {
	name   string
	schema string

	// placeholder returns the n-th (1-based) bind parameter.
	placeholder func(n int) string

	// isUniqueViolation reports whether err is a primary key collision.
	isUniqueViolation func(err error) bool
}

// sqlHistoryStore implements HistoryStore on top of database/sql.
// One row per history entry, keyed by (instance_id, seq).
type sqlHistoryStore struct {
	db      *sql.DB
	dialect sqlDialect
}

func newSQLHistoryStore(db *sql.DB, d sqlDialect) (*sqlHistoryStore, error) {
	s := &sqlHistoryStore{db: db, dialect: d}
	if _, err := db.Exec(d.schema); err != nil {
		return nil, fmt.Errorf("%s: init schema: %w", d.name, err)
	}
	return s, nil
}

func (s *sqlHistoryStore) Append(ctx context.Context, instanceID string, entries ...api.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var last sql.NullInt64
	row := tx.QueryRowContext(ctx,
		`SELECT MAX(seq) FROM history WHERE instance_id = `+s.dialect.placeholder(1), instanceID)
	if err := row.Scan(&last); err != nil {
		return err
	}
	if err := checkContiguous(instanceID, last.Int64, entries); err != nil {
		return err
	}

	p := s.dialect.placeholder
	insert := fmt.Sprintf(`
		INSERT INTO history (instance_id, seq, kind, name, recorded_at, payload)
		VALUES (%s, %s, %s, %s, %s, %s)`, p(1), p(2), p(3), p(4), p(5), p(6))

	for _, e := range entries {
		_, err := tx.ExecContext(ctx, insert,
			instanceID,
			e.Sequence,
			string(e.Kind),
			e.Name,
			e.RecordedAt.UnixNano(),
			[]byte(e.Payload),
		)
		if err != nil {
			if s.dialect.isUniqueViolation(err) {
				return fmt.Errorf("%w: instance %s sequence %d already stored", api.ErrSequenceConflict, instanceID, e.Sequence)
			}
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		if s.dialect.isUniqueViolation(err) {
			return fmt.Errorf("%w: instance %s", api.ErrSequenceConflict, instanceID)
		}
		return err
	}
	return nil
}

func (s *sqlHistoryStore) Load(ctx context.Context, instanceID string) ([]api.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, kind, name, recorded_at, payload
		FROM history
		WHERE instance_id = `+s.dialect.placeholder(1)+`
		ORDER BY seq ASC`, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.HistoryEntry
	for rows.Next() {
		var (
			e       api.HistoryEntry
			kind    string
			atNanos int64
			payload []byte
		)
		if err := rows.Scan(&e.Sequence, &kind, &e.Name, &atNanos, &payload); err != nil {
			return nil, err
		}
		e.Kind = api.EntryKind(kind)
		e.RecordedAt = time.Unix(0, atNanos).UTC()
		if len(payload) > 0 {
			e.Payload = payload
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, api.ErrInstanceNotFound
	}
	return out, nil
}

func (s *sqlHistoryStore) InstanceIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT instance_id FROM history ORDER BY instance_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
