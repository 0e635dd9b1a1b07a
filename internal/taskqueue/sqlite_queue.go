package taskqueue

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"
)

// SQLiteQueue is a persistent task queue implementation backed by SQLite.
// Tasks are claimed in due order, then by insertion order.
type SQLiteQueue struct {
	db           *sql.DB
	pollInterval time.Duration
}

// NewSQLiteQueue initializes the tasks table in the given DB and returns a new queue.
func NewSQLiteQueue(db *sql.DB) (*SQLiteQueue, error) {
	q := &SQLiteQueue{
		db:           db,
		pollInterval: 20 * time.Millisecond,
	}
	if err := q.initSchema(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *SQLiteQueue) initSchema() error {
	_, err := q.db.Exec(`
		CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			instance_id TEXT NOT NULL,
			signal_name TEXT,
			phase TEXT,
			data BLOB,
			enqueued_at INTEGER NOT NULL,
			not_before INTEGER NOT NULL,
			attempts INTEGER NOT NULL
		);
	`)
	return err
}

// Ensure SQLiteQueue implements Queue.
var _ Queue = (*SQLiteQueue)(nil)

func (q *SQLiteQueue) Enqueue(ctx context.Context, t Task) error {
	enqueuedAt := time.Now().UnixNano()
	notBefore := enqueuedAt
	if !t.NotBefore.IsZero() {
		notBefore = t.NotBefore.UnixNano()
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO tasks (type, instance_id, signal_name, phase, data, enqueued_at, not_before, attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(t.Type),
		t.InstanceID,
		t.SignalName,
		t.Phase,
		t.Data,
		enqueuedAt,
		notBefore,
		t.Attempts,
	)
	return err
}

func (q *SQLiteQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		task, err := q.claim(ctx)
		if err == nil {
			return task, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		// Nothing available: sleep a bit and retry.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.pollInterval):
		}
	}
}

func (q *SQLiteQueue) claim(ctx context.Context) (*Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		id         int64
		typeStr    string
		instanceID string
		signalName sql.NullString
		phase      sql.NullString
		data       []byte
		enqueuedAt int64
		notBefore  int64
		attempts   int
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, type, instance_id, signal_name, phase, data, enqueued_at, not_before, attempts
		FROM tasks
		WHERE not_before <= ?
		ORDER BY not_before, id
		LIMIT 1`, time.Now().UnixNano()).
		Scan(&id, &typeStr, &instanceID, &signalName, &phase, &data, &enqueuedAt, &notBefore, &attempts)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &Task{
		ID:         strconv.FormatInt(id, 10),
		Type:       TaskType(typeStr),
		InstanceID: instanceID,
		SignalName: signalName.String,
		Phase:      phase.String,
		Data:       data,
		EnqueuedAt: time.Unix(0, enqueuedAt),
		NotBefore:  time.Unix(0, notBefore),
		Attempts:   attempts,
	}, nil
}

func (q *SQLiteQueue) Len() int {
	var n int
	err := q.db.QueryRow(`SELECT COUNT(*) FROM tasks`).Scan(&n)
	if err != nil {
		return 0
	}
	return n
}
