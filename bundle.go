package docflow

import (
	"database/sql"

	"github.com/petrijr/docflow/internal/engine"
	"github.com/petrijr/docflow/internal/persistence"
	"github.com/petrijr/docflow/internal/taskqueue"
	workerpkg "github.com/petrijr/docflow/pkg/worker"
)

// WorkerBundle wires together an Engine, a durable task queue, and a Worker
// that consumes tasks from that queue.
type WorkerBundle struct {
	Engine Engine
	Worker *workerpkg.Worker

	queue taskqueue.Queue
}

// BundleOptions configures NewSQLiteBundle.
type BundleOptions struct {
	Worker   workerpkg.Config
	Notifier Notifier
	Observer Observer
	Retry    *RetryPolicy
}

// NewSQLiteBundle constructs a durable Engine + Queue + Worker combo sharing
// the same SQLite database. History logs and queued tasks are persisted
// in the provided *sql.DB.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:docflow.db?_pragma=journal_mode(WAL)")
//	bundle, err := docflow.NewSQLiteBundle(db, docflow.BundleOptions{})
//	inst, err := bundle.Worker.EnqueueStart(ctx, props)
func NewSQLiteBundle(db *sql.DB, opts BundleOptions) (*WorkerBundle, error) {
	store, err := persistence.NewSQLiteHistoryStore(db)
	if err != nil {
		return nil, err
	}
	eng := engine.NewEngineWithConfig(engine.Config{
		Store:    store,
		Notifier: opts.Notifier,
		Observer: opts.Observer,
		Retry:    opts.Retry,
		Logger:   opts.Worker.Logger,
	})

	q, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}

	return &WorkerBundle{
		Engine: eng,
		Worker: workerpkg.NewWithConfig(eng, q, opts.Worker),
		queue:  q,
	}, nil
}

// Pending returns the number of queued tasks.
func (b *WorkerBundle) Pending() int {
	return b.queue.Len()
}
