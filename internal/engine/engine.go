package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petrijr/docflow/internal/correlation"
	"github.com/petrijr/docflow/internal/directory"
	"github.com/petrijr/docflow/internal/notify"
	"github.com/petrijr/docflow/internal/persistence"
	"github.com/petrijr/docflow/pkg/api"
)

// engineImpl is the replaying orchestration engine. All work on one
// instance is serialized by a per-instance lock.
type engineImpl struct {
	store      persistence.HistoryStore
	table      *correlation.Table
	dir        *directory.Directory
	dispatcher *Dispatcher
	observer   api.Observer
	logger     *slog.Logger
	clock      func() time.Time
	newID      func() string

	locks *instanceLocks
}

// Config describes how to construct an engine. Zero fields get defaults:
// an in-memory store, fresh table and directory, a logging notifier, the
// default retry policy and a no-op observer.
type Config struct {
	Store     persistence.HistoryStore
	Table     *correlation.Table
	Directory *directory.Directory
	Notifier  api.Notifier
	Retry     *api.RetryPolicy
	Observer  api.Observer
	Logger    *slog.Logger
	Clock     func() time.Time
	NewID     func() string
}

func NewInMemoryEngine() api.Engine {
	return NewEngine(persistence.NewInMemoryStore())
}

func NewSQLiteEngine(db *sql.DB) (api.Engine, error) {
	store, err := persistence.NewSQLiteHistoryStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngine(store), nil
}

func NewPostgresEngine(db *sql.DB) (api.Engine, error) {
	store, err := persistence.NewPostgresHistoryStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngine(store), nil
}

// NewRedisEngine creates an engine whose history lives in Redis under the
// default key prefix.
func NewRedisEngine(client *redis.Client) api.Engine {
	return NewEngine(persistence.NewRedisHistoryStore(client, ""))
}

// NewMongoEngine creates an engine storing history in the given database.
func NewMongoEngine(client *mongo.Client, database string) api.Engine {
	return NewEngine(persistence.NewMongoHistoryStore(client, database, ""))
}

// NewEngine returns an engine over store with default settings.
func NewEngine(store persistence.HistoryStore) api.Engine {
	return NewEngineWithConfig(Config{Store: store})
}

// NewEngineWithConfig creates a new Engine using the given configuration.
func NewEngineWithConfig(cfg Config) api.Engine {
	return newEngine(cfg)
}

func newEngine(cfg Config) *engineImpl {
	e := &engineImpl{
		store:    cfg.Store,
		table:    cfg.Table,
		dir:      cfg.Directory,
		observer: cfg.Observer,
		logger:   cfg.Logger,
		clock:    cfg.Clock,
		newID:    cfg.NewID,
		locks:    newInstanceLocks(),
	}
	if e.store == nil {
		e.store = persistence.NewInMemoryStore()
	}
	if e.table == nil {
		e.table = correlation.New()
	}
	if e.dir == nil {
		e.dir = directory.New()
	}
	if e.observer == nil {
		e.observer = api.NoopObserver{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}

	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier(e.logger)
	}
	policy := api.DefaultRetryPolicy()
	if cfg.Retry != nil {
		policy = *cfg.Retry
	}
	e.dispatcher = NewDispatcher(notifier, policy, e.observer)
	return e
}

func (e *engineImpl) Create(ctx context.Context, props api.DocumentProperties) (*api.Instance, error) {
	if err := props.Validate(); err != nil {
		return nil, err
	}

	id := e.newID()
	entry, err := api.NewEntry(1, api.EntryInputRecorded, "", props, e.clock())
	if err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(id)
	defer unlock()

	if err := e.store.Append(ctx, id, entry); err != nil {
		return nil, fmt.Errorf("record input of %s: %w", id, err)
	}

	inst, err := Project(id, []api.HistoryEntry{entry})
	if err != nil {
		return nil, err
	}
	e.table.Register(id)
	e.dir.Upsert(inst.Summary())
	e.observer.OnInstanceCreated(ctx, inst)
	return inst, nil
}

func (e *engineImpl) Start(ctx context.Context, props api.DocumentProperties) (*api.Instance, error) {
	inst, err := e.Create(ctx, props)
	if err != nil {
		return nil, err
	}
	return e.Resume(ctx, inst.ID)
}

func (e *engineImpl) Resume(ctx context.Context, id string) (*api.Instance, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	history, err := e.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	inst, _, err := e.drive(ctx, id, history)
	return inst, err
}

func (e *engineImpl) Signal(ctx context.Context, id string, name api.SignalName, payload any) (*api.SignalResult, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	history, err := e.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	raw, err := api.EncodeSignalPayload(name, payload)
	if err != nil {
		return nil, err
	}

	inst, history, err := e.drive(ctx, id, history)
	if err != nil {
		return nil, err
	}

	if inst.State.Terminal() {
		e.observer.OnSignalIgnored(ctx, id, name, "instance is "+string(inst.State))
		return &api.SignalResult{Delivery: api.DeliveryAlreadySatisfied, Instance: inst}, nil
	}

	switch e.table.Deliver(id, name, raw) {
	case correlation.Accepted:
	case correlation.AlreadySatisfied:
		e.observer.OnSignalIgnored(ctx, id, name, "duplicate signal")
		return &api.SignalResult{Delivery: api.DeliveryAlreadySatisfied, Instance: inst}, nil
	case correlation.UnknownSignal:
		return nil, fmt.Errorf("%w: %q", api.ErrUnknownSignal, name)
	default:
		return nil, fmt.Errorf("%w: %s", api.ErrInstanceNotFound, id)
	}

	entry, err := api.NewEntry(inst.LastSequence+1, api.EntrySignalReceived, string(name), raw, e.clock())
	if err != nil {
		e.table.Forget(id)
		return nil, err
	}
	if err := e.store.Append(ctx, id, entry); err != nil {
		e.table.Forget(id)
		return nil, fmt.Errorf("record signal %s for %s: %w", name, id, err)
	}
	e.observer.OnSignalReceived(ctx, inst, name)

	inst, _, err = e.drive(ctx, id, append(history, entry))
	if err != nil {
		return nil, err
	}
	return &api.SignalResult{Delivery: api.DeliveryAccepted, Instance: inst}, nil
}

func (e *engineImpl) Timeout(ctx context.Context, id string, phase api.Phase) (*api.Instance, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	history, err := e.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	inst, history, err := e.drive(ctx, id, history)
	if err != nil {
		return nil, err
	}
	if inst.State != api.StateRunning || inst.Phase != phase {
		return inst, nil
	}

	entry, err := api.NewEntry(inst.LastSequence+1, api.EntryTimerFired, string(phase), nil, e.clock())
	if err != nil {
		return nil, err
	}
	if err := e.store.Append(ctx, id, entry); err != nil {
		return nil, fmt.Errorf("record %s timeout for %s: %w", phase, id, err)
	}

	inst, _, err = e.drive(ctx, id, append(history, entry))
	return inst, err
}

func (e *engineImpl) GetInstance(ctx context.Context, id string) (*api.Instance, error) {
	history, err := e.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return Project(id, history)
}

func (e *engineImpl) History(ctx context.Context, id string) ([]api.HistoryEntry, error) {
	return e.store.Load(ctx, id)
}

func (e *engineImpl) ListInstances(ctx context.Context, opts api.InstanceListOptions) (*api.InstancePage, error) {
	return e.dir.List(opts)
}

func (e *engineImpl) Recover(ctx context.Context) (int, error) {
	ids, err := e.store.InstanceIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list instances: %w", err)
	}

	resumed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return resumed, err
		}

		unlock := e.locks.Lock(id)
		history, err := e.store.Load(ctx, id)
		if err == nil {
			var inst *api.Instance
			if inst, err = Project(id, history); err == nil && inst.State.Terminal() {
				e.dir.Upsert(inst.Summary())
			} else {
				_, _, err = e.drive(ctx, id, history)
				if err == nil {
					resumed++
				}
			}
		}
		unlock()

		if err != nil {
			e.logger.ErrorContext(ctx, "recover_failed",
				slog.String("instance_id", id),
				slog.Any("error", err),
			)
		}
	}
	return resumed, nil
}

// drive replays history and appends whatever the control logic decides.
// It returns the projected instance and the full persisted history. The
// caller holds the instance lock.
func (e *engineImpl) drive(ctx context.Context, id string, history []api.HistoryEntry) (*api.Instance, []api.HistoryEntry, error) {
	for _, entry := range history {
		if entry.Kind.Terminal() {
			e.table.Forget(id)
			inst, err := Project(id, history)
			if err != nil {
				return nil, history, err
			}
			e.dir.Upsert(inst.Summary())
			return inst, history, nil
		}
	}

	e.table.Reset(id)

	r, err := newReplay(e, id, history)
	if r == nil {
		return nil, history, err
	}
	if err == nil {
		err = r.run(ctx)
		r.drain()
	}

	switch {
	case err == nil, errors.Is(err, errSuspended), errors.Is(err, errFailed):
		if err := r.flush(ctx); err != nil {
			return nil, r.history, fmt.Errorf("record decisions of %s: %w", id, err)
		}

	case errors.Is(err, api.ErrReplayInconsistent):
		return e.failReplay(ctx, id, r.history, err)

	default:
		return nil, r.history, err
	}

	inst, err := Project(id, r.history)
	if err != nil {
		return nil, r.history, err
	}
	e.dir.Upsert(inst.Summary())
	e.notifyObserver(ctx, inst, r.produced)
	return inst, r.history, nil
}

// failReplay records a replay diagnostic as the terminal failure. Entries
// produced by the failed run and not yet persisted are dropped.
func (e *engineImpl) failReplay(ctx context.Context, id string, history []api.HistoryEntry, cause error) (*api.Instance, []api.HistoryEntry, error) {
	e.logger.ErrorContext(ctx, "replay_inconsistent",
		slog.String("instance_id", id),
		slog.Any("error", cause),
	)

	var next int64 = 1
	if len(history) > 0 {
		next = history[len(history)-1].Sequence + 1
	}
	entry, err := api.NewEntry(next, api.EntryInstanceFailed, "", api.FailureRecord{Reason: "replay: " + cause.Error()}, e.clock())
	if err != nil {
		return nil, history, err
	}
	if err := e.store.Append(ctx, id, entry); err != nil {
		return nil, history, fmt.Errorf("record replay failure of %s: %w", id, err)
	}
	history = append(history, entry)
	e.table.Forget(id)

	inst, err := Project(id, history)
	if err != nil {
		return nil, history, err
	}
	e.dir.Upsert(inst.Summary())
	e.notifyObserver(ctx, inst, []api.HistoryEntry{entry})
	return inst, history, nil
}

func (e *engineImpl) notifyObserver(ctx context.Context, inst *api.Instance, produced []api.HistoryEntry) {
	for _, entry := range produced {
		switch entry.Kind {
		case api.EntryStatusChanged:
			if s, err := api.DecodePayload[string](entry); err == nil {
				e.observer.OnStatusChanged(ctx, inst, s)
			}
		case api.EntryOutputSet:
			e.observer.OnInstanceCompleted(ctx, inst)
		case api.EntryInstanceFailed:
			rec, _ := api.DecodePayload[api.FailureRecord](entry)
			e.observer.OnInstanceFailed(ctx, inst, rec.Reason)
		}
	}
}
