package docflow

import (
	"context"
	"database/sql"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petrijr/docflow/internal/engine"
	"github.com/petrijr/docflow/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine               = api.Engine
	Instance             = api.Instance
	InstanceSummary      = api.InstanceSummary
	InstanceListOptions  = api.InstanceListOptions
	InstancePage         = api.InstancePage
	HistoryEntry         = api.HistoryEntry
	DocumentProperties   = api.DocumentProperties
	Feedback             = api.Feedback
	WorkDocument         = api.WorkDocument
	SignalName           = api.SignalName
	SignalResult         = api.SignalResult
	RuntimeState         = api.RuntimeState
	Notifier             = api.Notifier
	NotifierFunc         = api.NotifierFunc
	RetryPolicy          = api.RetryPolicy
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export common observer helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	Fatal                = api.Fatal
	DefaultRetryPolicy   = api.DefaultRetryPolicy
)

// Re-export runtime states and signal names for convenience.

const (
	StatePending   = api.StatePending
	StateRunning   = api.StateRunning
	StateCompleted = api.StateCompleted
	StateFailed    = api.StateFailed

	SignalInterviewFeedback       = api.SignalInterviewFeedback
	SignalBackgroundCheckFeedback = api.SignalBackgroundCheckFeedback
	SignalContractFeedback        = api.SignalContractFeedback
	SignalSubmissionApproval      = api.SignalSubmissionApproval
)

// Engine constructors
// These wrap the internal/engine package so external callers
// never need to import internal packages.

// NewInMemoryEngine returns an Engine backed entirely by in-memory stores.
func NewInMemoryEngine() Engine {
	return engine.NewInMemoryEngine()
}

// NewInMemoryEngineWithObserver returns an in-memory Engine with the given
// Observer and Notifier. A nil notifier logs submissions.
func NewInMemoryEngineWithObserver(obs Observer, n Notifier) Engine {
	return engine.NewEngineWithConfig(engine.Config{Observer: obs, Notifier: n})
}

// NewSQLiteEngine returns an Engine that persists history logs in a
// SQLite database.
func NewSQLiteEngine(db *sql.DB) (Engine, error) {
	return engine.NewSQLiteEngine(db)
}

// NewPostgresEngine returns an Engine that persists history logs in
// PostgreSQL.
func NewPostgresEngine(db *sql.DB) (Engine, error) {
	return engine.NewPostgresEngine(db)
}

// NewRedisEngine returns an Engine that persists history logs in Redis.
func NewRedisEngine(client *redis.Client) Engine {
	return engine.NewRedisEngine(client)
}

// NewMongoEngine returns an Engine that persists history logs in the given
// MongoDB database.
func NewMongoEngine(client *mongo.Client, database string) Engine {
	return engine.NewMongoEngine(client, database)
}

// Convenience helpers that just forward to the underlying Engine.

// Start records a new instance and runs it to its first wait.
func Start(ctx context.Context, eng Engine, props DocumentProperties) (*Instance, error) {
	return eng.Start(ctx, props)
}

// SendFeedback delivers one of the three reviewer signals.
func SendFeedback(ctx context.Context, eng Engine, id string, name SignalName, fb Feedback) (*SignalResult, error) {
	return eng.Signal(ctx, id, name, fb)
}

// Approve delivers the final SubmissionApproval signal.
func Approve(ctx context.Context, eng Engine, id string, approved bool) (*SignalResult, error) {
	return eng.Signal(ctx, id, api.SignalSubmissionApproval, approved)
}

// GetInstance fetches an instance by ID.
func GetInstance(ctx context.Context, eng Engine, id string) (*Instance, error) {
	return eng.GetInstance(ctx, id)
}

// ListInstances lists instances according to the given options.
func ListInstances(ctx context.Context, eng Engine, opts InstanceListOptions) (*InstancePage, error) {
	return eng.ListInstances(ctx, opts)
}

// Recover delegates to eng.Recover.
//
// It is typically called on process startup before starting any workers:
//
//	count, err := docflow.Recover(ctx, engine)
func Recover(ctx context.Context, eng Engine) (int, error) {
	return eng.Recover(ctx)
}
