// Package config loads docflow settings from DOCFLOW_* environment variables.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"

	"github.com/petrijr/docflow/pkg/api"
)

// Storage backends for history logs and task queues.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMongo    = "mongo"
)

// Notifier kinds.
const (
	NotifierLog   = "log"
	NotifierRedis = "redis"
)

// Settings is the process configuration.
type Settings struct {
	Addr string `env:"DOCFLOW_ADDR" envDefault:":8080"`

	Store string `env:"DOCFLOW_STORE" envDefault:"memory"`
	Queue string `env:"DOCFLOW_QUEUE" envDefault:"memory"`

	SQLitePath  string `env:"DOCFLOW_SQLITE_PATH" envDefault:"docflow.db"`
	PostgresDSN string `env:"DOCFLOW_POSTGRES_DSN"`
	RedisAddr   string `env:"DOCFLOW_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPrefix string `env:"DOCFLOW_REDIS_PREFIX" envDefault:"docflow:"`
	MongoURI    string `env:"DOCFLOW_MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDB     string `env:"DOCFLOW_MONGO_DB" envDefault:"docflow"`

	Notifier      string `env:"DOCFLOW_NOTIFIER" envDefault:"log"`
	NotifyChannel string `env:"DOCFLOW_NOTIFY_CHANNEL" envDefault:"docflow:submissions"`

	Workers         int           `env:"DOCFLOW_WORKERS" envDefault:"2"`
	TaskAttempts    int           `env:"DOCFLOW_TASK_ATTEMPTS" envDefault:"5"`
	TaskBackoff     time.Duration `env:"DOCFLOW_TASK_BACKOFF" envDefault:"500ms"`
	FeedbackTimeout time.Duration `env:"DOCFLOW_FEEDBACK_TIMEOUT"`
	ApprovalTimeout time.Duration `env:"DOCFLOW_APPROVAL_TIMEOUT"`

	DispatchAttempts int           `env:"DOCFLOW_DISPATCH_ATTEMPTS" envDefault:"3"`
	DispatchBackoff  time.Duration `env:"DOCFLOW_DISPATCH_BACKOFF" envDefault:"100ms"`
	DispatchMaxDelay time.Duration `env:"DOCFLOW_DISPATCH_MAX_BACKOFF" envDefault:"2s"`

	PageSize int `env:"DOCFLOW_PAGE_SIZE" envDefault:"100"`

	LogLevel  string `env:"DOCFLOW_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"DOCFLOW_LOG_FORMAT" envDefault:"json"`
}

// Load reads the environment into Settings and validates the result.
func Load() (*Settings, error) {
	cfg := &Settings{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment settings: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *Settings) Validate() error {
	if err := checkOneOf("DOCFLOW_STORE", s.Store, BackendMemory, BackendSQLite, BackendPostgres, BackendRedis, BackendMongo); err != nil {
		return err
	}
	if err := checkOneOf("DOCFLOW_QUEUE", s.Queue, BackendMemory, BackendSQLite, BackendPostgres, BackendRedis, BackendMongo); err != nil {
		return err
	}
	if err := checkOneOf("DOCFLOW_NOTIFIER", s.Notifier, NotifierLog, NotifierRedis); err != nil {
		return err
	}
	if (s.Store == BackendPostgres || s.Queue == BackendPostgres) && s.PostgresDSN == "" {
		return fmt.Errorf("%w: DOCFLOW_POSTGRES_DSN is required for the postgres backend", api.ErrInvalidInput)
	}
	if s.Workers < 0 {
		return fmt.Errorf("%w: DOCFLOW_WORKERS must not be negative", api.ErrInvalidInput)
	}
	if s.PageSize <= 0 || s.PageSize > api.MaxPageSize {
		return fmt.Errorf("%w: DOCFLOW_PAGE_SIZE must be between 1 and %d", api.ErrInvalidInput, api.MaxPageSize)
	}
	if _, err := parseLevel(s.LogLevel); err != nil {
		return err
	}
	return checkOneOf("DOCFLOW_LOG_FORMAT", s.LogFormat, "json", "text")
}

// RetryPolicy returns the dispatch retry policy.
func (s *Settings) RetryPolicy() api.RetryPolicy {
	return api.RetryPolicy{
		MaxAttempts:       s.DispatchAttempts,
		InitialBackoff:    s.DispatchBackoff,
		BackoffMultiplier: 2.0,
		MaxBackoff:        s.DispatchMaxDelay,
	}
}

// NewLogger builds the process logger writing to w.
func (s *Settings) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(s.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(s.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("%w: DOCFLOW_LOG_LEVEL: %v", api.ErrInvalidInput, err)
	}
	return level, nil
}

func checkOneOf(name, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%w: %s=%q, want one of %s", api.ErrInvalidInput, name, value, strings.Join(allowed, ", "))
}
