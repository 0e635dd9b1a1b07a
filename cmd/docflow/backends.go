package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	_ "modernc.org/sqlite"

	"github.com/petrijr/docflow/internal/config"
	"github.com/petrijr/docflow/internal/notify"
	"github.com/petrijr/docflow/internal/persistence"
	"github.com/petrijr/docflow/internal/taskqueue"
	"github.com/petrijr/docflow/pkg/api"
)

// backends holds the connections opened for one process. Connections are
// shared between the history store, the task queue and the notifier.
type backends struct {
	cfg *config.Settings

	sqlite   *sql.DB
	postgres *sql.DB
	redis    *redis.Client
	mongo    *mongo.Client
}

func newBackends(cfg *config.Settings) *backends {
	return &backends{cfg: cfg}
}

func (b *backends) sqliteDB() (*sql.DB, error) {
	if b.sqlite == nil {
		db, err := sql.Open("sqlite", b.cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", b.cfg.SQLitePath, err)
		}
		// modernc sqlite serializes writers; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		b.sqlite = db
	}
	return b.sqlite, nil
}

func (b *backends) postgresDB(ctx context.Context) (*sql.DB, error) {
	if b.postgres == nil {
		db, err := sql.Open("pgx", b.cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		b.postgres = db
	}
	return b.postgres, nil
}

func (b *backends) redisClient(ctx context.Context) (*redis.Client, error) {
	if b.redis == nil {
		client := redis.NewClient(&redis.Options{Addr: b.cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ping redis %s: %w", b.cfg.RedisAddr, err)
		}
		b.redis = client
	}
	return b.redis, nil
}

func (b *backends) mongoClient(ctx context.Context) (*mongo.Client, error) {
	if b.mongo == nil {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(b.cfg.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			_ = client.Disconnect(ctx)
			return nil, fmt.Errorf("ping mongo: %w", err)
		}
		b.mongo = client
	}
	return b.mongo, nil
}

func (b *backends) historyStore(ctx context.Context) (persistence.HistoryStore, error) {
	switch b.cfg.Store {
	case config.BackendSQLite:
		db, err := b.sqliteDB()
		if err != nil {
			return nil, err
		}
		return persistence.NewSQLiteHistoryStore(db)
	case config.BackendPostgres:
		db, err := b.postgresDB(ctx)
		if err != nil {
			return nil, err
		}
		return persistence.NewPostgresHistoryStore(db)
	case config.BackendRedis:
		client, err := b.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return persistence.NewRedisHistoryStore(client, b.cfg.RedisPrefix), nil
	case config.BackendMongo:
		client, err := b.mongoClient(ctx)
		if err != nil {
			return nil, err
		}
		return persistence.NewMongoHistoryStore(client, b.cfg.MongoDB, ""), nil
	default:
		return persistence.NewInMemoryStore(), nil
	}
}

func (b *backends) taskQueue(ctx context.Context) (taskqueue.Queue, error) {
	switch b.cfg.Queue {
	case config.BackendSQLite:
		db, err := b.sqliteDB()
		if err != nil {
			return nil, err
		}
		return taskqueue.NewSQLiteQueue(db)
	case config.BackendPostgres:
		db, err := b.postgresDB(ctx)
		if err != nil {
			return nil, err
		}
		return taskqueue.NewPostgresQueue(db)
	case config.BackendRedis:
		client, err := b.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return taskqueue.NewRedisQueue(client, b.cfg.RedisPrefix), nil
	case config.BackendMongo:
		client, err := b.mongoClient(ctx)
		if err != nil {
			return nil, err
		}
		q := taskqueue.NewMongoQueue(client, b.cfg.MongoDB, "")
		if err := q.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("mongo queue indexes: %w", err)
		}
		return q, nil
	default:
		return taskqueue.NewInMemoryQueue(), nil
	}
}

func (b *backends) notifier(ctx context.Context, logger *slog.Logger) (api.Notifier, error) {
	if b.cfg.Notifier != config.NotifierRedis {
		return notify.NewLogNotifier(logger), nil
	}
	client, err := b.redisClient(ctx)
	if err != nil {
		return nil, err
	}
	return notify.NewRedisNotifier(client, b.cfg.NotifyChannel), nil
}

func (b *backends) Close(ctx context.Context) error {
	var errs []error
	if b.sqlite != nil {
		errs = append(errs, b.sqlite.Close())
	}
	if b.postgres != nil {
		errs = append(errs, b.postgres.Close())
	}
	if b.redis != nil {
		errs = append(errs, b.redis.Close())
	}
	if b.mongo != nil {
		errs = append(errs, b.mongo.Disconnect(ctx))
	}
	return errors.Join(errs...)
}
