//go:build integration

package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/petrijr/docflow/internal/testutil"
)

var isolation atomic.Int64

func TestRedisHistoryStore(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: testutil.GetRedisAddress(t)})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())

	runHistoryStoreContract(t, func(t *testing.T) HistoryStore {
		return NewRedisHistoryStore(client, fmt.Sprintf("docflow:test:%d:", isolation.Add(1)))
	})
}

func TestPostgresHistoryStore(t *testing.T) {
	db, err := sql.Open("pgx", testutil.GetPostgresDSN(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	runHistoryStoreContract(t, func(t *testing.T) HistoryStore {
		_, err := db.Exec(`DROP TABLE IF EXISTS history`)
		require.NoError(t, err)
		store, err := NewPostgresHistoryStore(db)
		require.NoError(t, err)
		return store
	})
}

func TestMongoHistoryStore(t *testing.T) {
	ctx := context.Background()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(testutil.GetMongoURI(t)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	runHistoryStoreContract(t, func(t *testing.T) HistoryStore {
		return NewMongoHistoryStore(client, "docflow_test", fmt.Sprintf("history_%d", isolation.Add(1)))
	})
}
