//go:build integration

// Package testutil starts throwaway backing services for integration tests.
// Each container is started once per test binary and reused.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type sharedContainer struct {
	once     sync.Once
	endpoint string
	err      error
}

var (
	redisC    sharedContainer
	postgresC sharedContainer
	mongoC    sharedContainer
)

func (s *sharedContainer) start(t *testing.T, req func(ctx context.Context) (testcontainers.Container, error), format func(endpoint string) string) string {
	t.Helper()

	s.once.Do(func() {
		// Give generous timeout in CI environments
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()

		c, err := req(ctx)
		if err != nil {
			s.err = err
			return
		}

		endpoint, err := c.Endpoint(ctx, "")
		if err != nil {
			_ = c.Terminate(context.Background()) // best-effort cleanup
			s.err = err
			return
		}
		s.endpoint = format(endpoint)
	})

	if s.err != nil {
		t.Fatalf("starting container failed: %v", s.err)
	}
	return s.endpoint
}

// GetRedisAddress returns host:port of a shared Redis container.
func GetRedisAddress(t *testing.T) string {
	return redisC.start(t, func(ctx context.Context) (testcontainers.Container, error) {
		return testcontainers.Run(
			ctx, "redis:7",
			testcontainers.WithExposedPorts("6379/tcp"),
			testcontainers.WithWaitStrategy(
				wait.ForListeningPort("6379/tcp"),
				wait.ForLog("Ready to accept connections"),
			),
		)
	}, func(endpoint string) string { return endpoint })
}

// GetPostgresDSN returns a pgx DSN of a shared PostgreSQL container.
func GetPostgresDSN(t *testing.T) string {
	return postgresC.start(t, func(ctx context.Context) (testcontainers.Container, error) {
		return testcontainers.Run(
			ctx, "postgres:16",
			testcontainers.WithExposedPorts("5432/tcp"),
			testcontainers.WithWaitStrategy(
				wait.ForAll(
					wait.ForListeningPort("5432/tcp"),
					wait.ForSQL("5432/tcp", "pgx", func(host string, port nat.Port) string {
						return fmt.Sprintf("postgres://docflow:docflow@%s:%s/docflow_test?sslmode=disable", host, port.Port())
					}).WithQuery("SELECT 1"),
				).WithDeadline(2*time.Minute),
			),
			testcontainers.WithEnv(map[string]string{
				"POSTGRES_USER":     "docflow",
				"POSTGRES_PASSWORD": "docflow",
				"POSTGRES_DB":       "docflow_test",
			}),
		)
	}, func(endpoint string) string {
		return fmt.Sprintf("postgres://docflow:docflow@%s/docflow_test?sslmode=disable", endpoint)
	})
}

// GetMongoURI returns a connection URI of a shared MongoDB container.
func GetMongoURI(t *testing.T) string {
	return mongoC.start(t, func(ctx context.Context) (testcontainers.Container, error) {
		return testcontainers.Run(
			ctx, "mongo:7",
			testcontainers.WithExposedPorts("27017/tcp"),
			testcontainers.WithWaitStrategy(
				wait.ForListeningPort("27017/tcp"),
				wait.ForLog("Waiting for connections"),
			),
		)
	}, func(endpoint string) string { return "mongodb://" + endpoint })
}
