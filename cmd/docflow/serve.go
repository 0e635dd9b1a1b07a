package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/petrijr/docflow/internal/config"
	"github.com/petrijr/docflow/internal/engine"
	"github.com/petrijr/docflow/internal/httpapi"
	"github.com/petrijr/docflow/internal/telemetry"
	"github.com/petrijr/docflow/pkg/api"
	"github.com/petrijr/docflow/pkg/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and background workers",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := newBackends(cfg)
	defer func() {
		if err := b.Close(context.Background()); err != nil {
			logger.Error("close_backends_failed", slog.Any("error", err))
		}
	}()

	store, err := b.historyStore(ctx)
	if err != nil {
		return err
	}
	queue, err := b.taskQueue(ctx)
	if err != nil {
		return err
	}
	notifier, err := b.notifier(ctx, logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	metrics, err := telemetry.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	policy := cfg.RetryPolicy()
	eng := engine.NewEngineWithConfig(engine.Config{
		Store:    store,
		Notifier: notifier,
		Retry:    &policy,
		Logger:   logger,
		Observer: api.NewCompositeObserver(
			api.NewLoggingObserver(logger),
			metrics,
			telemetry.NewTracing(),
		),
	})

	w := worker.NewWithConfig(eng, queue, worker.Config{
		MaxAttempts:     cfg.TaskAttempts,
		Backoff:         cfg.TaskBackoff,
		FeedbackTimeout: cfg.FeedbackTimeout,
		ApprovalTimeout: cfg.ApprovalTimeout,
		Logger:          logger,
	})

	resumed, err := w.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover instances: %w", err)
	}
	logger.Info("recovered", slog.Int("resumed", resumed), slog.String("store", cfg.Store))

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: httpapi.New(httpapi.Options{
			Engine:   eng,
			Runner:   w,
			Gatherer: reg,
			Logger:   logger,
			PageSize: cfg.PageSize,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", slog.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	for i := 0; i < cfg.Workers; i++ {
		g.Go(func() error {
			if err := w.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	err = g.Wait()
	logger.Info("stopped")
	return err
}
