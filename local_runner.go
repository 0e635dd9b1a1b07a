package docflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/petrijr/docflow/internal/taskqueue"
	"github.com/petrijr/docflow/pkg/worker"
)

// LocalRunner bundles an in-memory Engine, an in-memory task queue, and a Worker
// to provide a simple "local runner" for development and debugging.
//
// Typical usage:
//
//	runner := docflow.NewLocalRunner(worker.Config{})
//	_ = runner.StartWorkers(ctx, 2)
//	inst, _ := runner.StartAsync(ctx, props)
//	_ = runner.SignalAsync(ctx, inst.ID, docflow.SignalContractFeedback, fb)
//	...
//	runner.Stop()
type LocalRunner struct {
	// Engine is the in-memory engine used by this runner.
	Engine Engine

	// Queue is the in-memory task queue used by the Worker.
	Queue taskqueue.Queue

	// Worker processes tasks from Queue using Engine.
	Worker *worker.Worker

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewLocalRunner constructs a LocalRunner backed by an in-memory engine,
// in-memory queue, and a Worker using cfg.
//
// This is intended for local development, tests, and simple single-process
// deployments.
func NewLocalRunner(cfg worker.Config) *LocalRunner {
	return NewLocalRunnerWithEngine(NewInMemoryEngine(), cfg)
}

// NewLocalRunnerWithEngine is NewLocalRunner over an existing engine.
func NewLocalRunnerWithEngine(eng Engine, cfg worker.Config) *LocalRunner {
	q := taskqueue.NewInMemoryQueue()
	return &LocalRunner{
		Engine: eng,
		Queue:  q,
		Worker: worker.NewWithConfig(eng, q, cfg),
	}
}

// StartWorkers starts 'concurrency' worker goroutines that process tasks
// until the context is cancelled via Stop.
//
// If StartWorkers is called more than once without Stop, it returns an error.
func (r *LocalRunner) StartWorkers(ctx context.Context, concurrency int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("docflow: LocalRunner already started")
	}

	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer r.wg.Done()
			if err := r.Worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Default().Error("local_runner_stopped", slog.Any("error", err))
			}
		}()
	}

	return nil
}

// Stop cancels all worker goroutines started by StartWorkers and waits
// for them to exit.
func (r *LocalRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

// StartAsync records a new instance and enqueues its first run. The
// returned instance is still pending.
func (r *LocalRunner) StartAsync(ctx context.Context, props DocumentProperties) (*Instance, error) {
	return r.Worker.EnqueueStart(ctx, props)
}

// SignalAsync enqueues a task to deliver a signal to an instance.
// The instance will process the signal when a worker picks up the task.
func (r *LocalRunner) SignalAsync(ctx context.Context, instanceID string, name SignalName, payload any) error {
	return r.Worker.EnqueueSignal(ctx, instanceID, name, payload)
}
