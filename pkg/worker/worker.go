package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/petrijr/docflow/internal/taskqueue"
	"github.com/petrijr/docflow/pkg/api"
)

// Config controls task retries and wait timeouts.
type Config struct {
	// MaxAttempts is the number of times a task is tried before it is
	// dropped with an error. Zero means one attempt.
	MaxAttempts int

	// Backoff is the delay before the first retry; it doubles afterwards.
	Backoff time.Duration

	// FeedbackTimeout and ApprovalTimeout bound the two wait phases. Zero
	// disables the timeout.
	FeedbackTimeout time.Duration
	ApprovalTimeout time.Duration

	Logger *slog.Logger
}

// Worker pulls tasks from a Queue and executes them using an Engine.
type Worker struct {
	engine api.Engine
	queue  taskqueue.Queue
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Worker with default settings.
func New(engine api.Engine, queue taskqueue.Queue) *Worker {
	return NewWithConfig(engine, queue, Config{})
}

// NewWithConfig creates a Worker using cfg.
func NewWithConfig(engine api.Engine, queue taskqueue.Queue, cfg Config) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		engine: engine,
		queue:  queue,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// EnqueueStart records a new instance and enqueues a task that runs it.
// The returned instance is still pending.
func (w *Worker) EnqueueStart(ctx context.Context, props api.DocumentProperties) (*api.Instance, error) {
	inst, err := w.engine.Create(ctx, props)
	if err != nil {
		return nil, err
	}
	err = w.queue.Enqueue(ctx, taskqueue.Task{
		Type:       taskqueue.TaskTypeRun,
		InstanceID: inst.ID,
		EnqueuedAt: w.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue run of %s: %w", inst.ID, err)
	}
	return inst, nil
}

// EnqueueSignal validates a signal and enqueues its delivery. Unknown
// instances, unknown signal names and malformed payloads are rejected here,
// before anything is queued.
func (w *Worker) EnqueueSignal(ctx context.Context, id string, name api.SignalName, payload any) error {
	raw, err := api.EncodeSignalPayload(name, payload)
	if err != nil {
		return err
	}
	if _, err := w.engine.GetInstance(ctx, id); err != nil {
		return err
	}
	return w.queue.Enqueue(ctx, taskqueue.Task{
		Type:       taskqueue.TaskTypeSignal,
		InstanceID: id,
		SignalName: string(name),
		Data:       raw,
		EnqueuedAt: w.now(),
	})
}

// Start runs a new instance synchronously and schedules its timeouts.
func (w *Worker) Start(ctx context.Context, props api.DocumentProperties) (*api.Instance, error) {
	inst, err := w.engine.Start(ctx, props)
	if err != nil {
		return nil, err
	}
	w.scheduleTimeout(ctx, inst)
	return inst, nil
}

// Signal delivers a signal synchronously and schedules the approval timeout
// if the instance moved on to that phase.
func (w *Worker) Signal(ctx context.Context, id string, name api.SignalName, payload any) (*api.SignalResult, error) {
	res, err := w.engine.Signal(ctx, id, name, payload)
	if err != nil {
		return nil, err
	}
	// Only the signal completing the fan-in leaves an instance running in
	// the approval phase; feedback-phase timeouts were scheduled on start.
	if res.Delivery == api.DeliveryAccepted && res.Instance != nil && res.Instance.Phase == api.PhaseApproval {
		w.scheduleTimeout(ctx, res.Instance)
	}
	return res, nil
}

// Recover resumes unfinished instances through the engine and schedules a
// timeout task for every instance still waiting afterwards. Deadlines count
// from when the instance entered its current phase; expired ones fire on
// the next poll.
func (w *Worker) Recover(ctx context.Context) (int, error) {
	resumed, err := w.engine.Recover(ctx)
	if err != nil {
		return resumed, err
	}
	if w.cfg.FeedbackTimeout <= 0 && w.cfg.ApprovalTimeout <= 0 {
		return resumed, nil
	}

	opts := api.InstanceListOptions{States: []api.RuntimeState{api.StateRunning}}
	for {
		page, err := w.engine.ListInstances(ctx, opts)
		if err != nil {
			return resumed, fmt.Errorf("list running instances: %w", err)
		}
		for _, s := range page.Instances {
			inst, err := w.engine.GetInstance(ctx, s.ID)
			if err != nil {
				w.logger.ErrorContext(ctx, "recover_timeout_failed",
					slog.String("instance_id", s.ID),
					slog.Any("error", err),
				)
				continue
			}
			w.scheduleTimeoutFrom(ctx, inst, phaseEntered(inst))
		}
		if page.NextPageToken == "" {
			return resumed, nil
		}
		opts.PageToken = page.NextPageToken
	}
}

// phaseEntered approximates when inst entered its current phase. The
// feedback phase opens on start; nothing is recorded while an instance
// waits for approval, so its last update marks the approval phase.
func phaseEntered(inst *api.Instance) time.Time {
	if inst.Phase == api.PhaseApproval {
		return inst.UpdatedAt
	}
	return inst.CreatedAt
}

// scheduleTimeout enqueues a timeout task for the phase inst is parked in,
// counted from now.
func (w *Worker) scheduleTimeout(ctx context.Context, inst *api.Instance) {
	w.scheduleTimeoutFrom(ctx, inst, w.now())
}

func (w *Worker) scheduleTimeoutFrom(ctx context.Context, inst *api.Instance, since time.Time) {
	if inst == nil || inst.State != api.StateRunning {
		return
	}

	var after time.Duration
	switch inst.Phase {
	case api.PhaseFeedback:
		after = w.cfg.FeedbackTimeout
	case api.PhaseApproval:
		after = w.cfg.ApprovalTimeout
	}
	if after <= 0 {
		return
	}

	now := w.now()
	due := since.Add(after)
	if due.Before(now) {
		due = now
	}
	err := w.queue.Enqueue(ctx, taskqueue.Task{
		Type:       taskqueue.TaskTypeTimeout,
		InstanceID: inst.ID,
		Phase:      string(inst.Phase),
		EnqueuedAt: now,
		NotBefore:  due,
	})
	if err != nil {
		w.logger.ErrorContext(ctx, "schedule_timeout_failed",
			slog.String("instance_id", inst.ID),
			slog.String("phase", string(inst.Phase)),
			slog.Any("error", err),
		)
	}
}

// ProcessOne pulls a single task from the queue and processes it.
// Returns (processed, error):
//   - processed == false: no task was obtained (ctx ended or dequeue failed)
//   - processed == true: a task was handled; err is non-nil when it failed
//     for good. A task re-enqueued for retry reports nil.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	err = w.handle(ctx, task)
	if err == nil {
		return true, nil
	}
	if permanent(err) || task.Attempts+1 >= w.cfg.MaxAttempts {
		w.logger.ErrorContext(ctx, "task_failed",
			slog.String("type", string(task.Type)),
			slog.String("instance_id", task.InstanceID),
			slog.Int("attempts", task.Attempts+1),
			slog.Any("error", err),
		)
		return true, err
	}

	retry := *task
	retry.Attempts++
	retry.EnqueuedAt = w.now()
	retry.NotBefore = retry.EnqueuedAt.Add(w.backoff(retry.Attempts))
	w.logger.WarnContext(ctx, "task_retry_scheduled",
		slog.String("type", string(task.Type)),
		slog.String("instance_id", task.InstanceID),
		slog.Int("attempt", retry.Attempts),
		slog.Time("not_before", retry.NotBefore),
		slog.Any("error", err),
	)
	if qerr := w.queue.Enqueue(ctx, retry); qerr != nil {
		return true, errors.Join(err, qerr)
	}
	return true, nil
}

func (w *Worker) backoff(attempt int) time.Duration {
	d := w.cfg.Backoff
	for i := 1; i < attempt && d > 0; i++ {
		d *= 2
	}
	return d
}

// permanent reports errors a retry cannot fix.
func permanent(err error) bool {
	return api.IsClientError(err) || errors.Is(err, api.ErrInstanceNotFound)
}

func (w *Worker) handle(ctx context.Context, task *taskqueue.Task) error {
	switch task.Type {
	case taskqueue.TaskTypeRun:
		inst, err := w.engine.Resume(ctx, task.InstanceID)
		if err != nil {
			return err
		}
		w.scheduleTimeout(ctx, inst)
		return nil

	case taskqueue.TaskTypeSignal:
		_, err := w.Signal(ctx, task.InstanceID, api.SignalName(task.SignalName), task.Data)
		return err

	case taskqueue.TaskTypeTimeout:
		_, err := w.engine.Timeout(ctx, task.InstanceID, api.Phase(task.Phase))
		return err

	default:
		// Unknown task type; mark as processed but return an error so this isn't silently ignored.
		return fmt.Errorf("%w: unknown task type %q", api.ErrInvalidInput, task.Type)
	}
}

// Run processes tasks until ctx is cancelled. Task failures are logged by
// ProcessOne and do not stop the loop; dequeue failures pause it briefly.
func (w *Worker) Run(ctx context.Context) error {
	for {
		processed, err := w.ProcessOne(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil || processed {
			continue
		}

		w.logger.ErrorContext(ctx, "dequeue_failed", slog.Any("error", err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}
