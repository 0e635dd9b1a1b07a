package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the engine for logging and metrics.
//
// Callbacks fire only for entries recorded by the current call, never for
// entries reproduced by replay. Implementations should be fast and
// non-blocking.
type Observer interface {
	// OnInstanceCreated is called once when the input has been recorded.
	OnInstanceCreated(ctx context.Context, inst *Instance)

	// OnSignalReceived is called after a signal was recorded.
	OnSignalReceived(ctx context.Context, inst *Instance, name SignalName)

	// OnSignalIgnored is called for duplicate or late signals.
	OnSignalIgnored(ctx context.Context, instanceID string, name SignalName, reason string)

	// OnStatusChanged is called for each newly recorded custom status.
	OnStatusChanged(ctx context.Context, inst *Instance, status string)

	// OnDispatchAttempt is called after each notifier call, for both
	// successes and failures (err != nil).
	OnDispatchAttempt(ctx context.Context, instanceID string, attempt int, err error, duration time.Duration)

	// OnInstanceCompleted is called when an instance reaches StateCompleted.
	OnInstanceCompleted(ctx context.Context, inst *Instance)

	// OnInstanceFailed is called when an instance transitions to StateFailed.
	OnInstanceFailed(ctx context.Context, inst *Instance, reason string)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnInstanceCreated(ctx context.Context, inst *Instance)                     {}
func (NoopObserver) OnSignalReceived(ctx context.Context, inst *Instance, name SignalName)     {}
func (NoopObserver) OnSignalIgnored(ctx context.Context, id string, name SignalName, r string) {}
func (NoopObserver) OnStatusChanged(ctx context.Context, inst *Instance, status string)        {}
func (NoopObserver) OnDispatchAttempt(ctx context.Context, id string, attempt int, err error, d time.Duration) {
}
func (NoopObserver) OnInstanceCompleted(ctx context.Context, inst *Instance)             {}
func (NoopObserver) OnInstanceFailed(ctx context.Context, inst *Instance, reason string) {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnInstanceCreated(ctx context.Context, inst *Instance) {
	for _, o := range c.observers {
		o.OnInstanceCreated(ctx, inst)
	}
}

func (c *CompositeObserver) OnSignalReceived(ctx context.Context, inst *Instance, name SignalName) {
	for _, o := range c.observers {
		o.OnSignalReceived(ctx, inst, name)
	}
}

func (c *CompositeObserver) OnSignalIgnored(ctx context.Context, id string, name SignalName, reason string) {
	for _, o := range c.observers {
		o.OnSignalIgnored(ctx, id, name, reason)
	}
}

func (c *CompositeObserver) OnStatusChanged(ctx context.Context, inst *Instance, status string) {
	for _, o := range c.observers {
		o.OnStatusChanged(ctx, inst, status)
	}
}

func (c *CompositeObserver) OnDispatchAttempt(ctx context.Context, id string, attempt int, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnDispatchAttempt(ctx, id, attempt, err, d)
	}
}

func (c *CompositeObserver) OnInstanceCompleted(ctx context.Context, inst *Instance) {
	for _, o := range c.observers {
		o.OnInstanceCompleted(ctx, inst)
	}
}

func (c *CompositeObserver) OnInstanceFailed(ctx context.Context, inst *Instance, reason string) {
	for _, o := range c.observers {
		o.OnInstanceFailed(ctx, inst, reason)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs instance lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnInstanceCreated(ctx context.Context, inst *Instance) {
	o.Logger.InfoContext(ctx, "instance_created",
		slog.String("instance_id", inst.ID),
		slog.String("application_id", inst.Input.ApplicationID),
		slog.String("title", inst.Input.Title),
	)
}

func (o *LoggingObserver) OnSignalReceived(ctx context.Context, inst *Instance, name SignalName) {
	o.Logger.InfoContext(ctx, "signal_received",
		slog.String("instance_id", inst.ID),
		slog.String("signal", string(name)),
	)
}

func (o *LoggingObserver) OnSignalIgnored(ctx context.Context, id string, name SignalName, reason string) {
	o.Logger.WarnContext(ctx, "signal_ignored",
		slog.String("instance_id", id),
		slog.String("signal", string(name)),
		slog.String("reason", reason),
	)
}

func (o *LoggingObserver) OnStatusChanged(ctx context.Context, inst *Instance, status string) {
	o.Logger.DebugContext(ctx, "status_changed",
		slog.String("instance_id", inst.ID),
		slog.String("status", status),
	)
}

func (o *LoggingObserver) OnDispatchAttempt(ctx context.Context, id string, attempt int, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "dispatch_attempt",
		slog.String("instance_id", id),
		slog.Int("attempt", attempt),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnInstanceCompleted(ctx context.Context, inst *Instance) {
	o.Logger.InfoContext(ctx, "instance_completed",
		slog.String("instance_id", inst.ID),
		slog.String("output", inst.Output),
	)
}

func (o *LoggingObserver) OnInstanceFailed(ctx context.Context, inst *Instance, reason string) {
	o.Logger.ErrorContext(ctx, "instance_failed",
		slog.String("instance_id", inst.ID),
		slog.String("reason", reason),
	)
}

// BasicMetrics collects simple counters and aggregate dispatch durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	instancesCreated   atomic.Int64
	instancesCompleted atomic.Int64
	instancesFailed    atomic.Int64
	signalsReceived    atomic.Int64
	signalsIgnored     atomic.Int64
	dispatchAttempts   atomic.Int64
	totalDispatchNanos atomic.Int64
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	InstancesCreated   int64
	InstancesCompleted int64
	InstancesFailed    int64
	InFlight           int64

	SignalsReceived     int64
	SignalsIgnored      int64
	DispatchAttempts    int64
	AvgDispatchDuration time.Duration
}

func (m *BasicMetrics) OnInstanceCreated(ctx context.Context, inst *Instance) {
	m.instancesCreated.Add(1)
}

func (m *BasicMetrics) OnSignalReceived(ctx context.Context, inst *Instance, name SignalName) {
	m.signalsReceived.Add(1)
}

func (m *BasicMetrics) OnSignalIgnored(ctx context.Context, id string, name SignalName, reason string) {
	m.signalsIgnored.Add(1)
}

func (m *BasicMetrics) OnDispatchAttempt(ctx context.Context, id string, attempt int, err error, d time.Duration) {
	m.dispatchAttempts.Add(1)
	m.totalDispatchNanos.Add(d.Nanoseconds())
}

func (m *BasicMetrics) OnInstanceCompleted(ctx context.Context, inst *Instance) {
	m.instancesCompleted.Add(1)
}

func (m *BasicMetrics) OnInstanceFailed(ctx context.Context, inst *Instance, reason string) {
	m.instancesFailed.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	created := m.instancesCreated.Load()
	completed := m.instancesCompleted.Load()
	failed := m.instancesFailed.Load()
	attempts := m.dispatchAttempts.Load()

	var avg time.Duration
	if attempts > 0 {
		avg = time.Duration(m.totalDispatchNanos.Load() / attempts)
	}

	return BasicMetricsSnapshot{
		InstancesCreated:    created,
		InstancesCompleted:  completed,
		InstancesFailed:     failed,
		InFlight:            created - completed - failed,
		SignalsReceived:     m.signalsReceived.Load(),
		SignalsIgnored:      m.signalsIgnored.Load(),
		DispatchAttempts:    attempts,
		AvgDispatchDuration: avg,
	}
}
