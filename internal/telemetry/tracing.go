package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/petrijr/docflow/pkg/api"
)

const tracerName = "github.com/petrijr/docflow"

// Tracing is an api.Observer that records one span per lifecycle event and
// per dispatch attempt. Without a configured TracerProvider the global noop
// tracer is used.
type Tracing struct {
	tracer trace.Tracer
}

// NewTracing uses the global tracer provider.
func NewTracing() *Tracing {
	return NewTracingWithTracer(otel.Tracer(tracerName))
}

func NewTracingWithTracer(tracer trace.Tracer) *Tracing {
	return &Tracing{tracer: tracer}
}

func (t *Tracing) event(ctx context.Context, name string, at time.Time, attrs ...attribute.KeyValue) trace.Span {
	opts := []trace.SpanStartOption{
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	}
	if !at.IsZero() {
		opts = append(opts, trace.WithTimestamp(at))
	}
	_, span := t.tracer.Start(ctx, name, opts...)
	return span
}

func (t *Tracing) OnInstanceCreated(ctx context.Context, inst *api.Instance) {
	span := t.event(ctx, "docflow.instance.created", time.Time{},
		attribute.String("docflow.instance.id", inst.ID),
		attribute.String("docflow.application.id", inst.Input.ApplicationID),
	)
	span.End()
}

func (t *Tracing) OnSignalReceived(ctx context.Context, inst *api.Instance, name api.SignalName) {
	span := t.event(ctx, "docflow.signal.received", time.Time{},
		attribute.String("docflow.instance.id", inst.ID),
		attribute.String("docflow.signal", string(name)),
	)
	span.End()
}

func (t *Tracing) OnSignalIgnored(ctx context.Context, id string, name api.SignalName, reason string) {
	span := t.event(ctx, "docflow.signal.ignored", time.Time{},
		attribute.String("docflow.instance.id", id),
		attribute.String("docflow.signal", string(name)),
		attribute.String("docflow.reason", reason),
	)
	span.End()
}

func (t *Tracing) OnStatusChanged(ctx context.Context, inst *api.Instance, status string) {
	span := t.event(ctx, "docflow.status.changed", time.Time{},
		attribute.String("docflow.instance.id", inst.ID),
		attribute.String("docflow.status", status),
	)
	span.End()
}

// OnDispatchAttempt is called after the attempt returned, so the span is
// back-dated by its duration.
func (t *Tracing) OnDispatchAttempt(ctx context.Context, id string, attempt int, err error, d time.Duration) {
	end := time.Now()
	span := t.event(ctx, "docflow.dispatch.attempt", end.Add(-d),
		attribute.String("docflow.instance.id", id),
		attribute.Int("docflow.dispatch.attempt", attempt),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(end))
}

func (t *Tracing) OnInstanceCompleted(ctx context.Context, inst *api.Instance) {
	span := t.event(ctx, "docflow.instance.completed", time.Time{},
		attribute.String("docflow.instance.id", inst.ID),
		attribute.String("docflow.output", inst.Output),
	)
	span.SetStatus(codes.Ok, "")
	span.End()
}

func (t *Tracing) OnInstanceFailed(ctx context.Context, inst *api.Instance, reason string) {
	span := t.event(ctx, "docflow.instance.failed", time.Time{},
		attribute.String("docflow.instance.id", inst.ID),
		attribute.String("docflow.reason", reason),
	)
	span.SetStatus(codes.Error, reason)
	span.End()
}
