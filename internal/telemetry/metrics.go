// Package telemetry adapts engine callbacks to Prometheus metrics and
// OpenTelemetry spans.
package telemetry

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/petrijr/docflow/pkg/api"
)

const namespace = "docflow"

// Metrics is an api.Observer that records Prometheus metrics.
type Metrics struct {
	instancesTotal   *prometheus.CounterVec
	signalsTotal     *prometheus.CounterVec
	statusChanges    *prometheus.CounterVec
	dispatchAttempts *prometheus.CounterVec
	dispatchDuration prometheus.Histogram
	inFlight         prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		instancesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "instances_total",
				Help:      "Instances by lifecycle event (created, completed, failed).",
			},
			[]string{"event"},
		),
		signalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "signals_total",
				Help:      "Signals by name and delivery result.",
			},
			[]string{"signal", "result"},
		),
		statusChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "status_changes_total",
				Help:      "Custom status transitions recorded.",
			},
			[]string{"status"},
		),
		dispatchAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_attempts_total",
				Help:      "Notifier calls by outcome.",
			},
			[]string{"outcome"},
		),
		dispatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_duration_seconds",
				Help:      "Duration of notifier calls.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "instances_in_flight",
				Help:      "Instances created by this process that have not finished.",
			},
		),
	}

	if reg != nil {
		for _, c := range m.collectors() {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.instancesTotal,
		m.signalsTotal,
		m.statusChanges,
		m.dispatchAttempts,
		m.dispatchDuration,
		m.inFlight,
	}
}

func (m *Metrics) OnInstanceCreated(ctx context.Context, inst *api.Instance) {
	m.instancesTotal.WithLabelValues("created").Inc()
	m.inFlight.Inc()
}

func (m *Metrics) OnSignalReceived(ctx context.Context, inst *api.Instance, name api.SignalName) {
	m.signalsTotal.WithLabelValues(string(name), "accepted").Inc()
}

func (m *Metrics) OnSignalIgnored(ctx context.Context, id string, name api.SignalName, reason string) {
	m.signalsTotal.WithLabelValues(string(name), "ignored").Inc()
}

func (m *Metrics) OnStatusChanged(ctx context.Context, inst *api.Instance, status string) {
	m.statusChanges.WithLabelValues(status).Inc()
}

func (m *Metrics) OnDispatchAttempt(ctx context.Context, id string, attempt int, err error, d time.Duration) {
	outcome := "success"
	switch {
	case api.IsFatal(err):
		outcome = "fatal"
	case err != nil:
		outcome = "error"
	}
	m.dispatchAttempts.WithLabelValues(outcome).Inc()
	m.dispatchDuration.Observe(d.Seconds())
}

func (m *Metrics) OnInstanceCompleted(ctx context.Context, inst *api.Instance) {
	m.instancesTotal.WithLabelValues("completed").Inc()
	m.inFlight.Dec()
}

func (m *Metrics) OnInstanceFailed(ctx context.Context, inst *api.Instance, reason string) {
	m.instancesTotal.WithLabelValues("failed").Inc()
	m.inFlight.Dec()
}
