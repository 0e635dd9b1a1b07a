// Package taskqueue carries asynchronous engine work to workers.
package taskqueue

import (
	"context"
	"time"
)

// TaskType identifies what the worker should do.
type TaskType string

const (
	// TaskTypeRun resumes an instance, typically right after Create.
	TaskTypeRun TaskType = "run"

	// TaskTypeSignal delivers Data as the payload of SignalName.
	TaskTypeSignal TaskType = "signal"

	// TaskTypeTimeout expires the wait in Phase if the instance is still
	// parked there.
	TaskTypeTimeout TaskType = "timeout"
)

// Task represents a unit of work for the worker.
type Task struct {
	ID   string
	Type TaskType

	InstanceID string
	SignalName string
	Phase      string

	// Data is the JSON signal payload for signal tasks.
	Data []byte

	EnqueuedAt time.Time

	// NotBefore is the earliest time this task should be eligible
	// for processing. Zero value means "immediately" (i.e., at enqueue time).
	NotBefore time.Time

	// Attempts counts failed processing attempts so far.
	Attempts int
}

// due returns when t becomes eligible.
func (t Task) due() time.Time {
	if t.NotBefore.IsZero() {
		return t.EnqueuedAt
	}
	return t.NotBefore
}

// Queue is a simple async task queue interface.
type Queue interface {
	// Enqueue adds a task to the queue. It should respect ctx for cancellation.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue removes and returns the next due task, blocking until one is
	// available or the context is cancelled.
	Dequeue(ctx context.Context) (*Task, error)

	// Len returns the approximate number of tasks queued, due or not.
	Len() int
}
