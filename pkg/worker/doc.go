// Package worker drives document workflows asynchronously.
//
// A Worker pulls tasks from a task queue and hands them to an engine: run
// tasks resume freshly created instances, signal tasks deliver external
// events, and timeout tasks expire waits that took too long. Failed tasks
// are re-enqueued with a backoff, up to a configurable number of attempts.
//
// # Timeouts
//
// Waits have no deadline by default. When Config.FeedbackTimeout or
// Config.ApprovalTimeout is set, the worker schedules a delayed timeout task
// as soon as an instance enters the matching phase. The engine ignores the
// task if the instance left that phase in the meantime.
//
// # Usage
//
// Services usually call EnqueueStart and EnqueueSignal from request
// handlers and run one or more workers in background goroutines:
//
//	w := worker.NewWithConfig(eng, queue, worker.Config{MaxAttempts: 3})
//	go w.Run(ctx)
//
// Several workers can share one queue. Work on a single instance is
// serialized by the engine.
package worker
