// Package docflow is a durable, multi-party document-approval engine.
//
// A document enters the pipeline, three reviewers (interview, background
// check, contract) send their feedback in any order, the combined work
// document is handed to a notifier exactly once, and a final approval
// closes the instance. Every instance survives process restarts.
//
// # Core Concepts
//
//  1. Engine
//  2. History log
//  3. Signals
//  4. Worker
//  5. LocalRunner
//
// # Engine
//
// The Engine owns the fixed control logic and provides APIs to:
//   - start instances (Start, or Create followed by Resume)
//   - deliver signals
//   - expire waits (Timeout)
//   - read instance state and history
//   - list instances and recover them after a restart
//
// Engines can be backed by different storage systems:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded durability)
//   - Postgres
//   - Redis
//   - MongoDB
//
// # History log
//
// The only persisted state of an instance is its append-only history log.
// Resuming an instance replays the log: recorded signals are fed back in
// their original order and recorded decisions are reused, so the notifier
// is never called twice and no received signal is lost.
//
// # Signals
//
// InterviewFeedback, BackgroundCheckFeedback and ContractFeedback carry a
// Feedback value; SubmissionApproval carries a bool. A signal may arrive
// before the instance waits for it. Repeated signals are reported as
// AlreadySatisfied and change nothing.
//
// # Worker
//
// A Worker pulls run, signal and timeout tasks from a queue and applies
// them to the engine, retrying failed tasks with backoff. Queues exist for
// memory, SQLite, Postgres, Redis and MongoDB.
//
// # LocalRunner
//
// LocalRunner bundles an in-memory engine, queue and worker goroutines into
// a single process-local helper for development and unit testing. It is
// intentionally not crash-durable; use NewSQLiteBundle or the docflow
// command for that.
package docflow
