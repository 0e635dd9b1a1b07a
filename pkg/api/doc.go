// Package api contains the types shared by the docflow engine, its stores,
// workers and transports.
//
// Most users interact with the higher-level docflow package, which re-exports
// selected types and helpers from this package. The api package is intended
// for custom integrations, such as a new history store, notifier or
// transport.
//
// # Concepts
//
//   - DocumentProperties: the immutable input of an instance.
//   - Signals: the four named external events (three feedbacks and the
//     submission approval) an instance waits for.
//   - HistoryEntry: one record of an instance's append-only history log.
//     The log is the only persisted state; every other view is a projection.
//   - Instance: the projection returned to callers (runtime state, custom
//     status, output, failure reason, current wait).
//   - Notifier: the side effect performed once the three feedbacks are in.
//   - Observer: lifecycle callbacks for logging and metrics.
//
// # Errors
//
// Client errors (ErrInvalidInput, ErrUnknownSignal, ErrInvalidPayload) are
// returned before anything is recorded. IsClientError groups them for
// transports that map errors to status codes.
package api
