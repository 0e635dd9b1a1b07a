package api

import (
	"context"
	"errors"
)

var (
	// ErrInvalidInput is returned for malformed start requests.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInstanceNotFound is returned when no history exists for an instance ID.
	ErrInstanceNotFound = errors.New("instance not found")

	// ErrUnknownSignal is returned for signal names outside Signals.
	ErrUnknownSignal = errors.New("unknown signal")

	// ErrInvalidPayload is returned when a signal payload does not decode
	// into the type the signal carries.
	ErrInvalidPayload = errors.New("invalid signal payload")

	// ErrSequenceConflict is returned by history stores when an append does
	// not continue the stored log, typically because another writer won.
	ErrSequenceConflict = errors.New("history sequence conflict")

	// ErrReplayInconsistent marks a history the control logic cannot
	// reproduce. Instances hitting it are failed with a diagnostic.
	ErrReplayInconsistent = errors.New("replay inconsistent with history")
)

// IsClientError reports whether err was caused by the caller's request
// rather than by the engine or its storage.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrUnknownSignal) ||
		errors.Is(err, ErrInvalidPayload)
}

// Starter creates and starts instances.
type Starter interface {
	Start(ctx context.Context, props DocumentProperties) (*Instance, error)
}

// Signaler delivers signals to instances.
type Signaler interface {
	Signal(ctx context.Context, id string, name SignalName, payload any) (*SignalResult, error)
}

// Engine is the orchestration engine API.
type Engine interface {
	Starter
	Signaler

	// Create validates props and records them as the first history entry.
	// The instance stays StatePending until Resume runs it.
	Create(ctx context.Context, props DocumentProperties) (*Instance, error)

	// Resume replays the history log of an instance and drives it to its
	// next suspension point, completion or failure. Calling it on a
	// finished instance returns the recorded outcome.
	Resume(ctx context.Context, id string) (*Instance, error)

	// Timeout records that the wait in the given phase expired. It is a
	// no-op unless the instance is still parked in that phase.
	Timeout(ctx context.Context, id string, phase Phase) (*Instance, error)

	// GetInstance projects the current state of an instance from its history.
	GetInstance(ctx context.Context, id string) (*Instance, error)

	// History returns the ordered history log of an instance.
	History(ctx context.Context, id string) ([]HistoryEntry, error)

	// ListInstances pages through the instance directory.
	ListInstances(ctx context.Context, opts InstanceListOptions) (*InstancePage, error)

	// Recover rebuilds the instance directory from the history store and
	// resumes every instance that is not finished. It is intended to run
	// once on process startup. It returns the number of resumed instances.
	Recover(ctx context.Context) (int, error)
}
