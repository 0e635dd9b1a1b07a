package persistence

import (
	"context"
	"fmt"

	"github.com/petrijr/docflow/pkg/api"
)

// HistoryStore persists the append-only history log of every instance.
//
// Append must be atomic per call: either all entries are stored or none.
// The first entry's Sequence must equal the last stored sequence + 1 (1 for
// a new instance); otherwise implementations return api.ErrSequenceConflict.
type HistoryStore interface {
	Append(ctx context.Context, instanceID string, entries ...api.HistoryEntry) error

	// Load returns the log in sequence order, or api.ErrInstanceNotFound.
	Load(ctx context.Context, instanceID string) ([]api.HistoryEntry, error)

	// InstanceIDs lists every instance with at least one entry.
	InstanceIDs(ctx context.Context) ([]string, error)
}

// checkContiguous validates that entries continue a log whose last
// sequence is last.
func checkContiguous(instanceID string, last int64, entries []api.HistoryEntry) error {
	want := last + 1
	for _, e := range entries {
		if e.Sequence != want {
			return fmt.Errorf("%w: instance %s expected sequence %d, got %d",
				api.ErrSequenceConflict, instanceID, want, e.Sequence)
		}
		want++
	}
	return nil
}
