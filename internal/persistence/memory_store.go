package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/petrijr/docflow/pkg/api"
)

// InMemoryStore is a simple, goroutine-safe HistoryStore backed by a map.
// It is not durable and is meant for tests and the local runner.
type InMemoryStore struct {
	mu   sync.RWMutex
	logs map[string][]api.HistoryEntry
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		logs: make(map[string][]api.HistoryEntry),
	}
}

// Ensure InMemoryStore implements the interface.
var _ HistoryStore = (*InMemoryStore)(nil)

func (s *InMemoryStore) Append(ctx context.Context, instanceID string, entries ...api.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logs[instanceID]
	if err := checkContiguous(instanceID, int64(len(log)), entries); err != nil {
		return err
	}

	for _, e := range entries {
		e.Payload = append([]byte(nil), e.Payload...)
		log = append(log, e)
	}
	s.logs[instanceID] = log
	return nil
}

func (s *InMemoryStore) Load(ctx context.Context, instanceID string) ([]api.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.logs[instanceID]
	if !ok {
		return nil, api.ErrInstanceNotFound
	}

	out := make([]api.HistoryEntry, len(log))
	copy(out, log)
	return out, nil
}

func (s *InMemoryStore) InstanceIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.logs))
	for id := range s.logs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
