// Package correlation buffers signals per instance until the control logic
// consumes them.
//
// The table is process-wide. The engine rebuilds an instance's slots from
// its history log on every replay, so the table never needs persisting.
package correlation

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/petrijr/docflow/pkg/api"
)

// Result is the outcome of Deliver.
type Result int

const (
	Accepted Result = iota
	UnknownInstance
	AlreadySatisfied
	UnknownSignal
)

func (r Result) String() string {
	switch r {
	case Accepted:
		return "Accepted"
	case UnknownInstance:
		return "UnknownInstance"
	case AlreadySatisfied:
		return "AlreadySatisfied"
	case UnknownSignal:
		return "UnknownSignal"
	}
	return "Result(?)"
}

type slot struct {
	payload  json.RawMessage
	order    int
	consumed bool
}

type instanceSlots struct {
	mu    sync.Mutex
	slots map[api.SignalName]*slot
	next  int
}

// Table holds at most one slot per (instance, signal name).
type Table struct {
	instances sync.Map // string -> *instanceSlots
}

// New returns an empty table.
func New() *Table {
	return &Table{}
}

func (t *Table) get(id string) (*instanceSlots, bool) {
	v, ok := t.instances.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*instanceSlots), true
}

// Register makes id known. Registering twice keeps the existing slots.
func (t *Table) Register(id string) {
	t.instances.LoadOrStore(id, &instanceSlots{slots: make(map[api.SignalName]*slot)})
}

// Reset clears every slot of id and registers it if needed.
func (t *Table) Reset(id string) {
	t.Register(id)
	s, _ := t.get(id)
	s.mu.Lock()
	s.slots = make(map[api.SignalName]*slot)
	s.next = 0
	s.mu.Unlock()
}

// Forget drops id entirely. A later Register starts from scratch.
func (t *Table) Forget(id string) {
	t.instances.Delete(id)
}

// Known reports whether id was registered.
func (t *Table) Known(id string) bool {
	_, ok := t.get(id)
	return ok
}

// Deliver stores payload in the slot for name. A slot is filled once; later
// deliveries return AlreadySatisfied and leave the first payload in place.
func (t *Table) Deliver(id string, name api.SignalName, payload json.RawMessage) Result {
	if !name.Valid() {
		return UnknownSignal
	}
	s, ok := t.get(id)
	if !ok {
		return UnknownInstance
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, filled := s.slots[name]; filled {
		return AlreadySatisfied
	}
	s.slots[name] = &slot{
		payload: append(json.RawMessage(nil), payload...),
		order:   s.next,
	}
	s.next++
	return Accepted
}

// Delivered reports whether a signal with that name has been delivered,
// whether or not it was consumed since.
func (t *Table) Delivered(id string, name api.SignalName) bool {
	s, ok := t.get(id)
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, filled := s.slots[name]
	return filled
}

// TryConsume returns the buffered payload for name and marks it consumed.
// It returns false when nothing was delivered or the slot was already
// consumed.
func (t *Table) TryConsume(id string, name api.SignalName) (json.RawMessage, bool) {
	s, ok := t.get(id)
	if !ok {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sl, filled := s.slots[name]
	if !filled || sl.consumed {
		return nil, false
	}
	sl.consumed = true
	return sl.payload, true
}

// Pending lists delivered but unconsumed signals in delivery order.
func (t *Table) Pending(id string) []api.SignalName {
	s, ok := t.get(id)
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	type pending struct {
		name  api.SignalName
		order int
	}
	var ps []pending
	for name, sl := range s.slots {
		if !sl.consumed {
			ps = append(ps, pending{name: name, order: sl.order})
		}
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].order < ps[j].order })

	out := make([]api.SignalName, len(ps))
	for i, p := range ps {
		out[i] = p.name
	}
	return out
}
