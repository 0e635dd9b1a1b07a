package engine

import (
	"fmt"

	"github.com/petrijr/docflow/pkg/api"
)

// DeriveStatus returns the most recently recorded custom status, or "" when
// none was recorded.
func DeriveStatus(entries []api.HistoryEntry) string {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Kind != api.EntryStatusChanged {
			continue
		}
		if s, err := api.DecodePayload[string](entries[i]); err == nil {
			return s
		}
	}
	return ""
}

// Project derives the read model of an instance from its history log.
// Entries of unknown kinds are skipped.
func Project(id string, entries []api.HistoryEntry) (*api.Instance, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", api.ErrInstanceNotFound, id)
	}
	first := entries[0]
	if first.Kind != api.EntryInputRecorded {
		return nil, fmt.Errorf("%w: instance %s starts with %s", api.ErrReplayInconsistent, id, first.Kind)
	}
	props, err := api.DecodePayload[api.DocumentProperties](first)
	if err != nil {
		return nil, fmt.Errorf("%w: instance %s: %v", api.ErrReplayInconsistent, id, err)
	}

	last := entries[len(entries)-1]
	inst := &api.Instance{
		ID:           id,
		Input:        props,
		State:        api.StatePending,
		CreatedAt:    first.RecordedAt,
		UpdatedAt:    last.RecordedAt,
		LastSequence: last.Sequence,
	}

	received := make(map[api.SignalName]bool)
	dispatched := false

	for _, e := range entries[1:] {
		switch e.Kind {
		case api.EntryStatusChanged:
			if s, err := api.DecodePayload[string](e); err == nil {
				inst.Status = s
			}
			if inst.State == api.StatePending {
				inst.State = api.StateRunning
			}
		case api.EntrySignalReceived:
			received[api.SignalName(e.Name)] = true
		case api.EntryActivityCompleted:
			dispatched = true
		case api.EntryOutputSet:
			out, _ := api.DecodePayload[string](e)
			inst.Output = out
			inst.State = api.StateCompleted
		case api.EntryInstanceFailed:
			rec, _ := api.DecodePayload[api.FailureRecord](e)
			inst.Failure = rec.Reason
			inst.State = api.StateFailed
		}
	}

	if inst.State != api.StateRunning {
		return inst, nil
	}

	if !dispatched {
		inst.Phase = api.PhaseFeedback
		for _, w := range feedbackWaits {
			if !received[w.Signal] {
				inst.WaitingFor = append(inst.WaitingFor, w.Signal)
			}
		}
		return inst, nil
	}

	inst.Phase = api.PhaseApproval
	if !received[approvalWait.Signal] {
		inst.WaitingFor = []api.SignalName{approvalWait.Signal}
	}
	return inst, nil
}
