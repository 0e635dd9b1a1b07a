package api

import (
	"encoding/json"
	"fmt"
	"time"
)

// EntryKind identifies a history log record.
type EntryKind string

const (
	EntryInputRecorded     EntryKind = "InputRecorded"
	EntrySignalReceived    EntryKind = "SignalReceived"
	EntryActivityCompleted EntryKind = "ActivityCompleted"
	EntryStatusChanged     EntryKind = "StatusChanged"
	EntryOutputSet         EntryKind = "OutputSet"
	EntryTimerFired        EntryKind = "TimerFired"
	EntryInstanceFailed    EntryKind = "InstanceFailed"
)

// Known reports whether k is a kind the engine understands.
func (k EntryKind) Known() bool {
	switch k {
	case EntryInputRecorded, EntrySignalReceived, EntryActivityCompleted,
		EntryStatusChanged, EntryOutputSet, EntryTimerFired, EntryInstanceFailed:
		return true
	}
	return false
}

// Decision reports whether entries of kind k are produced by the control
// logic itself. Everything else is an input delivered from outside.
func (k EntryKind) Decision() bool {
	switch k {
	case EntryActivityCompleted, EntryStatusChanged, EntryOutputSet, EntryInstanceFailed:
		return true
	}
	return false
}

// Terminal reports whether k closes the log.
func (k EntryKind) Terminal() bool {
	return k == EntryOutputSet || k == EntryInstanceFailed
}

// HistoryEntry is one append-only record of an instance's history log.
//
// Sequence starts at 1 and has no gaps. Name carries the signal name for
// SignalReceived and the phase for TimerFired; Payload is JSON.
type HistoryEntry struct {
	Sequence   int64
	Kind       EntryKind
	RecordedAt time.Time
	Name       string
	Payload    json.RawMessage
}

func (e HistoryEntry) String() string {
	if e.Name != "" {
		return fmt.Sprintf("#%d %s(%s) %s", e.Sequence, e.Kind, e.Name, e.Payload)
	}
	return fmt.Sprintf("#%d %s %s", e.Sequence, e.Kind, e.Payload)
}

// ActivityResult is the payload of an ActivityCompleted entry.
type ActivityResult struct {
	Acknowledged bool `json:"acknowledged"`
	Attempts     int  `json:"attempts"`
}

// FailureRecord is the payload of an InstanceFailed entry.
type FailureRecord struct {
	Reason string `json:"reason"`
}

// NewEntry builds an entry with v marshalled as its payload.
func NewEntry(seq int64, kind EntryKind, name string, v any, at time.Time) (HistoryEntry, error) {
	var payload json.RawMessage
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			return HistoryEntry{}, fmt.Errorf("encode %s payload: %w", kind, err)
		}
		payload = b
	}
	return HistoryEntry{
		Sequence:   seq,
		Kind:       kind,
		RecordedAt: at.UTC(),
		Name:       name,
		Payload:    payload,
	}, nil
}

// DecodePayload unmarshals the payload of e into T.
func DecodePayload[T any](e HistoryEntry) (T, error) {
	var v T
	if len(e.Payload) == 0 {
		return v, fmt.Errorf("%s entry #%d has no payload", e.Kind, e.Sequence)
	}
	if err := json.Unmarshal(e.Payload, &v); err != nil {
		return v, fmt.Errorf("decode %s entry #%d: %w", e.Kind, e.Sequence, err)
	}
	return v, nil
}
