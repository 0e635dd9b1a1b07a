package persistence

import (
	"encoding/json"
	"time"

	"github.com/petrijr/docflow/pkg/api"
)

// wireEntry is the JSON form of a history entry used by key-value backends.
type wireEntry struct {
	Seq     int64           `json:"seq"`
	Kind    string          `json:"kind"`
	Name    string          `json:"name,omitempty"`
	At      int64           `json:"at"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EncodeEntry serializes a history entry to JSON.
func EncodeEntry(e api.HistoryEntry) ([]byte, error) {
	return json.Marshal(wireEntry{
		Seq:     e.Sequence,
		Kind:    string(e.Kind),
		Name:    e.Name,
		At:      e.RecordedAt.UnixNano(),
		Payload: e.Payload,
	})
}

// DecodeEntry is the inverse of EncodeEntry.
func DecodeEntry(data []byte) (api.HistoryEntry, error) {
	var w wireEntry
	if err := json.Unmarshal(data, &w); err != nil {
		return api.HistoryEntry{}, err
	}
	return api.HistoryEntry{
		Sequence:   w.Seq,
		Kind:       api.EntryKind(w.Kind),
		Name:       w.Name,
		RecordedAt: time.Unix(0, w.At).UTC(),
		Payload:    w.Payload,
	}, nil
}
