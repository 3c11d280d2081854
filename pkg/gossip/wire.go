package gossip

import (
	"encoding/json"

	"github.com/duskboard/sync/pkg/event"
)

// EncodeBatch renders records as §4.H's wire batch: a JSON array of
// WireRecord, or the empty string for an empty batch.
func EncodeBatch(records []event.Record) (string, error) {
	if len(records) == 0 {
		return "", nil
	}
	wire := make([]event.WireRecord, 0, len(records))
	for _, r := range records {
		w, err := r.ToWire()
		if err != nil {
			return "", err
		}
		wire = append(wire, w)
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeBatch parses a §4.H wire batch back into typed records. It
// does not verify content hashes — callers must route the result
// through syncengine.Engine.Import, which verifies every record as
// part of one atomic batch decision (I1, P2).
func DecodeBatch(batch string) ([]event.Record, error) {
	if batch == "" {
		return nil, nil
	}
	var wire []event.WireRecord
	if err := json.Unmarshal([]byte(batch), &wire); err != nil {
		return nil, err
	}
	records := make([]event.Record, 0, len(wire))
	for _, w := range wire {
		r, err := event.FromWire(w)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}
