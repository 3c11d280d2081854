package gossip

import (
	"testing"
	"time"

	"github.com/duskboard/sync/pkg/clock"
	"github.com/duskboard/sync/pkg/event"
)

func sampleRecord(t *testing.T, sessionID int64, lamport int64) event.Record {
	t.Helper()
	r := event.Record{
		SessionID:    sessionID,
		LamportClock: lamport,
		Timestamp:    time.Now().UTC(),
		VectorClock:  clock.New().Increment("peer-a"),
		Body: event.ChatMessageBody{
			MessageID:  "m1",
			PeerID:     "peer-a",
			DeviceName: "Device A",
			Content:    "hello",
			CreatedAt:  time.Now().UTC(),
		},
	}
	sealed, err := r.Seal()
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	return sealed
}

func TestEncodeBatchEmptyIsEmptyString(t *testing.T) {
	got, err := EncodeBatch(nil)
	if err != nil {
		t.Fatalf("EncodeBatch: %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}

func TestEncodeDecodeBatchRoundTrip(t *testing.T) {
	records := []event.Record{sampleRecord(t, 1, 1), sampleRecord(t, 1, 2)}
	batch, err := EncodeBatch(records)
	if err != nil {
		t.Fatalf("EncodeBatch: %v", err)
	}
	if batch == "" {
		t.Fatalf("expected non-empty batch")
	}

	decoded, err := DecodeBatch(batch)
	if err != nil {
		t.Fatalf("DecodeBatch: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("decoded %d records, want 2", len(decoded))
	}
	for i, r := range decoded {
		if r.EventID != records[i].EventID {
			t.Fatalf("record %d: EventID = %q, want %q", i, r.EventID, records[i].EventID)
		}
	}
}

func TestDecodeBatchEmptyStringIsEmptyBatch(t *testing.T) {
	records, err := DecodeBatch("")
	if err != nil {
		t.Fatalf("DecodeBatch: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}
