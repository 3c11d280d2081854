package event

import (
	"testing"
	"time"

	"github.com/duskboard/sync/pkg/clock"
)

func sampleChatRecord(t *testing.T) Record {
	t.Helper()
	r := Record{
		SessionID:    1,
		LamportClock: 1,
		Timestamp:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Parents:      nil,
		VectorClock:  clock.New().Increment("PEERAAAAAA"),
		Body: ChatMessageBody{
			MessageID:  "11111111-1111-1111-1111-111111111111",
			PeerID:     "PEERAAAAAA",
			DeviceName: "Alice's Tablet",
			Content:    "hello",
			CreatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		},
	}
	sealed, err := r.Seal()
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	return sealed
}

func TestSealThenVerifySucceeds(t *testing.T) {
	r := sampleChatRecord(t)
	if err := r.Verify(); err != nil {
		t.Fatalf("expected fresh record to verify, got %v", err)
	}
}

func TestVerifyDetectsTamperedField(t *testing.T) {
	r := sampleChatRecord(t)
	r.LamportClock = 999 // tamper after sealing
	if err := r.Verify(); err != ErrContentHashMismatch {
		t.Fatalf("expected ErrContentHashMismatch, got %v", err)
	}
}

func TestCanonicalPreimageSortsParentsOrdinally(t *testing.T) {
	r := sampleChatRecord(t)
	r.Parents = []string{"ZZZZ", "AAAA", "MMMM"}
	r2 := r
	r2.Parents = []string{"AAAA", "MMMM", "ZZZZ"}

	pre1, err := r.CanonicalPreimage()
	if err != nil {
		t.Fatalf("preimage 1: %v", err)
	}
	pre2, err := r2.CanonicalPreimage()
	if err != nil {
		t.Fatalf("preimage 2: %v", err)
	}
	if string(pre1) != string(pre2) {
		t.Fatalf("expected parent order to be normalized before hashing:\n%s\nvs\n%s", pre1, pre2)
	}
}

func TestWireRoundTripPreservesIdentity(t *testing.T) {
	r := sampleChatRecord(t)
	wire, err := r.ToWire()
	if err != nil {
		t.Fatalf("to wire: %v", err)
	}
	back, err := FromWire(wire)
	if err != nil {
		t.Fatalf("from wire: %v", err)
	}
	back.EventID = wire.EventID // FromWire carries the transmitted id verbatim
	if err := back.Verify(); err != nil {
		t.Fatalf("round-tripped record failed to verify: %v", err)
	}
	body, ok := back.Body.(ChatMessageBody)
	if !ok {
		t.Fatalf("expected ChatMessageBody, got %T", back.Body)
	}
	if body.Content != "hello" {
		t.Fatalf("expected content preserved, got %q", body.Content)
	}
}

func TestFlagUpdateNullValueOmittedOnWire(t *testing.T) {
	r := Record{
		SessionID:    1,
		LamportClock: 1,
		Timestamp:    time.Now().UTC(),
		VectorClock:  clock.New().Increment("PEERAAAAAA"),
		Body: FlagUpdateBody{
			Key:       "world",
			Value:     nil,
			Version:   1,
			UpdatedAt: time.Now().UTC(),
			ChangeID:  "cid-1",
		},
	}
	sealed, err := r.Seal()
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	wire, err := sealed.ToWire()
	if err != nil {
		t.Fatalf("to wire: %v", err)
	}
	if containsSubstring(wire.Payload, `"value"`) {
		t.Fatalf("expected null value to be omitted from payload, got %q", wire.Payload)
	}
	back, err := FromWire(wire)
	if err != nil {
		t.Fatalf("from wire: %v", err)
	}
	fb, ok := back.Body.(FlagUpdateBody)
	if !ok {
		t.Fatalf("expected FlagUpdateBody, got %T", back.Body)
	}
	if fb.Value != nil {
		t.Fatalf("expected nil value after round trip, got %q", *fb.Value)
	}
}

func containsSubstring(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

func TestKindStringAndValid(t *testing.T) {
	for k := KindChatMessage; k <= KindDiceRoll; k++ {
		if !k.Valid() {
			t.Fatalf("expected kind %d to be valid", k)
		}
	}
	if Kind(99).Valid() {
		t.Fatalf("expected kind 99 to be invalid")
	}
}
