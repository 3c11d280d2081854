package materializer

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/duskboard/sync/pkg/clock"
	"github.com/duskboard/sync/pkg/event"
	"github.com/duskboard/sync/pkg/identity"
)

func seal(t *testing.T, r event.Record) event.Record {
	t.Helper()
	sealed, err := r.Seal()
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	return sealed
}

func chatEvent(t *testing.T, lamport int64, content string, after *string) event.Record {
	t.Helper()
	return seal(t, event.Record{
		SessionID:    3,
		LamportClock: lamport,
		Timestamp:    time.Now().UTC(),
		VectorClock:  clock.New().Increment("PEERAAAAAA"),
		Body: event.ChatMessageBody{
			MessageID:    content + "-msg",
			PeerID:       "PEERAAAAAA",
			DeviceName:   "Test",
			Content:      content,
			CreatedAt:    time.Now().UTC(),
			AfterEventID: after,
		},
	})
}

func TestMaterializeChatAnchoredOrdering(t *testing.T) {
	r1 := chatEvent(t, 1, "first", nil)
	after1 := r1.EventID
	r2 := chatEvent(t, 2, "second", &after1)
	after2 := r2.EventID
	r3 := chatEvent(t, 3, "third", &after2)

	state := Materialize([]event.Record{r3, r1, r2}, nil)

	if len(state.Chat) != 3 {
		t.Fatalf("expected 3 chat entries, got %d", len(state.Chat))
	}
	got := []string{state.Chat[0].Content, state.Chat[1].Content, state.Chat[2].Content}
	want := []string{"first", "second", "third"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected chat order %v, got %v", want, got)
		}
	}
}

func TestMaterializeChatDedupByMessageID(t *testing.T) {
	r1 := chatEvent(t, 1, "first", nil)
	dup := r1
	dup.LamportClock = 2
	dup.VectorClock = dup.VectorClock.Increment("PEERAAAAAA")
	dup = seal(t, dup)

	state := Materialize([]event.Record{r1, dup}, nil)
	if len(state.Chat) != 1 {
		t.Fatalf("expected dedup to a single chat entry, got %d", len(state.Chat))
	}
}

func presenceEvent(t *testing.T, lamport int64, version uint64, isOnline bool, updatedAt time.Time) event.Record {
	t.Helper()
	return seal(t, event.Record{
		SessionID:    5,
		LamportClock: lamport,
		Timestamp:    time.Now().UTC(),
		VectorClock:  clock.New().Increment("PEERAAAAAA"),
		Body: event.PresenceBody{
			PeerID:     "peer-A",
			IsOnline:   isOnline,
			Version:    version,
			UpdatedAt:  updatedAt,
			DeviceName: "Test",
			ChangeID:   "cid",
		},
	})
}

func TestMaterializePresenceLWWByVersion(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r1 := presenceEvent(t, 1, 1, true, base)
	r2 := presenceEvent(t, 2, 2, false, base.Add(time.Second))

	state := Materialize([]event.Record{r1, r2}, nil)
	p, ok := state.Presence["peer-A"]
	if !ok {
		t.Fatalf("expected presence for peer-A")
	}
	if p.IsOnline {
		t.Fatalf("expected isOnline=false (higher version wins), got true")
	}
}

func TestMaterializePresenceOutOfOrderDeliveryStillConverges(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r1 := presenceEvent(t, 1, 1, true, base)
	r2 := presenceEvent(t, 2, 2, false, base.Add(time.Second))

	// Deliver in reverse order: the fold must still pick the higher
	// version regardless of materialization order.
	state := Materialize([]event.Record{r2, r1}, nil)
	p := state.Presence["peer-A"]
	if p.IsOnline {
		t.Fatalf("expected isOnline=false, got true")
	}
}

func flagEvent(t *testing.T, lamport int64, version uint64, value *string, updatedAt time.Time) event.Record {
	t.Helper()
	return seal(t, event.Record{
		SessionID:    10,
		LamportClock: lamport,
		Timestamp:    time.Now().UTC(),
		VectorClock:  clock.New().Increment("PEERAAAAAA"),
		Body: event.FlagUpdateBody{
			Key:       "world",
			Value:     value,
			Version:   version,
			UpdatedAt: updatedAt,
			ChangeID:  "cid",
		},
	})
}

func strPtr(s string) *string { return &s }

func TestMaterializeFlagUpdateNullValueDeletes(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r1 := flagEvent(t, 1, 1, strPtr("alpha"), base)
	r2 := flagEvent(t, 2, 2, nil, base.Add(time.Second))

	state := Materialize([]event.Record{r1, r2}, nil)
	if _, exists := state.Flags["world"]; exists {
		t.Fatalf("expected key to be deleted by winning null value")
	}
}

func TestMaterializeFlagUpdateOlderVersionLoses(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r1 := flagEvent(t, 1, 2, strPtr("alpha"), base)
	r2 := flagEvent(t, 2, 1, strPtr("beta"), base.Add(time.Second))

	state := Materialize([]event.Record{r1, r2}, nil)
	flag, ok := state.Flags["world"]
	if !ok || flag.Value != "alpha" {
		t.Fatalf("expected higher-version write alpha to win, got %+v", flag)
	}
}

func signedDiceEvent(t *testing.T, tamper bool) event.Record {
	t.Helper()
	mgr := identity.NewManager(identity.NewMemStorage(), nil)
	if err := mgr.Initialize(context.Background(), "Roller"); err != nil {
		t.Fatalf("initialize identity: %v", err)
	}
	id, err := mgr.Identity()
	if err != nil {
		t.Fatalf("identity: %v", err)
	}

	evidence := event.DiceEvidence{
		RollID:                     "roll-1",
		RollerPeerID:               id.PeerID,
		RollerDeviceName:           id.DeviceName,
		RollerIdentityPublicKeyB64: base64.StdEncoding.EncodeToString(id.IdentityPublicKey[:]),
		DiceCount:                  1,
		DiceSides:                  20,
		Modifier:                   0,
		Mode:                       event.DiceModeNormal,
		Components:                []event.DieComponent{{Value: 15, Kept: true}},
		Total:                      15,
		Formula:                    "1d20",
		Timestamp:                  time.Now().UTC(),
	}
	canonical, err := evidence.CanonicalBytes()
	if err != nil {
		t.Fatalf("canonical bytes: %v", err)
	}
	sig, err := mgr.Sign(canonical)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if tamper {
		evidence.Total = 999
	}

	return seal(t, event.Record{
		SessionID:    1,
		LamportClock: 1,
		Timestamp:    time.Now().UTC(),
		VectorClock:  clock.New().Increment(id.PeerID),
		Body:         event.DiceRollBody{Evidence: evidence, Signature: sig},
	})
}

func TestMaterializeDiceRollSignatureValid(t *testing.T) {
	r := signedDiceEvent(t, false)
	state := Materialize([]event.Record{r}, nil)
	if len(state.DiceHistory) != 1 {
		t.Fatalf("expected one dice entry, got %d", len(state.DiceHistory))
	}
	if !state.DiceHistory[0].SignatureValid {
		t.Fatalf("expected signature_valid=true for untampered evidence")
	}
}

func TestMaterializeDiceRollTamperedEvidenceInvalidatesSignature(t *testing.T) {
	r := signedDiceEvent(t, true)
	state := Materialize([]event.Record{r}, nil)
	if len(state.DiceHistory) != 1 {
		t.Fatalf("expected one dice entry, got %d", len(state.DiceHistory))
	}
	if state.DiceHistory[0].SignatureValid {
		t.Fatalf("expected signature_valid=false for tampered evidence")
	}
}

func TestMaterializeTolerantOfOrphanParent(t *testing.T) {
	ghost := "GHOSTPARENTDOESNOTEXIST"
	r := seal(t, event.Record{
		SessionID:    1,
		LamportClock: 1,
		Timestamp:    time.Now().UTC(),
		Parents:      []string{ghost},
		VectorClock:  clock.New().Increment("PEERAAAAAA"),
		Body: event.ChatMessageBody{
			MessageID:  "m1",
			PeerID:     "PEERAAAAAA",
			DeviceName: "Test",
			Content:    "hi",
			CreatedAt:  time.Now().UTC(),
		},
	})

	state := Materialize([]event.Record{r}, nil)
	if len(state.Chat) != 1 {
		t.Fatalf("expected orphan-parented event to still materialize, got %d entries", len(state.Chat))
	}
}
