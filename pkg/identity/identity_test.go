package identity

import (
	"context"
	"testing"
)

func TestInitializeIsIdempotent(t *testing.T) {
	m := NewManager(NewMemStorage(), nil)
	ctx := context.Background()

	if err := m.Initialize(ctx, "Peer-0001"); err != nil {
		t.Fatalf("first initialize: %v", err)
	}
	first, err := m.Identity()
	if err != nil {
		t.Fatalf("identity: %v", err)
	}

	if err := m.Initialize(ctx, "ignored-second-call"); err != nil {
		t.Fatalf("second initialize: %v", err)
	}
	second, err := m.Identity()
	if err != nil {
		t.Fatalf("identity: %v", err)
	}

	if first != second {
		t.Fatalf("second initialize mutated identity: %+v vs %+v", first, second)
	}
	if second.DeviceName != "Peer-0001" {
		t.Fatalf("expected fallback device name to stick, got %q", second.DeviceName)
	}
}

func TestInitializeReloadsPersistedKeys(t *testing.T) {
	storage := NewMemStorage()
	ctx := context.Background()

	m1 := NewManager(storage, nil)
	if err := m1.Initialize(ctx, "Peer-0002"); err != nil {
		t.Fatalf("initialize m1: %v", err)
	}
	id1, _ := m1.Identity()

	m2 := NewManager(storage, nil)
	if err := m2.Initialize(ctx, "Peer-0002"); err != nil {
		t.Fatalf("initialize m2: %v", err)
	}
	id2, _ := m2.Identity()

	if id1 != id2 {
		t.Fatalf("expected identity reloaded from storage to match: %+v vs %+v", id1, id2)
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	m := NewManager(NewMemStorage(), nil)
	ctx := context.Background()
	if err := m.Initialize(ctx, "Peer-0003"); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	id, _ := m.Identity()

	data := []byte("roll: 2d6+3")
	sig, err := m.Sign(data)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !Verify(data, sig[:], id.IdentityPublicKey[:]) {
		t.Fatalf("expected valid signature to verify")
	}
	if Verify([]byte("tampered"), sig[:], id.IdentityPublicKey[:]) {
		t.Fatalf("expected tampered data to fail verification")
	}

	var wrongKey [32]byte
	if Verify(data, sig[:], wrongKey[:]) {
		t.Fatalf("expected verification against wrong key to fail")
	}
}

func TestVerifyRejectsMalformedInputsWithoutPanicking(t *testing.T) {
	if Verify([]byte("x"), []byte("short"), make([]byte, 32)) {
		t.Fatalf("expected short signature to fail verification")
	}
	if Verify([]byte("x"), make([]byte, 64), []byte("short")) {
		t.Fatalf("expected short public key to fail verification")
	}
}

func TestDerivePeerIDIsDeterministicAndFixedLength(t *testing.T) {
	m := NewManager(NewMemStorage(), nil)
	ctx := context.Background()
	if err := m.Initialize(ctx, "Peer-0004"); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	id, _ := m.Identity()

	again := DerivePeerID(id.IdentityPublicKey[:])
	if again != id.PeerID {
		t.Fatalf("peer id derivation is not deterministic: %q vs %q", again, id.PeerID)
	}
	if len(id.PeerID) != PeerIDLength {
		t.Fatalf("expected peer id length %d, got %d (%q)", PeerIDLength, len(id.PeerID), id.PeerID)
	}
	for _, r := range id.PeerID {
		if !containsRune(PeerIDAlphabet, r) {
			t.Fatalf("peer id %q contains symbol %q outside alphabet", id.PeerID, r)
		}
	}
}

func containsRune(s string, r rune) bool {
	for _, c := range s {
		if c == r {
			return true
		}
	}
	return false
}

func TestComputeSharedSecretIsSymmetric(t *testing.T) {
	a, err := GenerateEphemeralKXPair()
	if err != nil {
		t.Fatalf("generate a: %v", err)
	}
	b, err := GenerateEphemeralKXPair()
	if err != nil {
		t.Fatalf("generate b: %v", err)
	}
	defer a.Zeroize()
	defer b.Zeroize()

	secretA, err := ComputeSharedSecret(a.Private, b.Public)
	if err != nil {
		t.Fatalf("compute secret a: %v", err)
	}
	secretB, err := ComputeSharedSecret(b.Private, a.Public)
	if err != nil {
		t.Fatalf("compute secret b: %v", err)
	}
	if secretA != secretB {
		t.Fatalf("expected symmetric DH to agree: %x vs %x", secretA, secretB)
	}
}

func TestComputeStaticSharedSecretRequiresInitialize(t *testing.T) {
	m := NewManager(NewMemStorage(), nil)
	var remote [32]byte
	if _, err := m.ComputeStaticSharedSecret(remote); err != ErrNotInitialized {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestOperationsBeforeInitializeFail(t *testing.T) {
	m := NewManager(NewMemStorage(), nil)
	if _, err := m.Identity(); err != ErrNotInitialized {
		t.Fatalf("expected ErrNotInitialized from Identity, got %v", err)
	}
	if _, err := m.Sign([]byte("x")); err != ErrNotInitialized {
		t.Fatalf("expected ErrNotInitialized from Sign, got %v", err)
	}
}
