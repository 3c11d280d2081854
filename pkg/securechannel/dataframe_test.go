package securechannel

import "testing"

func testKey(b byte) [32]byte {
	var k [32]byte
	for i := range k {
		k[i] = b
	}
	return k
}

func TestDataPayloadRoundTrip(t *testing.T) {
	aead, err := newAEAD(testKey(0x11))
	if err != nil {
		t.Fatalf("newAEAD: %v", err)
	}
	var sessionID [16]byte
	sessionID[0] = 0x01
	salt, err := newSendSalt()
	if err != nil {
		t.Fatalf("newSendSalt: %v", err)
	}

	plaintext := []byte("roll for initiative")
	payload := encodeDataPayload(aead, sessionID, salt, 7, plaintext)

	got, seq, err := decodeDataPayload(aead, sessionID, payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if seq != 7 {
		t.Fatalf("seq = %d, want 7", seq)
	}
	if string(got) != string(plaintext) {
		t.Fatalf("plaintext = %q, want %q", got, plaintext)
	}
}

func TestDataPayloadDetectsTamperedCiphertext(t *testing.T) {
	aead, _ := newAEAD(testKey(0x22))
	var sessionID [16]byte
	salt, _ := newSendSalt()
	payload := encodeDataPayload(aead, sessionID, salt, 1, []byte("hello"))
	payload[len(payload)-1] ^= 0xFF

	if _, _, err := decodeDataPayload(aead, sessionID, payload); err != ErrCryptographicFailure {
		t.Fatalf("expected ErrCryptographicFailure, got %v", err)
	}
}

func TestDataPayloadDetectsWrongSessionID(t *testing.T) {
	aead, _ := newAEAD(testKey(0x33))
	var sessionA, sessionB [16]byte
	sessionA[0] = 0xAA
	sessionB[0] = 0xBB
	salt, _ := newSendSalt()
	payload := encodeDataPayload(aead, sessionA, salt, 1, []byte("hello"))

	if _, _, err := decodeDataPayload(aead, sessionB, payload); err != ErrCryptographicFailure {
		t.Fatalf("expected ErrCryptographicFailure with mismatched session id, got %v", err)
	}
}

func TestDataPayloadRejectsTruncated(t *testing.T) {
	aead, _ := newAEAD(testKey(0x44))
	var sessionID [16]byte
	if _, _, err := decodeDataPayload(aead, sessionID, []byte{1, 2, 3}); err != ErrCryptographicFailure {
		t.Fatalf("expected ErrCryptographicFailure for truncated payload, got %v", err)
	}
}
