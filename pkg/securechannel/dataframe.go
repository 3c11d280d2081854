package securechannel

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// dataFrame is the parsed form of §6's Data payload layout:
// seq(8) || nonce(12) || cipher_len(4) || ciphertext || tag(16).
type dataFrame struct {
	seq        uint64
	nonce      [12]byte
	ciphertext []byte // includes the 16-byte GCM tag
}

func newAEAD(key [32]byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("securechannel: new aes cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

func newSendSalt() ([4]byte, error) {
	var salt [4]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return salt, fmt.Errorf("securechannel: generate nonce salt: %w", err)
	}
	return salt, nil
}

// buildNonce concatenates the per-channel 4-byte salt with the 8-byte
// big-endian sequence number to make the 12-byte AES-GCM nonce (§4.G).
func buildNonce(salt [4]byte, seq uint64) [12]byte {
	var nonce [12]byte
	copy(nonce[:4], salt[:])
	binary.BigEndian.PutUint64(nonce[4:], seq)
	return nonce
}

// encodeDataPayload seals plaintext under aead with sessionID as
// associated data and renders the §6 Data wire payload.
func encodeDataPayload(aead cipher.AEAD, sessionID [16]byte, salt [4]byte, seq uint64, plaintext []byte) []byte {
	nonce := buildNonce(salt, seq)
	ciphertext := aead.Seal(nil, nonce[:], plaintext, sessionID[:])

	payload := make([]byte, 0, 8+12+4+len(ciphertext))
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], seq)
	payload = append(payload, seqBytes[:]...)
	payload = append(payload, nonce[:]...)
	var lenBytes [4]byte
	binary.BigEndian.PutUint32(lenBytes[:], uint32(len(ciphertext)))
	payload = append(payload, lenBytes[:]...)
	payload = append(payload, ciphertext...)
	return payload
}

// beBytes renders seq as 8 big-endian bytes, used by Ack frame bodies.
func beBytes(seq uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return buf
}

// beUint64 parses an 8-byte big-endian Ack frame body.
func beUint64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// decodeDataPayload parses and opens a §6 Data wire payload.
func decodeDataPayload(aead cipher.AEAD, sessionID [16]byte, payload []byte) (plaintext []byte, seq uint64, err error) {
	if len(payload) < 8+12+4 {
		return nil, 0, ErrCryptographicFailure
	}
	seq = binary.BigEndian.Uint64(payload[0:8])
	var nonce [12]byte
	copy(nonce[:], payload[8:20])
	cipherLen := binary.BigEndian.Uint32(payload[20:24])
	if len(payload[24:]) != int(cipherLen) {
		return nil, seq, ErrCryptographicFailure
	}
	ciphertext := payload[24:]

	plaintext, err = aead.Open(nil, nonce[:], ciphertext, sessionID[:])
	if err != nil {
		return nil, seq, ErrCryptographicFailure
	}
	return plaintext, seq, nil
}
