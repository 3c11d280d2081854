package identity

import (
	"crypto/sha256"
	"encoding/base32"
)

// PeerIDAlphabet is the 32-symbol alphabet used to render a peer_id.
// It is a Crockford-style base32 alphabet: the digits 0-9 followed by
// the uppercase letters with I, L, O and U removed to avoid visual
// confusion with 1, 1, 0 and V.
const PeerIDAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// PeerIDLength is the fixed length of a rendered peer_id.
const PeerIDLength = 10

// peerIDEncoding is a no-padding base32 encoding over PeerIDAlphabet.
// Six input bytes (48 bits) always render as exactly 10 symbols (50
// bits, the trailing 2 bits are zero-padded by the encoding itself),
// so PeerIDLength is a property of the encoding, not a separate check.
var peerIDEncoding = base32.NewEncoding(PeerIDAlphabet).WithPadding(base32.NoPadding)

// DerivePeerID computes the peer_id fingerprint of an Ed25519 identity
// public key: the base32 (PeerIDAlphabet) of the leading 6 bytes of
// SHA-256(identityPublicKey), rendered as an uppercase 10-character
// string.
func DerivePeerID(identityPublicKey []byte) string {
	sum := sha256.Sum256(identityPublicKey)
	return peerIDEncoding.EncodeToString(sum[:6])
}
