package securechannel

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/duskboard/sync/pkg/identity"
)

// keySchedInfo is the fixed HKDF info string for the post-handshake
// key schedule (§4.G step 4).
const keySchedInfo = "dndgame:p2p"

// HandshakeMessage is the payload both HandshakeHello and HandshakeAck
// carry — the two sides differ only in frame code, not shape (§4.G).
type HandshakeMessage struct {
	SessionID            [16]byte
	PeerID               string
	DeviceName           string
	IdentityPublicKey    [32]byte
	KeyExchangePublicKey [32]byte
	EphemeralPublicKey   [32]byte
	Signature            [64]byte
}

// signedPayload is exactly what §4.G says is signed:
// session_id_bytes || ephemeral_public || key_exchange_public.
func (m HandshakeMessage) signedPayload() []byte {
	buf := make([]byte, 0, 16+32+32)
	buf = append(buf, m.SessionID[:]...)
	buf = append(buf, m.EphemeralPublicKey[:]...)
	buf = append(buf, m.KeyExchangePublicKey[:]...)
	return buf
}

// MarshalBinary renders the full handshake message as bytes: the
// length-prefixed string fields followed by the fixed-size key and
// signature material. This exact encoding is also what §4.G's
// transcript hash consumes as "hello_bytes"/"ack_bytes".
func (m HandshakeMessage) MarshalBinary() []byte {
	buf := new(bytes.Buffer)
	buf.Write(m.SessionID[:])
	writeLengthPrefixedString(buf, m.PeerID)
	writeLengthPrefixedString(buf, m.DeviceName)
	buf.Write(m.IdentityPublicKey[:])
	buf.Write(m.KeyExchangePublicKey[:])
	buf.Write(m.EphemeralPublicKey[:])
	buf.Write(m.Signature[:])
	return buf.Bytes()
}

func writeLengthPrefixedString(buf *bytes.Buffer, s string) {
	var lenBytes [2]byte
	binary.BigEndian.PutUint16(lenBytes[:], uint16(len(s)))
	buf.Write(lenBytes[:])
	buf.WriteString(s)
}

// UnmarshalHandshakeMessage parses the MarshalBinary encoding back into
// a HandshakeMessage.
func UnmarshalHandshakeMessage(data []byte) (HandshakeMessage, error) {
	var m HandshakeMessage
	r := bytes.NewReader(data)
	if _, err := io.ReadFull(r, m.SessionID[:]); err != nil {
		return m, err
	}
	peerID, err := readLengthPrefixedString(r)
	if err != nil {
		return m, err
	}
	m.PeerID = peerID
	deviceName, err := readLengthPrefixedString(r)
	if err != nil {
		return m, err
	}
	m.DeviceName = deviceName
	if _, err := io.ReadFull(r, m.IdentityPublicKey[:]); err != nil {
		return m, err
	}
	if _, err := io.ReadFull(r, m.KeyExchangePublicKey[:]); err != nil {
		return m, err
	}
	if _, err := io.ReadFull(r, m.EphemeralPublicKey[:]); err != nil {
		return m, err
	}
	if _, err := io.ReadFull(r, m.Signature[:]); err != nil {
		return m, err
	}
	return m, nil
}

func readLengthPrefixedString(r *bytes.Reader) (string, error) {
	var lenBytes [2]byte
	if _, err := io.ReadFull(r, lenBytes[:]); err != nil {
		return "", err
	}
	length := binary.BigEndian.Uint16(lenBytes[:])
	buf := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
	}
	return string(buf), nil
}

// BuildHandshakeMessage assembles and signs this side's handshake
// message using its persisted identity and a fresh ephemeral keypair.
func BuildHandshakeMessage(mgr *identity.Manager, sessionID [16]byte, ephemeral *identity.EphemeralKXKeyPair) (HandshakeMessage, error) {
	id, err := mgr.Identity()
	if err != nil {
		return HandshakeMessage{}, err
	}
	m := HandshakeMessage{
		SessionID:            sessionID,
		PeerID:               id.PeerID,
		DeviceName:           id.DeviceName,
		IdentityPublicKey:    id.IdentityPublicKey,
		KeyExchangePublicKey: id.KeyExchangePublicKey,
		EphemeralPublicKey:   ephemeral.Public,
	}
	sig, err := mgr.Sign(m.signedPayload())
	if err != nil {
		return HandshakeMessage{}, err
	}
	m.Signature = sig
	return m, nil
}

// VerifyHandshakeMessage implements §4.G's two verification checks:
// the claimed peer_id matches the identity key's fingerprint, and the
// signature verifies against that same identity key.
func VerifyHandshakeMessage(m HandshakeMessage) error {
	if identity.DerivePeerID(m.IdentityPublicKey[:]) != m.PeerID {
		return ErrPeerIdentityMismatch
	}
	if !identity.Verify(m.signedPayload(), m.Signature[:], m.IdentityPublicKey[:]) {
		return ErrHandshakeSignatureInvalid
	}
	return nil
}

// rawDH performs X25519 Diffie-Hellman without any HKDF wrapping — the
// key schedule below applies a single HKDF pass over the concatenation
// of all four raw DH outputs, rather than wrapping each individually
// (distinct from identity.ComputeSharedSecret, which is used by the
// non-channel static-secret callers in §4.A).
func rawDH(localPrivate, remotePublic [32]byte) ([32]byte, error) {
	var out [32]byte
	dh, err := curve25519.X25519(localPrivate[:], remotePublic[:])
	if err != nil {
		return out, err
	}
	copy(out[:], dh)
	return out, nil
}

// sharedSecrets is the s1..s4 tuple §4.G step 1 computes, before the
// responder's s2/s3 swap.
type sharedSecrets struct {
	s1, s2, s3, s4 [32]byte
}

// computeSharedSecrets derives s1 (ephemeral-ephemeral) and s2
// (ephemeral-static) directly from the caller's own ephemeral private
// key, and asks mgr for s3/s4 via RawStaticDH since the persistent
// static private key never leaves the identity package.
func computeSharedSecrets(mgr *identity.Manager, localEphPriv, remoteEphPub, remoteStaticPub [32]byte) (sharedSecrets, error) {
	var out sharedSecrets
	var err error
	if out.s1, err = rawDH(localEphPriv, remoteEphPub); err != nil {
		return out, err
	}
	if out.s2, err = rawDH(localEphPriv, remoteStaticPub); err != nil {
		return out, err
	}
	if out.s3, err = mgr.RawStaticDH(remoteEphPub); err != nil {
		return out, err
	}
	if out.s4, err = mgr.RawStaticDH(remoteStaticPub); err != nil {
		return out, err
	}
	return out, nil
}

// channelKeys is the derived send/recv key pair for one side of a
// channel.
type channelKeys struct {
	sendKey [32]byte
	recvKey [32]byte
}

// deriveChannelKeys implements §4.G steps 2-5: the responder swaps
// s2/s3 so both sides concatenate the same four secrets in the same
// order, the transcript salts a single HKDF pass over that
// concatenation, and the resulting 64 bytes split into send/recv with
// the initiator/responder swap.
func deriveChannelKeys(secrets sharedSecrets, isResponder bool, helloBytes, ackBytes []byte) (channelKeys, error) {
	if isResponder {
		secrets.s2, secrets.s3 = secrets.s3, secrets.s2
	}

	ikm := make([]byte, 0, 128)
	ikm = append(ikm, secrets.s1[:]...)
	ikm = append(ikm, secrets.s2[:]...)
	ikm = append(ikm, secrets.s3[:]...)
	ikm = append(ikm, secrets.s4[:]...)

	transcriptInput := make([]byte, 0, len(helloBytes)+len(ackBytes))
	transcriptInput = append(transcriptInput, helloBytes...)
	transcriptInput = append(transcriptInput, ackBytes...)
	transcript := sha256.Sum256(transcriptInput)

	reader := hkdf.New(sha256.New, ikm, transcript[:], []byte(keySchedInfo))
	keyMaterial := make([]byte, 64)
	if _, err := io.ReadFull(reader, keyMaterial); err != nil {
		return channelKeys{}, err
	}

	var keys channelKeys
	if isResponder {
		copy(keys.sendKey[:], keyMaterial[32:64])
		copy(keys.recvKey[:], keyMaterial[0:32])
	} else {
		copy(keys.sendKey[:], keyMaterial[0:32])
		copy(keys.recvKey[:], keyMaterial[32:64])
	}
	return keys, nil
}
