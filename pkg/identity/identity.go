// Package identity implements §4.A of the sync core: a persistent
// Ed25519 signing keypair and X25519 key-agreement keypair per
// device, peer_id derivation, detached sign/verify, and the HKDF-wrapped
// Diffie-Hellman used by the secure channel handshake.
//
// Ambient singletons for secret storage are deliberately not used here;
// callers inject a Storage implementation so the package has no global
// state and can be exercised in tests without touching disk.
package identity

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/pion/logging"
)

// Storage is the secure-storage collaborator required by §6: a
// small get/set/remove string key-value contract. The core never
// assumes a concrete backend (keychain, encrypted file, OS credential
// manager); it only needs this seam.
type Storage interface {
	Set(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Remove(ctx context.Context, key string) error
}

const (
	storageKeyIdentityPrivate  = "identity.signing_private_key"
	storageKeyAgreementPrivate = "identity.agreement_private_key"
	storageKeyDeviceName       = "identity.device_name"
)

// DeviceIdentity is the immutable, persisted identity of this device,
// per §3's DeviceIdentity record.
type DeviceIdentity struct {
	PeerID               string
	DeviceName           string
	IdentityPublicKey    [32]byte
	KeyExchangePublicKey [32]byte
}

// Manager holds one device's identity key material and exposes the
// Identity & Crypto operations of §4.A. It is safe for concurrent use
// after Initialize returns successfully.
type Manager struct {
	storage Storage
	log     logging.LeveledLogger

	mu          sync.RWMutex
	initialized bool

	signingPrivate   ed25519.PrivateKey
	agreementPrivate [32]byte

	identity DeviceIdentity
}

// NewManager constructs a Manager bound to the given storage
// collaborator. loggerFactory may be nil, in which case pion's default
// logger factory is used.
func NewManager(storage Storage, loggerFactory logging.LoggerFactory) *Manager {
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}
	return &Manager{storage: storage, log: loggerFactory.NewLogger("identity")}
}

// Initialize is idempotent: once the first successful call completes,
// later calls return immediately without touching storage again (the
// one-shot latch required by §5). It loads persisted keys, or
// generates and persists them on first run, and derives PeerID.
// When no device name was previously persisted, a non-empty
// deviceNameFallback is used; if it is empty, the host name is used,
// or a random Peer-NNNN name when the host name cannot be read.
func (m *Manager) Initialize(ctx context.Context, deviceNameFallback string) error {
	m.mu.RLock()
	if m.initialized {
		m.mu.RUnlock()
		return nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initialized {
		return nil
	}

	signingPriv, err := m.loadOrCreateSigningKey(ctx)
	if err != nil {
		return err
	}
	agreementPriv, err := m.loadOrCreateAgreementKey(ctx)
	if err != nil {
		return err
	}
	deviceName, err := m.loadOrCreateDeviceName(ctx, deviceNameFallback)
	if err != nil {
		return err
	}

	m.signingPrivate = signingPriv
	m.agreementPrivate = agreementPriv

	identityPub := [32]byte{}
	copy(identityPub[:], signingPriv.Public().(ed25519.PublicKey))

	agreementPub, err := curve25519.X25519(agreementPriv[:], curve25519.Basepoint)
	if err != nil {
		return fmt.Errorf("identity: derive agreement public key: %w", err)
	}
	var kxPub [32]byte
	copy(kxPub[:], agreementPub)

	m.identity = DeviceIdentity{
		PeerID:               DerivePeerID(identityPub[:]),
		DeviceName:           deviceName,
		IdentityPublicKey:    identityPub,
		KeyExchangePublicKey: kxPub,
	}
	m.initialized = true
	return nil
}

// Identity returns the device's persisted identity. It returns
// ErrNotInitialized if Initialize has not completed.
func (m *Manager) Identity() (DeviceIdentity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.initialized {
		return DeviceIdentity{}, ErrNotInitialized
	}
	return m.identity, nil
}

// Sign computes a detached Ed25519 signature over data using the
// persisted identity private key.
func (m *Manager) Sign(data []byte) ([64]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var sig [64]byte
	if !m.initialized {
		return sig, ErrNotInitialized
	}
	copy(sig[:], ed25519.Sign(m.signingPrivate, data))
	return sig, nil
}

// Verify checks an Ed25519 detached signature against data and a
// raw 32-byte public key. It never returns an error: any parse or
// length failure is reported as a false verification result, per §4.A
// failure semantics.
func Verify(data []byte, signature []byte, publicKey []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(publicKey, data, signature)
}

// EphemeralKXKeyPair is a fresh X25519 keypair generated for a single
// handshake. The caller owns its lifetime and must call Zeroize once
// the shared secret has been derived.
type EphemeralKXKeyPair struct {
	Private [32]byte
	Public  [32]byte
}

// GenerateEphemeralKXPair creates a fresh X25519 keypair for use in a
// single handshake.
func GenerateEphemeralKXPair() (*EphemeralKXKeyPair, error) {
	var priv [32]byte
	if _, err := rand.Read(priv[:]); err != nil {
		return nil, fmt.Errorf("identity: generate ephemeral key: %w", err)
	}
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("identity: derive ephemeral public key: %w", err)
	}
	kp := &EphemeralKXKeyPair{Private: priv}
	copy(kp.Public[:], pub)
	return kp, nil
}

// Zeroize overwrites the ephemeral private scalar. Callers must invoke
// this as soon as the shared secret has been derived (§5 resource
// lifecycles).
func (kp *EphemeralKXKeyPair) Zeroize() {
	for i := range kp.Private {
		kp.Private[i] = 0
	}
}

// ComputeSharedSecret performs X25519 Diffie-Hellman between a local
// private scalar and a remote public key, then runs the result
// through HKDF-SHA-256 with an empty salt and empty info to produce a
// 32-byte session secret. The raw DH output is never used directly
// (§4.A, and the Open Question in §9 pinning this as empty-salt).
func ComputeSharedSecret(localPrivate [32]byte, remotePublic [32]byte) ([32]byte, error) {
	var out [32]byte
	dh, err := curve25519.X25519(localPrivate[:], remotePublic[:])
	if err != nil {
		return out, fmt.Errorf("identity: x25519: %w", err)
	}
	reader := hkdf.New(sha256.New, dh, nil, nil)
	if _, err := io.ReadFull(reader, out[:]); err != nil {
		return out, fmt.Errorf("identity: hkdf: %w", err)
	}
	return out, nil
}

// ComputeStaticSharedSecret is ComputeSharedSecret using this
// device's persistent agreement private key.
func (m *Manager) ComputeStaticSharedSecret(remotePublic [32]byte) ([32]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out [32]byte
	if !m.initialized {
		return out, ErrNotInitialized
	}
	return ComputeSharedSecret(m.agreementPrivate, remotePublic)
}

// RawStaticDH performs X25519 Diffie-Hellman between this device's
// persistent agreement private key and remotePublic, returning the raw
// DH output with no HKDF wrapping. Used only by callers (the secure
// channel's multi-secret key schedule, §4.G) that combine several raw
// DH outputs under a single HKDF pass themselves; every other caller
// must use ComputeStaticSharedSecret/ComputeSharedSecret instead.
func (m *Manager) RawStaticDH(remotePublic [32]byte) ([32]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out [32]byte
	if !m.initialized {
		return out, ErrNotInitialized
	}
	dh, err := curve25519.X25519(m.agreementPrivate[:], remotePublic[:])
	if err != nil {
		return out, fmt.Errorf("identity: x25519: %w", err)
	}
	copy(out[:], dh)
	return out, nil
}

func (m *Manager) loadOrCreateSigningKey(ctx context.Context) (ed25519.PrivateKey, error) {
	stored, ok, err := m.storage.Get(ctx, storageKeyIdentityPrivate)
	if err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}
	if ok {
		raw, err := base64.StdEncoding.DecodeString(stored)
		if err == nil && len(raw) == ed25519.PrivateKeySize {
			return ed25519.PrivateKey(raw), nil
		}
		m.log.Warnf("identity: discarding corrupt signing key blob: %v", err)
	}
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generate signing key: %w", err)
	}
	if err := m.storage.Set(ctx, storageKeyIdentityPrivate, base64.StdEncoding.EncodeToString(priv)); err != nil {
		return nil, fmt.Errorf("identity: persist signing key: %w", err)
	}
	return priv, nil
}

func (m *Manager) loadOrCreateAgreementKey(ctx context.Context) ([32]byte, error) {
	var priv [32]byte
	stored, ok, err := m.storage.Get(ctx, storageKeyAgreementPrivate)
	if err != nil {
		return priv, fmt.Errorf("identity: %w", err)
	}
	if ok {
		raw, err := base64.StdEncoding.DecodeString(stored)
		if err == nil && len(raw) == 32 {
			copy(priv[:], raw)
			return priv, nil
		}
		m.log.Warnf("identity: discarding corrupt agreement key blob: %v", err)
	}
	if _, err := rand.Read(priv[:]); err != nil {
		return priv, fmt.Errorf("identity: generate agreement key: %w", err)
	}
	if err := m.storage.Set(ctx, storageKeyAgreementPrivate, base64.StdEncoding.EncodeToString(priv[:])); err != nil {
		return priv, fmt.Errorf("identity: persist agreement key: %w", err)
	}
	return priv, nil
}

func (m *Manager) loadOrCreateDeviceName(ctx context.Context, fallback string) (string, error) {
	stored, ok, err := m.storage.Get(ctx, storageKeyDeviceName)
	if err != nil {
		return "", fmt.Errorf("identity: %w", err)
	}
	if ok && stored != "" {
		return stored, nil
	}
	name := fallback
	if name == "" {
		if host, err := os.Hostname(); err == nil && host != "" {
			name = host
		} else {
			name = defaultDeviceName()
		}
	}
	if err := m.storage.Set(ctx, storageKeyDeviceName, name); err != nil {
		return "", fmt.Errorf("identity: persist device name: %w", err)
	}
	return name, nil
}

func defaultDeviceName() string {
	var b [2]byte
	_, _ = rand.Read(b[:])
	n := int(b[0])<<8 | int(b[1])
	return fmt.Sprintf("Peer-%04d", n%10000)
}
