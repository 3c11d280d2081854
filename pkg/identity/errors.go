package identity

import "errors"

// Sentinel errors returned by the identity package.
var (
	// ErrNotInitialized is returned by any operation invoked before
	// Initialize has completed successfully.
	ErrNotInitialized = errors.New("identity: not initialized")

	// ErrCorruptKeyMaterial names the condition of a persisted key blob
	// that cannot be parsed. No function in this package returns it:
	// Initialize logs a warning and regenerates fresh keys instead.
	ErrCorruptKeyMaterial = errors.New("identity: corrupt key material")

	// ErrPeerIDCollision indicates two distinct identity public keys
	// derive the same peer_id fingerprint.
	ErrPeerIDCollision = errors.New("identity: peer id collision")

	// ErrInvalidPublicKey names a public key that is not the expected
	// size for its algorithm. No function in this package returns it:
	// Verify reports such a key as a false result.
	ErrInvalidPublicKey = errors.New("identity: invalid public key")

	// ErrInvalidSignature names a signature that is not 64 bytes
	// (Ed25519 detached signature size). No function in this package
	// returns it: Verify reports such a signature as a false result.
	ErrInvalidSignature = errors.New("identity: invalid signature")
)
