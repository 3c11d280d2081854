package securechannel

import "errors"

// Sentinel errors returned by the secure channel (§7 taxonomy).
var (
	ErrPeerIdentityMismatch      = errors.New("securechannel: peer id does not match identity fingerprint")
	ErrHandshakeSignatureInvalid = errors.New("securechannel: handshake signature invalid")
	ErrSessionMismatch           = errors.New("securechannel: session id mismatch between hello and ack")
	ErrCryptographicFailure      = errors.New("securechannel: AEAD open failed")
	ErrReplayDetected            = errors.New("securechannel: sequence already seen")
	ErrAckTimeout                = errors.New("securechannel: no ack within configured timeout")
	ErrUnknownFrame              = errors.New("securechannel: unknown frame code")
	ErrCancelled                 = errors.New("securechannel: operation cancelled")
	ErrChannelClosed             = errors.New("securechannel: channel closed")
)
