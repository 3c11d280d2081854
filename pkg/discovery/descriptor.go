// Package discovery holds the peer descriptor shape consumed by the
// secure channel and gossip layers. It intentionally stops at the
// struct: the mDNS/Bluetooth transport that would populate and refresh
// these descriptors in a real deployment is out of scope ("interfaces
// only are specified"); callers supply descriptors however their
// platform's physical transport discovery works.
package discovery

import (
	"strings"
	"time"

	"github.com/duskboard/sync/pkg/identity"
)

// PeerDescriptor is the interface spec.md §6 asks discovery to
// produce: enough to dial and authenticate a peer over the secure
// channel, plus a freshness marker for eviction by a caller-owned
// directory.
type PeerDescriptor struct {
	PeerID                  string    `json:"peer_id"`
	DeviceName              string    `json:"device_name"`
	IdentityPublicKeyB64    string    `json:"identity_public_key_b64"`
	KeyExchangePublicKeyB64 string    `json:"key_exchange_public_key_b64"`
	Host                    string    `json:"host"`
	Port                    int       `json:"port"`
	LastSeen                time.Time `json:"last_seen"`
}

// Validate checks the structural well-formedness of a descriptor: a
// peer_id of the expected shape, a non-empty host, and a port in the
// valid TCP/UDP range. It does not verify that IdentityPublicKeyB64
// actually hashes to PeerID; that check belongs to the handshake
// (§4.G), which has the raw bytes to hash and fails closed with
// PeerIdentityMismatch if they disagree.
func (d PeerDescriptor) Validate() error {
	if len(d.PeerID) != identity.PeerIDLength || !isPeerIDAlphabet(d.PeerID) {
		return ErrInvalidPeerID
	}
	if strings.TrimSpace(d.Host) == "" {
		return ErrInvalidHost
	}
	if d.Port < 1 || d.Port > 65535 {
		return ErrInvalidPort
	}
	return nil
}

func isPeerIDAlphabet(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune(identity.PeerIDAlphabet, r) {
			return false
		}
	}
	return true
}
