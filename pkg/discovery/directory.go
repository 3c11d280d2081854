package discovery

import (
	"sync"
	"time"
)

// defaultPeerExpiry is the liveness window §5 attaches to peer_expiry:
// a descriptor not refreshed within this window is considered stale
// and is dropped on the next Prune.
const defaultPeerExpiry = 20 * time.Second

// DirectoryConfig configures a Directory's staleness window.
type DirectoryConfig struct {
	// PeerExpiry is how long a descriptor survives without being
	// refreshed via Upsert before Prune considers it stale. Zero uses
	// defaultPeerExpiry.
	PeerExpiry time.Duration
}

// DefaultDirectoryConfig returns the §5 default configuration.
func DefaultDirectoryConfig() DirectoryConfig {
	return DirectoryConfig{PeerExpiry: defaultPeerExpiry}
}

func (c DirectoryConfig) withDefaults() DirectoryConfig {
	if c.PeerExpiry <= 0 {
		c.PeerExpiry = defaultPeerExpiry
	}
	return c
}

// Directory is a process-local, mutex-guarded registry of the peer
// descriptors a node has learned about, keyed by peer_id. It has no
// opinion on how descriptors are discovered; a caller wires in
// whatever physical transport discovery its platform offers (or a
// fixed, manually-entered peer list) and calls Upsert as descriptors
// arrive, including on every received Heartbeat to keep LastSeen
// current.
type Directory struct {
	cfg DirectoryConfig

	mu    sync.RWMutex
	peers map[string]PeerDescriptor
}

// NewDirectory constructs an empty Directory.
func NewDirectory(cfg DirectoryConfig) *Directory {
	return &Directory{
		cfg:   cfg.withDefaults(),
		peers: make(map[string]PeerDescriptor),
	}
}

// Upsert validates and records (or refreshes) a peer descriptor. A
// zero LastSeen is stamped with the current time.
func (d *Directory) Upsert(desc PeerDescriptor, now time.Time) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	if desc.LastSeen.IsZero() {
		desc.LastSeen = now
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.peers[desc.PeerID] = desc
	return nil
}

// Touch refreshes LastSeen for an already-known peer, e.g. on receipt
// of a Heartbeat frame. It is a no-op error if the peer is unknown.
func (d *Directory) Touch(peerID string, now time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	desc, ok := d.peers[peerID]
	if !ok {
		return ErrPeerNotFound
	}
	desc.LastSeen = now
	d.peers[peerID] = desc
	return nil
}

// Get returns the descriptor for peerID, if known.
func (d *Directory) Get(peerID string) (PeerDescriptor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	desc, ok := d.peers[peerID]
	if !ok {
		return PeerDescriptor{}, ErrPeerNotFound
	}
	return desc, nil
}

// List returns a snapshot of every known descriptor, in no particular
// order.
func (d *Directory) List() []PeerDescriptor {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]PeerDescriptor, 0, len(d.peers))
	for _, desc := range d.peers {
		out = append(out, desc)
	}
	return out
}

// Prune drops every descriptor whose LastSeen is older than PeerExpiry
// relative to now, returning the peer_ids it removed.
func (d *Directory) Prune(now time.Time) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var removed []string
	for peerID, desc := range d.peers {
		if now.Sub(desc.LastSeen) > d.cfg.PeerExpiry {
			delete(d.peers, peerID)
			removed = append(removed, peerID)
		}
	}
	return removed
}
