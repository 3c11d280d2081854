package discovery

import "errors"

// Package-level sentinel errors for discovery operations.
var (
	// ErrInvalidPeerID is returned when a PeerDescriptor's peer_id is
	// empty or does not match DerivePeerID's alphabet/length.
	ErrInvalidPeerID = errors.New("discovery: invalid peer_id")

	// ErrInvalidHost is returned when a PeerDescriptor's host is empty.
	ErrInvalidHost = errors.New("discovery: invalid host")

	// ErrInvalidPort is returned when a PeerDescriptor's port is out of
	// the valid 1-65535 range.
	ErrInvalidPort = errors.New("discovery: invalid port (must be 1-65535)")

	// ErrPeerNotFound is returned when a Directory lookup misses.
	ErrPeerNotFound = errors.New("discovery: peer not found")
)
