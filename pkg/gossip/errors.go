package gossip

import "errors"

// Sentinel errors for the gossip exchange (§7 taxonomy extends here:
// these are gossip-local, not part of the core §7 enumeration).
var (
	ErrUnexpectedMessage = errors.New("gossip: unexpected message type")
)
