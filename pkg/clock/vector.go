// Package clock implements §4.B of the sync core: a pure, persistent
// vector clock keyed by peer_id, used both for causal-dominance
// comparisons and as one of the inputs hashed into an event's
// content-addressed id (§4.C).
package clock

import (
	"sort"
	"strconv"
	"strings"
)

// Clock is an immutable mapping from peer_id to a non-negative
// counter. The zero value is the empty clock, where every peer reads
// as 0. All methods return a new Clock; none mutate the receiver.
type Clock struct {
	counts map[string]uint64
}

// New returns the empty clock.
func New() Clock {
	return Clock{}
}

// FromMap builds a Clock from an existing peer_id->counter map. The
// map is copied; callers may reuse or mutate it afterward.
func FromMap(m map[string]uint64) Clock {
	if len(m) == 0 {
		return Clock{}
	}
	counts := make(map[string]uint64, len(m))
	for k, v := range m {
		counts[k] = v
	}
	return Clock{counts: counts}
}

// Get returns the counter for peer, or 0 if peer has never been seen.
func (c Clock) Get(peer string) uint64 {
	if c.counts == nil {
		return 0
	}
	return c.counts[peer]
}

// Increment returns a new clock with peer's counter incremented by
// one. It does not mutate c.
func (c Clock) Increment(peer string) Clock {
	next := make(map[string]uint64, len(c.counts)+1)
	for k, v := range c.counts {
		next[k] = v
	}
	next[peer] = c.Get(peer) + 1
	return Clock{counts: next}
}

// Merge returns the pointwise maximum of c and other. It does not
// mutate either operand.
func (c Clock) Merge(other Clock) Clock {
	next := make(map[string]uint64, len(c.counts)+len(other.counts))
	for k, v := range c.counts {
		next[k] = v
	}
	for k, v := range other.counts {
		if v > next[k] {
			next[k] = v
		}
	}
	return Clock{counts: next}
}

// Equal reports whether c and other have exactly the same entries.
// Entries with a zero counter are equivalent to an absent entry.
func (c Clock) Equal(other Clock) bool {
	for k, v := range c.counts {
		if v != 0 && other.Get(k) != v {
			return false
		}
	}
	for k, v := range other.counts {
		if v != 0 && c.Get(k) != v {
			return false
		}
	}
	return true
}

// sortedPeers returns peer_ids with a non-zero counter, sorted by
// ordinal (byte-wise) comparison — never locale-aware — per the
// cross-implementation convergence requirement in §9.
func (c Clock) sortedPeers() []string {
	peers := make([]string, 0, len(c.counts))
	for k, v := range c.counts {
		if v != 0 {
			peers = append(peers, k)
		}
	}
	sort.Strings(peers) // sort.Strings is a byte-wise ordinal sort
	return peers
}

// Canonical renders the clock as the deterministic string form used
// inside event-id hashing (§4.B): entries sorted by ordinal peer_id,
// joined as "peer:value|peer:value". The empty clock renders as "".
func (c Clock) Canonical() string {
	peers := c.sortedPeers()
	parts := make([]string, 0, len(peers))
	for _, p := range peers {
		parts = append(parts, p+":"+strconv.FormatUint(c.counts[p], 10))
	}
	return strings.Join(parts, "|")
}

// ToMap returns a copy of the clock's non-zero entries as a plain map,
// suitable for JSON serialization (§3: "Serialized as a JSON object").
func (c Clock) ToMap() map[string]uint64 {
	out := make(map[string]uint64, len(c.counts))
	for k, v := range c.counts {
		if v != 0 {
			out[k] = v
		}
	}
	return out
}
