// Package materializer implements §4.E: the deterministic fold from a
// topologically-ordered event stream to a read-only SessionState.
package materializer

import (
	"time"

	"github.com/duskboard/sync/pkg/event"
)

// ChatMessageState is one materialized chat entry (§3 SessionState).
type ChatMessageState struct {
	EventID    string
	MessageID  string
	PeerID     string
	DeviceName string
	Content    string
	CreatedAt  time.Time
}

// PresenceState is one peer's materialized presence.
type PresenceState struct {
	EventID    string
	PeerID     string
	IsOnline   bool
	Version    uint64
	UpdatedAt  time.Time
	DeviceName string
	Status     *string
}

// FlagState is one key's materialized flag value.
type FlagState struct {
	EventID   string
	Key       string
	Value     string
	Version   uint64
	UpdatedAt time.Time
}

// DiceRollState is one materialized dice roll, with its signature
// verification outcome.
type DiceRollState struct {
	EventID        string
	Evidence       event.DiceEvidence
	SignatureValid bool
}

// SessionState is §3's read-only materialized view of a session.
type SessionState struct {
	Chat        []ChatMessageState
	Presence    map[string]PresenceState
	Flags       map[string]FlagState
	DiceHistory []DiceRollState
}

func newSessionState() SessionState {
	return SessionState{
		Chat:        []ChatMessageState{},
		Presence:    make(map[string]PresenceState),
		Flags:       make(map[string]FlagState),
		DiceHistory: []DiceRollState{},
	}
}
