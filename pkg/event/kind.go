// Package event implements §3 (data model) and §4.C (Event Codec) of
// the sync core: the four event kinds, their bodies, and the
// canonical, content-addressed serialization every peer uses to
// compute and verify an event's id.
package event

import "fmt"

// Kind identifies the payload carried by an event. Wire numbers are
// stable across protocol versions (§3).
type Kind uint8

const (
	KindChatMessage Kind = 0
	KindPresence    Kind = 1
	KindFlagUpdate  Kind = 2
	KindDiceRoll    Kind = 3
)

// String renders a human-readable kind name, used in logging.
func (k Kind) String() string {
	switch k {
	case KindChatMessage:
		return "ChatMessage"
	case KindPresence:
		return "Presence"
	case KindFlagUpdate:
		return "FlagUpdate"
	case KindDiceRoll:
		return "DiceRoll"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Valid reports whether k is one of the four enumerated kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindChatMessage, KindPresence, KindFlagUpdate, KindDiceRoll:
		return true
	default:
		return false
	}
}
