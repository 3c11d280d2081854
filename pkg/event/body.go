package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Body is the kind-specific payload of an event. Each concrete type
// below implements it; dispatch on the wire is a match on the stable
// Kind number (§9 design notes: tagged variant, not polymorphic
// dispatch).
type Body interface {
	Kind() Kind

	// canonicalJSON returns the camelCase, whitespace-free,
	// null-omitted JSON encoding used in the canonical pre-image
	// (§4.C). Field order is part of the wire contract: every peer
	// must declare the same struct field order to agree on bytes.
	canonicalJSON() ([]byte, error)
}

// ChatMessageBody is §3's ChatMessage payload.
type ChatMessageBody struct {
	MessageID    string    `json:"messageId"`
	PeerID       string    `json:"peerId"`
	DeviceName   string    `json:"deviceName"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"createdAt"`
	AfterEventID *string   `json:"afterEventId,omitempty"`
}

func (b ChatMessageBody) Kind() Kind { return KindChatMessage }
func (b ChatMessageBody) canonicalJSON() ([]byte, error) {
	type wire struct {
		MessageID    string  `json:"messageId"`
		PeerID       string  `json:"peerId"`
		DeviceName   string  `json:"deviceName"`
		Content      string  `json:"content"`
		CreatedAt    string  `json:"createdAt"`
		AfterEventID *string `json:"afterEventId,omitempty"`
	}
	return json.Marshal(wire{
		MessageID:    b.MessageID,
		PeerID:       b.PeerID,
		DeviceName:   b.DeviceName,
		Content:      b.Content,
		CreatedAt:    b.CreatedAt.UTC().Format(time.RFC3339Nano),
		AfterEventID: b.AfterEventID,
	})
}

// PresenceBody is §3's Presence payload.
type PresenceBody struct {
	PeerID     string    `json:"peerId"`
	IsOnline   bool      `json:"isOnline"`
	Version    uint64    `json:"version"`
	UpdatedAt  time.Time `json:"updatedAt"`
	DeviceName string    `json:"deviceName"`
	ChangeID   string    `json:"changeId"`
	Status     *string   `json:"status,omitempty"`
}

func (b PresenceBody) Kind() Kind { return KindPresence }
func (b PresenceBody) canonicalJSON() ([]byte, error) {
	type wire struct {
		PeerID     string  `json:"peerId"`
		IsOnline   bool    `json:"isOnline"`
		Version    uint64  `json:"version"`
		UpdatedAt  string  `json:"updatedAt"`
		DeviceName string  `json:"deviceName"`
		ChangeID   string  `json:"changeId"`
		Status     *string `json:"status,omitempty"`
	}
	return json.Marshal(wire{
		PeerID:     b.PeerID,
		IsOnline:   b.IsOnline,
		Version:    b.Version,
		UpdatedAt:  b.UpdatedAt.UTC().Format(time.RFC3339Nano),
		DeviceName: b.DeviceName,
		ChangeID:   b.ChangeID,
		Status:     b.Status,
	})
}

// FlagUpdateBody is §3's FlagUpdate payload. A nil Value means
// "delete"; per §4.C's null-omission rule, a nil Value is simply
// absent from the wire form, so the materializer (§4.E) treats a
// missing "value" key the same as an explicit null.
type FlagUpdateBody struct {
	Key       string    `json:"key"`
	Value     *string   `json:"value,omitempty"`
	Version   uint64    `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
	ChangeID  string    `json:"changeId"`
}

func (b FlagUpdateBody) Kind() Kind { return KindFlagUpdate }
func (b FlagUpdateBody) canonicalJSON() ([]byte, error) {
	type wire struct {
		Key       string  `json:"key"`
		Value     *string `json:"value,omitempty"`
		Version   uint64  `json:"version"`
		UpdatedAt string  `json:"updatedAt"`
		ChangeID  string  `json:"changeId"`
	}
	return json.Marshal(wire{
		Key:       b.Key,
		Value:     b.Value,
		Version:   b.Version,
		UpdatedAt: b.UpdatedAt.UTC().Format(time.RFC3339Nano),
		ChangeID:  b.ChangeID,
	})
}

// DiceMode is the advantage/disadvantage roll mode (§3).
type DiceMode uint8

const (
	DiceModeNormal DiceMode = iota
	DiceModeAdvantage
	DiceModeDisadvantage
)

func (m DiceMode) String() string {
	switch m {
	case DiceModeNormal:
		return "Normal"
	case DiceModeAdvantage:
		return "Advantage"
	case DiceModeDisadvantage:
		return "Disadvantage"
	default:
		return fmt.Sprintf("DiceMode(%d)", uint8(m))
	}
}

func (m DiceMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *DiceMode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "Normal":
		*m = DiceModeNormal
	case "Advantage":
		*m = DiceModeAdvantage
	case "Disadvantage":
		*m = DiceModeDisadvantage
	default:
		return fmt.Errorf("event: unknown dice mode %q", s)
	}
	return nil
}

// DieComponent is one rolled die within a DiceRoll (§3: "per-die
// components").
type DieComponent struct {
	Value int  `json:"value"`
	Kept  bool `json:"kept"`
}

// DiceEvidence is the signed content of a dice roll (§3). Signature is
// computed over its canonical serialization by the identity package.
type DiceEvidence struct {
	RollID                    string         `json:"rollId"`
	RollerPeerID              string         `json:"rollerPeerId"`
	RollerDeviceName          string         `json:"rollerDeviceName"`
	RollerIdentityPublicKeyB64 string        `json:"rollerIdentityPublicKey"`
	DiceCount                 int            `json:"diceCount"`
	DiceSides                 int            `json:"diceSides"`
	Modifier                  int            `json:"modifier"`
	Mode                      DiceMode       `json:"mode"`
	Components                []DieComponent `json:"components"`
	Total                     int            `json:"total"`
	Formula                   string         `json:"formula"`
	Timestamp                 time.Time      `json:"timestamp"`
}

// CanonicalBytes returns the deterministic JSON bytes that the
// Ed25519 signature in DiceRollBody is computed over (§3: "Signature
// is Ed25519 over the canonical serialization of evidence").
func (e DiceEvidence) CanonicalBytes() ([]byte, error) {
	type wire struct {
		RollID                     string         `json:"rollId"`
		RollerPeerID               string         `json:"rollerPeerId"`
		RollerDeviceName           string         `json:"rollerDeviceName"`
		RollerIdentityPublicKeyB64 string         `json:"rollerIdentityPublicKey"`
		DiceCount                  int            `json:"diceCount"`
		DiceSides                  int            `json:"diceSides"`
		Modifier                   int            `json:"modifier"`
		Mode                       string         `json:"mode"`
		Components                 []DieComponent `json:"components"`
		Total                      int            `json:"total"`
		Formula                    string         `json:"formula"`
		Timestamp                  string         `json:"timestamp"`
	}
	comps := e.Components
	if comps == nil {
		comps = []DieComponent{}
	}
	return json.Marshal(wire{
		RollID:                     e.RollID,
		RollerPeerID:               e.RollerPeerID,
		RollerDeviceName:           e.RollerDeviceName,
		RollerIdentityPublicKeyB64: e.RollerIdentityPublicKeyB64,
		DiceCount:                  e.DiceCount,
		DiceSides:                  e.DiceSides,
		Modifier:                   e.Modifier,
		Mode:                       e.Mode.String(),
		Components:                 comps,
		Total:                      e.Total,
		Formula:                    e.Formula,
		Timestamp:                  e.Timestamp.UTC().Format(time.RFC3339Nano),
	})
}

// DiceRollBody is §3's DiceRoll payload: evidence plus its detached
// Ed25519 signature.
type DiceRollBody struct {
	Evidence  DiceEvidence `json:"evidence"`
	Signature [64]byte     `json:"-"`
}

func (b DiceRollBody) Kind() Kind { return KindDiceRoll }
func (b DiceRollBody) canonicalJSON() ([]byte, error) {
	evidenceBytes, err := b.Evidence.CanonicalBytes()
	if err != nil {
		return nil, err
	}
	type wire struct {
		Evidence  json.RawMessage `json:"evidence"`
		Signature string          `json:"signature"`
	}
	return json.Marshal(wire{
		Evidence:  evidenceBytes,
		Signature: base64Encode(b.Signature[:]),
	})
}
