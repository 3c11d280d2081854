package event

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/duskboard/sync/pkg/clock"
)

// fieldSeparator is the literal ASCII byte 0x7C ("|") that joins
// canonical pre-image fields (§4.C).
const fieldSeparator = "|"

// Record is the in-memory, fully-typed form of an event (§3's
// EventRecord). EventID is only trustworthy once Verify or
// ComputeEventID has been used to check it against the canonical
// pre-image; records returned by Seal always carry a correct id, while
// FromWire keeps the transmitted id unverified.
type Record struct {
	EventID      string
	SessionID    int64
	LamportClock int64
	Timestamp    time.Time
	Parents      []string
	VectorClock  clock.Clock
	Body         Body
	IsImported   bool
}

// Kind returns the record's event kind, delegating to its body.
func (r Record) Kind() Kind { return r.Body.Kind() }

// CanonicalPreimage builds the exact byte sequence §4.C hashes to
// produce an event_id: session_id | kind_number | lamport |
// timestamp_millis_unix | vector_clock_canonical | sorted parent ids
// | payload_json, joined by the literal byte 0x7C.
func (r Record) CanonicalPreimage() ([]byte, error) {
	payload, err := r.Body.canonicalJSON()
	if err != nil {
		return nil, err
	}

	parents := append([]string(nil), r.Parents...)
	sort.Strings(parents) // ordinal (byte-wise) sort, per §4.C and §9

	fields := make([]string, 0, 5+len(parents)+1)
	fields = append(fields,
		strconv.FormatInt(r.SessionID, 10),
		strconv.FormatUint(uint64(r.Body.Kind()), 10),
		strconv.FormatInt(r.LamportClock, 10),
		strconv.FormatInt(r.Timestamp.UTC().UnixMilli(), 10),
		r.VectorClock.Canonical(),
	)
	fields = append(fields, parents...)
	fields = append(fields, string(payload))

	return []byte(strings.Join(fields, fieldSeparator)), nil
}

// ComputeEventID recomputes the content-addressed id for r, ignoring
// whatever value r.EventID currently holds.
func (r Record) ComputeEventID() (string, error) {
	preimage, err := r.CanonicalPreimage()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(preimage)
	return strings.ToUpper(hex.EncodeToString(sum[:])), nil
}

// Verify recomputes r's canonical id and compares it against
// r.EventID, returning ErrContentHashMismatch on disagreement (I1,
// §4.F import step 3).
func (r Record) Verify() error {
	computed, err := r.ComputeEventID()
	if err != nil {
		return err
	}
	if computed != r.EventID {
		return ErrContentHashMismatch
	}
	return nil
}

// Seal computes and sets r.EventID from the current contents,
// returning the sealed record. Used by local producers (§4.F
// append_local_event step 6) after filling in every other field.
func (r Record) Seal() (Record, error) {
	id, err := r.ComputeEventID()
	if err != nil {
		return Record{}, err
	}
	r.EventID = id
	return r, nil
}

// WireRecord is §6's external JSON representation: camelCase,
// null-omitted, with vector clock and body rendered as strings so the
// format is stable across languages without sharing Go types.
type WireRecord struct {
	EventID         string   `json:"eventId"`
	SessionID       int64    `json:"sessionId"`
	Kind            uint8    `json:"kind"`
	LamportClock    int64    `json:"lamportClock"`
	Timestamp       int64    `json:"timestamp"`
	VectorClockJSON string   `json:"vectorClockJson"`
	Parents         []string `json:"parents,omitempty"`
	Payload         string   `json:"payload"`
}

// ToWire renders r as its external wire form.
func (r Record) ToWire() (WireRecord, error) {
	payload, err := bodyFullJSON(r.Body)
	if err != nil {
		return WireRecord{}, err
	}
	vcJSON, err := json.Marshal(r.VectorClock.ToMap())
	if err != nil {
		return WireRecord{}, err
	}
	return WireRecord{
		EventID:         r.EventID,
		SessionID:       r.SessionID,
		Kind:            uint8(r.Body.Kind()),
		LamportClock:    r.LamportClock,
		Timestamp:       r.Timestamp.UTC().UnixMilli(),
		VectorClockJSON: string(vcJSON),
		Parents:         r.Parents,
		Payload:         string(payload),
	}, nil
}

// FromWire parses a WireRecord back into a typed Record. It does not
// verify the content hash; callers importing remote events must call
// Verify (§4.F import step 3) themselves so a hash mismatch can be
// handled as part of an atomic batch decision.
func FromWire(w WireRecord) (Record, error) {
	var vcMap map[string]uint64
	if w.VectorClockJSON != "" {
		if err := json.Unmarshal([]byte(w.VectorClockJSON), &vcMap); err != nil {
			return Record{}, ErrMalformedPayload
		}
	}
	body, err := parseBody(Kind(w.Kind), w.Payload)
	if err != nil {
		return Record{}, err
	}
	return Record{
		EventID:      w.EventID,
		SessionID:    w.SessionID,
		LamportClock: w.LamportClock,
		Timestamp:    time.UnixMilli(w.Timestamp).UTC(),
		Parents:      w.Parents,
		VectorClock:  clock.FromMap(vcMap),
		Body:         body,
		IsImported:   true,
	}, nil
}

func bodyFullJSON(b Body) ([]byte, error) {
	switch v := b.(type) {
	case DiceRollBody:
		return v.canonicalJSON()
	default:
		return json.Marshal(b)
	}
}

func parseBody(kind Kind, payload string) (Body, error) {
	switch kind {
	case KindChatMessage:
		var b ChatMessageBody
		if err := json.Unmarshal([]byte(payload), &b); err != nil {
			return nil, ErrMalformedPayload
		}
		return b, nil
	case KindPresence:
		var b PresenceBody
		if err := json.Unmarshal([]byte(payload), &b); err != nil {
			return nil, ErrMalformedPayload
		}
		return b, nil
	case KindFlagUpdate:
		var b FlagUpdateBody
		if err := json.Unmarshal([]byte(payload), &b); err != nil {
			return nil, ErrMalformedPayload
		}
		return b, nil
	case KindDiceRoll:
		var wire struct {
			Evidence  DiceEvidence `json:"evidence"`
			Signature string       `json:"signature"`
		}
		if err := json.Unmarshal([]byte(payload), &wire); err != nil {
			return nil, ErrMalformedPayload
		}
		sigBytes, err := base64Decode(wire.Signature)
		if err != nil || len(sigBytes) != 64 {
			return nil, ErrMalformedPayload
		}
		var sig [64]byte
		copy(sig[:], sigBytes)
		return DiceRollBody{Evidence: wire.Evidence, Signature: sig}, nil
	default:
		return nil, ErrUnknownKind
	}
}
