package materializer

import (
	"github.com/pion/logging"

	"github.com/duskboard/sync/pkg/dice"
	"github.com/duskboard/sync/pkg/event"
)

// Materialize implements §4.E: topologically order records, then fold
// each kind into a SessionState. records need not be presorted; order
// here is authoritative. loggerFactory may be nil, in which case a
// default factory is used.
func Materialize(records []event.Record, loggerFactory logging.LoggerFactory) SessionState {
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}
	log := loggerFactory.NewLogger("materializer")

	ordered := topologicalOrder(records)
	state := newSessionState()

	seenMessageIDs := make(map[string]bool)

	for _, r := range ordered {
		switch body := r.Body.(type) {
		case event.ChatMessageBody:
			foldChatMessage(&state, r.EventID, body, seenMessageIDs)
		case event.PresenceBody:
			foldPresence(&state, r.EventID, body)
		case event.FlagUpdateBody:
			foldFlagUpdate(&state, r.EventID, body)
		case event.DiceRollBody:
			foldDiceRoll(&state, r.EventID, body, log)
		default:
			log.Warnf("materializer: unrecognized body type %T for event %s, skipping", body, r.EventID)
		}
	}

	return state
}

// foldChatMessage implements §4.E's anchor-based RGA-like insertion:
// duplicates by message_id are discarded; a message with a null or
// not-yet-present after_event_id is appended at the end, otherwise it
// is inserted immediately after the first entry whose event_id matches
// after_event_id.
func foldChatMessage(state *SessionState, eventID string, body event.ChatMessageBody, seen map[string]bool) {
	if seen[body.MessageID] {
		return
	}
	seen[body.MessageID] = true

	entry := ChatMessageState{
		EventID:    eventID,
		MessageID:  body.MessageID,
		PeerID:     body.PeerID,
		DeviceName: body.DeviceName,
		Content:    body.Content,
		CreatedAt:  body.CreatedAt,
	}

	if body.AfterEventID == nil {
		state.Chat = append(state.Chat, entry)
		return
	}
	anchor := *body.AfterEventID
	for i, existing := range state.Chat {
		if existing.EventID == anchor {
			state.Chat = append(state.Chat[:i+1], append([]ChatMessageState{entry}, state.Chat[i+1:]...)...)
			return
		}
	}
	// Anchor not yet present in the materialized sequence: append at
	// the end, per §4.E.
	state.Chat = append(state.Chat, entry)
}

// wins implements §4.E's shared Presence/FlagUpdate tie-break: higher
// version, else higher updated_at, else lexicographically greater
// event_id.
func wins(candVersion, currentVersion uint64, candUpdated, currentUpdated int64, candEventID, currentEventID string) bool {
	if candVersion != currentVersion {
		return candVersion > currentVersion
	}
	if candUpdated != currentUpdated {
		return candUpdated > currentUpdated
	}
	return candEventID > currentEventID
}

func foldPresence(state *SessionState, eventID string, body event.PresenceBody) {
	current, exists := state.Presence[body.PeerID]
	if exists && !wins(body.Version, current.Version, body.UpdatedAt.UnixNano(), current.UpdatedAt.UnixNano(), eventID, current.EventID) {
		return
	}
	state.Presence[body.PeerID] = PresenceState{
		EventID:    eventID,
		PeerID:     body.PeerID,
		IsOnline:   body.IsOnline,
		Version:    body.Version,
		UpdatedAt:  body.UpdatedAt,
		DeviceName: body.DeviceName,
		Status:     body.Status,
	}
}

// foldFlagUpdate implements §4.E's FlagUpdate fold: same tie-break as
// presence; a winning null value removes the key (the event log is its
// own tombstone, so no separate tombstone marker is kept).
func foldFlagUpdate(state *SessionState, eventID string, body event.FlagUpdateBody) {
	current, exists := state.Flags[body.Key]
	if exists && !wins(body.Version, current.Version, body.UpdatedAt.UnixNano(), current.UpdatedAt.UnixNano(), eventID, current.EventID) {
		return
	}
	if body.Value == nil {
		delete(state.Flags, body.Key)
		return
	}
	state.Flags[body.Key] = FlagState{
		EventID:   eventID,
		Key:       body.Key,
		Value:     *body.Value,
		Version:   body.Version,
		UpdatedAt: body.UpdatedAt,
	}
}

// foldDiceRoll implements §4.E's always-append DiceRoll fold, with
// post-hoc signature verification. Parse failures are logged and
// yield signature_valid = false; the entry still joins history.
func foldDiceRoll(state *SessionState, eventID string, body event.DiceRollBody, log logging.LeveledLogger) {
	valid := verifyDiceSignature(body, log, eventID)
	state.DiceHistory = append(state.DiceHistory, DiceRollState{
		EventID:        eventID,
		Evidence:       body.Evidence,
		SignatureValid: valid,
	})
}

func verifyDiceSignature(body event.DiceRollBody, log logging.LeveledLogger, eventID string) bool {
	valid, err := dice.VerifyEvidence(body.Evidence, body.Signature)
	if err != nil {
		log.Warnf("materializer: event %s signature verification failed: %v", eventID, err)
		return false
	}
	return valid
}
