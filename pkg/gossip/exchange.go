// Package gossip implements §4.H: the anti-entropy convergence round
// run between two already-authenticated peers over a secure channel.
package gossip

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pion/logging"

	"github.com/duskboard/sync/pkg/syncengine"
)

type messageType string

const (
	msgHeads messageType = "heads"
	msgBatch messageType = "batch"
)

// envelope is the wire shape both gossip messages share; unused fields
// are omitted per message type.
type envelope struct {
	Type      messageType `json:"type"`
	SessionID int64       `json:"sessionId"`
	Heads     []string    `json:"heads,omitempty"`
	KnownIDs  []string    `json:"knownIds,omitempty"`
	Batch     string      `json:"batch,omitempty"`
}

// Round performs one §4.H convergence round for sessionID over
// transport: advertise local heads and a bounded known-id sample,
// receive the peer's, compute and send whatever the peer is missing,
// receive and import whatever the peer sends back. Both sides of a
// channel call Round the same way — the protocol is symmetric, and
// because Import is idempotent and content-addressed and topological
// order is recomputed at materialization, the two sides converge
// regardless of which side's message arrives first.
func Round(ctx context.Context, eng *syncengine.Engine, sessionID int64, transport Transport, cfg Config, log logging.LeveledLogger) (imported int, err error) {
	cfg = cfg.withDefaults()

	heads, err := eng.GetHeadEventIDs(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	records, err := eng.GetEvents(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	knownIDs := make([]string, 0, len(records))
	for _, r := range records {
		knownIDs = append(knownIDs, r.EventID)
	}
	if len(knownIDs) > cfg.MaxKnownIDSample {
		if log != nil {
			log.Warnf("gossip: known-id sample for session %d truncated from %d to %d", sessionID, len(knownIDs), cfg.MaxKnownIDSample)
		}
		knownIDs = knownIDs[:cfg.MaxKnownIDSample]
	}

	if err := sendEnvelope(ctx, transport, envelope{Type: msgHeads, SessionID: sessionID, Heads: heads, KnownIDs: knownIDs}); err != nil {
		return 0, err
	}

	peerHeads, err := recvEnvelope(ctx, transport)
	if err != nil {
		return 0, err
	}
	if peerHeads.Type != msgHeads {
		return 0, fmt.Errorf("%w: expected heads, got %s", ErrUnexpectedMessage, peerHeads.Type)
	}

	missingForPeer, err := eng.GetMissingEvents(ctx, sessionID, peerHeads.KnownIDs)
	if err != nil {
		return 0, err
	}
	batch, err := EncodeBatch(missingForPeer)
	if err != nil {
		return 0, err
	}
	if err := sendEnvelope(ctx, transport, envelope{Type: msgBatch, SessionID: sessionID, Batch: batch}); err != nil {
		return 0, err
	}

	peerBatch, err := recvEnvelope(ctx, transport)
	if err != nil {
		return 0, err
	}
	if peerBatch.Type != msgBatch {
		return 0, fmt.Errorf("%w: expected batch, got %s", ErrUnexpectedMessage, peerBatch.Type)
	}
	incoming, err := DecodeBatch(peerBatch.Batch)
	if err != nil {
		return 0, err
	}

	return eng.Import(ctx, incoming)
}

func sendEnvelope(ctx context.Context, transport Transport, env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return transport.Send(ctx, data)
}

func recvEnvelope(ctx context.Context, transport Transport) (envelope, error) {
	data, err := transport.Receive(ctx)
	if err != nil {
		return envelope{}, err
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return envelope{}, err
	}
	return env, nil
}
