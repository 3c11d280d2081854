// Package store implements §4.D (Event Store): durable append-only DAG
// persistence with parent edges, head discovery, and missing-event
// queries. Two implementations are provided: MemStore (in-process,
// used by the sync engine's tests and any embedder that does not need
// cross-process durability) and SQLStore (the §6 two-table contract
// over any database/sql driver).
package store

import (
	"context"
	"sort"

	"github.com/duskboard/sync/pkg/event"
)

// Store is the durable append-only DAG abstraction §4.D describes.
// Implementations must guarantee that Append is atomic (the entry row
// and every edge row land in a single transaction) and that List and
// ListMissing order results by (lamport_clock ASC, event_id ordinal
// ASC) — the same order the materializer's topological walk expects as
// its tie-break (§4.E). Heads sorts its ids by event_id ordinal only.
type Store interface {
	// Append persists rec and one edge per parent. Returns
	// ErrDuplicateEvent if (session_id, event_id) already exists.
	Append(ctx context.Context, rec event.Record) error

	// LookupExistingIDs reports which of candidateIDs are already
	// persisted for session, for import deduplication (§4.F import
	// step 2).
	LookupExistingIDs(ctx context.Context, sessionID int64, candidateIDs []string) (map[string]bool, error)

	// List returns every event for session in canonical order.
	List(ctx context.Context, sessionID int64) ([]event.Record, error)

	// ListMissing returns every event for session whose id is not in
	// knownIDs, in canonical order.
	ListMissing(ctx context.Context, sessionID int64, knownIDs []string) ([]event.Record, error)

	// Heads returns the ids of events never referenced as a parent by
	// any other event in the session, sorted ordinally ascending. Empty
	// for a fresh session. These are the only acceptable parent set for
	// a new local event (I4).
	Heads(ctx context.Context, sessionID int64) ([]string, error)

	// MaxLamport returns the highest lamport_clock persisted across
	// every session, or 0 if the store is empty. Used by the sync
	// engine's initialize to seed global_lamport (§4.F).
	MaxLamport(ctx context.Context) (int64, error)
}

// sortRecords orders records by (lamport_clock ASC, event_id ordinal
// ASC), the canonical order §4.D mandates for List/ListMissing.
func sortRecords(records []event.Record) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].LamportClock != records[j].LamportClock {
			return records[i].LamportClock < records[j].LamportClock
		}
		return records[i].EventID < records[j].EventID
	})
}

// knownSet builds a lookup set from a slice of event ids.
func knownSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
