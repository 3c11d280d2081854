// Package syncengine implements §4.F: the Sync Engine facade that
// orchestrates identity, vector clock, event codec and event store
// behind a single write gate, and exposes the read operations the
// gossip exchange and UI layer consume.
package syncengine

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/logging"

	"github.com/duskboard/sync/pkg/clock"
	"github.com/duskboard/sync/pkg/event"
	"github.com/duskboard/sync/pkg/identity"
	"github.com/duskboard/sync/pkg/materializer"
	"github.com/duskboard/sync/pkg/store"
)

// State is the Engine's lifecycle state (§5: Uninitialized →
// Initializing → Ready).
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateInitializing:
		return "Initializing"
	case StateReady:
		return "Ready"
	default:
		return "Unknown"
	}
}

// Engine is the Sync Engine facade. A single write-gate mutex
// serializes AppendLocalEvent and Import; the four read operations do
// not take the gate and rely on the store's own snapshot semantics
// (§5 concurrency model).
type Engine struct {
	identity *identity.Manager
	store    store.Store
	log      logging.LeveledLogger

	initOnce sync.Mutex
	state    int32 // atomic State, for lock-free reads from State()

	writeGate sync.Mutex

	globalLamport int64 // atomic, monotone, never decreases

	sessionClocks map[int64]clock.Clock // guarded by writeGate
}

// NewEngine constructs an Engine bound to the given identity manager
// and store. loggerFactory may be nil.
func NewEngine(identityManager *identity.Manager, st store.Store, loggerFactory logging.LoggerFactory) *Engine {
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}
	return &Engine{
		identity:      identityManager,
		store:         st,
		log:           loggerFactory.NewLogger("syncengine"),
		sessionClocks: make(map[int64]clock.Clock),
	}
}

// Initialize loads the max lamport across all sessions from the store
// and transitions the engine to Ready. Per-session vector clocks are
// cached lazily on first touch (the Store interface has no
// session-enumeration operation to preload all of them eagerly); this
// is equivalent to eager preloading because the cached value, once
// computed, is identical regardless of when it is first read.
func (e *Engine) Initialize(ctx context.Context) error {
	e.initOnce.Lock()
	defer e.initOnce.Unlock()
	if e.ready() {
		return nil
	}
	atomic.StoreInt32(&e.state, int32(StateInitializing))

	maxLamport, err := e.store.MaxLamport(ctx)
	if err != nil {
		atomic.StoreInt32(&e.state, int32(StateUninitialized))
		return err
	}
	atomic.StoreInt64(&e.globalLamport, maxLamport)
	atomic.StoreInt32(&e.state, int32(StateReady))
	return nil
}

func (e *Engine) ready() bool {
	return atomic.LoadInt32(&e.state) == int32(StateReady)
}

// sessionClock returns the cached vector clock for session, seeding it
// from the merge of the session's current heads if this is the first
// touch. Must be called with writeGate held.
func (e *Engine) sessionClock(ctx context.Context, sessionID int64) (clock.Clock, error) {
	if c, ok := e.sessionClocks[sessionID]; ok {
		return c, nil
	}
	heads, err := e.store.Heads(ctx, sessionID)
	if err != nil {
		return clock.Clock{}, err
	}
	merged := clock.New()
	if len(heads) > 0 {
		all, err := e.store.List(ctx, sessionID)
		if err != nil {
			return clock.Clock{}, err
		}
		headSet := make(map[string]bool, len(heads))
		for _, id := range heads {
			headSet[id] = true
		}
		for _, rec := range all {
			if headSet[rec.EventID] {
				merged = merged.Merge(rec.VectorClock)
			}
		}
	}
	e.sessionClocks[sessionID] = merged
	return merged, nil
}

// AppendLocalEvent implements §4.F's append_local_event: computes
// parents from the session's current heads, derives the next vector
// clock and lamport value, seals the record through the event codec,
// and persists it.
func (e *Engine) AppendLocalEvent(ctx context.Context, sessionID int64, body event.Body) (event.Record, error) {
	if !e.ready() {
		return event.Record{}, ErrNotInitialized
	}

	e.writeGate.Lock()
	defer e.writeGate.Unlock()

	id, err := e.identity.Identity()
	if err != nil {
		return event.Record{}, err
	}

	parents, err := e.store.Heads(ctx, sessionID)
	if err != nil {
		return event.Record{}, err
	}

	baseClock, err := e.sessionClock(ctx, sessionID)
	if err != nil {
		return event.Record{}, err
	}
	newClock := baseClock.Increment(id.PeerID)
	lamport := atomic.AddInt64(&e.globalLamport, 1)

	rec := event.Record{
		SessionID:    sessionID,
		LamportClock: lamport,
		Timestamp:    time.Now().UTC(),
		Parents:      parents,
		VectorClock:  newClock,
		Body:         body,
	}
	sealed, err := rec.Seal()
	if err != nil {
		return event.Record{}, err
	}

	if err := e.store.Append(ctx, sealed); err != nil {
		return event.Record{}, err
	}
	e.sessionClocks[sessionID] = newClock
	return sealed, nil
}

// Import implements §4.F's import: sorts and deduplicates the batch,
// then under the write gate recomputes and verifies each event's id,
// persisting only if the entire batch passes. A single content-hash
// mismatch aborts the whole batch atomically — nothing from it is
// persisted.
func (e *Engine) Import(ctx context.Context, records []event.Record) (int, error) {
	if !e.ready() {
		return 0, ErrNotInitialized
	}

	sorted := make([]event.Record, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].LamportClock != sorted[j].LamportClock {
			return sorted[i].LamportClock < sorted[j].LamportClock
		}
		return sorted[i].EventID < sorted[j].EventID
	})

	e.writeGate.Lock()
	defer e.writeGate.Unlock()

	bySession := make(map[int64][]string)
	for _, rec := range sorted {
		bySession[rec.SessionID] = append(bySession[rec.SessionID], rec.EventID)
	}
	existing := make(map[string]bool)
	for sessionID, ids := range bySession {
		found, err := e.store.LookupExistingIDs(ctx, sessionID, ids)
		if err != nil {
			return 0, err
		}
		for id := range found {
			existing[id] = true
		}
	}

	var toPersist []event.Record
	for _, rec := range sorted {
		if existing[rec.EventID] {
			continue
		}
		if err := rec.Verify(); err != nil {
			// I1/P2: a single disagreement aborts the entire batch,
			// nothing from it is persisted.
			return 0, err
		}
		toPersist = append(toPersist, rec)
	}

	for _, rec := range toPersist {
		if err := e.store.Append(ctx, rec); err != nil {
			return 0, err
		}
		merged, err := e.sessionClock(ctx, rec.SessionID)
		if err != nil {
			return 0, err
		}
		e.sessionClocks[rec.SessionID] = merged.Merge(rec.VectorClock)

		if rec.LamportClock > atomic.LoadInt64(&e.globalLamport) {
			atomic.StoreInt64(&e.globalLamport, rec.LamportClock)
		}
	}

	return len(toPersist), nil
}

// GetEvents returns every event for session, in canonical order.
func (e *Engine) GetEvents(ctx context.Context, sessionID int64) ([]event.Record, error) {
	if !e.ready() {
		return nil, ErrNotInitialized
	}
	return e.store.List(ctx, sessionID)
}

// GetMissingEvents returns every event for session not present in
// knownIDs, in canonical order (§8 P6).
func (e *Engine) GetMissingEvents(ctx context.Context, sessionID int64, knownIDs []string) ([]event.Record, error) {
	if !e.ready() {
		return nil, ErrNotInitialized
	}
	return e.store.ListMissing(ctx, sessionID, knownIDs)
}

// GetHeadEventIDs returns the session's current head ids.
func (e *Engine) GetHeadEventIDs(ctx context.Context, sessionID int64) ([]string, error) {
	if !e.ready() {
		return nil, ErrNotInitialized
	}
	return e.store.Heads(ctx, sessionID)
}

// GetSessionState pulls every event for session, topologically orders
// and materializes them, and returns the resulting SessionState.
func (e *Engine) GetSessionState(ctx context.Context, sessionID int64) (materializer.SessionState, error) {
	if !e.ready() {
		return materializer.SessionState{}, ErrNotInitialized
	}
	records, err := e.store.List(ctx, sessionID)
	if err != nil {
		return materializer.SessionState{}, err
	}
	return materializer.Materialize(records, nil), nil
}

// State reports the engine's current lifecycle state.
func (e *Engine) State() State {
	return State(atomic.LoadInt32(&e.state))
}
