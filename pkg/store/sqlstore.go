package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/duskboard/sync/pkg/event"
)

// SQLStore implements Store over the §6 two-table contract:
//
//	event_log_entries(id PK, session_id, event_id, event_type, payload,
//	  parents, vector_clock, lamport_clock, created_at, is_imported)
//	  UNIQUE(session_id, event_id)
//	event_log_edges(id PK, session_id, event_id, parent_id)
//	  INDEX(session_id, event_id), INDEX(session_id, parent_id)
//
// The core never imports a concrete driver (§6 externalizes the
// durable store); callers open *sql.DB with whichever driver they
// registered (e.g. mattn/go-sqlite3, lib/pq) and pass it to NewSQLStore.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps an already-open database handle. The caller owns
// schema migration; CreateTables below is a convenience for embedders
// that want the default schema.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// CreateTables issues the §6 DDL using SQLite-flavored types; callers
// targeting another dialect should migrate with their own tooling and
// skip this helper.
func (s *SQLStore) CreateTables(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS event_log_entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id INTEGER NOT NULL,
	event_id TEXT(128) NOT NULL,
	event_type TEXT(64) NOT NULL,
	payload TEXT NOT NULL,
	parents TEXT NOT NULL,
	vector_clock TEXT NOT NULL,
	lamport_clock INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	is_imported BOOLEAN NOT NULL,
	UNIQUE(session_id, event_id)
);
CREATE TABLE IF NOT EXISTS event_log_edges (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id INTEGER NOT NULL,
	event_id TEXT(128) NOT NULL,
	parent_id TEXT(128) NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_edges_event ON event_log_edges(session_id, event_id);
CREATE INDEX IF NOT EXISTS idx_edges_parent ON event_log_edges(session_id, parent_id);
`
	_, err := s.db.ExecContext(ctx, ddl)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	return nil
}

func (s *SQLStore) Append(ctx context.Context, rec event.Record) error {
	wire, err := rec.ToWire()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	parentsJSON, err := json.Marshal(rec.Parents)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO event_log_entries
			(session_id, event_id, event_type, payload, parents, vector_clock, lamport_clock, created_at, is_imported)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.EventID, rec.Kind().String(), wire.Payload, string(parentsJSON),
		wire.VectorClockJSON, rec.LamportClock, wire.Timestamp, rec.IsImported,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEvent
		}
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	for _, parentID := range rec.Parents {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO event_log_edges (session_id, event_id, parent_id) VALUES (?, ?, ?)`,
			rec.SessionID, rec.EventID, parentID,
		); err != nil {
			return fmt.Errorf("%w: %v", ErrStorageFailure, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	// database/sql drivers vary in how they surface constraint
	// violations; matching on the message substring keeps this store
	// driver-agnostic without importing any one driver's error type.
	return strings.Contains(strings.ToLower(err.Error()), "unique")
}

func (s *SQLStore) LookupExistingIDs(ctx context.Context, sessionID int64, candidateIDs []string) (map[string]bool, error) {
	result := make(map[string]bool, len(candidateIDs))
	if len(candidateIDs) == 0 {
		return result, nil
	}
	placeholders := make([]string, len(candidateIDs))
	args := make([]interface{}, 0, len(candidateIDs)+1)
	args = append(args, sessionID)
	for i, id := range candidateIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}
	query := fmt.Sprintf(
		`SELECT event_id FROM event_log_entries WHERE session_id = ? AND event_id IN (%s)`,
		strings.Join(placeholders, ","),
	)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
		}
		result[id] = true
	}
	return result, rows.Err()
}

func (s *SQLStore) List(ctx context.Context, sessionID int64) ([]event.Record, error) {
	records, err := s.queryEntries(ctx, sessionID, "")
	if err != nil {
		return nil, err
	}
	sortRecords(records)
	return records, nil
}

func (s *SQLStore) ListMissing(ctx context.Context, sessionID int64, knownIDs []string) ([]event.Record, error) {
	records, err := s.queryEntries(ctx, sessionID, "")
	if err != nil {
		return nil, err
	}
	known := knownSet(knownIDs)
	filtered := records[:0]
	for _, rec := range records {
		if !known[rec.EventID] {
			filtered = append(filtered, rec)
		}
	}
	sortRecords(filtered)
	return filtered, nil
}

func (s *SQLStore) queryEntries(ctx context.Context, sessionID int64, extraWhere string) ([]event.Record, error) {
	query := `SELECT event_id, session_id, event_type, payload, parents, vector_clock, lamport_clock, created_at, is_imported
		FROM event_log_entries WHERE session_id = ?` + extraWhere
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	defer rows.Close()

	var records []event.Record
	for rows.Next() {
		var (
			eventID, eventType, payload, parentsJSON, vcJSON string
			gotSessionID, lamport, createdAt                 int64
			isImported                                       bool
		)
		if err := rows.Scan(&eventID, &gotSessionID, &eventType, &payload, &parentsJSON, &vcJSON, &lamport, &createdAt, &isImported); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
		}
		var parents []string
		if err := json.Unmarshal([]byte(parentsJSON), &parents); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
		}
		rec, err := event.FromWire(event.WireRecord{
			EventID:         eventID,
			SessionID:       gotSessionID,
			Kind:            kindNumberFor(eventType),
			LamportClock:    lamport,
			Timestamp:       createdAt,
			VectorClockJSON: vcJSON,
			Parents:         parents,
			Payload:         payload,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
		}
		rec.IsImported = isImported
		records = append(records, rec)
	}
	return records, rows.Err()
}

func kindNumberFor(eventType string) uint8 {
	switch eventType {
	case "ChatMessage":
		return uint8(event.KindChatMessage)
	case "Presence":
		return uint8(event.KindPresence)
	case "FlagUpdate":
		return uint8(event.KindFlagUpdate)
	case "DiceRoll":
		return uint8(event.KindDiceRoll)
	default:
		return 255
	}
}

func (s *SQLStore) Heads(ctx context.Context, sessionID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.event_id FROM event_log_entries e
		WHERE e.session_id = ? AND NOT EXISTS (
			SELECT 1 FROM event_log_edges p
			WHERE p.session_id = e.session_id AND p.parent_id = e.event_id
		)
		ORDER BY e.event_id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	defer rows.Close()

	heads := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
		}
		heads = append(heads, id)
	}
	return heads, rows.Err()
}

func (s *SQLStore) MaxLamport(ctx context.Context) (int64, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(lamport_clock) FROM event_log_entries`).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	if !max.Valid {
		return 0, nil
	}
	return max.Int64, nil
}
