package store

import "errors"

// Sentinel errors returned by the event store.
var (
	// ErrStorageFailure wraps any underlying persistence error (§7
	// StorageFailure).
	ErrStorageFailure = errors.New("store: storage failure")

	// ErrDuplicateEvent is returned by Append when (session_id,
	// event_id) already exists (§3 EventLogEntry uniqueness invariant).
	ErrDuplicateEvent = errors.New("store: duplicate event")
)
