package event

import "errors"

// Sentinel errors returned by the event package.
var (
	// ErrContentHashMismatch is returned when a transmitted event_id
	// disagrees with the recomputed canonical hash (§4.F import step 3).
	ErrContentHashMismatch = errors.New("event: content hash mismatch")

	// ErrUnknownKind is returned when a wire record names a kind number
	// outside the enumerated set (§3).
	ErrUnknownKind = errors.New("event: unknown kind")

	// ErrMalformedPayload is returned when a body's JSON cannot be
	// parsed for its declared kind.
	ErrMalformedPayload = errors.New("event: malformed payload")
)
