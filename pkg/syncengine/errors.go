package syncengine

import "errors"

// ErrNotInitialized is returned when an operation is attempted before
// Initialize has completed (§7 NotInitialized).
var ErrNotInitialized = errors.New("syncengine: not initialized")
