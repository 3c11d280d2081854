package transport

import "errors"

// Package-level sentinel errors for the TCP ingress transport.
var (
	// ErrClosed is returned when an operation is attempted on a closed
	// Listener.
	ErrClosed = errors.New("transport: closed")

	// ErrAlreadyStarted is returned when Start is called on a Listener
	// that is already accepting connections.
	ErrAlreadyStarted = errors.New("transport: already started")

	// ErrInvalidAddress is returned when Dial is given an empty address,
	// and by NewListener and NewListenerFrom when the handler is nil.
	ErrInvalidAddress = errors.New("transport: invalid address")
)
