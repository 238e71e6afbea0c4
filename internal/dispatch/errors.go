package dispatch

import "errors"

// Sentinel errors for the dispatch package.
var (
	// ErrInvalidEvent is returned by ParseEvent for malformed input.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrNoHandler is reported for events that name no handler.
	ErrNoHandler = errors.New("event has no handler")

	// ErrPanic is reported when a handler panicked past the session.
	ErrPanic = errors.New("handler panicked")
)
