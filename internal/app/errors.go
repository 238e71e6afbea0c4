package app

import "errors"

// Application errors.
var (
	// ErrAlreadyRunning indicates Start was called twice.
	ErrAlreadyRunning = errors.New("application already running")

	// ErrNotRunning indicates an operation that needs Start.
	ErrNotRunning = errors.New("application not running")

	// ErrShutdown indicates the application has been shut down.
	ErrShutdown = errors.New("application shut down")
)

// InitError reports a component that failed to start.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return "init " + e.Component + ": " + e.Err.Error()
}

func (e *InitError) Unwrap() error {
	return e.Err
}
