package script

// State is the lifecycle state of a Session.
type State int32

const (
	// StateUninitialized is a session with no script.
	StateUninitialized State = iota
	// StateLoaded is a session whose script parsed and is running its top
	// level.
	StateLoaded
	// StateReady is a session that can invoke handlers.
	StateReady
	// StateFailed is a session whose last load failed. It has no handlers.
	StateFailed
	// StateDisposed is a session that has released its engine.
	StateDisposed
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoaded:
		return "loaded"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// StateObserver is called on every state transition. It runs with the
// session lock held and must not call back into the session.
type StateObserver func(from, to State)
