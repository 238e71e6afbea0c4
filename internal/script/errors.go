package script

import (
	"errors"
	"fmt"

	"github.com/dshills/chartbridge/internal/registry"
)

// Script environment errors.
var (
	// ErrFunctionNotFound is returned when invoking a function the loaded
	// script does not define.
	ErrFunctionNotFound = errors.New("script function not found")

	// ErrBudgetExceeded is returned when an invocation runs past its
	// execution budget.
	ErrBudgetExceeded = errors.New("execution budget exceeded")

	// ErrSessionNotReady is returned when invoking a session that has no
	// successfully loaded script.
	ErrSessionNotReady = errors.New("script session not ready")

	// ErrSessionDisposed is returned when using a disposed session.
	ErrSessionDisposed = errors.New("script session disposed")

	// ErrAlreadyLoaded is returned by Load on a session that already has a
	// script; use Reload instead.
	ErrAlreadyLoaded = errors.New("script session already loaded")
)

// SyntaxError reports source that failed to parse.
type SyntaxError struct {
	// Source is the script name.
	Source string

	// Line and Column are 1-based; zero when the engine does not report
	// a position.
	Line   int
	Column int

	Message string
	Err     error
}

// Error implements the error interface.
func (e *SyntaxError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("syntax error in %s at line %d: %s", e.Source, e.Line, e.Message)
	}
	return fmt.Sprintf("syntax error in %s: %s", e.Source, e.Message)
}

// Unwrap returns the engine's parse error.
func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// RuntimeError reports a fault raised while running script code.
type RuntimeError struct {
	// Function is the invoked function; empty for the top-level run.
	Function string

	// Handle is the chart the invocation was bound to; zero for the
	// top-level run.
	Handle registry.Handle

	Message string

	// Traceback is the script-side stack, if the engine provides one.
	Traceback string

	// Stack is the Go stack for recovered panics.
	Stack string

	// Err is the cause: a *bridge.CallError when a bridge call failed,
	// ErrBudgetExceeded, or the engine error.
	Err error
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Function == "" {
		return fmt.Sprintf("script error: %s", e.Message)
	}
	return fmt.Sprintf("script error in %s (chart %s): %s", e.Function, e.Handle, e.Message)
}

// Unwrap returns the cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}
