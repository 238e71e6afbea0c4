package bridge

import (
	"errors"
	"fmt"

	"github.com/dshills/chartbridge/internal/registry"
)

// Bridge errors.
var (
	// ErrCapabilityDenied is returned when the script lacks the capability
	// an operation requires.
	ErrCapabilityDenied = errors.New("capability denied")

	// ErrNoWindowProvider is returned by createHostWindow when the host has
	// no window provider attached.
	ErrNoWindowProvider = errors.New("no window provider")

	// ErrContextClosed is returned when a context or proxy is used after
	// its invocation returned.
	ErrContextClosed = errors.New("bridge context used after invocation")
)

// CallError reports a failed bridge operation.
type CallError struct {
	// Op is the script-visible operation name, e.g. "drawAnnotationLine".
	Op string

	// Handle is the chart the operation targeted, or the invocation's
	// handle for operations that do not target a chart.
	Handle registry.Handle

	Err error
}

// Error implements the error interface.
func (e *CallError) Error() string {
	return fmt.Sprintf("%s (chart %s): %v", e.Op, e.Handle, e.Err)
}

// Unwrap returns the underlying error.
func (e *CallError) Unwrap() error {
	return e.Err
}
