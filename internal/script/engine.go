package script

import (
	"context"

	"github.com/dshills/chartbridge/internal/bridge"
)

// Program is an engine-specific compiled script. A Program does not hold
// interpreter state and can be run by any engine of the kind that
// compiled it.
type Program interface{}

// Engine is one interpreter instance. Engines are not safe for concurrent
// use; Session serializes all calls.
type Engine interface {
	// Name identifies the engine kind, e.g. "lua".
	Name() string

	// Compile parses src. Parse failures are returned as *SyntaxError.
	Compile(src Source) (Program, error)

	// Run executes the program's top level once with root as the
	// active bridge binding. The engine must stop when ctx is done.
	Run(ctx context.Context, prog Program, root *bridge.Context) error

	// Functions returns the names of the functions the script defined.
	Functions() []string

	// Call invokes a script function with payload and root as arguments
	// and root as the active bridge binding. Script faults are returned
	// as *RuntimeError. The engine must stop when ctx is done.
	Call(ctx context.Context, name string, payload any, root *bridge.Context) (any, error)

	// Close releases the interpreter.
	Close() error
}

// Factory creates a fresh engine. Sessions create a new engine for every
// load so a failed reload never leaves a half-initialized interpreter.
type Factory func() (Engine, error)
