// Package bridge implements the host operations scripts can call.
//
// An API is created once per host and shared by every invocation. For each
// handler invocation the script environment asks the API for a fresh
// Context bound to the chart handle the event came from. The Context is the
// script-visible FireChartSVG root: printMessage, getChart and
// createHostWindow. getChart returns a ChartProxy whose methods mutate the
// chart through the registry.
//
// Every operation is checked against the API's PermissionChecker. Failures
// are reported as *CallError and recorded on the Context so the script
// environment can attribute a script fault to the bridge call that caused
// it.
package bridge

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/dshills/chartbridge/internal/bridge/security"
	"github.com/dshills/chartbridge/internal/registry"
)

// DefaultMaxMessageLength bounds printMessage output.
const DefaultMaxMessageLength = 4096

// API is the host side of the bridge.
type API struct {
	registry *registry.Registry
	checker  *security.PermissionChecker
	windows  WindowProvider
	logger   *zap.Logger
	maxMsg   int
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the logger that receives printMessage output.
func WithLogger(l *zap.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithPermissions replaces the default capability allowlist.
func WithPermissions(pc *security.PermissionChecker) Option {
	return func(a *API) {
		if pc != nil {
			a.checker = pc
		}
	}
}

// WithWindowProvider attaches a host window provider.
func WithWindowProvider(p WindowProvider) Option {
	return func(a *API) {
		a.windows = p
	}
}

// WithMaxMessageLength sets the byte limit for printMessage; longer
// messages are truncated. n <= 0 disables the limit.
func WithMaxMessageLength(n int) Option {
	return func(a *API) {
		a.maxMsg = n
	}
}

// New creates an API over reg. Without WithPermissions the script gets
// security.DefaultCapabilities. host.log is always granted.
func New(reg *registry.Registry, opts ...Option) *API {
	a := &API{
		registry: reg,
		logger:   zap.NewNop(),
		maxMsg:   DefaultMaxMessageLength,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.checker == nil {
		a.checker = security.NewPermissionChecker("script")
		a.checker.GrantAll(security.DefaultCapabilities())
	}
	a.checker.Grant(security.CapabilityHostLog)
	return a
}

// Registry returns the registry the API resolves handles against.
func (a *API) Registry() *registry.Registry {
	return a.registry
}

// Permissions returns the API's permission checker.
func (a *API) Permissions() *security.PermissionChecker {
	return a.checker
}

// NewContext creates the context for one invocation bound to h.
// The caller must Close it when the invocation returns.
func (a *API) NewContext(h registry.Handle) *Context {
	return &Context{api: a, handle: h}
}

func (a *API) check(c security.Capability, op string, h registry.Handle) *CallError {
	if err := a.checker.CheckOperation(c, op); err != nil {
		return &CallError{Op: op, Handle: h, Err: fmt.Errorf("%w: %w", ErrCapabilityDenied, err)}
	}
	return nil
}
