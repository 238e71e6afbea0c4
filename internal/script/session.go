// Package script runs script handlers against the host bridge.
//
// A Session owns one interpreter (an Engine) for the lifetime of a loaded
// script. Load parses the source, runs its top level once and records the
// functions it defined. Invoke calls one of those functions with a fresh
// bridge.Context bound to the chart handle the event came from; the context
// is closed when the call returns.
//
// Sessions serialize Load, Reload, Invoke and Dispose with one mutex, so a
// reload never interleaves with a running handler. Script faults, blown
// execution budgets and Go panics end only the invocation that raised them
// and are reported as *RuntimeError.
package script

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	goerrors "github.com/go-errors/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dshills/chartbridge/internal/bridge"
	"github.com/dshills/chartbridge/internal/registry"
)

// Value is a handler result converted to Go: nil, bool, int64, float64,
// string, []any or map[string]any.
type Value = any

// Session is a long-lived script execution environment.
type Session struct {
	mu sync.Mutex

	id      string
	factory Factory
	api     *bridge.API
	logger  *zap.Logger
	cache   *Cache
	budget  time.Duration
	observe StateObserver

	state     atomic.Int32
	engine    Engine
	source    Source
	functions map[string]bool
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBudget bounds each top-level run and invocation to d.
// Zero means no budget beyond the caller's context.
func WithBudget(d time.Duration) Option {
	return func(s *Session) {
		s.budget = d
	}
}

// WithCache shares a compiled program cache.
func WithCache(c *Cache) Option {
	return func(s *Session) {
		s.cache = c
	}
}

// WithStateObserver registers fn for state transitions.
func WithStateObserver(fn StateObserver) Option {
	return func(s *Session) {
		s.observe = fn
	}
}

// NewSession creates an uninitialized session.
func NewSession(factory Factory, api *bridge.API, opts ...Option) *Session {
	s := &Session{
		id:      uuid.NewString(),
		factory: factory,
		api:     api,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		// NewCache only fails for non-positive sizes.
		s.cache, _ = NewCache(DefaultCacheSize)
	}
	s.logger = s.logger.With(zap.String("session", s.id))
	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// State returns the current state without waiting for a running call.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Source returns the source of the last load attempt.
func (s *Session) Source() Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// Functions returns the handler names the loaded script defines, sorted.
func (s *Session) Functions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.functions))
	for name := range s.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasFunction reports whether the loaded script defines name.
func (s *Session) HasFunction(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.functions[name]
}

// Load loads src into an uninitialized or failed session.
func (s *Session) Load(ctx context.Context, src Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.State() {
	case StateDisposed:
		return ErrSessionDisposed
	case StateUninitialized, StateFailed:
	default:
		return ErrAlreadyLoaded
	}
	return s.load(ctx, src)
}

// Reload replaces the loaded script with src. On failure the previous
// script is discarded and the session is left Failed.
func (s *Session) Reload(ctx context.Context, src Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() == StateDisposed {
		return ErrSessionDisposed
	}
	return s.load(ctx, src)
}

// load must be called with s.mu held.
func (s *Session) load(ctx context.Context, src Source) error {
	s.source = src

	eng, err := s.factory()
	if err != nil {
		s.fail()
		return fmt.Errorf("create engine: %w", err)
	}

	prog, ok := s.cache.Get(eng.Name(), src)
	if !ok {
		prog, err = eng.Compile(src)
		if err != nil {
			_ = eng.Close()
			s.fail()
			s.logger.Warn("script failed to parse", zap.String("source", src.Name), zap.Error(err))
			return err
		}
		s.cache.Add(eng.Name(), src, prog)
	}

	s.setState(StateLoaded)

	root := s.api.NewContext(0)
	runCtx, cancel := s.withBudget(ctx)
	err = protect(func() error { return eng.Run(runCtx, prog, root) })
	root.Close()
	if err != nil {
		err = s.classify(runCtx, ctx, err, "", 0, root)
	}
	cancel()

	if err != nil {
		_ = eng.Close()
		s.fail()
		s.logger.Warn("script top level failed", zap.String("source", src.Name), zap.Error(err))
		return err
	}

	if s.engine != nil {
		_ = s.engine.Close()
	}
	s.engine = eng
	s.functions = make(map[string]bool)
	for _, name := range eng.Functions() {
		s.functions[name] = true
	}
	s.setState(StateReady)
	s.logger.Debug("script loaded",
		zap.String("source", src.Name),
		zap.String("engine", eng.Name()),
		zap.Int("functions", len(s.functions)),
	)
	return nil
}

// Invoke calls the named script function for chart h with payload.
func (s *Session) Invoke(ctx context.Context, name string, h registry.Handle, payload any) (Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.State() {
	case StateReady:
	case StateDisposed:
		return nil, ErrSessionDisposed
	default:
		return nil, ErrSessionNotReady
	}

	if !s.functions[name] {
		s.logger.Warn("script function not found", zap.String("function", name), zap.Int64("chart_num", int64(h)))
		return nil, fmt.Errorf("%w: %q", ErrFunctionNotFound, name)
	}

	root := s.api.NewContext(h)
	defer root.Close()

	callCtx, cancel := s.withBudget(ctx)
	defer cancel()

	var v Value
	err := protect(func() error {
		var err error
		v, err = s.engine.Call(callCtx, name, payload, root)
		return err
	})
	if err != nil {
		err = s.classify(callCtx, ctx, err, name, h, root)
		s.logger.Debug("script invocation failed", zap.String("function", name), zap.Error(err))
		return nil, err
	}
	return v, nil
}

// Dispose releases the engine. It is safe to call more than once.
func (s *Session) Dispose() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() == StateDisposed {
		return nil
	}
	var err error
	if s.engine != nil {
		err = s.engine.Close()
		s.engine = nil
	}
	s.functions = nil
	s.setState(StateDisposed)
	return err
}

func (s *Session) fail() {
	if s.engine != nil {
		_ = s.engine.Close()
		s.engine = nil
	}
	s.functions = nil
	s.setState(StateFailed)
}

func (s *Session) setState(to State) {
	from := State(s.state.Swap(int32(to)))
	if s.observe != nil && from != to {
		s.observe(from, to)
	}
}

func (s *Session) withBudget(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.budget > 0 {
		return context.WithTimeoutCause(ctx, s.budget, ErrBudgetExceeded)
	}
	return context.WithCancel(ctx)
}

// classify turns an engine error into a *RuntimeError whose cause is the
// budget, the caller's context, or the bridge call that raised it.
func (s *Session) classify(callCtx, parent context.Context, err error, name string, h registry.Handle, root *bridge.Context) error {
	var rt *RuntimeError
	if !errors.As(err, &rt) {
		rt = &RuntimeError{Message: err.Error(), Err: err}
	}
	rt.Function = name
	rt.Handle = h

	switch {
	case parent.Err() != nil:
		rt.Err = parent.Err()
	case callCtx.Err() != nil:
		rt.Err = context.Cause(callCtx)
	default:
		if ce := attribute(err, root); ce != nil {
			rt.Err = ce
		}
	}
	return rt
}

// attribute finds the bridge failure a script error came from. Engines
// surface bridge errors as script errors, so the match falls back to the
// message text.
func attribute(err error, root *bridge.Context) *bridge.CallError {
	var ce *bridge.CallError
	if errors.As(err, &ce) {
		return ce
	}
	msg := err.Error()
	errs := root.Errors()
	for i := len(errs) - 1; i >= 0; i-- {
		if strings.Contains(msg, errs[i].Error()) {
			return errs[i]
		}
	}
	return nil
}

// protect runs fn and converts a panic into a *RuntimeError with the Go
// stack.
func protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			ge := goerrors.Wrap(r, 2)
			err = &RuntimeError{
				Message: fmt.Sprintf("panic: %v", r),
				Stack:   string(ge.Stack()),
				Err:     ge,
			}
		}
	}()
	return fn()
}
