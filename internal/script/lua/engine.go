package lua

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
	"go.uber.org/zap"

	"github.com/dshills/chartbridge/internal/bridge"
	"github.com/dshills/chartbridge/internal/script"
)

// Name is the engine kind.
const Name = "lua"

// Engine runs Lua scripts in one sandboxed LState.
//
// gopher-lua's LState is not goroutine-safe; script.Session serializes
// every call.
type Engine struct {
	L      *lua.LState
	logger *zap.Logger

	active *binding
	closed bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger print writes to outside an invocation.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates a sandboxed engine.
func New(opts ...Option) *Engine {
	e := &Engine{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}

	e.L = lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(e.L)
	e.installPrint()
	e.installBinding()
	return e
}

// Factory returns a script.Factory creating engines with opts.
func Factory(opts ...Option) script.Factory {
	return func() (script.Engine, error) {
		return New(opts...), nil
	}
}

type program struct {
	proto *lua.FunctionProto
}

// Name implements script.Engine.
func (e *Engine) Name() string {
	return Name
}

// Compile implements script.Engine.
func (e *Engine) Compile(src script.Source) (script.Program, error) {
	chunk, err := parse.Parse(strings.NewReader(src.Code), src.Name)
	if err != nil {
		return nil, syntaxError(src, err)
	}
	proto, err := lua.Compile(chunk, src.Name)
	if err != nil {
		return nil, syntaxError(src, err)
	}
	return &program{proto: proto}, nil
}

func syntaxError(src script.Source, err error) *script.SyntaxError {
	se := &script.SyntaxError{Source: src.Name, Message: err.Error(), Err: err}
	var pe *parse.Error
	if errors.As(err, &pe) {
		se.Message = pe.Message
		if pe.Pos.Line > 0 {
			se.Line = pe.Pos.Line
			se.Column = pe.Pos.Column
		}
	}
	return se
}

// Run implements script.Engine.
func (e *Engine) Run(ctx context.Context, prog script.Program, root *bridge.Context) error {
	p, ok := prog.(*program)
	if !ok {
		return fmt.Errorf("lua: cannot run %T", prog)
	}
	if e.closed {
		return errors.New("lua: engine closed")
	}
	fn := e.L.NewFunctionFromProto(p.proto)
	_, err := e.call(ctx, &binding{root: root}, fn)
	return err
}

// Functions implements script.Engine. Only functions defined by the script
// are listed; library functions are Go functions.
func (e *Engine) Functions() []string {
	var names []string
	e.L.G.Global.ForEach(func(k, v lua.LValue) {
		name, ok := k.(lua.LString)
		if !ok {
			return
		}
		if fn, ok := v.(*lua.LFunction); ok && !fn.IsG {
			names = append(names, string(name))
		}
	})
	sort.Strings(names)
	return names
}

// Call implements script.Engine.
func (e *Engine) Call(ctx context.Context, name string, payload any, root *bridge.Context) (any, error) {
	if e.closed {
		return nil, errors.New("lua: engine closed")
	}
	fn, ok := e.L.G.Global.RawGetString(name).(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("%w: %q", script.ErrFunctionNotFound, name)
	}

	b := &binding{root: root}
	ret, err := e.call(ctx, b, fn, ToLuaValue(e.L, payload), b.contextTable(e.L))
	if err != nil {
		return nil, err
	}
	return ToGoValue(ret), nil
}

// call runs fn with b active and returns its first result.
func (e *Engine) call(ctx context.Context, b *binding, fn *lua.LFunction, args ...lua.LValue) (lua.LValue, error) {
	e.clearBinding()
	e.active = b
	defer func() { e.active = nil }()

	e.L.SetContext(ctx)
	defer e.L.RemoveContext()

	top := e.L.GetTop()
	err := e.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...)
	if err != nil {
		e.L.SetTop(top)
		return lua.LNil, runtimeError(err)
	}
	ret := e.L.Get(-1)
	e.L.Pop(1)
	return ret, nil
}

func runtimeError(err error) *script.RuntimeError {
	rt := &script.RuntimeError{Message: err.Error(), Err: err}
	var ae *lua.ApiError
	if errors.As(err, &ae) {
		if ae.Object != nil {
			rt.Message = ae.Object.String()
		}
		rt.Traceback = ae.StackTrace
	}
	return rt
}

// Close implements script.Engine.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.L.Close()
	e.closed = true
	return nil
}
