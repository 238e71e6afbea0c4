// Package ecma is the goja ECMAScript engine.
//
// Handlers use the FireChartSVG chart script convention:
//
//	function paddingGrouperOnClick(evt) {
//	    var chart = FireChartSVG.getChart(chart_num);
//	    return chart.drawAnnotationLine(evt.clientX);
//	}
//
// chart_num and FireChartSVG are accessor properties on the global object
// that read the active invocation. Assigning to either throws a TypeError
// and neither can be redeclared. Handlers are also called with the context
// object {chart_num, FireChartSVG} as this and as their second argument.
package ecma

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/dshills/chartbridge/internal/bridge"
	"github.com/dshills/chartbridge/internal/script"
)

// Name is the engine kind.
const Name = "ecma"

const (
	globalChartNum = "chart_num"
	globalRoot     = "FireChartSVG"
)

// Engine runs ECMAScript in one goja runtime. A goja.Runtime is not
// goroutine-safe; script.Session serializes every call.
type Engine struct {
	vm     *goja.Runtime
	logger *zap.Logger

	active *binding
	closed bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger print and console.log write to outside an
// invocation.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		vm:     goja.New(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
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

// Name implements script.Engine.
func (e *Engine) Name() string {
	return Name
}

// Compile implements script.Engine.
func (e *Engine) Compile(src script.Source) (script.Program, error) {
	prog, err := goja.Compile(src.Name, src.Code, false)
	if err != nil {
		return nil, &script.SyntaxError{Source: src.Name, Message: err.Error(), Err: err}
	}
	return prog, nil
}

// Run implements script.Engine.
func (e *Engine) Run(ctx context.Context, prog script.Program, root *bridge.Context) error {
	p, ok := prog.(*goja.Program)
	if !ok {
		return fmt.Errorf("ecma: cannot run %T", prog)
	}
	if e.closed {
		return errors.New("ecma: engine closed")
	}
	_, err := e.guard(ctx, &binding{root: root}, func() (goja.Value, error) {
		return e.vm.RunProgram(p)
	})
	return err
}

// Functions implements script.Engine.
func (e *Engine) Functions() []string {
	global := e.vm.GlobalObject()
	var names []string
	for _, k := range global.Keys() {
		if _, ok := goja.AssertFunction(global.Get(k)); ok {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}

// Call implements script.Engine.
func (e *Engine) Call(ctx context.Context, name string, payload any, root *bridge.Context) (any, error) {
	if e.closed {
		return nil, errors.New("ecma: engine closed")
	}
	fn, ok := goja.AssertFunction(e.vm.GlobalObject().Get(name))
	if !ok {
		return nil, fmt.Errorf("%w: %q", script.ErrFunctionNotFound, name)
	}

	b := &binding{root: root}
	ctxObj := b.contextObject(e.vm)
	ret, err := e.guard(ctx, b, func() (goja.Value, error) {
		return fn(ctxObj, e.vm.ToValue(payload), ctxObj)
	})
	if err != nil {
		return nil, err
	}
	if ret == nil {
		return nil, nil
	}
	return ret.Export(), nil
}

// guard runs fn with b active and interrupts the runtime when ctx ends.
func (e *Engine) guard(ctx context.Context, b *binding, fn func() (goja.Value, error)) (goja.Value, error) {
	e.active = b
	defer func() { e.active = nil }()

	interrupted := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		e.vm.Interrupt(context.Cause(ctx))
		close(interrupted)
	})
	defer func() {
		if !stop() {
			<-interrupted
		}
		e.vm.ClearInterrupt()
	}()

	v, err := fn()
	if err != nil {
		return nil, runtimeError(err)
	}
	return v, nil
}

func runtimeError(err error) *script.RuntimeError {
	rt := &script.RuntimeError{Message: err.Error(), Err: err}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		rt.Message = ex.Value().String()
		rt.Traceback = ex.String()
	}
	return rt
}

// Close implements script.Engine.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	return nil
}

func (e *Engine) installPrint() {
	logFn := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, a := range call.Arguments {
			parts = append(parts, a.String())
		}
		msg := strings.Join(parts, " ")
		if e.active != nil {
			e.active.root.PrintMessage(msg)
		} else {
			e.logger.Info(msg)
		}
		return goja.Undefined()
	}

	global := e.vm.GlobalObject()
	console := e.vm.NewObject()
	_ = console.Set("log", logFn)
	_ = global.DefineDataProperty("print", e.vm.ToValue(logFn), goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE)
	_ = global.DefineDataProperty("console", console, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE)
}

// installBinding defines chart_num and FireChartSVG as read-only accessors
// over the active invocation.
func (e *Engine) installBinding() {
	global := e.vm.GlobalObject()
	define := func(name string, get func(b *binding) goja.Value) {
		getter := e.vm.ToValue(func(goja.FunctionCall) goja.Value {
			if e.active == nil {
				return goja.Undefined()
			}
			return get(e.active)
		})
		setter := e.vm.ToValue(func(goja.FunctionCall) goja.Value {
			panic(e.vm.NewTypeError("cannot assign to %s", name))
		})
		if err := global.DefineAccessorProperty(name, getter, setter, goja.FLAG_FALSE, goja.FLAG_FALSE); err != nil {
			e.logger.Error("failed to define global", zap.String("name", name), zap.Error(err))
		}
	}
	define(globalChartNum, func(b *binding) goja.Value { return b.chartNum(e.vm) })
	define(globalRoot, func(b *binding) goja.Value { return b.rootObject(e.vm) })
}
