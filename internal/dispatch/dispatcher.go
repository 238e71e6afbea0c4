package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	goerrors "github.com/go-errors/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dshills/chartbridge/internal/chart"
	"github.com/dshills/chartbridge/internal/registry"
	"github.com/dshills/chartbridge/internal/script"
)

// Registry resolves chart handles.
type Registry interface {
	Lookup(h registry.Handle) (chart.Instance, error)
}

// Invoker calls script functions. *script.Session implements it.
type Invoker interface {
	Invoke(ctx context.Context, name string, h registry.Handle, payload any) (script.Value, error)
}

// Result is the outcome of one dispatch.
type Result struct {
	ID      string
	Handler string
	Handle  registry.Handle

	// Handled is true when the handler ran and returned normally.
	Handled bool

	// Dropped is true when the chart was not registered and no handler
	// ran.
	Dropped bool

	// Value is the handler's return value.
	Value any

	// Err describes why the event was not handled.
	Err error

	Duration time.Duration
}

// IsSuccess returns true if the handler ran and returned normally.
func (r Result) IsSuccess() bool {
	return r.Handled && r.Err == nil
}

// Dispatcher routes events to script handlers synchronously.
// It is safe for concurrent use; serialization of handler execution is the
// invoker's job.
type Dispatcher struct {
	registry Registry
	invoker  Invoker
	logger   *zap.Logger
	timeout  time.Duration

	dispatched  atomic.Uint64
	handled     atomic.Uint64
	dropped     atomic.Uint64
	notFound    atomic.Uint64
	failed      atomic.Uint64
	panicked    atomic.Uint64
	totalTimeNs atomic.Int64
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithTimeout bounds each dispatch. Zero means no timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.timeout = timeout
	}
}

// New creates a dispatcher.
func New(reg Registry, inv Invoker, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: reg,
		invoker:  inv,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch invokes handler for chart h with payload.
func (d *Dispatcher) Dispatch(ctx context.Context, h registry.Handle, handler string, payload any) Result {
	return d.dispatch(ctx, uuid.NewString(), h, handler, payload)
}

// DispatchEvent dispatches a decoded event. The event must name its
// handler.
func (d *Dispatcher) DispatchEvent(ctx context.Context, ev Event) Result {
	id := ev.ID
	if id == "" {
		id = uuid.NewString()
	}
	if ev.Handler == "" {
		d.dispatched.Add(1)
		d.failed.Add(1)
		return Result{ID: id, Handle: ev.Handle, Err: fmt.Errorf("%w: target %q", ErrNoHandler, ev.Target)}
	}
	return d.dispatch(ctx, id, ev.Handle, ev.Handler, ev.Payload())
}

func (d *Dispatcher) dispatch(ctx context.Context, id string, h registry.Handle, handler string, payload any) (res Result) {
	d.dispatched.Add(1)
	start := time.Now()
	res = Result{ID: id, Handler: handler, Handle: h}

	defer func() {
		if r := recover(); r != nil {
			ge := goerrors.Wrap(r, 2)
			res.Handled = false
			res.Err = fmt.Errorf("%w: %v", ErrPanic, ge)
			d.panicked.Add(1)
			d.logger.Error("handler panicked",
				zap.String("handler", handler),
				zap.Int64("chart_num", int64(h)),
				zap.String("stack", string(ge.Stack())),
			)
		}
		res.Duration = time.Since(start)
		d.totalTimeNs.Add(res.Duration.Nanoseconds())
	}()

	if _, err := d.registry.Lookup(h); err != nil {
		d.dropped.Add(1)
		res.Dropped = true
		res.Err = err
		d.logger.Debug("event dropped", zap.String("handler", handler), zap.Int64("chart_num", int64(h)))
		return res
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	v, err := d.invoker.Invoke(ctx, handler, h, payload)
	switch {
	case errors.Is(err, script.ErrFunctionNotFound):
		d.notFound.Add(1)
		res.Err = err
	case err != nil:
		d.failed.Add(1)
		res.Err = err
		d.logger.Warn("handler failed",
			zap.String("handler", handler),
			zap.Int64("chart_num", int64(h)),
			zap.Error(err),
		)
	default:
		d.handled.Add(1)
		res.Handled = true
		res.Value = v
	}
	return res
}

// Stats contains dispatch statistics.
type Stats struct {
	// Dispatched is the total number of dispatch calls.
	Dispatched uint64

	// Handled is the number of handlers that returned normally.
	Handled uint64

	// Dropped is the number of events for unregistered charts.
	Dropped uint64

	// NotFound is the number of events naming an undefined handler.
	NotFound uint64

	// Failed is the number of handlers that faulted, plus events that
	// named no handler.
	Failed uint64

	// Panicked is the number of panics recovered by the dispatcher.
	Panicked uint64

	TotalDuration time.Duration
	AvgDuration   time.Duration
}

// Stats returns dispatch statistics. Counters are read individually and may
// be slightly inconsistent under concurrent dispatch.
func (d *Dispatcher) Stats() Stats {
	dispatched := d.dispatched.Load()
	totalNs := d.totalTimeNs.Load()

	var avgNs int64
	if dispatched > 0 {
		avgNs = totalNs / int64(dispatched)
	}

	return Stats{
		Dispatched:    dispatched,
		Handled:       d.handled.Load(),
		Dropped:       d.dropped.Load(),
		NotFound:      d.notFound.Load(),
		Failed:        d.failed.Load(),
		Panicked:      d.panicked.Load(),
		TotalDuration: time.Duration(totalNs),
		AvgDuration:   time.Duration(avgNs),
	}
}

// ResetStats resets all statistics to zero.
func (d *Dispatcher) ResetStats() {
	d.dispatched.Store(0)
	d.handled.Store(0)
	d.dropped.Store(0)
	d.notFound.Store(0)
	d.failed.Store(0)
	d.panicked.Store(0)
	d.totalTimeNs.Store(0)
}
