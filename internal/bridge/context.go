package bridge

import (
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/dshills/chartbridge/internal/bridge/security"
	"github.com/dshills/chartbridge/internal/registry"
)

// Context is the per-invocation bridge root. It is valid only until Close.
type Context struct {
	api    *API
	handle registry.Handle

	mu     sync.Mutex
	closed bool
	errs   []*CallError
}

// ChartNum returns the handle the invocation is bound to.
func (c *Context) ChartNum() registry.Handle {
	return c.handle
}

// PrintMessage writes msg to the host log. It always succeeds.
func (c *Context) PrintMessage(msg string) {
	if limit := c.api.maxMsg; limit > 0 && len(msg) > limit {
		msg = truncate(msg, limit)
	}
	c.api.logger.Info(msg, zap.Int64("chart_num", int64(c.handle)))
}

// GetChart resolves h to a proxy. Handles other than the invocation's own
// require chart.cross, which is granted by default.
func (c *Context) GetChart(h registry.Handle) (*ChartProxy, error) {
	const op = "getChart"
	if err := c.alive(op); err != nil {
		return nil, err
	}
	if err := c.api.check(security.CapabilityChartRead, op, h); err != nil {
		return nil, c.record(err)
	}
	if h != c.handle {
		if err := c.api.check(security.CapabilityChartCross, op, h); err != nil {
			return nil, c.record(err)
		}
	}
	if _, err := c.api.registry.Lookup(h); err != nil {
		return nil, c.record(&CallError{Op: op, Handle: h, Err: err})
	}
	return &ChartProxy{ctx: c, handle: h}, nil
}

// CreateHostWindow opens a host window and returns its id.
func (c *Context) CreateHostWindow(opts WindowOptions) (string, error) {
	const op = "createHostWindow"
	if err := c.alive(op); err != nil {
		return "", err
	}
	if err := c.api.check(security.CapabilityHostWindow, op, c.handle); err != nil {
		return "", c.record(err)
	}
	if c.api.windows == nil {
		return "", c.record(&CallError{Op: op, Handle: c.handle, Err: ErrNoWindowProvider})
	}
	id, err := c.api.windows.CreateWindow(opts)
	if err != nil {
		return "", c.record(&CallError{Op: op, Handle: c.handle, Err: err})
	}
	return id, nil
}

// Close ends the context. Later calls through it or its proxies fail with
// ErrContextClosed.
func (c *Context) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Errors returns the bridge failures recorded during the invocation.
func (c *Context) Errors() []*CallError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*CallError(nil), c.errs...)
}

// LastError returns the most recent bridge failure, or nil.
func (c *Context) LastError() *CallError {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.errs) == 0 {
		return nil
	}
	return c.errs[len(c.errs)-1]
}

func (c *Context) alive(op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return &CallError{Op: op, Handle: c.handle, Err: ErrContextClosed}
	}
	return nil
}

func (c *Context) record(err *CallError) error {
	c.mu.Lock()
	c.errs = append(c.errs, err)
	c.mu.Unlock()
	return err
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
