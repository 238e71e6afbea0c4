package bridge

import (
	"github.com/dshills/chartbridge/internal/bridge/security"
	"github.com/dshills/chartbridge/internal/chart"
	"github.com/dshills/chartbridge/internal/registry"
)

// ChartProxy is the script view of one chart. The chart is resolved
// through the registry on every call, so a proxy to an unregistered chart
// fails with registry.ErrHandleNotFound.
type ChartProxy struct {
	ctx    *Context
	handle registry.Handle
}

// ChartNum returns the proxy's handle.
func (p *ChartProxy) ChartNum() registry.Handle {
	return p.handle
}

// Name returns the chart name.
func (p *ChartProxy) Name() (string, error) {
	inst, err := p.resolve("getName", "")
	if err != nil {
		return "", err
	}
	return inst.Name(), nil
}

// DrawAnnotationLine draws an annotation line at client x coordinate x and
// returns its id.
func (p *ChartProxy) DrawAnnotationLine(x float64) (int, error) {
	const op = "drawAnnotationLine"
	inst, err := p.resolve(op, security.CapabilityChartAnnotate)
	if err != nil {
		return 0, err
	}
	id, err := inst.DrawAnnotationLine(x)
	if err != nil {
		return 0, p.fail(op, err)
	}
	return id, nil
}

// DeleteAnnotationLine removes the annotation line with the given id.
func (p *ChartProxy) DeleteAnnotationLine(id int) error {
	const op = "deleteAnnotationLine"
	inst, err := p.resolve(op, security.CapabilityChartAnnotate)
	if err != nil {
		return err
	}
	if err := inst.DeleteAnnotationLine(id); err != nil {
		return p.fail(op, err)
	}
	return nil
}

// SetAnnotationMode sets the annotation mode by name ("line", "erase",
// "none").
func (p *ChartProxy) SetAnnotationMode(mode string) error {
	const op = "setAnnotationMode"
	inst, err := p.resolve(op, security.CapabilityChartAnnotate)
	if err != nil {
		return err
	}
	m, err := chart.ParseAnnotationMode(mode)
	if err != nil {
		return p.fail(op, err)
	}
	inst.SetAnnotationMode(m)
	return nil
}

// MoveSeriesUp moves the named series one row up.
func (p *ChartProxy) MoveSeriesUp(title string) error {
	const op = "moveSeriesUp"
	inst, err := p.resolve(op, security.CapabilityChartLayout)
	if err != nil {
		return err
	}
	if err := inst.MoveSeriesUp(title); err != nil {
		return p.fail(op, err)
	}
	return nil
}

// MoveSeriesDown moves the named series one row down.
func (p *ChartProxy) MoveSeriesDown(title string) error {
	const op = "moveSeriesDown"
	inst, err := p.resolve(op, security.CapabilityChartLayout)
	if err != nil {
		return err
	}
	if err := inst.MoveSeriesDown(title); err != nil {
		return p.fail(op, err)
	}
	return nil
}

// resolve checks liveness and capability, then looks the chart up.
// An empty capability means the operation needs none.
func (p *ChartProxy) resolve(op string, c security.Capability) (chart.Instance, error) {
	if err := p.ctx.alive(op); err != nil {
		return nil, err
	}
	if c != "" {
		if err := p.ctx.api.check(c, op, p.handle); err != nil {
			return nil, p.ctx.record(err)
		}
	}
	inst, err := p.ctx.api.registry.Lookup(p.handle)
	if err != nil {
		return nil, p.fail(op, err)
	}
	return inst, nil
}

func (p *ChartProxy) fail(op string, err error) error {
	return p.ctx.record(&CallError{Op: op, Handle: p.handle, Err: err})
}
