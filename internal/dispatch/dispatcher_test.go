package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dshills/chartbridge/internal/bridge"
	"github.com/dshills/chartbridge/internal/chart"
	"github.com/dshills/chartbridge/internal/registry"
	"github.com/dshills/chartbridge/internal/script"
	"github.com/dshills/chartbridge/internal/script/ecma"
	"github.com/dshills/chartbridge/internal/script/lua"
)

type call struct {
	name    string
	handle  registry.Handle
	payload any
}

type fakeInvoker struct {
	mu    sync.Mutex
	calls []call
	fn    func(ctx context.Context, name string) (script.Value, error)
}

func (f *fakeInvoker) Invoke(ctx context.Context, name string, h registry.Handle, payload any) (script.Value, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{name: name, handle: h, payload: payload})
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(ctx, name)
	}
	return "ok", nil
}

func (f *fakeInvoker) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newRegistry() (*registry.Registry, registry.Handle) {
	reg := registry.New()
	h := reg.Register(chart.New("test", []chart.Series{{Title: "A"}}))
	return reg, h
}

func TestDispatchHandled(t *testing.T) {
	reg, h := newRegistry()
	inv := &fakeInvoker{}
	d := New(reg, inv)

	res := d.Dispatch(context.Background(), h, "greet", map[string]any{"type": "click"})
	if !res.IsSuccess() {
		t.Fatalf("Dispatch result = %+v, want success", res)
	}
	if res.Value != "ok" {
		t.Errorf("Value = %v, want ok", res.Value)
	}
	if res.ID == "" {
		t.Error("ID should be assigned")
	}
	if inv.count() != 1 || inv.calls[0].handle != h || inv.calls[0].name != "greet" {
		t.Errorf("calls = %+v", inv.calls)
	}
}

func TestDispatchDropsUnregistered(t *testing.T) {
	reg, h := newRegistry()
	inv := &fakeInvoker{}
	d := New(reg, inv)

	if err := reg.Unregister(h); err != nil {
		t.Fatalf("Unregister error = %v", err)
	}

	res := d.Dispatch(context.Background(), h, "greet", nil)
	if !res.Dropped {
		t.Error("event for unregistered chart should be dropped")
	}
	if res.Handled {
		t.Error("dropped event should not be handled")
	}
	if !errors.Is(res.Err, registry.ErrHandleNotFound) {
		t.Errorf("Err = %v, want ErrHandleNotFound", res.Err)
	}
	if inv.count() != 0 {
		t.Error("handler should not run for a dropped event")
	}
	if d.Stats().Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", d.Stats().Dropped)
	}
}

func TestDispatchOutcomes(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name     string
		fn       func(ctx context.Context, name string) (script.Value, error)
		wantErr  error
		notFound uint64
		failed   uint64
		panicked uint64
	}{
		{
			name: "not found",
			fn: func(context.Context, string) (script.Value, error) {
				return nil, fmt.Errorf("%w: %q", script.ErrFunctionNotFound, "missing")
			},
			wantErr:  script.ErrFunctionNotFound,
			notFound: 1,
		},
		{
			name: "failed",
			fn: func(context.Context, string) (script.Value, error) {
				return nil, boom
			},
			wantErr: boom,
			failed:  1,
		},
		{
			name: "panic",
			fn: func(context.Context, string) (script.Value, error) {
				panic("unexpected")
			},
			wantErr:  ErrPanic,
			panicked: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, h := newRegistry()
			d := New(reg, &fakeInvoker{fn: tt.fn})

			res := d.Dispatch(context.Background(), h, "handler", nil)
			if res.Handled {
				t.Error("Handled should be false")
			}
			if !errors.Is(res.Err, tt.wantErr) {
				t.Errorf("Err = %v, want %v", res.Err, tt.wantErr)
			}

			s := d.Stats()
			if s.NotFound != tt.notFound || s.Failed != tt.failed || s.Panicked != tt.panicked {
				t.Errorf("Stats = %+v", s)
			}
			if s.Dispatched != 1 {
				t.Errorf("Dispatched = %d, want 1", s.Dispatched)
			}
		})
	}
}

func TestDispatchFailureLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	reg, h := newRegistry()
	inv := &fakeInvoker{fn: func(context.Context, string) (script.Value, error) {
		return nil, errors.New("boom")
	}}
	d := New(reg, inv, WithLogger(zap.New(core)))

	d.Dispatch(context.Background(), h, "handler", nil)
	entries := logs.FilterMessage("handler failed").All()
	if len(entries) != 1 {
		t.Fatalf("got %d failure logs, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["chart_num"]; got != int64(h) {
		t.Errorf("chart_num field = %v, want %d", got, h)
	}
}

func TestDispatchTimeout(t *testing.T) {
	reg, h := newRegistry()
	inv := &fakeInvoker{fn: func(ctx context.Context, _ string) (script.Value, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	d := New(reg, inv, WithTimeout(20*time.Millisecond))

	res := d.Dispatch(context.Background(), h, "spin", nil)
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Errorf("Err = %v, want DeadlineExceeded", res.Err)
	}
}

func TestDispatchEvent(t *testing.T) {
	reg, h := newRegistry()
	inv := &fakeInvoker{}
	d := New(reg, inv)

	ev := Event{
		ID:      "ev-1",
		Kind:    "mousedown",
		Handler: chart.HandlerCanvasClick,
		Handle:  h,
		Target:  chart.IDAnnotationCanvas,
		ClientX: 120,
		Dataset: map[string]string{"series": "A"},
	}
	res := d.DispatchEvent(context.Background(), ev)
	if !res.IsSuccess() {
		t.Fatalf("DispatchEvent result = %+v", res)
	}
	if res.ID != "ev-1" {
		t.Errorf("ID = %q, want ev-1", res.ID)
	}

	p, ok := inv.calls[0].payload.(map[string]any)
	if !ok {
		t.Fatalf("payload type = %T", inv.calls[0].payload)
	}
	if p["type"] != "mousedown" || p["clientX"] != float64(120) || p["target"] != chart.IDAnnotationCanvas {
		t.Errorf("payload = %v", p)
	}
	if ds, _ := p["dataset"].(map[string]any); ds["series"] != "A" {
		t.Errorf("dataset = %v", p["dataset"])
	}
}

func TestDispatchEventWithoutHandler(t *testing.T) {
	reg, h := newRegistry()
	inv := &fakeInvoker{}
	d := New(reg, inv)

	res := d.DispatchEvent(context.Background(), Event{Handle: h, Target: "nowhere"})
	if !errors.Is(res.Err, ErrNoHandler) {
		t.Errorf("Err = %v, want ErrNoHandler", res.Err)
	}
	if inv.count() != 0 {
		t.Error("invoker should not be called")
	}
}

func TestStatsReset(t *testing.T) {
	reg, h := newRegistry()
	d := New(reg, &fakeInvoker{})

	for i := 0; i < 3; i++ {
		d.Dispatch(context.Background(), h, "greet", nil)
	}
	if s := d.Stats(); s.Dispatched != 3 || s.Handled != 3 {
		t.Errorf("Stats = %+v", s)
	}

	d.ResetStats()
	if s := d.Stats(); s.Dispatched != 0 || s.Handled != 0 || s.TotalDuration != 0 {
		t.Errorf("Stats after reset = %+v", s)
	}
}

func TestDispatchConcurrent(t *testing.T) {
	reg, h := newRegistry()
	d := New(reg, &fakeInvoker{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Dispatch(context.Background(), h, "greet", nil)
		}()
	}
	wg.Wait()

	if s := d.Stats(); s.Dispatched != 50 || s.Handled != 50 {
		t.Errorf("Stats = %+v", s)
	}
}

func TestDispatchThroughSession(t *testing.T) {
	reg := registry.New()
	c := chart.New("Fire chart", []chart.Series{{Title: "A"}, {Title: "B"}})
	h := reg.Register(c)

	s := script.NewSession(lua.Factory(), bridge.New(reg))
	src := `
function paddingGrouperOnClick(evt)
    return FireChartSVG.getChart(chart_num).drawAnnotationLine(evt.clientX)
end

function moveSeriesDownOnClick(evt)
    FireChartSVG.getChart(chart_num).moveSeriesDown(evt.dataset.series)
end
`
	if err := s.Load(context.Background(), script.NewSource("events.lua", src)); err != nil {
		t.Fatalf("Load error = %v", err)
	}
	defer s.Dispose()

	d := New(reg, s)
	ctx := context.Background()

	res := d.DispatchEvent(ctx, Event{Kind: "mousedown", Handler: chart.HandlerCanvasClick, Handle: h, ClientX: 150})
	if !res.IsSuccess() || res.Value != int64(1) {
		t.Fatalf("draw result = %+v", res)
	}
	if a := c.Annotations(); len(a) != 1 || a[0].X != 100 {
		t.Errorf("Annotations = %+v", a)
	}

	res = d.DispatchEvent(ctx, Event{Kind: "click", Handler: chart.HandlerSeriesDown, Handle: h, Dataset: map[string]string{"series": "A"}})
	if !res.IsSuccess() {
		t.Fatalf("move result = %+v", res)
	}
	if got := c.Series(); got[0].Title != "B" {
		t.Errorf("Series = %+v, want B first", got)
	}

	res = d.DispatchEvent(ctx, Event{Handler: "annotationLineOnClick", Handle: h})
	if !errors.Is(res.Err, script.ErrFunctionNotFound) {
		t.Errorf("Err = %v, want ErrFunctionNotFound", res.Err)
	}
}

func TestScenarioHandleSeven(t *testing.T) {
	sources := map[string]script.Source{
		"lua": script.NewSource("scenario.lua", `
function greet(evt)
    FireChartSVG.printMessage("Hello")
end

function whoAmI(evt)
    return FireChartSVG.getChart(7).getChartNum()
end

function paddingGrouperOnClick(evt)
    return FireChartSVG.getChart(chart_num).drawAnnotationLine(evt.clientX)
end
`),
		"ecma": script.NewSource("scenario.js", `
function greet(evt) {
    FireChartSVG.printMessage("Hello");
}

function whoAmI(evt) {
    return FireChartSVG.getChart(7).getChartNum();
}

function paddingGrouperOnClick(evt) {
    return FireChartSVG.getChart(chart_num).drawAnnotationLine(evt.clientX);
}
`),
	}
	factories := map[string]script.Factory{
		"lua":  lua.Factory(),
		"ecma": ecma.Factory(),
	}

	for name, src := range sources {
		t.Run(name, func(t *testing.T) {
			core, logs := observer.New(zapcore.InfoLevel)
			reg := registry.New(registry.WithFirstHandle(7))
			h := reg.Register(chart.New("Fire chart", nil))
			if h != 7 {
				t.Fatalf("handle = %d, want 7", h)
			}

			s := script.NewSession(factories[name], bridge.New(reg, bridge.WithLogger(zap.New(core))))
			if err := s.Load(context.Background(), src); err != nil {
				t.Fatalf("Load error = %v", err)
			}
			defer s.Dispose()

			d := New(reg, s)
			ctx := context.Background()

			if res := d.Dispatch(ctx, h, "greet", nil); !res.IsSuccess() {
				t.Fatalf("greet result = %+v", res)
			}
			if logs.FilterMessage("Hello").Len() != 1 {
				t.Error("Hello should reach the host log")
			}

			res := d.Dispatch(ctx, h, "whoAmI", nil)
			if !res.IsSuccess() || res.Value != int64(7) {
				t.Errorf("getChart(7).getChartNum() result = %+v", res)
			}

			for want := int64(1); want <= 2; want++ {
				res := d.DispatchEvent(ctx, Event{Kind: "click", Handler: chart.HandlerCanvasClick, Handle: h, ClientX: 120})
				if !res.IsSuccess() || res.Value != want {
					t.Errorf("click %d result = %+v", want, res)
				}
			}

			res = d.Dispatch(ctx, h, "neverDefined", nil)
			if !errors.Is(res.Err, script.ErrFunctionNotFound) || res.Handled {
				t.Errorf("undefined handler result = %+v", res)
			}
			if s.State() != script.StateReady {
				t.Errorf("State() = %v, session should survive a missing handler", s.State())
			}
		})
	}
}
