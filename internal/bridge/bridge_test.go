package bridge

import (
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dshills/chartbridge/internal/bridge/security"
	"github.com/dshills/chartbridge/internal/chart"
	"github.com/dshills/chartbridge/internal/registry"
)

type fakeWindows struct {
	opened []WindowOptions
	err    error
}

func (f *fakeWindows) CreateWindow(opts WindowOptions) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.opened = append(f.opened, opts)
	return "win-1", nil
}

func newTestAPI(t *testing.T, opts ...Option) (*API, registry.Handle, *chart.Chart) {
	t.Helper()
	reg := registry.New()
	c := chart.New("test", []chart.Series{{Title: "A"}, {Title: "B"}})
	h := reg.Register(c)
	return New(reg, opts...), h, c
}

func TestPrintMessageLogs(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	api, h, _ := newTestAPI(t, WithLogger(zap.New(core)))

	ctx := api.NewContext(h)
	defer ctx.Close()
	ctx.PrintMessage("Hello")

	entries := logs.FilterMessage("Hello").All()
	if len(entries) != 1 {
		t.Fatalf("got %d log entries for Hello, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["chart_num"]; got != int64(h) {
		t.Errorf("chart_num field = %v, want %d", got, h)
	}
}

func TestPrintMessageTruncates(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	api, h, _ := newTestAPI(t, WithLogger(zap.New(core)), WithMaxMessageLength(2))

	ctx := api.NewContext(h)
	ctx.PrintMessage("héllo world")

	all := logs.All()
	if len(all) != 1 {
		t.Fatalf("got %d entries, want 1", len(all))
	}
	if all[0].Message != "h..." {
		t.Errorf("message = %q, want %q", all[0].Message, "h...")
	}
}

func TestGetChartOwnHandle(t *testing.T) {
	api, h, _ := newTestAPI(t)
	ctx := api.NewContext(h)

	p, err := ctx.GetChart(h)
	if err != nil {
		t.Fatalf("GetChart error = %v", err)
	}
	if p.ChartNum() != h {
		t.Errorf("ChartNum() = %s, want %s", p.ChartNum(), h)
	}
	name, err := p.Name()
	if err != nil || name != "test" {
		t.Errorf("Name() = %q, %v", name, err)
	}
}

func TestGetChartUnknownHandle(t *testing.T) {
	api, h, _ := newTestAPI(t)
	_ = api.Registry().Unregister(h)
	ctx := api.NewContext(h)

	_, err := ctx.GetChart(h)
	if !errors.Is(err, registry.ErrHandleNotFound) {
		t.Fatalf("GetChart error = %v, want ErrHandleNotFound", err)
	}
	var callErr *CallError
	if !errors.As(err, &callErr) || callErr.Op != "getChart" {
		t.Errorf("error = %#v, want *CallError for getChart", err)
	}
	if ctx.LastError() == nil {
		t.Error("LastError() = nil, want recorded failure")
	}
}

func TestGetChartCrossHandle(t *testing.T) {
	api, h, _ := newTestAPI(t)
	other := api.Registry().Register(chart.New("other", nil))
	ctx := api.NewContext(h)

	for _, target := range []registry.Handle{h, other} {
		p, err := ctx.GetChart(target)
		if err != nil {
			t.Fatalf("GetChart(%s) error = %v", target, err)
		}
		if p.ChartNum() != target {
			t.Errorf("ChartNum() = %s, want %s", p.ChartNum(), target)
		}
	}

	api.Permissions().Revoke(security.CapabilityChartCross)
	if _, err := ctx.GetChart(other); !errors.Is(err, ErrCapabilityDenied) {
		t.Errorf("GetChart(other) without chart.cross error = %v, want ErrCapabilityDenied", err)
	}
	if _, err := ctx.GetChart(h); err != nil {
		t.Errorf("GetChart(own) without chart.cross error = %v", err)
	}
}

func TestDrawAnnotationLineIDs(t *testing.T) {
	api, h, c := newTestAPI(t)

	for want := 1; want <= 2; want++ {
		ctx := api.NewContext(h)
		p, err := ctx.GetChart(h)
		if err != nil {
			t.Fatalf("GetChart error = %v", err)
		}
		id, err := p.DrawAnnotationLine(120)
		if err != nil {
			t.Fatalf("DrawAnnotationLine error = %v", err)
		}
		if id != want {
			t.Errorf("id = %d, want %d", id, want)
		}
		ctx.Close()
	}
	if n := len(c.Annotations()); n != 2 {
		t.Errorf("chart has %d annotations, want 2", n)
	}
}

func TestAnnotationModeFlow(t *testing.T) {
	api, h, c := newTestAPI(t)
	ctx := api.NewContext(h)
	p, _ := ctx.GetChart(h)

	id, err := p.DrawAnnotationLine(80)
	if err != nil {
		t.Fatalf("DrawAnnotationLine error = %v", err)
	}
	if err := p.DeleteAnnotationLine(id); !errors.Is(err, chart.ErrWrongAnnotationMode) {
		t.Errorf("DeleteAnnotationLine in line mode error = %v, want ErrWrongAnnotationMode", err)
	}
	if err := p.SetAnnotationMode("erase"); err != nil {
		t.Fatalf("SetAnnotationMode error = %v", err)
	}
	if err := p.DeleteAnnotationLine(id); err != nil {
		t.Errorf("DeleteAnnotationLine error = %v", err)
	}
	if c.AnnotationMode() != chart.ModeErase {
		t.Errorf("mode = %s, want erase", c.AnnotationMode())
	}
	if err := p.SetAnnotationMode("bogus"); !errors.Is(err, chart.ErrInvalidMode) {
		t.Errorf("SetAnnotationMode(bogus) error = %v, want ErrInvalidMode", err)
	}
}

func TestMoveSeries(t *testing.T) {
	api, h, c := newTestAPI(t)
	ctx := api.NewContext(h)
	p, _ := ctx.GetChart(h)

	if err := p.MoveSeriesUp("B"); err != nil {
		t.Fatalf("MoveSeriesUp error = %v", err)
	}
	if s := c.Series(); s[0].Title != "B" {
		t.Errorf("first series = %q, want B", s[0].Title)
	}
	if err := p.MoveSeriesDown("missing"); !errors.Is(err, chart.ErrSeriesNotFound) {
		t.Errorf("MoveSeriesDown(missing) error = %v, want ErrSeriesNotFound", err)
	}
}

func TestCapabilityDenied(t *testing.T) {
	pc := security.NewPermissionChecker("ro")
	pc.Grant(security.CapabilityChartRead)
	api, h, c := newTestAPI(t, WithPermissions(pc))

	ctx := api.NewContext(h)
	p, err := ctx.GetChart(h)
	if err != nil {
		t.Fatalf("GetChart error = %v", err)
	}
	if _, err := p.DrawAnnotationLine(10); !errors.Is(err, ErrCapabilityDenied) {
		t.Errorf("DrawAnnotationLine error = %v, want ErrCapabilityDenied", err)
	}
	if err := p.MoveSeriesUp("B"); !errors.Is(err, ErrCapabilityDenied) {
		t.Errorf("MoveSeriesUp error = %v, want ErrCapabilityDenied", err)
	}
	if len(c.Annotations()) != 0 {
		t.Error("denied draw should not change the chart")
	}
	if got := len(ctx.Errors()); got != 2 {
		t.Errorf("recorded %d errors, want 2", got)
	}
	if !pc.HasCapability(security.CapabilityHostLog) {
		t.Error("host.log should always be granted")
	}
}

func TestProxyAfterUnregister(t *testing.T) {
	api, h, _ := newTestAPI(t)
	ctx := api.NewContext(h)
	p, _ := ctx.GetChart(h)

	_ = api.Registry().Unregister(h)
	if _, err := p.DrawAnnotationLine(10); !errors.Is(err, registry.ErrHandleNotFound) {
		t.Errorf("DrawAnnotationLine error = %v, want ErrHandleNotFound", err)
	}
}

func TestContextClosed(t *testing.T) {
	api, h, _ := newTestAPI(t)
	ctx := api.NewContext(h)
	p, _ := ctx.GetChart(h)
	ctx.Close()

	if _, err := ctx.GetChart(h); !errors.Is(err, ErrContextClosed) {
		t.Errorf("GetChart after Close error = %v, want ErrContextClosed", err)
	}
	if _, err := p.DrawAnnotationLine(10); !errors.Is(err, ErrContextClosed) {
		t.Errorf("DrawAnnotationLine after Close error = %v, want ErrContextClosed", err)
	}
}

func TestCreateHostWindow(t *testing.T) {
	api, h, _ := newTestAPI(t)
	ctx := api.NewContext(h)

	if _, err := ctx.CreateHostWindow(WindowOptions{Title: "x"}); !errors.Is(err, ErrCapabilityDenied) {
		t.Errorf("CreateHostWindow without capability error = %v, want ErrCapabilityDenied", err)
	}

	api.Permissions().Grant(security.CapabilityHostWindow)
	if _, err := ctx.CreateHostWindow(WindowOptions{Title: "x"}); !errors.Is(err, ErrNoWindowProvider) {
		t.Errorf("CreateHostWindow without provider error = %v, want ErrNoWindowProvider", err)
	}

	wins := &fakeWindows{}
	pc := security.NewPermissionChecker("w")
	pc.Grant(security.CapabilityHostWindow)
	api2, h2, _ := newTestAPI(t, WithPermissions(pc), WithWindowProvider(wins))
	id, err := api2.NewContext(h2).CreateHostWindow(WindowOptions{Title: "Info"})
	if err != nil {
		t.Fatalf("CreateHostWindow error = %v", err)
	}
	if id != "win-1" || len(wins.opened) != 1 || wins.opened[0].Title != "Info" {
		t.Errorf("CreateHostWindow = %q, opened %+v", id, wins.opened)
	}
}

func TestCallErrorMessage(t *testing.T) {
	err := &CallError{Op: "drawAnnotationLine", Handle: 3, Err: chart.ErrWrongAnnotationMode}
	if !strings.Contains(err.Error(), "drawAnnotationLine (chart 3)") {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, chart.ErrWrongAnnotationMode) {
		t.Error("errors.Is should reach the cause")
	}
}

func TestWindowOptionsFromMap(t *testing.T) {
	opts := WindowOptionsFromMap(map[string]any{
		"title":  "T",
		"width":  float64(40),
		"height": int64(5),
		"x":      2,
		"border": false,
		"bogus":  "ignored",
	})
	want := WindowOptions{Title: "T", Width: 40, Height: 5, X: 2, Border: false}
	if opts != want {
		t.Errorf("WindowOptionsFromMap = %+v, want %+v", opts, want)
	}
	if !WindowOptionsFromMap(nil).Border {
		t.Error("border should default to true")
	}
}
