// Package app wires the chart registry, script session and event
// dispatcher into a running host.
//
// All dispatches and script reloads run on a single UI loop goroutine, so
// handlers never observe each other mid-flight. Rendering after a dispatch
// happens on the same goroutine.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/dshills/chartbridge/internal/bridge"
	"github.com/dshills/chartbridge/internal/bridge/security"
	"github.com/dshills/chartbridge/internal/chart"
	"github.com/dshills/chartbridge/internal/config"
	"github.com/dshills/chartbridge/internal/dispatch"
	"github.com/dshills/chartbridge/internal/hostui"
	"github.com/dshills/chartbridge/internal/registry"
	"github.com/dshills/chartbridge/internal/script"
	"github.com/dshills/chartbridge/internal/script/ecma"
	"github.com/dshills/chartbridge/internal/script/lua"
	"github.com/dshills/chartbridge/internal/script/watch"
	"github.com/dshills/chartbridge/internal/uiloop"
	"github.com/dshills/chartbridge/internal/wiring"
)

// Options configures the application.
type Options struct {
	// Config defaults to config.Default().
	Config *config.Config

	// Logger defaults to a no-op logger.
	Logger *zap.Logger

	// Windows overrides the host window provider. When nil and host
	// windows are allowed, a terminal provider is created.
	Windows bridge.WindowProvider

	// Source overrides the script named by the config.
	Source *script.Source
}

type chartEntry struct {
	chart *chart.Chart
	doc   *wiring.Document
}

// Application is the running chartbridge host.
type Application struct {
	mu sync.RWMutex

	cfg    *config.Config
	logger *zap.Logger

	registry   *registry.Registry
	charts     map[registry.Handle]*chartEntry
	api        *bridge.API
	screen     *hostui.ScreenProvider
	session    *script.Session
	dispatcher *dispatch.Dispatcher
	loop       *uiloop.Loop
	watcher    *watch.Watcher

	running atomic.Bool
	stopped atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates and bootstraps an application. The script is loaded before
// New returns.
func New(ctx context.Context, opts Options) (*Application, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	app := &Application{
		cfg:      cfg,
		logger:   logger,
		registry: registry.New(),
		charts:   make(map[registry.Handle]*chartEntry),
		loop:     uiloop.New(cfg.Dispatch.QueueSize),
	}
	if err := app.bootstrap(ctx, opts); err != nil {
		app.closeComponents()
		return nil, err
	}
	return app, nil
}

// bootstrap initializes components in dependency order.
func (app *Application) bootstrap(ctx context.Context, opts Options) error {
	// 1. Charts
	for _, cc := range app.cfg.Charts {
		if _, err := app.AddChart(cc); err != nil {
			return &InitError{Component: "chart " + cc.Name, Err: err}
		}
	}

	// 2. Bridge
	caps, err := app.cfg.Permissions()
	if err != nil {
		return &InitError{Component: "permissions", Err: err}
	}
	checker := security.NewPermissionChecker("chart script")
	checker.GrantAll(caps)

	bridgeOpts := []bridge.Option{
		bridge.WithLogger(app.logger.Named("script")),
		bridge.WithPermissions(checker),
		bridge.WithMaxMessageLength(app.cfg.Bridge.MaxMessageLength),
	}
	switch {
	case opts.Windows != nil:
		bridgeOpts = append(bridgeOpts, bridge.WithWindowProvider(opts.Windows))
	case app.cfg.Bridge.AllowHostWindow:
		app.screen = hostui.New(hostui.WithLogger(app.logger.Named("hostui")))
		bridgeOpts = append(bridgeOpts, bridge.WithWindowProvider(app.screen))
	}
	app.api = bridge.New(app.registry, bridgeOpts...)

	// 3. Script session
	cache, err := script.NewCache(app.cfg.Script.CacheSize)
	if err != nil {
		return &InitError{Component: "script cache", Err: err}
	}
	sessionLogger := app.logger.Named("session")
	app.session = script.NewSession(app.factory(), app.api,
		script.WithLogger(sessionLogger),
		script.WithBudget(app.cfg.Script.Budget.Std()),
		script.WithCache(cache),
		script.WithStateObserver(func(from, to script.State) {
			sessionLogger.Debug("script state changed",
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		}),
	)

	src, err := app.source(opts)
	if err != nil {
		return &InitError{Component: "script", Err: err}
	}
	if err := app.session.Load(ctx, src); err != nil {
		return &InitError{Component: "script", Err: err}
	}
	app.checkHandlers()

	// 4. Dispatcher
	app.dispatcher = dispatch.New(app.registry, app.session,
		dispatch.WithLogger(app.logger.Named("dispatch")),
		dispatch.WithTimeout(app.cfg.Dispatch.Timeout.Std()),
	)
	return nil
}

func (app *Application) factory() script.Factory {
	engineLogger := app.logger.Named("script")
	if app.cfg.EngineFor() == config.EngineECMA {
		return ecma.Factory(ecma.WithLogger(engineLogger))
	}
	return lua.Factory(lua.WithLogger(engineLogger))
}

func (app *Application) source(opts Options) (script.Source, error) {
	if opts.Source != nil {
		return *opts.Source, nil
	}
	if app.cfg.Script.Path != "" {
		return script.LoadFile(app.cfg.Script.Path)
	}
	return DefaultSource(app.cfg.EngineFor())
}

// checkHandlers warns about handlers the charts reference but the script
// does not define.
func (app *Application) checkHandlers() {
	defined := app.session.Functions()

	app.mu.RLock()
	defer app.mu.RUnlock()

	reported := make(map[string]bool)
	for _, e := range app.charts {
		for _, name := range e.doc.Missing(defined) {
			if reported[name] {
				continue
			}
			reported[name] = true
			app.logger.Warn("chart handler not defined by script", zap.String("handler", name))
		}
	}
}

// Start runs the UI loop and, when configured, the script watcher.
func (app *Application) Start(ctx context.Context) error {
	if app.stopped.Load() {
		return ErrShutdown
	}
	if !app.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	if app.cfg.Script.Watch && app.cfg.Script.Path != "" {
		w, err := watch.New(app.cfg.Script.Path, watch.WithLogger(app.logger.Named("watch")))
		if err != nil {
			app.running.Store(false)
			return &InitError{Component: "watcher", Err: err}
		}
		app.watcher = w
	}

	ctx, cancel := context.WithCancel(ctx)
	app.cancel = cancel

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.loop.Run(ctx)
	}()

	if app.watcher != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			app.watchLoop()
		}()
	}

	app.logger.Info("chartbridge started",
		zap.String("engine", app.cfg.EngineFor()),
		zap.String("script", app.session.Source().Name),
		zap.Int("charts", app.registry.Len()),
	)
	return nil
}

func (app *Application) watchLoop() {
	for path := range app.watcher.Changes() {
		app.logger.Info("script changed, reloading", zap.String("path", path))
		err := app.loop.Post(app.reload, func(err error) {
			app.logger.Error("script reload failed", zap.Error(err))
		})
		if err != nil {
			app.logger.Warn("reload not queued", zap.Error(err))
		}
	}
}

// IsRunning reports whether Start has been called and Shutdown has not.
func (app *Application) IsRunning() bool {
	return app.running.Load() && !app.stopped.Load()
}

// Handle dispatches one event on the UI loop and re-renders the chart it
// touched. Events that name only a target are resolved through the chart's
// wiring.
func (app *Application) Handle(ctx context.Context, ev dispatch.Event) dispatch.Result {
	if !app.IsRunning() {
		return dispatch.Result{ID: ev.ID, Handle: ev.Handle, Handler: ev.Handler, Err: ErrNotRunning}
	}

	var res dispatch.Result
	err := app.loop.Do(ctx, func(ctx context.Context) error {
		res = app.handle(ctx, ev)
		return nil
	})
	if err != nil {
		return dispatch.Result{ID: ev.ID, Handle: ev.Handle, Handler: ev.Handler, Err: err}
	}
	return res
}

// handle must run on the UI loop.
func (app *Application) handle(ctx context.Context, ev dispatch.Event) dispatch.Result {
	if ev.Handler == "" {
		app.mu.RLock()
		e, ok := app.charts[ev.Handle]
		app.mu.RUnlock()
		if !ok {
			return app.dispatcher.Dispatch(ctx, ev.Handle, ev.Handler, ev.Payload())
		}
		resolved, err := e.doc.Resolve(ev)
		if err != nil {
			return dispatch.Result{ID: ev.ID, Handle: ev.Handle, Err: err}
		}
		ev = resolved
	}

	res := app.dispatcher.DispatchEvent(ctx, ev)
	if !res.Dropped {
		if err := app.refresh(res.Handle); err != nil {
			app.logger.Warn("chart refresh failed",
				zap.Int64("chart_num", int64(res.Handle)),
				zap.Error(err),
			)
		}
	}
	return res
}

// HandleLine decodes a JSON event, handles it and encodes the result.
func (app *Application) HandleLine(ctx context.Context, line []byte) ([]byte, error) {
	ev, err := dispatch.ParseEvent(line)
	if err != nil {
		return nil, err
	}
	return dispatch.EncodeResult(app.Handle(ctx, ev))
}

// Reload reloads the script on the UI loop. A script path is re-read from
// disk; otherwise the current source is recompiled.
func (app *Application) Reload(ctx context.Context) error {
	if !app.IsRunning() {
		return ErrNotRunning
	}
	return app.loop.Do(ctx, app.reload)
}

// reload must run on the UI loop.
func (app *Application) reload(ctx context.Context) error {
	src := app.session.Source()
	if app.cfg.Script.Path != "" {
		var err error
		if src, err = script.LoadFile(app.cfg.Script.Path); err != nil {
			return err
		}
	}
	if err := app.session.Reload(ctx, src); err != nil {
		return err
	}
	app.checkHandlers()
	app.logger.Info("script reloaded", zap.Strings("functions", app.session.Functions()))
	return nil
}

// AddChart registers a chart built from cc.
func (app *Application) AddChart(cc config.ChartConfig) (registry.Handle, error) {
	c := chart.New(cc.Name, cc.Series, cc.ChartOptions()...)
	doc, err := wiring.FromChart(c)
	if err != nil {
		return 0, err
	}

	app.mu.Lock()
	defer app.mu.Unlock()

	h := app.registry.Register(c)
	app.charts[h] = &chartEntry{chart: c, doc: doc}
	return h, nil
}

// RemoveChart unregisters a chart. Later events for it are dropped.
func (app *Application) RemoveChart(h registry.Handle) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	if err := app.registry.Unregister(h); err != nil {
		return err
	}
	delete(app.charts, h)
	return nil
}

// Charts returns the registered chart handles in ascending order.
func (app *Application) Charts() []registry.Handle {
	return app.registry.Handles()
}

// Chart returns the chart registered under h.
func (app *Application) Chart(h registry.Handle) (*chart.Chart, bool) {
	app.mu.RLock()
	defer app.mu.RUnlock()

	e, ok := app.charts[h]
	if !ok {
		return nil, false
	}
	return e.chart, true
}

// Document returns the wiring of the chart registered under h as of its
// last render.
func (app *Application) Document(h registry.Handle) (*wiring.Document, bool) {
	app.mu.RLock()
	defer app.mu.RUnlock()

	e, ok := app.charts[h]
	if !ok {
		return nil, false
	}
	return e.doc, true
}

// Session returns the script session.
func (app *Application) Session() *script.Session {
	return app.session
}

// Stats returns dispatch statistics.
func (app *Application) Stats() dispatch.Stats {
	return app.dispatcher.Stats()
}

// refresh re-reads the chart's wiring and writes its SVG when an output
// directory is configured.
func (app *Application) refresh(h registry.Handle) error {
	app.mu.RLock()
	e, ok := app.charts[h]
	app.mu.RUnlock()
	if !ok {
		return nil
	}

	doc, err := wiring.FromChart(e.chart)
	if err != nil {
		return err
	}
	app.mu.Lock()
	e.doc = doc
	app.mu.Unlock()

	if app.cfg.Output.SVGDir == "" {
		return nil
	}
	return app.writeSVG(h, e.chart)
}

// RenderAll writes every chart to the output directory.
func (app *Application) RenderAll() error {
	if app.cfg.Output.SVGDir == "" {
		return nil
	}
	for _, h := range app.Charts() {
		c, ok := app.Chart(h)
		if !ok {
			continue
		}
		if err := app.writeSVG(h, c); err != nil {
			return err
		}
	}
	return nil
}

// SVGPath returns the output file for chart h.
func (app *Application) SVGPath(h registry.Handle) string {
	return filepath.Join(app.cfg.Output.SVGDir, fmt.Sprintf("chart_%s.svg", h))
}

func (app *Application) writeSVG(h registry.Handle, c *chart.Chart) error {
	if err := os.MkdirAll(app.cfg.Output.SVGDir, 0o755); err != nil {
		return fmt.Errorf("create svg dir: %w", err)
	}
	path := app.SVGPath(h)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := c.Render(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("render %s: %w", path, err)
	}
	return f.Close()
}

// Shutdown stops the loop and watcher and releases the script engine. It
// is safe to call more than once.
func (app *Application) Shutdown() {
	if !app.stopped.CompareAndSwap(false, true) {
		return
	}
	if app.cancel != nil {
		app.cancel()
	}
	app.closeComponents()
	app.wg.Wait()
	app.logger.Debug("chartbridge stopped")
}

// closeComponents releases components in reverse initialization order.
func (app *Application) closeComponents() {
	if app.watcher != nil {
		_ = app.watcher.Close()
	}
	app.loop.Close()
	if app.session != nil {
		_ = app.session.Dispose()
	}
	if app.screen != nil {
		_ = app.screen.Close()
	}
}
