package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dshills/chartbridge/internal/bridge"
	"github.com/dshills/chartbridge/internal/bridge/security"
	"github.com/dshills/chartbridge/internal/chart"
	"github.com/dshills/chartbridge/internal/logging"
)

// Script engines.
const (
	EngineLua  = "lua"
	EngineECMA = "ecma"
)

// Config is the complete chartbridge configuration.
type Config struct {
	Script   ScriptConfig   `toml:"script"`
	Bridge   BridgeConfig   `toml:"bridge"`
	Dispatch DispatchConfig `toml:"dispatch"`
	Log      LogConfig      `toml:"log"`
	Output   OutputConfig   `toml:"output"`
	Charts   []ChartConfig  `toml:"charts"`
}

// ScriptConfig selects and bounds the chart script.
type ScriptConfig struct {
	// Path is the script file. Empty means the embedded default.
	Path string `toml:"path"`

	// Engine is "lua" or "ecma". Empty picks by file extension.
	Engine string `toml:"engine"`

	// Budget bounds a single load or handler call. Zero disables it.
	Budget Duration `toml:"budget"`

	// Watch reloads the script when the file changes.
	Watch bool `toml:"watch"`

	// CacheSize is the number of compiled programs kept.
	CacheSize int `toml:"cache_size"`
}

// BridgeConfig controls what scripts may do.
type BridgeConfig struct {
	Capabilities     []string `toml:"capabilities"`
	AllowHostWindow  bool     `toml:"allow_host_window"`
	AllowCrossChart  bool     `toml:"allow_cross_chart"`
	MaxMessageLength int      `toml:"max_message_length"`
}

// DispatchConfig controls event dispatch.
type DispatchConfig struct {
	// Timeout bounds one dispatch including queueing. Zero disables it.
	Timeout Duration `toml:"timeout"`

	// QueueSize is the UI loop queue capacity.
	QueueSize int `toml:"queue_size"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// OutputConfig controls rendered output.
type OutputConfig struct {
	// SVGDir receives one SVG per chart after each dispatch. Empty
	// disables rendering.
	SVGDir string `toml:"svg_dir"`
}

// ChartConfig describes a chart registered at startup.
type ChartConfig struct {
	Name   string         `toml:"name"`
	Width  int            `toml:"width"`
	Offset int            `toml:"offset"`
	Mode   string         `toml:"mode"`
	Series []chart.Series `toml:"series"`
}

// Duration is a time.Duration written as a string such as "250ms".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Script: ScriptConfig{
			Budget:    Duration(500 * time.Millisecond),
			CacheSize: 16,
		},
		Bridge: BridgeConfig{
			Capabilities:     capabilityNames(security.DefaultCapabilities()),
			MaxMessageLength: bridge.DefaultMaxMessageLength,
		},
		Dispatch: DispatchConfig{
			QueueSize: 100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: logging.FormatConsole,
		},
		Charts: []ChartConfig{{
			Name: "Fire history",
			Mode: chart.ModeLine.String(),
		}},
	}
}

// EngineFor returns the configured engine, or the one implied by the
// script path's extension.
func (c *Config) EngineFor() string {
	if c.Script.Engine != "" {
		return c.Script.Engine
	}
	switch {
	case strings.HasSuffix(c.Script.Path, ".js"):
		return EngineECMA
	default:
		return EngineLua
	}
}

// Permissions returns the capabilities scripts are granted.
// chart.cross is granted by the default list; omitting it from a configured
// list revokes it unless allow_cross_chart is set.
func (c *Config) Permissions() ([]security.Capability, error) {
	caps, err := security.ParseCapabilities(c.Bridge.Capabilities)
	if err != nil {
		return nil, err
	}
	if c.Bridge.AllowHostWindow {
		caps = append(caps, security.CapabilityHostWindow)
	}
	if c.Bridge.AllowCrossChart && !slices.Contains(caps, security.CapabilityChartCross) {
		caps = append(caps, security.CapabilityChartCross)
	}
	return caps, nil
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch c.Script.Engine {
	case "", EngineLua, EngineECMA:
	default:
		add("script.engine: unknown engine %q", c.Script.Engine)
	}
	if c.Script.Budget < 0 {
		add("script.budget: must not be negative")
	}
	if c.Script.CacheSize < 0 {
		add("script.cache_size: must not be negative")
	}
	if c.Script.Watch && c.Script.Path == "" {
		add("script.watch: requires script.path")
	}

	if _, err := security.ParseCapabilities(c.Bridge.Capabilities); err != nil {
		add("bridge.capabilities: %v", err)
	}
	if c.Bridge.MaxMessageLength < 0 {
		add("bridge.max_message_length: must not be negative")
	}

	if c.Dispatch.Timeout < 0 {
		add("dispatch.timeout: must not be negative")
	}
	if c.Dispatch.QueueSize < 0 {
		add("dispatch.queue_size: must not be negative")
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		add("log.level: %v", err)
	}
	if !logging.ValidFormat(c.Log.Format) {
		add("log.format: unknown format %q", c.Log.Format)
	}

	for i, ch := range c.Charts {
		if ch.Mode != "" {
			if _, err := chart.ParseAnnotationMode(ch.Mode); err != nil {
				add("charts[%d].mode: %v", i, err)
			}
		}
		if ch.Width < 0 || ch.Offset < 0 {
			add("charts[%d]: width and offset must not be negative", i)
		}
		seen := make(map[string]bool, len(ch.Series))
		for _, s := range ch.Series {
			if s.Title == "" {
				add("charts[%d].series: empty title", i)
				continue
			}
			if seen[s.Title] {
				add("charts[%d].series: duplicate title %q", i, s.Title)
			}
			seen[s.Title] = true
			if s.LastYear < s.FirstYear {
				add("charts[%d].series %q: last_year before first_year", i, s.Title)
			}
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrValidationFailed, errors.Join(errs...))
}

// ChartOptions returns the chart constructor options for cc.
func (cc ChartConfig) ChartOptions() []chart.Option {
	var opts []chart.Option
	if cc.Width > 0 {
		opts = append(opts, chart.WithWidth(cc.Width))
	}
	if cc.Offset > 0 {
		opts = append(opts, chart.WithOffset(cc.Offset))
	}
	if m, err := chart.ParseAnnotationMode(cc.Mode); err == nil {
		opts = append(opts, chart.WithMode(m))
	}
	return opts
}

func capabilityNames(caps []security.Capability) []string {
	out := make([]string, len(caps))
	for i, c := range caps {
		out[i] = string(c)
	}
	return out
}
