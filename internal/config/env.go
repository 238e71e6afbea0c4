package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultEnvPrefix is the prefix of chartbridge environment variables.
const DefaultEnvPrefix = "CHARTBRIDGE_"

// EnvLoader applies environment variable overrides to a Config.
type EnvLoader struct {
	prefix string
	lookup func(string) (string, bool)
}

// NewEnvLoader creates an environment loader for variables with the given
// prefix, which should include the trailing underscore.
func NewEnvLoader(prefix string) *EnvLoader {
	return &EnvLoader{
		prefix: prefix,
		lookup: os.LookupEnv,
	}
}

// NewEnvLoaderWithLookup creates a loader that reads variables through
// lookup instead of the process environment.
func NewEnvLoaderWithLookup(prefix string, lookup func(string) (string, bool)) *EnvLoader {
	return &EnvLoader{prefix: prefix, lookup: lookup}
}

type envSetter func(cfg *Config, val string) error

// envMapping maps variable names, without prefix, to setters.
func envMapping() map[string]envSetter {
	return map[string]envSetter{
		"SCRIPT_PATH":   func(c *Config, v string) error { c.Script.Path = v; return nil },
		"SCRIPT_ENGINE": func(c *Config, v string) error { c.Script.Engine = strings.ToLower(v); return nil },
		"SCRIPT_BUDGET": func(c *Config, v string) error { return setDuration(&c.Script.Budget, v) },
		"SCRIPT_WATCH":  func(c *Config, v string) error { return setBool(&c.Script.Watch, v) },

		"BRIDGE_CAPABILITIES": func(c *Config, v string) error {
			c.Bridge.Capabilities = splitList(v)
			return nil
		},
		"BRIDGE_ALLOW_HOST_WINDOW":  func(c *Config, v string) error { return setBool(&c.Bridge.AllowHostWindow, v) },
		"BRIDGE_ALLOW_CROSS_CHART":  func(c *Config, v string) error { return setBool(&c.Bridge.AllowCrossChart, v) },
		"BRIDGE_MAX_MESSAGE_LENGTH": func(c *Config, v string) error { return setInt(&c.Bridge.MaxMessageLength, v) },

		"DISPATCH_TIMEOUT": func(c *Config, v string) error { return setDuration(&c.Dispatch.Timeout, v) },

		"LOG_LEVEL":  func(c *Config, v string) error { c.Log.Level = v; return nil },
		"LOG_FORMAT": func(c *Config, v string) error { c.Log.Format = strings.ToLower(v); return nil },

		"OUTPUT_SVG_DIR": func(c *Config, v string) error { c.Output.SVGDir = v; return nil },
	}
}

// Names returns the recognised variable names with prefix.
func (l *EnvLoader) Names() []string {
	m := envMapping()
	out := make([]string, 0, len(m))
	for name := range m {
		out = append(out, l.prefix+name)
	}
	return out
}

// Apply sets every recognised variable that is present. Empty values are
// applied as given.
func (l *EnvLoader) Apply(cfg *Config) error {
	for name, set := range envMapping() {
		full := l.prefix + name
		val, ok := l.lookup(full)
		if !ok {
			continue
		}
		if err := set(cfg, val); err != nil {
			return &EnvError{Name: full, Value: val, Err: err}
		}
	}
	return nil
}

// parseBool accepts the usual spellings of a boolean.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0", "":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", s)
	}
}

func setBool(dst *bool, s string) error {
	v, err := parseBool(s)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func setInt(dst *int, s string) error {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func setDuration(dst *Duration, s string) error {
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	*dst = Duration(v)
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
