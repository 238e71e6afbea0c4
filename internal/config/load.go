package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Loader resolves a Config from defaults, an optional file and the
// environment.
type Loader struct {
	path   string
	env    *EnvLoader
	strict bool
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithEnv replaces the environment loader. Pass nil to ignore the
// environment.
func WithEnv(env *EnvLoader) LoaderOption {
	return func(l *Loader) {
		l.env = env
	}
}

// WithStrict rejects unknown keys in the config file.
func WithStrict(strict bool) LoaderOption {
	return func(l *Loader) {
		l.strict = strict
	}
}

// NewLoader creates a loader for the file at path. An empty path loads
// defaults and environment only.
func NewLoader(path string, opts ...LoaderOption) *Loader {
	l := &Loader{
		path:   path,
		env:    NewEnvLoader(DefaultEnvPrefix),
		strict: true,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load resolves and validates the configuration. A missing file is an
// error only when the path was given explicitly.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	if l.path != "" {
		data, err := os.ReadFile(l.path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", l.path, err)
		}
		if err := l.decode(cfg, l.path, data); err != nil {
			return nil, err
		}
	}

	if l.env != nil {
		if err := l.env.Apply(cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes TOML from r over the defaults. The environment is
// not consulted.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	l := &Loader{strict: true}
	if err := l.decode(cfg, "<reader>", data); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode layers data over cfg. Lists named in the file replace the
// defaults instead of extending them.
func (l *Loader) decode(cfg *Config, source string, data []byte) error {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return parseError(source, err)
	}

	defaultCharts := cfg.Charts
	defaultCaps := cfg.Bridge.Capabilities
	cfg.Charts = nil
	cfg.Bridge.Capabilities = nil

	dec := toml.NewDecoder(bytes.NewReader(data))
	if l.strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(cfg); err != nil {
		return parseError(source, err)
	}

	if _, ok := raw["charts"]; !ok {
		cfg.Charts = defaultCharts
	}
	if !hasKey(raw, "bridge", "capabilities") {
		cfg.Bridge.Capabilities = defaultCaps
	}
	return nil
}

func hasKey(m map[string]any, section, key string) bool {
	s, ok := m[section].(map[string]any)
	if !ok {
		return false
	}
	_, ok = s[key]
	return ok
}

func parseError(source string, err error) error {
	pe := &ParseError{Path: source, Message: err.Error(), Err: err}

	var decErr *toml.DecodeError
	var strictErr *toml.StrictMissingError
	switch {
	case errors.As(err, &decErr):
		pe.Line, pe.Column = decErr.Position()
	case errors.As(err, &strictErr) && len(strictErr.Errors) > 0:
		pe.Line, pe.Column = strictErr.Errors[0].Position()
		pe.Message = "unknown key " + keyString(strictErr.Errors[0].Key())
	}
	return pe
}

func keyString(k toml.Key) string {
	var b bytes.Buffer
	for i, part := range k {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(part)
	}
	return b.String()
}
