package app

import (
	"embed"
	"fmt"

	"github.com/dshills/chartbridge/internal/config"
	"github.com/dshills/chartbridge/internal/script"
)

//go:embed scripts/default.lua scripts/default.js
var defaultScripts embed.FS

// DefaultSource returns the embedded handler script for engine.
func DefaultSource(engine string) (script.Source, error) {
	name := "scripts/default.lua"
	if engine == config.EngineECMA {
		name = "scripts/default.js"
	}
	code, err := defaultScripts.ReadFile(name)
	if err != nil {
		return script.Source{}, fmt.Errorf("embedded script %s: %w", name, err)
	}
	return script.NewSource("default."+extension(engine), string(code)), nil
}

func extension(engine string) string {
	if engine == config.EngineECMA {
		return "js"
	}
	return "lua"
}
