// Package config loads chartbridge configuration.
//
// Configuration is resolved in layers, later layers overriding earlier
// ones:
//
//	┌─────────────────────────────┐
//	│  4. Command line flags      │  ← applied by cmd/chartbridge
//	├─────────────────────────────┤
//	│  3. Environment variables   │  ← CHARTBRIDGE_*
//	├─────────────────────────────┤
//	│  2. Config file             │  ← TOML
//	├─────────────────────────────┤
//	│  1. Built-in defaults       │
//	└─────────────────────────────┘
//
// A minimal file:
//
//	[script]
//	path = "charts.lua"
//	budget = "250ms"
//	watch = true
//
//	[bridge]
//	capabilities = ["host.log", "chart.read", "chart.annotate"]
//
//	[[charts]]
//	name = "Fire history"
//	series = [{ title = "ABC01", first_year = 1700, last_year = 1900 }]
package config
