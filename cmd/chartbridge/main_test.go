package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

const clicks = `{"id":"a","chart":1,"type":"mousedown","target":"annote_canvas","clientX":120}

{"id":"b","chart":1,"handler":"paddingGrouperOnClick","type":"mousedown","clientX":130}
not json
{"id":"c","chart":9,"type":"mousedown","target":"annote_canvas","clientX":120}
`

func runCLI(t *testing.T, stdin string, args ...string) (int, []gjson.Result, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr)

	var results []gjson.Result
	for _, line := range strings.Split(strings.TrimSpace(stdout.String()), "\n") {
		if line != "" {
			results = append(results, gjson.Parse(line))
		}
	}
	return code, results, stderr.String()
}

func TestRunEventsFromStdin(t *testing.T) {
	for _, engine := range []string{"lua", "ecma"} {
		t.Run(engine, func(t *testing.T) {
			code, results, stderr := runCLI(t, clicks, "-events", "-", "-engine", engine, "-log-level", "error")
			if code != 0 {
				t.Fatalf("exit code = %d, stderr = %s", code, stderr)
			}
			if len(results) != 4 {
				t.Fatalf("got %d result lines, want 4", len(results))
			}

			if results[0].Get("id").String() != "a" || results[0].Get("value").Int() != 1 {
				t.Errorf("first result = %s", results[0].Raw)
			}
			if results[1].Get("id").String() != "b" || results[1].Get("value").Int() != 2 {
				t.Errorf("second result = %s", results[1].Raw)
			}
			if !strings.Contains(results[2].Get("error").String(), "invalid event") {
				t.Errorf("malformed line result = %s", results[2].Raw)
			}
			if !results[3].Get("dropped").Bool() {
				t.Errorf("unknown chart result = %s", results[3].Raw)
			}
		})
	}
}

func TestRunEventsFileAndSVG(t *testing.T) {
	dir := t.TempDir()
	events := filepath.Join(dir, "events.jsonl")
	if err := os.WriteFile(events, []byte(clicks), 0o644); err != nil {
		t.Fatalf("WriteFile error = %v", err)
	}
	svgDir := filepath.Join(dir, "svg")

	code, results, stderr := runCLI(t, "", "-events", events, "-svg-dir", svgDir, "-log-level", "error")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}
	if len(results) != 4 {
		t.Errorf("got %d result lines, want 4", len(results))
	}

	data, err := os.ReadFile(filepath.Join(svgDir, "chart_1.svg"))
	if err != nil {
		t.Fatalf("ReadFile error = %v", err)
	}
	if !strings.Contains(string(data), "annote_line_2") {
		t.Error("rendered chart should include both annotation lines")
	}
}

func TestRunScriptFlag(t *testing.T) {
	script := filepath.Join(t.TempDir(), "chart.js")
	code := `function paddingGrouperOnClick(evt) { return "js:" + chart_num; }`
	if err := os.WriteFile(script, []byte(code), 0o644); err != nil {
		t.Fatalf("WriteFile error = %v", err)
	}

	exit, results, stderr := runCLI(t, `{"chart":1,"target":"annote_canvas","type":"mousedown"}`,
		"-script", script, "-events", "-", "-log-level", "error")
	if exit != 0 {
		t.Fatalf("exit code = %d, stderr = %s", exit, stderr)
	}
	if len(results) != 1 || results[0].Get("value").String() != "js:1" {
		t.Errorf("results = %v", results)
	}
}

func TestRunVersion(t *testing.T) {
	var stdout bytes.Buffer
	code := run(context.Background(), []string{"-version"}, strings.NewReader(""), &stdout, &bytes.Buffer{})
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	if !strings.HasPrefix(stdout.String(), "chartbridge dev") {
		t.Errorf("version output = %q", stdout.String())
	}
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code int
	}{
		{"unknown flag", []string{"-nope"}, 2},
		{"extra args", []string{"file.lua"}, 2},
		{"missing config", []string{"-config", filepath.Join(t.TempDir(), "missing.toml")}, 1},
		{"bad engine", []string{"-engine", "python"}, 1},
		{"bad log level", []string{"-log-level", "loud"}, 1},
		{"missing script", []string{"-script", filepath.Join(t.TempDir(), "missing.lua")}, 1},
		{"missing events", []string{"-events", filepath.Join(t.TempDir(), "missing.jsonl")}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, _ := runCLI(t, "", tt.args...)
			if code != tt.code {
				t.Errorf("exit code = %d, want %d", code, tt.code)
			}
		})
	}
}

func TestRunHelp(t *testing.T) {
	code, _, stderr := runCLI(t, "", "-h")
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	if !strings.Contains(stderr, "Usage: chartbridge") {
		t.Errorf("usage output = %q", stderr)
	}
}
