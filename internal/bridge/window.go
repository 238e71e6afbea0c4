package bridge

import "math"

// WindowProvider opens host windows on behalf of scripts.
type WindowProvider interface {
	// CreateWindow opens a window and returns its id.
	CreateWindow(opts WindowOptions) (string, error)
}

// WindowOptions configures a host window.
type WindowOptions struct {
	Title   string
	Content string
	X       int
	Y       int
	Width   int
	Height  int
	Border  bool
}

// WindowOptionsFromMap reads window options from a script table or object
// converted to a map. Unknown keys and mistyped values are ignored.
func WindowOptionsFromMap(m map[string]any) WindowOptions {
	opts := WindowOptions{Border: true}
	if m == nil {
		return opts
	}
	if v, ok := m["title"].(string); ok {
		opts.Title = v
	}
	if v, ok := m["content"].(string); ok {
		opts.Content = v
	}
	if v, ok := m["border"].(bool); ok {
		opts.Border = v
	}
	opts.X = intField(m, "x")
	opts.Y = intField(m, "y")
	opts.Width = intField(m, "width")
	opts.Height = intField(m, "height")
	return opts
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		return int(v)
	default:
		return 0
	}
}
