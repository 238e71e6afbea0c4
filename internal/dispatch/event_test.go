package dispatch

import (
	"errors"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/dshills/chartbridge/internal/registry"
)

func TestParseEvent(t *testing.T) {
	line := `{"chart": 3, "handler": "paddingGrouperOnClick", "type": "mousedown",
		"clientX": 120.5, "clientY": 40, "target": "annote_canvas",
		"dataset": {"series": "ABC02", "row": 2}, "extra": {"button": 0}}`

	ev, err := ParseEvent([]byte(line))
	if err != nil {
		t.Fatalf("ParseEvent error = %v", err)
	}
	if ev.Handle != registry.Handle(3) {
		t.Errorf("Handle = %v, want 3", ev.Handle)
	}
	if ev.Handler != "paddingGrouperOnClick" || ev.Kind != "mousedown" || ev.Target != "annote_canvas" {
		t.Errorf("event = %+v", ev)
	}
	if ev.ClientX != 120.5 || ev.ClientY != 40 {
		t.Errorf("client coords = %v,%v", ev.ClientX, ev.ClientY)
	}
	if ev.Dataset["series"] != "ABC02" || ev.Dataset["row"] != "2" {
		t.Errorf("Dataset = %v", ev.Dataset)
	}
	if ev.Extra["button"] != float64(0) {
		t.Errorf("Extra = %v", ev.Extra)
	}
	if ev.ID == "" {
		t.Error("ID should be generated")
	}

	p := ev.Payload()
	if p["button"] != float64(0) || p["type"] != "mousedown" {
		t.Errorf("Payload = %v", p)
	}
}

func TestParseEventKeepsID(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"id": "abc", "chart": 1, "target": "series_up_0"}`))
	if err != nil {
		t.Fatalf("ParseEvent error = %v", err)
	}
	if ev.ID != "abc" {
		t.Errorf("ID = %q, want abc", ev.ID)
	}
	if ev.Handler != "" {
		t.Errorf("Handler = %q, want empty", ev.Handler)
	}
}

func TestParseEventInvalid(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"malformed", `{"chart": 1,`},
		{"array", `[1, 2]`},
		{"missing chart", `{"handler": "f"}`},
		{"string chart", `{"chart": "1", "handler": "f"}`},
		{"no handler or target", `{"chart": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEvent([]byte(tt.line))
			if !errors.Is(err, ErrInvalidEvent) {
				t.Errorf("ParseEvent(%s) error = %v, want ErrInvalidEvent", tt.line, err)
			}
		})
	}
}

func TestEncodeResult(t *testing.T) {
	out, err := EncodeResult(Result{
		ID:       "ev-1",
		Handler:  "paddingGrouperOnClick",
		Handle:   2,
		Handled:  true,
		Value:    int64(7),
		Duration: 1500 * time.Microsecond,
	})
	if err != nil {
		t.Fatalf("EncodeResult error = %v", err)
	}

	doc := gjson.ParseBytes(out)
	if doc.Get("id").String() != "ev-1" || doc.Get("chart").Int() != 2 {
		t.Errorf("encoded = %s", out)
	}
	if !doc.Get("handled").Bool() || doc.Get("value").Int() != 7 {
		t.Errorf("encoded = %s", out)
	}
	if doc.Get("duration_us").Int() != 1500 {
		t.Errorf("duration_us = %d", doc.Get("duration_us").Int())
	}
	if doc.Get("error").Exists() || doc.Get("dropped").Exists() {
		t.Errorf("unexpected fields in %s", out)
	}
}

func TestEncodeResultError(t *testing.T) {
	out, err := EncodeResult(Result{ID: "x", Handle: 9, Dropped: true, Err: registry.ErrHandleNotFound})
	if err != nil {
		t.Fatalf("EncodeResult error = %v", err)
	}
	doc := gjson.ParseBytes(out)
	if !doc.Get("dropped").Bool() {
		t.Errorf("dropped missing in %s", out)
	}
	if doc.Get("error").String() != registry.ErrHandleNotFound.Error() {
		t.Errorf("error = %q", doc.Get("error").String())
	}
	if doc.Get("handled").Bool() {
		t.Errorf("handled should be false in %s", out)
	}
}
