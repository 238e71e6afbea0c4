package dispatch

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/dshills/chartbridge/internal/registry"
)

// Event is a UI event aimed at a script handler.
type Event struct {
	// ID correlates the event with its Result. ParseEvent and
	// DispatchEvent assign one when empty.
	ID string

	// Kind is the DOM event type without the "on" prefix, e.g. "mousedown".
	Kind string

	// Handler is the script function to call. It may be empty when Target
	// is set and the host resolves the handler from the document's wiring.
	Handler string

	// Handle is the chart the event originated from.
	Handle registry.Handle

	// Target is the id of the element that received the event.
	Target string

	// Dataset holds the target element's data-* attributes.
	Dataset map[string]string

	ClientX float64
	ClientY float64

	// Extra is merged into the payload under its own keys.
	Extra map[string]any
}

// Payload returns the value passed to the handler as its first argument.
func (e Event) Payload() map[string]any {
	p := make(map[string]any, len(e.Extra)+5)
	for k, v := range e.Extra {
		p[k] = v
	}
	p["type"] = e.Kind
	p["clientX"] = e.ClientX
	p["clientY"] = e.ClientY
	if e.Target != "" {
		p["target"] = e.Target
	}
	ds := make(map[string]any, len(e.Dataset))
	for k, v := range e.Dataset {
		ds[k] = v
	}
	p["dataset"] = ds
	return p
}

// ParseEvent decodes one JSON event:
//
//	{"chart": 1, "handler": "paddingGrouperOnClick", "type": "mousedown",
//	 "clientX": 120, "clientY": 40, "target": "annote_canvas",
//	 "dataset": {"series": "ABC02"}, "extra": {...}}
//
// chart is required, as is one of handler or target.
func ParseEvent(data []byte) (Event, error) {
	if !gjson.ValidBytes(data) {
		return Event{}, fmt.Errorf("%w: malformed JSON", ErrInvalidEvent)
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return Event{}, fmt.Errorf("%w: not an object", ErrInvalidEvent)
	}

	chart := doc.Get("chart")
	if chart.Type != gjson.Number {
		return Event{}, fmt.Errorf("%w: chart must be a number", ErrInvalidEvent)
	}

	ev := Event{
		ID:      doc.Get("id").String(),
		Kind:    doc.Get("type").String(),
		Handler: doc.Get("handler").String(),
		Handle:  registry.Handle(chart.Int()),
		Target:  doc.Get("target").String(),
		ClientX: doc.Get("clientX").Float(),
		ClientY: doc.Get("clientY").Float(),
	}
	if ev.Handler == "" && ev.Target == "" {
		return Event{}, fmt.Errorf("%w: handler or target required", ErrInvalidEvent)
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	if ds := doc.Get("dataset"); ds.IsObject() {
		ev.Dataset = make(map[string]string)
		ds.ForEach(func(k, v gjson.Result) bool {
			ev.Dataset[k.String()] = v.String()
			return true
		})
	}
	if extra := doc.Get("extra"); extra.IsObject() {
		if m, ok := extra.Value().(map[string]any); ok {
			ev.Extra = m
		}
	}
	return ev, nil
}

// EncodeResult encodes a Result as one JSON object.
func EncodeResult(r Result) ([]byte, error) {
	out := []byte(`{}`)
	var err error
	set := func(path string, v any) {
		if err == nil {
			out, err = sjson.SetBytes(out, path, v)
		}
	}

	set("id", r.ID)
	set("chart", int64(r.Handle))
	set("handler", r.Handler)
	set("handled", r.Handled)
	if r.Dropped {
		set("dropped", true)
	}
	if r.Value != nil {
		set("value", r.Value)
	}
	if r.Err != nil {
		set("error", r.Err.Error())
	}
	set("duration_us", r.Duration.Microseconds())
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return out, nil
}
