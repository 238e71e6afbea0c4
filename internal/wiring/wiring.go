// Package wiring extracts event handler bindings from rendered chart
// documents.
//
// The chart renderer names script handlers in element event attributes,
// e.g. onmousedown="paddingGrouperOnClick(evt)". A Document indexes those
// attributes by element id and event kind so events that arrive with only a
// target id can be routed to the right handler.
package wiring

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/dshills/chartbridge/internal/chart"
	"github.com/dshills/chartbridge/internal/dispatch"
)

// ErrNoBinding is returned when an element has no handler for an event.
var ErrNoBinding = errors.New("no handler bound")

// Binding ties an element event to a script handler.
type Binding struct {
	ElementID string
	Event     string
	Handler   string
	Dataset   map[string]string
}

// Document is the set of handler bindings found in a rendered chart.
type Document struct {
	byID map[string]map[string]Binding
}

// Parse reads a rendered document and collects its bindings.
func Parse(r io.Reader) (*Document, error) {
	root, err := htmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	nodes, err := htmlquery.QueryAll(root, "//*[@id]")
	if err != nil {
		return nil, fmt.Errorf("query elements: %w", err)
	}

	doc := &Document{byID: make(map[string]map[string]Binding)}
	for _, n := range nodes {
		doc.collect(n)
	}
	return doc, nil
}

// FromChart renders c and parses the result.
func FromChart(c *chart.Chart) (*Document, error) {
	var buf bytes.Buffer
	if err := c.Render(&buf); err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	return Parse(&buf)
}

func (d *Document) collect(n *html.Node) {
	id := htmlquery.SelectAttr(n, "id")

	var dataset map[string]string
	var events []html.Attribute
	for _, a := range n.Attr {
		switch {
		case strings.HasPrefix(a.Key, "data-"):
			if dataset == nil {
				dataset = make(map[string]string)
			}
			dataset[strings.TrimPrefix(a.Key, "data-")] = a.Val
		case strings.HasPrefix(a.Key, "on") && len(a.Key) > 2:
			events = append(events, a)
		}
	}

	for _, a := range events {
		handler, ok := HandlerName(a.Val)
		if !ok {
			continue
		}
		if d.byID[id] == nil {
			d.byID[id] = make(map[string]Binding)
		}
		kind := strings.TrimPrefix(a.Key, "on")
		d.byID[id][kind] = Binding{
			ElementID: id,
			Event:     kind,
			Handler:   handler,
			Dataset:   dataset,
		}
	}
}

// HandlerName returns the function name called by an event attribute
// value such as "moveSeriesUpOnClick(evt)".
func HandlerName(attr string) (string, bool) {
	attr = strings.TrimSpace(attr)
	if i := strings.IndexByte(attr, '('); i >= 0 {
		args := attr[i:]
		if !strings.HasSuffix(args, ")") || strings.ContainsAny(args[1:len(args)-1], "();") {
			return "", false
		}
		attr = strings.TrimSpace(attr[:i])
	}
	if attr == "" {
		return "", false
	}
	for i, r := range attr {
		if r == '_' || r == '$' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return "", false
	}
	return attr, true
}

// Lookup returns the binding for an element event.
func (d *Document) Lookup(elementID, event string) (Binding, bool) {
	b, ok := d.byID[elementID][event]
	return b, ok
}

// Bindings returns all bindings ordered by element id then event.
func (d *Document) Bindings() []Binding {
	var out []Binding
	for _, events := range d.byID {
		for _, b := range events {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ElementID != out[j].ElementID {
			return out[i].ElementID < out[j].ElementID
		}
		return out[i].Event < out[j].Event
	})
	return out
}

// Handlers returns the distinct handler names referenced by the document.
func (d *Document) Handlers() []string {
	seen := make(map[string]bool)
	for _, events := range d.byID {
		for _, b := range events {
			seen[b.Handler] = true
		}
	}
	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// Missing returns the referenced handlers not present in defined.
func (d *Document) Missing(defined []string) []string {
	have := make(map[string]bool, len(defined))
	for _, f := range defined {
		have[f] = true
	}
	var out []string
	for _, h := range d.Handlers() {
		if !have[h] {
			out = append(out, h)
		}
	}
	return out
}

// Resolve fills in the handler of an event that names only its target.
// The element's data attributes are merged under any the event already
// carries.
func (d *Document) Resolve(ev dispatch.Event) (dispatch.Event, error) {
	if ev.Handler != "" {
		return ev, nil
	}
	b, ok := d.Lookup(ev.Target, ev.Kind)
	if !ok {
		return ev, fmt.Errorf("%w: %s on %q", ErrNoBinding, ev.Kind, ev.Target)
	}
	ev.Handler = b.Handler

	if len(b.Dataset) > 0 {
		ds := make(map[string]string, len(b.Dataset)+len(ev.Dataset))
		for k, v := range b.Dataset {
			ds[k] = v
		}
		for k, v := range ev.Dataset {
			ds[k] = v
		}
		ev.Dataset = ds
	}
	return ev, nil
}
