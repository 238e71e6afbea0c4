package chart

import (
	"fmt"
	"html"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	svg "github.com/ajstarks/svgo"
)

// Script handler names wired into the rendered document.
const (
	HandlerCanvasClick     = "paddingGrouperOnClick"
	HandlerAnnotationClick = "annotationLineOnClick"
	HandlerSeriesUp        = "moveSeriesUpOnClick"
	HandlerSeriesDown      = "moveSeriesDownOnClick"
)

// Element ids used by the renderer.
const (
	IDPaddingGroup     = "padding_g"
	IDAnnotationGroup  = "annote_g"
	IDAnnotationCanvas = "annote_canvas"
	IDChronologyGroup  = "chrono_plot_g"
)

const buttonSize = 8

// AnnotationElementID returns the element id of an annotation line.
func AnnotationElementID(id int) string {
	return "annote_line_" + strconv.Itoa(id)
}

// Render writes the chart as an SVG document.
func (c *Chart) Render(w io.Writer) error {
	c.mu.RLock()
	series := append([]Series(nil), c.series...)
	annotations := make([]Annotation, 0, len(c.annotations))
	for _, a := range c.annotations {
		annotations = append(annotations, a)
	}
	width, offset, name := c.width, c.offset, c.name
	c.mu.RUnlock()

	sortAnnotations(annotations)

	ew := &errWriter{w: w}
	canvas := svg.New(ew)

	plotHeight := len(series)*SeriesSpacing + 2*DefaultOffsetY
	canvas.Start(width+2*offset+2*buttonSize, plotHeight+2*DefaultOffsetY)
	canvas.Title(name)

	canvas.Group(attrs(
		"id", IDPaddingGroup,
		"transform", fmt.Sprintf("translate(%d,%d)", offset, DefaultOffsetY),
	))

	// Annotation layer: the transparent canvas catches clicks for new lines.
	canvas.Gid(IDAnnotationGroup)
	canvas.Rect(0, 0, width, plotHeight, attrs(
		"id", IDAnnotationCanvas,
		"opacity", "0.0",
		"onmousedown", HandlerCanvasClick+"(evt)",
	))
	for _, a := range annotations {
		x := int(math.Round(a.X))
		canvas.Line(x, 0, x, plotHeight, attrs(
			"id", AnnotationElementID(a.ID),
			"stroke", "black",
			"stroke-width", "3",
			"opacity", "0.5",
			"data-annotation", strconv.Itoa(a.ID),
			"onmousedown", HandlerAnnotationClick+"(evt)",
		))
	}
	canvas.Gend()

	canvas.Gid(IDChronologyGroup)
	first, last := yearRange(series)
	for i, s := range series {
		y := i*SeriesSpacing + SeriesHeight/2
		x1 := scaleYear(s.FirstYear, first, last, width)
		x2 := scaleYear(s.LastYear, first, last, width)
		canvas.Line(x1, y, x2, y, attrs(
			"id", fmt.Sprintf("series_%d", i),
			"stroke", "black",
			"stroke-width", "1",
			"data-series", s.Title,
		))
		canvas.Text(width+2*buttonSize+4, y+SeriesHeight/2, s.Title, attrs("font-size", "8"))

		canvas.Rect(width+2, y-SeriesHeight/2, buttonSize, buttonSize/2, attrs(
			"id", fmt.Sprintf("series_up_%d", i),
			"fill", "gray",
			"data-series", s.Title,
			"onclick", HandlerSeriesUp+"(evt)",
		))
		canvas.Rect(width+2, y, buttonSize, buttonSize/2, attrs(
			"id", fmt.Sprintf("series_down_%d", i),
			"fill", "gray",
			"data-series", s.Title,
			"onclick", HandlerSeriesDown+"(evt)",
		))
	}
	canvas.Gend()

	canvas.Gend()
	canvas.End()

	return ew.err
}

// attrs builds an svgo attribute string from key/value pairs.
func attrs(kv ...string) string {
	var b strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(kv[i])
		b.WriteString(`="`)
		b.WriteString(html.EscapeString(kv[i+1]))
		b.WriteByte('"')
	}
	return b.String()
}

func yearRange(series []Series) (int, int) {
	if len(series) == 0 {
		return 0, 0
	}
	first, last := series[0].FirstYear, series[0].LastYear
	for _, s := range series[1:] {
		if s.FirstYear < first {
			first = s.FirstYear
		}
		if s.LastYear > last {
			last = s.LastYear
		}
	}
	return first, last
}

func scaleYear(year, first, last, width int) int {
	if last <= first {
		return 0
	}
	return (year - first) * width / (last - first)
}

func sortAnnotations(a []Annotation) {
	sort.Slice(a, func(i, j int) bool { return a[i].ID < a[j].ID })
}

// errWriter remembers the first write error; svgo does not report them.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	if err != nil {
		e.err = err
	}
	return n, err
}
