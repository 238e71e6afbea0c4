// Package chart provides the fire history chart model driven by scripts.
//
// A Chart holds the pieces of rendered state that script handlers are
// allowed to change: annotation lines, the annotation mode, and the order of
// the series rows. Render writes the chart as SVG with handler names wired
// into element event attributes.
package chart

import (
	"fmt"
	"math"
	"sync"
)

// AnnotationMode controls what pointer interaction on the chart does.
type AnnotationMode int

const (
	// ModeLine lets clicks on the annotation canvas draw lines.
	ModeLine AnnotationMode = iota
	// ModeErase lets clicks on existing lines delete them.
	ModeErase
	// ModeNone locks annotations.
	ModeNone
)

// String returns the mode name used in scripts and config.
func (m AnnotationMode) String() string {
	switch m {
	case ModeLine:
		return "line"
	case ModeErase:
		return "erase"
	case ModeNone:
		return "none"
	default:
		return "unknown"
	}
}

// ParseAnnotationMode parses a mode name.
func ParseAnnotationMode(s string) (AnnotationMode, error) {
	switch s {
	case "line", "LINE":
		return ModeLine, nil
	case "erase", "ERASE":
		return ModeErase, nil
	case "none", "NONE":
		return ModeNone, nil
	default:
		return ModeNone, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Instance is the live chart surface the bridge operates on.
// Implementations must be safe for concurrent use.
type Instance interface {
	// Name returns the chart's display name.
	Name() string

	// DrawAnnotationLine adds a vertical annotation line at client x
	// coordinate x and returns its id. Ids are strictly increasing per chart.
	DrawAnnotationLine(x float64) (int, error)

	// DeleteAnnotationLine removes the annotation line with the given id.
	DeleteAnnotationLine(id int) error

	// AnnotationMode returns the current annotation mode.
	AnnotationMode() AnnotationMode

	// SetAnnotationMode changes the annotation mode.
	SetAnnotationMode(m AnnotationMode)

	// MoveSeriesUp moves the named series one row up.
	MoveSeriesUp(title string) error

	// MoveSeriesDown moves the named series one row down.
	MoveSeriesDown(title string) error
}

// Series is one sample row of the chart.
type Series struct {
	Title     string `toml:"title"`
	FirstYear int    `toml:"first_year"`
	LastYear  int    `toml:"last_year"`
}

// Annotation is a vertical line drawn by a script.
type Annotation struct {
	ID int
	// X is the line position in chart coordinates (client x minus the
	// chart's left offset).
	X float64
}

// Layout constants shared with the renderer.
const (
	DefaultWidth   = 1000
	DefaultOffsetX = 50
	DefaultOffsetY = 20
	SeriesHeight   = 10
	SeriesSpacing  = 12
)

// Chart is the default Instance implementation.
type Chart struct {
	mu sync.RWMutex

	name   string
	width  int
	offset int

	series      []Series
	annotations map[int]Annotation
	nextID      int
	mode        AnnotationMode
}

// Option configures a Chart.
type Option func(*Chart)

// WithWidth sets the plot width.
func WithWidth(w int) Option {
	return func(c *Chart) {
		if w > 0 {
			c.width = w
		}
	}
}

// WithOffset sets the left offset subtracted from client x coordinates.
func WithOffset(x int) Option {
	return func(c *Chart) {
		if x >= 0 {
			c.offset = x
		}
	}
}

// WithMode sets the initial annotation mode.
func WithMode(m AnnotationMode) Option {
	return func(c *Chart) {
		c.mode = m
	}
}

// New creates a chart with the given series.
func New(name string, series []Series, opts ...Option) *Chart {
	c := &Chart{
		name:        name,
		width:       DefaultWidth,
		offset:      DefaultOffsetX,
		series:      append([]Series(nil), series...),
		annotations: make(map[int]Annotation),
		mode:        ModeLine,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the chart name.
func (c *Chart) Name() string {
	return c.name
}

// DrawAnnotationLine implements Instance.
func (c *Chart) DrawAnnotationLine(x float64) (int, error) {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, fmt.Errorf("invalid x coordinate %v", x)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode != ModeLine {
		return 0, fmt.Errorf("%w: draw requires %s, chart is in %s", ErrWrongAnnotationMode, ModeLine, c.mode)
	}

	c.nextID++
	id := c.nextID
	c.annotations[id] = Annotation{ID: id, X: x - float64(c.offset)}
	return id, nil
}

// DeleteAnnotationLine implements Instance.
func (c *Chart) DeleteAnnotationLine(id int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode != ModeErase {
		return fmt.Errorf("%w: delete requires %s, chart is in %s", ErrWrongAnnotationMode, ModeErase, c.mode)
	}
	if _, ok := c.annotations[id]; !ok {
		return fmt.Errorf("%w: %d", ErrAnnotationNotFound, id)
	}
	delete(c.annotations, id)
	return nil
}

// AnnotationMode implements Instance.
func (c *Chart) AnnotationMode() AnnotationMode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

// SetAnnotationMode implements Instance.
func (c *Chart) SetAnnotationMode(m AnnotationMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = m
}

// Annotations returns the annotation lines ordered by id.
func (c *Chart) Annotations() []Annotation {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Annotation, 0, len(c.annotations))
	for _, a := range c.annotations {
		out = append(out, a)
	}
	sortAnnotations(out)
	return out
}

// Series returns a copy of the series rows in display order.
func (c *Chart) Series() []Series {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Series(nil), c.series...)
}

// MoveSeriesUp implements Instance. Moving the first row is a no-op.
func (c *Chart) MoveSeriesUp(title string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(title)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrSeriesNotFound, title)
	}
	if i > 0 {
		c.series[i-1], c.series[i] = c.series[i], c.series[i-1]
	}
	return nil
}

// MoveSeriesDown implements Instance. Moving the last row is a no-op.
func (c *Chart) MoveSeriesDown(title string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(title)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrSeriesNotFound, title)
	}
	if i < len(c.series)-1 {
		c.series[i+1], c.series[i] = c.series[i], c.series[i+1]
	}
	return nil
}

// indexOf must be called with c.mu held.
func (c *Chart) indexOf(title string) int {
	for i, s := range c.series {
		if s.Title == title {
			return i
		}
	}
	return -1
}
