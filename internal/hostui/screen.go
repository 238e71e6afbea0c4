// Package hostui draws script-created host windows on a terminal screen.
package hostui

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dshills/chartbridge/internal/bridge"
)

// Errors returned by ScreenProvider.
var (
	ErrClosed         = errors.New("screen closed")
	ErrWindowNotFound = errors.New("window not found")
	ErrInvalidSize    = errors.New("invalid window size")
)

// Window is an open host window.
type Window struct {
	ID      string
	Title   string
	Content string
	X       int
	Y       int
	Width   int
	Height  int
	Border  bool
}

// ScreenProvider implements bridge.WindowProvider on a tcell screen.
// The terminal is initialized on the first CreateWindow call.
type ScreenProvider struct {
	mu          sync.Mutex
	screen      tcell.Screen
	newScreen   func() (tcell.Screen, error)
	initialized bool
	closed      bool
	windows     map[string]*Window
	order       []string
	style       tcell.Style
	logger      *zap.Logger
}

var _ bridge.WindowProvider = (*ScreenProvider)(nil)

// Option configures a ScreenProvider.
type Option func(*ScreenProvider)

// WithScreen draws on an existing screen instead of the terminal.
// The screen is initialized lazily like the default one.
func WithScreen(s tcell.Screen) Option {
	return func(sc *ScreenProvider) {
		sc.newScreen = func() (tcell.Screen, error) { return s, nil }
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(sc *ScreenProvider) {
		if l != nil {
			sc.logger = l
		}
	}
}

// New creates a screen provider.
func New(opts ...Option) *ScreenProvider {
	s := &ScreenProvider{
		newScreen: tcell.NewScreen,
		windows:   make(map[string]*Window),
		style:     tcell.StyleDefault,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateWindow implements bridge.WindowProvider.
func (s *ScreenProvider) CreateWindow(opts bridge.WindowOptions) (string, error) {
	if opts.Width < 0 || opts.Height < 0 {
		return "", fmt.Errorf("%w: %dx%d", ErrInvalidSize, opts.Width, opts.Height)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureInit(); err != nil {
		return "", err
	}

	w := &Window{
		ID:      uuid.NewString(),
		Title:   opts.Title,
		Content: opts.Content,
		X:       opts.X,
		Y:       opts.Y,
		Width:   opts.Width,
		Height:  opts.Height,
		Border:  opts.Border,
	}
	fitContent(w)

	s.windows[w.ID] = w
	s.order = append(s.order, w.ID)
	s.redraw()

	s.logger.Debug("host window created",
		zap.String("window", w.ID),
		zap.String("title", w.Title),
	)
	return w.ID, nil
}

// CloseWindow removes a window.
func (s *ScreenProvider) CloseWindow(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, ok := s.windows[id]; !ok {
		return fmt.Errorf("%w: %s", ErrWindowNotFound, id)
	}
	delete(s.windows, id)
	for i, wid := range s.order {
		if wid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.redraw()
	return nil
}

// Windows returns the open windows, oldest first.
func (s *ScreenProvider) Windows() []Window {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Window, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.windows[id])
	}
	return out
}

// Close restores the terminal. It is safe to call more than once.
func (s *ScreenProvider) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.initialized {
		s.screen.Fini()
	}
	s.windows = make(map[string]*Window)
	s.order = nil
	return nil
}

// ensureInit must be called with s.mu held.
func (s *ScreenProvider) ensureInit() error {
	if s.closed {
		return ErrClosed
	}
	if s.initialized {
		return nil
	}
	screen, err := s.newScreen()
	if err != nil {
		return fmt.Errorf("create screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("init screen: %w", err)
	}
	s.screen = screen
	s.initialized = true
	return nil
}

// redraw must be called with s.mu held.
func (s *ScreenProvider) redraw() {
	if !s.initialized {
		return
	}
	s.screen.Clear()
	for _, id := range s.order {
		s.draw(s.windows[id])
	}
	s.screen.Show()
}

func (s *ScreenProvider) draw(w *Window) {
	inner := w.X
	top := w.Y
	width, height := w.Width, w.Height
	if w.Border {
		s.box(w.X, w.Y, w.Width, w.Height)
		s.text(w.X+2, w.Y, w.Width-4, w.Title)
		inner, top = w.X+1, w.Y+1
		width, height = w.Width-2, w.Height-2
	}

	for i, line := range contentLines(w.Content) {
		if i >= height {
			break
		}
		s.text(inner, top+i, width, line)
	}
}

func (s *ScreenProvider) box(x, y, w, h int) {
	if w < 2 || h < 2 {
		return
	}
	right, bottom := x+w-1, y+h-1
	for cx := x + 1; cx < right; cx++ {
		s.put(cx, y, tcell.RuneHLine)
		s.put(cx, bottom, tcell.RuneHLine)
	}
	for cy := y + 1; cy < bottom; cy++ {
		s.put(x, cy, tcell.RuneVLine)
		s.put(right, cy, tcell.RuneVLine)
	}
	s.put(x, y, tcell.RuneULCorner)
	s.put(right, y, tcell.RuneURCorner)
	s.put(x, bottom, tcell.RuneLLCorner)
	s.put(right, bottom, tcell.RuneLRCorner)
}

func (s *ScreenProvider) text(x, y, limit int, str string) {
	i := 0
	for _, r := range str {
		if i >= limit {
			return
		}
		s.put(x+i, y, r)
		i++
	}
}

func (s *ScreenProvider) put(x, y int, r rune) {
	sw, sh := s.screen.Size()
	if x < 0 || y < 0 || x >= sw || y >= sh {
		return
	}
	s.screen.SetContent(x, y, r, nil, s.style)
}

// fitContent sizes a window to its content when no size was given.
func fitContent(w *Window) {
	lines := contentLines(w.Content)
	pad := 0
	if w.Border {
		pad = 2
	}
	if w.Width == 0 {
		longest := len([]rune(w.Title)) + 2
		for _, l := range lines {
			if n := len([]rune(l)); n > longest {
				longest = n
			}
		}
		w.Width = longest + pad
	}
	if w.Height == 0 {
		w.Height = len(lines) + pad
	}
}

func contentLines(content string) []string {
	if content == "" {
		return nil
	}
	return strings.Split(strings.TrimRight(content, "\n"), "\n")
}
