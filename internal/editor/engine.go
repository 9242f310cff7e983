// Package editor is the single mutation authority over the terminal buffer.
//
// Every edit, cursor move and scroll goes through Engine, which serializes
// callers with a mutex, re-clamps the cursor and viewport against a fresh
// reflow, writes any echo to the outbound stream inside the same critical
// section, and publishes a Snapshot to render subscribers.
package editor

import (
	"io"
	"sync"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"model100/internal/metrics"
	"model100/internal/textbuf"
	"model100/internal/viewport"
)

// CRLF is the outbound form of a line break.
const CRLF = "\r\n"

// Engine owns the buffer, cursor and viewport.
type Engine struct {
	mu      sync.Mutex
	buf     *textbuf.Buffer
	view    *viewport.Viewport
	cursor  int
	version uint64

	out     io.Writer
	logger  *log.Logger
	metrics *metrics.Metrics

	subs    map[int]chan Snapshot
	nextSub int
}

// Option configures an Engine.
type Option func(*Engine)

// WithOutbound sets the stream that receives echoed input.
func WithOutbound(w io.Writer) Option {
	return func(e *Engine) { e.out = w }
}

func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New returns an engine for a cols x rows terminal.
func New(cols, rows int, opts ...Option) *Engine {
	e := &Engine{
		buf:    textbuf.New(cols),
		view:   viewport.New(rows),
		out:    io.Discard,
		logger: log.Default(),
		subs:   map[int]chan Snapshot{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.out == nil {
		e.out = io.Discard
	}
	e.view.SetTotal(len(e.buf.Reflow()))
	return e
}

// InsertText inserts s at the cursor without echo. Used for pasted text and
// for characters that arrived from the serial peer.
func (e *Engine) InsertText(s string) {
	if s == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.insertLocked(s)
	e.settleLocked()
}

// Type inserts one printable rune and echoes it. Control runes are ignored.
func (e *Engine) Type(r rune) {
	if !Printable(r) {
		return
	}
	e.Emit(string(r), string(r))
}

// Newline inserts a line break and echoes CR LF.
func (e *Engine) Newline() {
	e.Emit("\n", CRLF)
}

// TypeText feeds s through Type and Newline as a single operation so no
// other flow interleaves with it.
func (e *Engine) TypeText(s string) {
	if s == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range s {
		switch {
		case r == '\n':
			e.insertLocked("\n")
			e.echoLocked(CRLF)
		case Printable(r):
			e.insertLocked(string(r))
			e.echoLocked(string(r))
		}
	}
	e.settleLocked()
}

// Emit inserts display at the cursor and writes echo to the outbound stream
// atomically, so the displayed and echoed orders always agree.
func (e *Engine) Emit(display, echo string) {
	if display == "" && echo == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.insertLocked(display)
	e.echoLocked(echo)
	e.settleLocked()
}

// Backspace deletes the rune before the cursor.
func (e *Engine) Backspace() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cursor == 0 {
		return
	}
	e.buf.DeleteRange(e.cursor-1, 1)
	e.cursor--
	e.settleLocked()
}

func (e *Engine) MoveLeft() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cursor == 0 {
		return
	}
	e.cursor--
	e.settleLocked()
}

func (e *Engine) MoveRight() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cursor >= e.buf.Len() {
		return
	}
	e.cursor++
	e.settleLocked()
}

// MoveUp moves to the previous display line, keeping the column where the
// line is long enough.
func (e *Engine) MoveUp() { e.moveVertical(-1) }

// MoveDown moves to the next display line.
func (e *Engine) MoveDown() { e.moveVertical(1) }

func (e *Engine) moveVertical(delta int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	lines := e.buf.Reflow()
	line, col := textbuf.ToDisplay(lines, e.cursor)
	target := line + delta
	if target < 0 || target >= len(lines) {
		return
	}
	e.cursor = textbuf.ToRaw(lines, target, min(col, lines[target].Len()))
	e.settleLocked()
}

// PlaceCursor moves the cursor to a cell of the visible window. Rows past
// the last display line put the cursor at the end of the buffer.
func (e *Engine) PlaceCursor(row, col int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	lines := e.buf.Reflow()
	row = min(max(row, 0), e.view.Rows()-1)
	target := e.view.Start() + row
	if target >= len(lines) {
		e.cursor = e.buf.Len()
	} else {
		e.cursor = textbuf.ToRaw(lines, target, max(col, 0))
	}
	e.settleLocked()
}

// ScrollUnits scrolls the viewport by n lines without moving the cursor.
func (e *Engine) ScrollUnits(n int) {
	e.scroll(func(v *viewport.Viewport) { v.ScrollUnits(n) })
}

// ScrollPages scrolls the viewport by n pages without moving the cursor.
func (e *Engine) ScrollPages(n int) {
	e.scroll(func(v *viewport.Viewport) { v.ScrollPages(n) })
}

// ScrollToFraction jumps the viewport to fraction f of the content.
func (e *Engine) ScrollToFraction(f float64) {
	e.scroll(func(v *viewport.Viewport) { v.ScrollToFraction(f) })
}

func (e *Engine) scroll(apply func(*viewport.Viewport)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.view.SetTotal(len(e.buf.Reflow()))
	apply(e.view)
	e.publishLocked()
}

// Text returns the raw buffer content.
func (e *Engine) Text() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buf.String()
}

// Cursor returns the raw cursor index.
func (e *Engine) Cursor() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cursor
}

// Snapshot returns the current render state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) insertLocked(s string) {
	if s == "" {
		return
	}
	e.buf.Insert(e.cursor, s)
	e.cursor += utf8.RuneCountInString(s)
}

func (e *Engine) echoLocked(s string) {
	if s == "" {
		return
	}
	n, err := io.WriteString(e.out, s)
	e.metrics.AddBytesOut(n)
	if err != nil {
		e.logger.Warn("outbound write failed", "event", "echo_failed", "bytes", len(s), "err", err)
	}
}

// settleLocked re-clamps the cursor, scrolls it into view and publishes.
func (e *Engine) settleLocked() {
	e.cursor = min(max(e.cursor, 0), e.buf.Len())
	lines := e.buf.Reflow()
	e.view.SetTotal(len(lines))
	line, _ := textbuf.ToDisplay(lines, e.cursor)
	e.view.EnsureVisible(line)
	e.publishLocked()
}

// Printable reports whether r is typed and echoed as ordinary input.
func Printable(r rune) bool {
	return r >= 0x20 && r != 0x7f
}
