package tui

import (
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"model100/internal/editor"
	"model100/internal/theme"
)

const (
	defaultTitle = "MODEL 100"
	thumbGlyph   = "█"
	trackGlyph   = "│"
)

// Engine is the edit surface a terminal session drives.
type Engine interface {
	Type(r rune)
	Newline()
	Backspace()
	MoveLeft()
	MoveRight()
	MoveUp()
	MoveDown()
	PlaceCursor(row, col int)
	InsertText(s string)
	ScrollUnits(n int)
	ScrollPages(n int)
	ScrollToFraction(f float64)
	Subscribe() (<-chan editor.Snapshot, func())
}

// Options tune a session model.
type Options struct {
	Title string
	// Blink is the cursor blink period. Zero keeps the cursor solid.
	Blink  time.Duration
	Styles theme.Styles
	// Framed draws a border around the screen.
	Framed bool
	// Status reports the protocol mode shown in the status line.
	Status func() string
}

// Message types consumed by Update.
type (
	blinkMsg    struct{}
	snapshotMsg editor.Snapshot
	detachedMsg struct{}
)

// Model renders one view of the shared terminal and forwards the user's
// keys and mouse to the engine. Many models may share an engine.
type Model struct {
	engine      Engine
	updates     <-chan editor.Snapshot
	unsubscribe func()

	opts     Options
	snap     editor.Snapshot
	cursorOn bool

	width  int
	height int
}

// NewModel subscribes to eng. Call Close when the program exits.
func NewModel(eng Engine, opts Options) *Model {
	if opts.Title == "" {
		opts.Title = defaultTitle
	}
	updates, unsubscribe := eng.Subscribe()
	m := &Model{
		engine:      eng,
		updates:     updates,
		unsubscribe: unsubscribe,
		opts:        opts,
		cursorOn:    true,
	}
	// The first frame is queued by Subscribe.
	if snap, ok := <-updates; ok {
		m.snap = snap
	}
	return m
}

// Close unsubscribes from the engine. Safe to call more than once.
func (m *Model) Close() {
	m.unsubscribe()
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(waitForSnapshot(m.updates), m.blink())
}

func waitForSnapshot(ch <-chan editor.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return detachedMsg{}
		}
		return snapshotMsg(snap)
	}
}

func (m *Model) blink() tea.Cmd {
	if m.opts.Blink <= 0 {
		return nil
	}
	return tea.Tick(m.opts.Blink, func(time.Time) tea.Msg { return blinkMsg{} })
}

// Update advances model state in response to events.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
	case snapshotMsg:
		m.snap = editor.Snapshot(msg)
		return m, waitForSnapshot(m.updates)
	case detachedMsg:
		return m, tea.Quit
	case blinkMsg:
		m.cursorOn = !m.cursorOn
		return m, m.blink()
	case tea.KeyMsg:
		return m, m.handleKey(msg)
	case tea.MouseMsg:
		m.handleMouse(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyCtrlC:
		return tea.Quit
	case tea.KeyEnter:
		m.engine.Newline()
	case tea.KeyBackspace:
		m.engine.Backspace()
	case tea.KeyLeft:
		m.engine.MoveLeft()
	case tea.KeyRight:
		m.engine.MoveRight()
	case tea.KeyUp:
		m.engine.MoveUp()
	case tea.KeyDown:
		m.engine.MoveDown()
	case tea.KeyPgUp:
		m.engine.ScrollPages(-1)
	case tea.KeyPgDown:
		m.engine.ScrollPages(1)
	case tea.KeySpace:
		m.engine.Type(' ')
	case tea.KeyRunes:
		if msg.Paste {
			m.engine.InsertText(normalizePaste(string(msg.Runes)))
			return nil
		}
		for _, r := range msg.Runes {
			m.engine.Type(r)
		}
	}
	return nil
}

func normalizePaste(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

func (m *Model) handleMouse(msg tea.MouseMsg) {
	if msg.Action != tea.MouseActionPress {
		return
	}
	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.engine.ScrollUnits(-1)
	case tea.MouseButtonWheelDown:
		m.engine.ScrollUnits(1)
	case tea.MouseButtonLeft:
		x, y := m.origin()
		row, cell := msg.Y-y, msg.X-x
		rows := len(m.snap.Rows)
		if row < 0 || row >= rows || cell < 0 {
			return
		}
		switch {
		case cell == m.barColumn():
			m.engine.ScrollToFraction(float64(row) / float64(rows))
		case cell < m.barColumn():
			m.engine.PlaceCursor(row, cellToColumn(m.snap.Rows[row], cell))
		}
	}
}

// origin is the screen position of the first text cell.
func (m *Model) origin() (x, y int) {
	if m.opts.Framed {
		return 1, 2
	}
	return 0, 1
}

// barColumn is the text-relative column of the scroll indicator. The text
// area is one cell wider than the line width so a cursor sitting after a
// full line still has a cell to occupy.
func (m *Model) barColumn() int {
	return m.snap.Cols + 1
}

// cellToColumn maps a screen cell to a rune column of line.
func cellToColumn(line string, cell int) int {
	col, width := 0, 0
	for _, r := range line {
		w := runewidth.RuneWidth(r)
		if width+w > cell {
			return col
		}
		width += w
		col++
	}
	return col + (cell - width)
}

// View renders the status line, the text rows and the scroll indicator.
func (m *Model) View() string {
	st := m.opts.Styles
	lines := make([]string, 0, len(m.snap.Rows)+1)
	lines = append(lines, st.Status.Render(m.statusLine()))

	thumbFrom, thumbTo := thumbRange(m.snap.ScrollTop, m.snap.ScrollBottom, len(m.snap.Rows))
	for i, text := range m.snap.Rows {
		bar := st.Track.Render(trackGlyph)
		if i >= thumbFrom && i < thumbTo {
			bar = st.Thumb.Render(thumbGlyph)
		}
		lines = append(lines, m.renderRow(i, text)+bar)
	}

	out := strings.Join(lines, "\n")
	if m.opts.Framed {
		out = st.Frame.Render(out)
	}
	return out
}

func (m *Model) statusLine() string {
	status := m.opts.Title
	if m.opts.Status != nil {
		status += " " + m.opts.Status()
	}
	return runewidth.FillRight(runewidth.Truncate(status, m.barColumn()+1, ""), m.barColumn()+1)
}

func (m *Model) renderRow(i int, text string) string {
	width := m.barColumn()
	st := m.opts.Styles
	if !m.cursorOn || m.snap.CursorRow != i {
		return st.Screen.Render(runewidth.FillRight(text, width))
	}

	runes := []rune(text)
	col := min(m.snap.CursorCol, len(runes))
	under := " "
	if col < len(runes) {
		under = string(runes[col])
	}
	before := string(runes[:col])
	after := ""
	if col < len(runes) {
		after = string(runes[col+1:])
	}
	pad := max(width-runewidth.StringWidth(before)-runewidth.StringWidth(under)-runewidth.StringWidth(after), 0)
	return lipgloss.JoinHorizontal(lipgloss.Top,
		st.Screen.Render(before),
		st.Cursor.Render(under),
		st.Screen.Render(after+strings.Repeat(" ", pad)),
	)
}

// thumbRange returns the [from, to) rows of the indicator thumb. The thumb
// is always at least one row tall.
func thumbRange(top, bottom float64, rows int) (int, int) {
	if rows <= 0 {
		return 0, 0
	}
	from := min(int(top*float64(rows)), rows-1)
	to := int(bottom*float64(rows) + 0.999999)
	to = min(max(to, from+1), rows)
	return from, to
}
