package editor

import "model100/internal/textbuf"

// Snapshot is everything a renderer needs to draw one frame.
type Snapshot struct {
	// Version increases with every published change.
	Version uint64 `json:"version"`
	// Rows holds exactly one entry per visible row; rows past the end of the
	// content are empty strings.
	Rows []string `json:"rows"`
	Cols int      `json:"cols"`

	ViewStart  int `json:"view_start"`
	TotalLines int `json:"total_lines"`

	// CursorLine and CursorCol locate the cursor in display coordinates.
	CursorLine int `json:"cursor_line"`
	CursorCol  int `json:"cursor_col"`
	// CursorRow is the cursor's row inside the window, or -1 when the
	// cursor is scrolled out of view.
	CursorRow int `json:"cursor_row"`
	// CursorIndex is the raw buffer offset.
	CursorIndex int `json:"cursor_index"`

	// ScrollTop and ScrollBottom are the visible fraction of the content.
	ScrollTop    float64 `json:"scroll_top"`
	ScrollBottom float64 `json:"scroll_bottom"`
}

// CursorVisible reports whether the cursor lies inside the window.
func (s Snapshot) CursorVisible() bool { return s.CursorRow >= 0 }

func (e *Engine) snapshotLocked() Snapshot {
	lines := e.buf.Reflow()
	start := e.view.Start()
	rows := make([]string, e.view.Rows())
	for i := range rows {
		if idx := start + i; idx < len(lines) {
			rows[i] = lines[idx].Text
		}
	}

	line, col := textbuf.ToDisplay(lines, e.cursor)
	cursorRow := -1
	if e.view.Contains(line) {
		cursorRow = line - start
	}
	top, bottom := e.view.Fraction()

	return Snapshot{
		Version:      e.version,
		Rows:         rows,
		Cols:         e.buf.Cols(),
		ViewStart:    start,
		TotalLines:   len(lines),
		CursorLine:   line,
		CursorCol:    col,
		CursorRow:    cursorRow,
		CursorIndex:  e.cursor,
		ScrollTop:    top,
		ScrollBottom: bottom,
	}
}
