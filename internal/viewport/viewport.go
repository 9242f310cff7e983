// Package viewport tracks which window of display lines is visible.
package viewport

import "math"

// Viewport shows Rows consecutive display lines starting at Start. It holds
// no reference to the content; callers pass the current line count to every
// operation so the window is always clamped against fresh reflow output.
type Viewport struct {
	rows  int
	start int
	total int
}

// New returns a viewport showing rows lines.
func New(rows int) *Viewport {
	return &Viewport{rows: max(rows, 1), total: 1}
}

// Rows is the fixed number of visible rows.
func (v *Viewport) Rows() int { return v.rows }

// Start is the index of the first visible display line.
func (v *Viewport) Start() int { return v.start }

// Total is the line count the viewport was last clamped against.
func (v *Viewport) Total() int { return v.total }

// SetTotal records a new line count and re-clamps the window.
func (v *Viewport) SetTotal(total int) {
	v.total = max(total, 0)
	v.start = v.clamp(v.start)
}

// EnsureVisible scrolls the minimum distance needed to show line.
func (v *Viewport) EnsureVisible(line int) {
	switch {
	case line < v.start:
		v.start = v.clamp(line)
	case line >= v.start+v.rows:
		v.start = v.clamp(line - v.rows + 1)
	}
}

// ScrollUnits moves the window by n lines.
func (v *Viewport) ScrollUnits(n int) {
	v.start = v.clamp(v.start + v.saturate(n))
}

// ScrollPages moves the window by n full pages.
func (v *Viewport) ScrollPages(n int) {
	v.start = v.clamp(v.start + v.saturate(n)*v.rows)
}

// ScrollToFraction positions the window so that fraction f of the content
// lies above it. f is expected in [0, 1]; the result is clamped regardless.
func (v *Viewport) ScrollToFraction(f float64) {
	if math.IsNaN(f) {
		return
	}
	f = math.Min(math.Max(f, 0), 1)
	v.start = v.clamp(int(math.Round(f * float64(v.total))))
}

// Fraction reports the visible window as [top, bottom) fractions of the
// content, suitable for a scroll position indicator.
func (v *Viewport) Fraction() (top, bottom float64) {
	if v.total <= v.rows {
		return 0, 1
	}
	total := float64(v.total)
	return float64(v.start) / total, math.Min(1, float64(v.start+v.rows)/total)
}

// Contains reports whether line is inside the visible window.
func (v *Viewport) Contains(line int) bool {
	return line >= v.start && line < v.start+v.rows
}

// saturate bounds a scroll step so start+n cannot overflow. No step larger
// than the content moves the window any further.
func (v *Viewport) saturate(n int) int {
	limit := max(v.total, 1)
	return min(max(n, -limit), limit)
}

func (v *Viewport) maxStart() int {
	return max(0, v.total-v.rows)
}

func (v *Viewport) clamp(start int) int {
	return min(max(start, 0), v.maxStart())
}
