package textbuf

import "slices"

// DisplayLine is one wrapped row of the buffer. Start and End are rune
// offsets into the raw buffer forming the half-open range [Start, End).
type DisplayLine struct {
	Text  string
	Start int
	End   int
}

// Len reports the number of runes on the line.
func (l DisplayLine) Len() int { return l.End - l.Start }

// Buffer owns the raw rune sequence and caches its reflow.
//
// Buffer is not safe for concurrent use; the editor serializes access.
type Buffer struct {
	cols  int
	raw   []rune
	lines []DisplayLine
}

// New returns an empty buffer that wraps at cols runes per line.
func New(cols int) *Buffer {
	return &Buffer{cols: max(cols, 1)}
}

// Cols returns the wrap width.
func (b *Buffer) Cols() int { return b.cols }

// Len returns the buffer length in runes.
func (b *Buffer) Len() int { return len(b.raw) }

func (b *Buffer) String() string { return string(b.raw) }

// Insert places text before the rune at pos. pos is clamped into [0, Len()].
func (b *Buffer) Insert(pos int, text string) {
	if text == "" {
		return
	}
	pos = clamp(pos, 0, len(b.raw))
	b.raw = slices.Insert(b.raw, pos, []rune(text)...)
	b.lines = nil
}

// DeleteRange removes up to count runes starting at pos. Both arguments are
// clamped so the call never reaches outside the buffer.
func (b *Buffer) DeleteRange(pos, count int) {
	pos = clamp(pos, 0, len(b.raw))
	count = clamp(count, 0, len(b.raw)-pos)
	if count == 0 {
		return
	}
	b.raw = slices.Delete(b.raw, pos, pos+count)
	b.lines = nil
}

// Reflow returns the display lines for the current content. The result is
// cached until the next mutation and must not be modified by callers.
func (b *Buffer) Reflow() []DisplayLine {
	if b.lines == nil {
		b.lines = Reflow(b.raw, b.cols)
	}
	return b.lines
}

// Reflow wraps raw into display lines of at most cols runes.
//
// Each paragraph between line breaks yields ceil(len/cols) lines, an empty
// paragraph yields one empty line, and a trailing line break yields an extra
// empty line at [n, n). An empty buffer yields a single empty line.
func Reflow(raw []rune, cols int) []DisplayLine {
	cols = max(cols, 1)
	n := len(raw)
	if n == 0 {
		return []DisplayLine{{}}
	}

	lines := make([]DisplayLine, 0, n/cols+1)
	for i := 0; i < n; {
		brk := slices.Index(raw[i:], '\n')
		paraEnd := n
		if brk >= 0 {
			brk += i
			paraEnd = brk
		}

		if paraEnd == i {
			lines = append(lines, DisplayLine{Start: i, End: i})
		}
		for k := i; k < paraEnd; k += cols {
			end := min(k+cols, paraEnd)
			lines = append(lines, DisplayLine{Text: string(raw[k:end]), Start: k, End: end})
		}

		if brk < 0 {
			break
		}
		if brk == n-1 {
			lines = append(lines, DisplayLine{Start: n, End: n})
		}
		i = brk + 1
	}
	return lines
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
