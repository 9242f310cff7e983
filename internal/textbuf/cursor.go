package textbuf

// ToDisplay projects a raw cursor index onto (line, column).
//
// Ranges are matched inclusively at both ends, so an index sitting exactly on
// a wrap boundary resolves to the end of the line it closes. An index past
// the end of the buffer lands at the end of the last line.
func ToDisplay(lines []DisplayLine, raw int) (line, col int) {
	if len(lines) == 0 {
		return 0, 0
	}
	if raw < 0 {
		raw = 0
	}
	for i, l := range lines {
		if raw >= l.Start && raw <= l.End {
			return i, raw - l.Start
		}
	}
	last := len(lines) - 1
	return last, lines[last].Len()
}

// ToRaw maps (line, column) back to a raw index, clamping both coordinates
// into the valid range first.
func ToRaw(lines []DisplayLine, line, col int) int {
	if len(lines) == 0 {
		return 0
	}
	line = clamp(line, 0, len(lines)-1)
	l := lines[line]
	return l.Start + clamp(col, 0, l.Len())
}

// ToDisplay projects raw against the buffer's current reflow.
func (b *Buffer) ToDisplay(raw int) (line, col int) {
	return ToDisplay(b.Reflow(), clamp(raw, 0, len(b.raw)))
}

// ToRaw maps (line, col) against the buffer's current reflow.
func (b *Buffer) ToRaw(line, col int) int {
	return ToRaw(b.Reflow(), line, col)
}
