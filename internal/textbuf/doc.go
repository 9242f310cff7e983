// Package textbuf holds the raw character buffer of the terminal and its
// fixed-width reflow into display lines.
//
// The buffer is rune-addressed: every position, range and count in this
// package is measured in runes, never bytes. Reflow is a pure function of the
// buffer content and the column width, recomputed in full after each
// mutation and cached until the next one.
//
//	buf := textbuf.New(40)
//	buf.Insert(0, "hello\nworld")
//	for _, line := range buf.Reflow() {
//		fmt.Println(line.Text, line.Start, line.End)
//	}
package textbuf
