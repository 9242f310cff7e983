package ingest

import (
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// NewDecoder wraps a raw byte stream so it yields valid UTF-8 only.
// Malformed sequences are dropped, and multi-byte sequences split across
// reads are reassembled before they reach the caller.
func NewDecoder(r io.Reader) io.Reader {
	return transform.NewReader(r, transform.Chain(
		unicode.UTF8.NewDecoder(),
		runes.Remove(runes.Predicate(func(r rune) bool { return r == utf8.RuneError })),
	))
}

// countingReader reports every successful read to a callback.
type countingReader struct {
	r   io.Reader
	add func(int)
}

func (c countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 && c.add != nil {
		c.add(n)
	}
	return n, err
}
