package editor

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("port gone") }

func newTestEngine(cols, rows int) (*Engine, *syncBuffer) {
	out := &syncBuffer{}
	return New(cols, rows, WithOutbound(out)), out
}

func TestInsertTextMovesCursorWithoutEcho(t *testing.T) {
	e, out := newTestEngine(5, 3)
	e.InsertText("héllo")
	assert.Equal(t, "héllo", e.Text())
	assert.Equal(t, 5, e.Cursor())
	assert.Empty(t, out.String())

	e.InsertText("")
	assert.Equal(t, 5, e.Cursor())
}

func TestTypeEchoesPrintableOnly(t *testing.T) {
	e, out := newTestEngine(10, 3)
	e.Type('a')
	e.Type('\x07')
	e.Type(0x7f)
	e.Type('ü')
	assert.Equal(t, "aü", e.Text())
	assert.Equal(t, "aü", out.String())
}

func TestNewlineEchoesCRLF(t *testing.T) {
	e, out := newTestEngine(10, 3)
	e.Type('x')
	e.Newline()
	assert.Equal(t, "x\n", e.Text())
	assert.Equal(t, "x\r\n", out.String())
	snap := e.Snapshot()
	assert.Equal(t, 1, snap.CursorLine)
	assert.Equal(t, 0, snap.CursorCol)
}

func TestTypeText(t *testing.T) {
	e, out := newTestEngine(10, 3)
	e.TypeText("ab\x01\ncd")
	assert.Equal(t, "ab\ncd", e.Text())
	assert.Equal(t, "ab\r\ncd", out.String())
}

func TestInsertBackspaceInverse(t *testing.T) {
	for _, s := range []string{"x", "hello", "abcdefghijklmnop", "wörld"} {
		e, _ := newTestEngine(4, 2)
		e.InsertText("prefix--suffix")
		for i := 0; i < 6; i++ {
			e.MoveLeft()
		}
		beforeText, beforeCursor := e.Text(), e.Cursor()

		e.InsertText(s)
		for range []rune(s) {
			e.Backspace()
		}
		require.Equal(t, beforeText, e.Text(), "s=%q", s)
		require.Equal(t, beforeCursor, e.Cursor(), "s=%q", s)
	}
}

func TestBoundaryOperationsAreNoops(t *testing.T) {
	e, out := newTestEngine(5, 3)
	e.Backspace()
	e.MoveLeft()
	e.MoveRight()
	e.MoveUp()
	e.MoveDown()
	assert.Equal(t, "", e.Text())
	assert.Equal(t, 0, e.Cursor())
	assert.Empty(t, out.String())

	e.InsertText("ab")
	e.MoveRight()
	assert.Equal(t, 2, e.Cursor())
}

func TestVerticalMovesKeepColumn(t *testing.T) {
	e, _ := newTestEngine(5, 3)
	e.InsertText("abcdefgh\nij")
	// cursor at end: line 2, col 2
	e.MoveUp()
	snap := e.Snapshot()
	assert.Equal(t, 1, snap.CursorLine)
	assert.Equal(t, 2, snap.CursorCol)
	assert.Equal(t, 7, e.Cursor())

	e.MoveUp()
	assert.Equal(t, 2, e.Cursor())

	// column 4 on line 0 clamps to the 3-rune line below it
	e.MoveRight()
	e.MoveRight()
	e.MoveDown()
	assert.Equal(t, 8, e.Cursor())
	e.MoveDown()
	assert.Equal(t, 11, e.Cursor())
}

func TestCursorStaysVisible(t *testing.T) {
	e, _ := newTestEngine(5, 3)
	for i := 0; i < 9; i++ {
		e.InsertText("line\n")
	}
	snap := e.Snapshot()
	require.Equal(t, 10, snap.TotalLines)
	require.Equal(t, 7, snap.ViewStart)
	require.Equal(t, 2, snap.CursorRow)

	for i := 0; i < 9; i++ {
		e.MoveUp()
	}
	snap = e.Snapshot()
	require.Equal(t, 0, snap.ViewStart)
	require.Equal(t, 0, snap.CursorRow)
}

func TestScrollDoesNotMoveCursor(t *testing.T) {
	e, _ := newTestEngine(5, 3)
	e.InsertText(strings.Repeat("a\n", 9))
	e.ScrollToFraction(0)
	snap := e.Snapshot()
	assert.Equal(t, 0, snap.ViewStart)
	assert.Equal(t, 18, snap.CursorIndex)
	assert.False(t, snap.CursorVisible())
	assert.Equal(t, []string{"a", "a", "a"}, snap.Rows)

	e.ScrollPages(1)
	assert.Equal(t, 3, e.Snapshot().ViewStart)
	e.ScrollUnits(100)
	assert.Equal(t, 7, e.Snapshot().ViewStart)

	// the next edit pulls the view back to the cursor
	e.ScrollToFraction(0)
	e.Type('z')
	assert.Equal(t, 7, e.Snapshot().ViewStart)
}

func TestSnapshotPadsBlankRows(t *testing.T) {
	e, _ := newTestEngine(5, 4)
	e.InsertText("abcdefg")
	snap := e.Snapshot()
	assert.Equal(t, []string{"abcde", "fg", "", ""}, snap.Rows)
	assert.Equal(t, 0.0, snap.ScrollTop)
	assert.Equal(t, 1.0, snap.ScrollBottom)
	assert.Equal(t, 5, snap.Cols)
}

func TestPlaceCursor(t *testing.T) {
	e, _ := newTestEngine(5, 3)
	e.InsertText("abcdefgh\nij")
	e.PlaceCursor(0, 2)
	assert.Equal(t, 2, e.Cursor())
	e.PlaceCursor(1, 99)
	assert.Equal(t, 8, e.Cursor())
	e.PlaceCursor(2, -4)
	assert.Equal(t, 9, e.Cursor())
	e.PlaceCursor(0, 0)
	e.PlaceCursor(7, 0)
	// row 7 clamps to the last visible row, which holds "ij"
	assert.Equal(t, 9, e.Cursor())

	e2, _ := newTestEngine(5, 3)
	e2.InsertText("ab")
	e2.MoveLeft()
	e2.PlaceCursor(2, 0)
	assert.Equal(t, 2, e2.Cursor())
}

func TestEchoFailureIsNotFatal(t *testing.T) {
	e := New(5, 3, WithOutbound(failingWriter{}))
	e.Type('a')
	e.Newline()
	assert.Equal(t, "a\n", e.Text())
}

func TestSubscribeReceivesLatestSnapshot(t *testing.T) {
	e, _ := newTestEngine(5, 3)
	ch, unsubscribe := e.Subscribe()
	initial := <-ch
	assert.Equal(t, "", initial.Rows[0])

	e.InsertText("a")
	e.InsertText("b")
	e.InsertText("c")
	latest := <-ch
	assert.Equal(t, "abc", latest.Rows[0])
	assert.Greater(t, latest.Version, initial.Version)

	unsubscribe()
	unsubscribe()
	_, ok := <-ch
	assert.False(t, ok)
	e.InsertText("d")
}

func TestCloseDetachesSubscribers(t *testing.T) {
	e, _ := newTestEngine(5, 3)
	ch, unsubscribe := e.Subscribe()
	<-ch
	e.Close()
	_, ok := <-ch
	assert.False(t, ok)
	unsubscribe()
}

func TestConcurrentFlowsKeepTheirOwnOrder(t *testing.T) {
	e, out := newTestEngine(40, 8)
	const n = 200
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			e.Type('a' + rune(i%2))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			e.Emit("x", "x")
		}
	}()
	wg.Wait()

	text := e.Text()
	require.Len(t, text, 2*n)
	require.Equal(t, text, out.String())

	var typed []rune
	for _, r := range text {
		if r != 'x' {
			typed = append(typed, r)
		}
	}
	for i, r := range typed {
		require.Equal(t, 'a'+rune(i%2), r, "typed rune %d out of order", i)
	}
}
