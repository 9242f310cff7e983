package serialport

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLoopback(t *testing.T) *Port {
	t.Helper()
	p, err := Open(Config{Loopback: true}, log.New(io.Discard))
	if err != nil {
		t.Skipf("pty unavailable: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func readWithin(t *testing.T, r io.Reader, want int) string {
	t.Helper()
	got := make(chan string, 1)
	go func() {
		buf := make([]byte, want)
		n, _ := io.ReadFull(r, buf)
		got <- string(buf[:n])
	}()
	select {
	case s := <-got:
		return s
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %d bytes", want)
		return ""
	}
}

func TestLoopbackCarriesBytesBothWays(t *testing.T) {
	p := openTestLoopback(t)
	require.NotEmpty(t, p.PeerName())

	_, err := p.peer.Write([]byte("hi\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "hi\r\n", readWithin(t, p, 4))

	_, err = p.Write([]byte("ok\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "ok\r\n", readWithin(t, p.peer, 4))
}

func TestCloseUnblocksReader(t *testing.T) {
	p := openTestLoopback(t)
	done := make(chan error, 1)
	go func() {
		_, err := p.Read(make([]byte, 8))
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, p.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(2 * time.Second):
		t.Fatal("read did not return after close")
	}

	_, err := p.Write([]byte("x"))
	assert.True(t, errors.Is(err, ErrPortClosed))
	assert.NoError(t, p.Close())
}

func TestOpenRequiresName(t *testing.T) {
	_, err := Open(Config{}, nil)
	require.Error(t, err)
}

func TestOpenMissingDevice(t *testing.T) {
	_, err := Open(Config{Name: "/dev/model100-does-not-exist"}, log.New(io.Discard))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/dev/model100-does-not-exist")
}
