package ingest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"model100/internal/editor"
	"model100/internal/playback"
	"model100/internal/responder"
)

type played struct {
	text  string
	delay time.Duration
}

type recordingPlayer struct {
	mu    sync.Mutex
	calls []played
}

func (p *recordingPlayer) Play(text string, delay time.Duration) *playback.Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, played{text: text, delay: delay})
	return nil
}

func (p *recordingPlayer) Calls() []played {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]played(nil), p.calls...)
}

type countingResponder struct {
	calls    atomic.Int32
	mu       sync.Mutex
	requests []string
	reply    string
	err      error
}

func (r *countingResponder) Respond(_ context.Context, req string) (string, error) {
	r.calls.Add(1)
	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.mu.Unlock()
	return r.reply, r.err
}

type fixture struct {
	machine *Machine
	engine  *editor.Engine
	out     *bytes.Buffer
	player  *recordingPlayer
	resp    *countingResponder
}

func newFixture(t *testing.T, resp *countingResponder) *fixture {
	t.Helper()
	out := &bytes.Buffer{}
	eng := editor.New(40, 8, editor.WithOutbound(out))
	player := &recordingPlayer{}
	m := New(eng, resp, player)
	return &fixture{machine: m, engine: eng, out: out, player: player, resp: resp}
}

func TestPlainLinesAreDisplayedNotEchoed(t *testing.T) {
	f := newFixture(t, &countingResponder{reply: "unused"})
	f.machine.FeedString(context.Background(), "hello\r\nworld")

	assert.Equal(t, "hello\nworld", f.engine.Text())
	assert.Empty(t, f.out.String())
	assert.Equal(t, ModeNormal, f.machine.Mode())
	assert.Equal(t, "world", f.machine.Pending())
	assert.Zero(t, f.resp.calls.Load())
}

func TestEnterAndExitTokens(t *testing.T) {
	f := newFixture(t, &countingResponder{reply: "unused"})
	ctx := context.Background()

	f.machine.FeedString(ctx, "xx##DEEPSEEK##yy\n")
	assert.Equal(t, ModeAssistant, f.machine.Mode())
	assert.Equal(t, "xx##DEEPSEEK##yy\nEnter DeepSeek mode...\n", f.engine.Text())
	assert.Equal(t, "Enter DeepSeek mode...\r\n", f.out.String())
	assert.Empty(t, f.machine.Pending())

	f.out.Reset()
	f.machine.FeedString(ctx, "bye ##EXIT##\n")
	f.machine.Wait()
	assert.Equal(t, ModeNormal, f.machine.Mode())
	assert.Equal(t, "Exit DeepSeek mode...\r\n", f.out.String())
	assert.Zero(t, f.resp.calls.Load())
	assert.Empty(t, f.player.Calls())
}

func TestTokenWithoutNewlineDoesNothing(t *testing.T) {
	f := newFixture(t, &countingResponder{})
	f.machine.FeedString(context.Background(), "##DEEPSEEK##")
	assert.Equal(t, ModeNormal, f.machine.Mode())
	assert.Equal(t, "##DEEPSEEK##", f.machine.Pending())
}

func TestTokensAreCaseSensitive(t *testing.T) {
	f := newFixture(t, &countingResponder{})
	f.machine.FeedString(context.Background(), "##deepseek##\n")
	assert.Equal(t, ModeNormal, f.machine.Mode())
}

func TestAssistantLineCallsResponderOnce(t *testing.T) {
	resp := &countingResponder{reply: "Paris\n"}
	f := newFixture(t, resp)
	ctx := context.Background()

	f.machine.FeedString(ctx, "##DEEPSEEK##\n")
	f.out.Reset()
	f.machine.FeedString(ctx, "capital of France?\r\n")
	f.machine.Wait()

	require.EqualValues(t, 1, resp.calls.Load())
	assert.Equal(t, []string{"capital of France?"}, resp.requests)
	assert.Equal(t, "Message sent, please wait...\r\n", f.out.String())
	assert.Equal(t, []played{{text: "Paris", delay: 5 * time.Millisecond}}, f.player.Calls())
	assert.Equal(t, ModeAssistant, f.machine.Mode())
}

func TestBlankAssistantLinesAreSent(t *testing.T) {
	resp := &countingResponder{reply: "x"}
	f := newFixture(t, resp)
	ctx := context.Background()
	f.machine.FeedString(ctx, "##DEEPSEEK##\n")
	f.out.Reset()
	f.machine.FeedString(ctx, "\n")
	f.machine.FeedString(ctx, "   \n")
	f.machine.Wait()

	require.EqualValues(t, 2, resp.calls.Load())
	assert.ElementsMatch(t, []string{"", "   "}, resp.requests)
	assert.Equal(t, "Message sent, please wait...\r\nMessage sent, please wait...\r\n", f.out.String())
	assert.Len(t, f.player.Calls(), 2)
	assert.Empty(t, f.machine.Pending())
}

func TestResponderFailurePlaysErrorReply(t *testing.T) {
	cases := []struct {
		name string
		resp *countingResponder
	}{
		{name: "error", resp: &countingResponder{err: errors.New("boom")}},
		{name: "empty reply", resp: &countingResponder{reply: " \n"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.resp)
			ctx := context.Background()
			f.machine.FeedString(ctx, "##DEEPSEEK##\nq\n")
			f.machine.Wait()

			assert.Equal(t, []played{{text: "[Error]", delay: 5 * time.Millisecond}}, f.player.Calls())
			assert.Equal(t, ModeAssistant, f.machine.Mode())
			assert.Empty(t, f.machine.Pending())
		})
	}
}

func TestResponderTimeout(t *testing.T) {
	slow := responder.Func(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	eng := editor.New(40, 8)
	player := &recordingPlayer{}
	proto := DefaultProtocol()
	proto.ResponderTimeout = 20 * time.Millisecond
	m := New(eng, slow, player, WithProtocol(proto))

	m.FeedString(context.Background(), "##DEEPSEEK##\nq\n")
	m.Wait()
	require.Len(t, player.Calls(), 1)
	assert.Equal(t, "[Error]", player.Calls()[0].text)
}

func TestCancelledSessionSkipsPlayback(t *testing.T) {
	release := make(chan struct{})
	resp := responder.Func(func(context.Context, string) (string, error) {
		<-release
		return "late", nil
	})
	eng := editor.New(40, 8)
	player := &recordingPlayer{}
	m := New(eng, resp, player)

	ctx, cancel := context.WithCancel(context.Background())
	m.FeedString(ctx, "##DEEPSEEK##\nq\n")
	cancel()
	close(release)
	m.Wait()
	assert.Empty(t, player.Calls())
}

func TestReaderKeepsFlowingWhileResponderWaits(t *testing.T) {
	release := make(chan struct{})
	resp := responder.Func(func(context.Context, string) (string, error) {
		<-release
		return "ok", nil
	})
	eng := editor.New(40, 8)
	player := &recordingPlayer{}
	m := New(eng, resp, player)
	ctx := context.Background()

	m.FeedString(ctx, "##DEEPSEEK##\nfirst\n")
	m.FeedString(ctx, "more")
	assert.Equal(t, "more", m.Pending())
	assert.True(t, strings.HasSuffix(eng.Text(), "more"))

	close(release)
	m.Wait()
	assert.Len(t, player.Calls(), 1)
}

func TestCustomProtocolFillsBlanks(t *testing.T) {
	eng := editor.New(40, 8)
	m := New(eng, &countingResponder{}, &recordingPlayer{}, WithProtocol(Protocol{EnterToken: "@@GO@@"}))
	m.FeedString(context.Background(), "@@GO@@\n")
	assert.Equal(t, ModeAssistant, m.Mode())
	m.FeedString(context.Background(), "##EXIT##\n")
	assert.Equal(t, ModeNormal, m.Mode())
}

func TestRunDecodesSplitAndInvalidUTF8(t *testing.T) {
	eng := editor.New(40, 8)
	m := New(eng, &countingResponder{}, &recordingPlayer{})

	// "é" split across reads, followed by a stray continuation byte
	src := io.MultiReader(
		bytes.NewReader([]byte{'a', 0xc3}),
		bytes.NewReader([]byte{0xa9, 0x80, 'b', '\r', '\n'}),
	)
	require.NoError(t, m.Run(context.Background(), src))
	assert.Equal(t, "aéb\n", eng.Text())
}

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) { return 0, errors.New("cable unplugged") }

func TestRunReportsReadErrors(t *testing.T) {
	m := New(editor.New(40, 8), &countingResponder{}, &recordingPlayer{})
	err := m.Run(context.Background(), brokenReader{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cable unplugged")
}

func TestRunStopsQuietlyWhenCancelled(t *testing.T) {
	m := New(editor.New(40, 8), &countingResponder{}, &recordingPlayer{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, m.Run(ctx, brokenReader{}))
}
