package server

import (
	"context"
	"io"
	"net"
	"sync"

	"github.com/charmbracelet/ssh"
)

type fakeContext struct {
	context.Context
	mu     sync.Mutex
	values map[any]any
	remote net.Addr
}

func newFakeContext(ctx context.Context, remote net.Addr) *fakeContext {
	return &fakeContext{Context: ctx, values: map[any]any{}, remote: remote}
}

func (f *fakeContext) Lock()                         { f.mu.Lock() }
func (f *fakeContext) Unlock()                       { f.mu.Unlock() }
func (f *fakeContext) User() string                  { return "guest" }
func (f *fakeContext) SessionID() string             { return "test-session" }
func (f *fakeContext) ClientVersion() string         { return "ssh-test-client" }
func (f *fakeContext) ServerVersion() string         { return "ssh-test-server" }
func (f *fakeContext) RemoteAddr() net.Addr          { return f.remote }
func (f *fakeContext) LocalAddr() net.Addr           { return &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 2222} }
func (f *fakeContext) Permissions() *ssh.Permissions { return &ssh.Permissions{} }
func (f *fakeContext) SetValue(key, value interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
}
func (f *fakeContext) Value(key interface{}) interface{} {
	f.mu.Lock()
	v, ok := f.values[key]
	f.mu.Unlock()
	if ok {
		return v
	}
	return f.Context.Value(key)
}

// fakeSession covers what the middleware and console handler use. Other
// ssh.Session methods hit the nil embedded interface.
type fakeSession struct {
	ssh.Session
	ctx    *fakeContext
	remote net.Addr
	term   string

	mu     sync.Mutex
	writes []string
}

func newFakeSession(ctx context.Context, ip string) *fakeSession {
	remote := &net.TCPAddr{IP: net.ParseIP(ip), Port: 50022}
	return &fakeSession{ctx: newFakeContext(ctx, remote), remote: remote, term: "xterm-256color"}
}

func (f *fakeSession) Read([]byte) (int, error) { return 0, io.EOF }
func (f *fakeSession) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, string(p))
	return len(p), nil
}
func (f *fakeSession) User() string         { return "guest" }
func (f *fakeSession) RemoteAddr() net.Addr { return f.remote }
func (f *fakeSession) Context() ssh.Context { return f.ctx }
func (f *fakeSession) Environ() []string    { return nil }
func (f *fakeSession) Pty() (ssh.Pty, <-chan ssh.Window, bool) {
	return ssh.Pty{Term: f.term, Window: ssh.Window{Width: 80, Height: 24}}, nil, f.term != ""
}

func (f *fakeSession) Writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}
