// Package server runs the SSH remote console: each session attaches a
// terminal view to the shared edit engine.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/activeterm"
	bm "github.com/charmbracelet/wish/bubbletea"
	"github.com/charmbracelet/wish/logging"

	"model100/internal/config"
	"model100/internal/router"
)

// DefaultChain lists the console middleware outermost-first.
func DefaultChain(cfg config.SSH, console bm.Handler, logger *log.Logger) []router.Descriptor {
	return []router.Descriptor{
		{Name: "logging", Middleware: logging.MiddlewareWithLogger(logger)},
		{Name: "rate-limit", Middleware: RateLimitMiddleware(cfg.RateLimitPerSecond, cfg.RateLimitPerSecond, logger)},
		{Name: "max-sessions", Middleware: MaxSessionsMiddleware(cfg.MaxSessions, logger)},
		{Name: "active-terminal", Middleware: activeterm.Middleware()},
		{Name: "session-metadata", Middleware: router.SessionMetadata()},
		{Name: "console", Middleware: bm.Middleware(console)},
	}
}

// Runtime wires config + middleware + Wish server as a testable unit.
type Runtime struct {
	cfg           config.SSH
	middlewareIDs []string
	server        *ssh.Server
	logger        *log.Logger
}

func New(cfg config.SSH, chain []router.Descriptor, logger *log.Logger) (*Runtime, error) {
	if logger == nil {
		logger = log.Default()
	}
	address := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	srv, err := wish.NewServer(
		wish.WithAddress(address),
		wish.WithHostKeyPath(cfg.HostKeyPath),
		wish.WithIdleTimeout(cfg.IdleTimeout),
		wish.WithMiddleware(router.MiddlewareFromDescriptors(chain)...),
	)
	if err != nil {
		return nil, fmt.Errorf("create ssh server: %w", err)
	}

	return &Runtime{cfg: cfg, middlewareIDs: router.Names(chain), server: srv, logger: logger}, nil
}

func (r *Runtime) MiddlewareIDs() []string {
	out := make([]string, len(r.middlewareIDs))
	copy(out, r.middlewareIDs)
	return out
}

func (r *Runtime) Address() string {
	return r.server.Addr
}

// Run serves until ctx is cancelled.
func (r *Runtime) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = r.server.Shutdown(context.Background())
	}()

	r.logger.Info("ssh console listening", "event", "ssh_startup", "addr", r.server.Addr, "middleware", r.middlewareIDs, "host_key_path", r.cfg.HostKeyPath, "idle_timeout", r.cfg.IdleTimeout, "max_sessions", r.cfg.MaxSessions)
	err := r.server.ListenAndServe()
	if err == nil || errors.Is(err, ssh.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("ssh console: %w", err)
}
