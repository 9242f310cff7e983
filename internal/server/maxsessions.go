package server

import (
	"sync"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"

	"model100/internal/router"
)

// MaxSessionsMiddleware caps concurrently attached sessions. A slot is
// released when the handler returns or panics, or when the session context
// ends, whichever comes first.
func MaxSessionsMiddleware(limit int, logger *log.Logger) wish.Middleware {
	if limit <= 0 {
		limit = 1
	}
	if logger == nil {
		logger = log.Default()
	}
	slots := make(chan struct{}, limit)

	return func(next ssh.Handler) ssh.Handler {
		return func(s ssh.Session) {
			select {
			case slots <- struct{}{}:
			default:
				logger.Warn("session rejected", "event", "max_sessions_exceeded", "remote_ip", router.RemoteIP(s.RemoteAddr()), "limit", limit)
				_, _ = s.Write([]byte("max sessions exceeded\n"))
				return
			}

			var once sync.Once
			release := func() { once.Do(func() { <-slots }) }
			defer release()

			done := make(chan struct{})
			defer close(done)
			if ctx := s.Context(); ctx != nil {
				go func() {
					select {
					case <-ctx.Done():
						release()
					case <-done:
					}
				}()
			}

			defer func() {
				if r := recover(); r != nil {
					logger.Error("session handler panicked", "event", "session_panic", "panic", r)
				}
			}()
			next(s)
		}
	}
}
