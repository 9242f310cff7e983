// Package router assembles the SSH middleware chain from named stages.
package router

import (
	"net"
	"time"

	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
)

type contextKey string

const metadataKey contextKey = "model100.session"

// Descriptor names one middleware stage so the chain can be logged and
// asserted on.
type Descriptor struct {
	Name       string
	Middleware wish.Middleware
}

// MiddlewareFromDescriptors converts a chain listed outermost-first into
// the order wish.WithMiddleware expects, where the last entry runs first.
func MiddlewareFromDescriptors(chain []Descriptor) []wish.Middleware {
	out := make([]wish.Middleware, 0, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		if chain[i].Middleware != nil {
			out = append(out, chain[i].Middleware)
		}
	}
	return out
}

// Names lists the stage names in execution order.
func Names(chain []Descriptor) []string {
	out := make([]string, 0, len(chain))
	for _, d := range chain {
		out = append(out, d.Name)
	}
	return out
}

// Metadata is what downstream stages know about a session.
type Metadata struct {
	SessionID string
	User      string
	RemoteIP  string
	Term      string
	Started   time.Time
}

// SessionMetadata records Metadata on the session context.
func SessionMetadata() wish.Middleware {
	return func(next ssh.Handler) ssh.Handler {
		return func(s ssh.Session) {
			ctx := s.Context()
			if ctx == nil {
				next(s)
				return
			}
			md := Metadata{
				SessionID: ctx.SessionID(),
				User:      s.User(),
				RemoteIP:  RemoteIP(s.RemoteAddr()),
				Started:   time.Now().UTC(),
			}
			if pty, _, ok := s.Pty(); ok {
				md.Term = pty.Term
			}
			ctx.SetValue(metadataKey, md)
			next(s)
		}
	}
}

// MetadataFrom returns the metadata stored by SessionMetadata.
func MetadataFrom(ctx ssh.Context) (Metadata, bool) {
	if ctx == nil {
		return Metadata{}, false
	}
	md, ok := ctx.Value(metadataKey).(Metadata)
	return md, ok
}

// RemoteIP strips the port from addr.
func RemoteIP(remote net.Addr) string {
	if remote == nil {
		return "unknown"
	}

	host, _, err := net.SplitHostPort(remote.String())
	if err != nil {
		return remote.String()
	}

	if host == "" {
		return "unknown"
	}
	return host
}
