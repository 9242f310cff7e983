// Package responder turns a completed assistant-mode line into a reply.
package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyReply is returned when the assistant answered with no text.
	ErrEmptyReply = errors.New("assistant returned an empty reply")
	// ErrNotConfigured is returned by the chat client when no API key is set.
	ErrNotConfigured = errors.New("assistant is not configured")
)

// Responder answers one line of text.
type Responder interface {
	Respond(ctx context.Context, request string) (string, error)
}

// Func adapts a plain function to Responder.
type Func func(ctx context.Context, request string) (string, error)

func (f Func) Respond(ctx context.Context, request string) (string, error) { return f(ctx, request) }

// Echo answers every request locally with prefix and the trimmed request.
// The entrypoint uses it when no API key is set and the echo fallback is on.
func Echo(prefix string) Responder {
	return Func(func(ctx context.Context, request string) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return prefix + strings.TrimSpace(request), nil
	})
}

// FriendlyError carries a stable code for logs and metrics alongside a short
// human-readable message.
type FriendlyError struct {
	Code    string
	Message string
	Cause   error
}

func (e *FriendlyError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *FriendlyError) Unwrap() error { return e.Cause }

// Code classifies a Respond error into a short metrics label. A nil error is
// "ok".
func Code(err error) string {
	if err == nil {
		return "ok"
	}
	var friendly *FriendlyError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrEmptyReply):
		return "empty"
	case errors.Is(err, ErrNotConfigured):
		return "not_configured"
	case errors.As(err, &friendly):
		return strings.ToLower(friendly.Code)
	default:
		return "error"
	}
}
