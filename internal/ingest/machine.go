// Package ingest interprets the inbound serial stream.
//
// Every decoded character is shown live on the terminal as it arrives.
// Completed lines are then checked for the mode tokens and, in assistant
// mode, handed to a Responder whose reply is played back through the
// playback package. The responder runs on its own goroutine so the serial
// reader is never starved while a reply is pending.
package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"model100/internal/editor"
	"model100/internal/metrics"
	"model100/internal/playback"
	"model100/internal/responder"
)

// Editor is the part of the edit engine the machine drives.
type Editor interface {
	InsertText(s string)
	Emit(display, echo string)
}

// Player starts reply playback.
type Player interface {
	Play(text string, delay time.Duration) *playback.Task
}

// Machine holds the per-session protocol state: the current mode and the
// not-yet-dispatched line.
type Machine struct {
	proto     Protocol
	editor    Editor
	responder responder.Responder
	player    Player
	logger    *log.Logger
	metrics   *metrics.Metrics

	mu      sync.Mutex
	mode    Mode
	pending strings.Builder

	inflight sync.WaitGroup
}

type Option func(*Machine)

func WithProtocol(p Protocol) Option {
	return func(m *Machine) { m.proto = p }
}

func WithLogger(l *log.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Machine) { m.metrics = mt }
}

func New(ed Editor, resp responder.Responder, player Player, opts ...Option) *Machine {
	m := &Machine{
		proto:     DefaultProtocol(),
		editor:    ed,
		responder: resp,
		player:    player,
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.proto = m.proto.withDefaults()
	return m
}

// Mode returns the current dispatch mode.
func (m *Machine) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Pending returns the buffered text of the line in progress.
func (m *Machine) Pending() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending.String()
}

// Run consumes src until it ends or fails. End of stream, a closed port and
// a cancelled ctx all count as a clean stop. Callers unblock a pending read
// by closing the underlying port.
func (m *Machine) Run(ctx context.Context, src io.Reader) error {
	rd := bufio.NewReader(NewDecoder(countingReader{r: src, add: m.metrics.AddBytesIn}))
	m.logger.Info("serial ingestion started", "event", "ingest_started")
	for {
		r, _, err := rd.ReadRune()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				m.logger.Info("serial ingestion stopped", "event", "ingest_stopped", "reason", err)
				return nil
			}
			m.logger.Error("serial read failed", "event", "ingest_read_failed", "err", err)
			return fmt.Errorf("read serial: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}
		m.Feed(ctx, r)
	}
}

// FeedString feeds every rune of s.
func (m *Machine) FeedString(ctx context.Context, s string) {
	for _, r := range s {
		m.Feed(ctx, r)
	}
}

// Feed processes one decoded character.
func (m *Machine) Feed(ctx context.Context, r rune) {
	if r == '\r' {
		return
	}
	m.editor.InsertText(string(r))

	m.mu.Lock()
	m.pending.WriteRune(r)
	if r != '\n' {
		m.mu.Unlock()
		return
	}
	line := m.pending.String()
	m.pending.Reset()

	var (
		status   string
		request  string
		dispatch bool
	)
	switch {
	case strings.Contains(line, m.proto.EnterToken):
		m.mode = ModeAssistant
		status = m.proto.EnterMessage
		m.metrics.ModeChanged(ModeAssistant.String(), true)
		m.metrics.LineDispatched("enter")
	case strings.Contains(line, m.proto.ExitToken):
		m.mode = ModeNormal
		status = m.proto.ExitMessage
		m.metrics.ModeChanged(ModeNormal.String(), false)
		m.metrics.LineDispatched("exit")
	case m.mode == ModeAssistant:
		// Blank lines are still sent; the line feed alone makes the line.
		request = strings.TrimSuffix(line, "\n")
		dispatch = true
		status = m.proto.WaitMessage
		m.metrics.LineDispatched("assistant")
	default:
		m.metrics.LineDispatched("plain")
	}
	mode := m.mode
	m.mu.Unlock()

	if status != "" {
		m.logger.Info("serial line dispatched", "event", "ingest_line", "mode", mode, "status", status)
		m.editor.Emit(status+"\n", status+editor.CRLF)
	}
	if dispatch {
		m.dispatch(ctx, request)
	}
}

// Wait blocks until every in-flight responder call has finished.
func (m *Machine) Wait() {
	m.inflight.Wait()
}

func (m *Machine) dispatch(ctx context.Context, request string) {
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()

		callCtx, cancel := context.WithTimeout(ctx, m.proto.ResponderTimeout)
		defer cancel()

		started := time.Now()
		reply, err := m.responder.Respond(callCtx, request)
		if err == nil && strings.TrimSpace(reply) == "" {
			err = responder.ErrEmptyReply
		}
		code := responder.Code(err)
		m.metrics.ResponderDone(code, time.Since(started).Seconds())

		if ctx.Err() != nil {
			m.logger.Debug("responder result discarded", "event", "responder_discarded", "reason", ctx.Err())
			return
		}
		if err != nil {
			m.logger.Warn("responder failed", "event", "responder_failed", "code", code, "err", err)
			reply = m.proto.ErrorReply
		} else {
			m.logger.Info("responder replied", "event", "responder_replied", "runes", len([]rune(reply)), "duration_ms", time.Since(started).Milliseconds())
		}
		m.player.Play(strings.TrimRight(reply, "\r\n"), m.proto.PlaybackDelay)
	}()
}
