// Package playback reveals a reply one character at a time.
//
// Each Play call runs on its own goroutine and returns a Task handle that can
// be stopped at any point; a stopped task simply emits nothing further.
// Playback never holds the editor between steps, so live typing and serial
// input interleave freely with it at character granularity.
package playback

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"model100/internal/editor"
	"model100/internal/metrics"
)

// Sink receives one playback step: display goes into the buffer, echo goes
// to the outbound stream. *editor.Engine satisfies it.
type Sink interface {
	Emit(display, echo string)
}

// Clock schedules the gap between steps.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Player starts and tracks playback tasks.
type Player struct {
	sink    Sink
	clock   Clock
	logger  *log.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	tasks   map[*Task]struct{}
	stopped bool
	wg      sync.WaitGroup
}

type Option func(*Player)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c Clock) Option {
	return func(p *Player) { p.clock = c }
}

func WithLogger(l *log.Logger) Option {
	return func(p *Player) { p.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Player) { p.metrics = m }
}

func NewPlayer(sink Sink, opts ...Option) *Player {
	p := &Player{
		sink:   sink,
		clock:  realClock{},
		logger: log.Default(),
		tasks:  map[*Task]struct{}{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Task is a handle on one running playback.
type Task struct {
	cancel    context.CancelFunc
	done      chan struct{}
	completed bool
}

// Stop abandons the playback. It does not wait for the goroutine to exit;
// use Done for that.
func (t *Task) Stop() { t.cancel() }

// Done is closed once the task has stopped emitting.
func (t *Task) Done() <-chan struct{} { return t.done }

// Completed reports whether every step, including the closing line break,
// was emitted. Only meaningful after Done is closed.
func (t *Task) Completed() bool {
	<-t.done
	return t.completed
}

// Play emits text one rune per step with delay between steps, then a
// closing line break. Line feeds in text echo as CR LF and carriage returns
// are dropped. After StopAll, Play emits nothing and returns a finished Task.
func (p *Player) Play(text string, delay time.Duration) *Task {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Task{cancel: cancel, done: make(chan struct{})}

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		cancel()
		close(t.done)
		return t
	}
	p.tasks[t] = struct{}{}
	p.wg.Add(1)
	p.mu.Unlock()

	p.metrics.PlaybackStarted()
	go p.run(ctx, t, []rune(text), delay)
	return t
}

// StopAll abandons every running task, refuses new ones and waits for the
// running ones to exit.
func (p *Player) StopAll() {
	p.mu.Lock()
	p.stopped = true
	for t := range p.tasks {
		t.Stop()
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Active returns the number of tasks still running.
func (p *Player) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}

func (p *Player) run(ctx context.Context, t *Task, runes []rune, delay time.Duration) {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		delete(p.tasks, t)
		p.mu.Unlock()
		p.metrics.PlaybackFinished()
		t.cancel()
		close(t.done)
	}()

	emitted := 0
	for _, r := range runes {
		if r == '\r' {
			continue
		}
		if emitted > 0 && !p.sleep(ctx, delay) {
			p.logger.Debug("playback stopped", "event", "playback_stopped", "emitted", emitted, "length", len(runes))
			return
		}
		if ctx.Err() != nil {
			return
		}
		if r == '\n' {
			p.sink.Emit("\n", editor.CRLF)
		} else {
			p.sink.Emit(string(r), string(r))
		}
		emitted++
	}

	if emitted > 0 && !p.sleep(ctx, delay) {
		return
	}
	if ctx.Err() != nil {
		return
	}
	p.sink.Emit("\n", editor.CRLF)
	t.completed = true
}

func (p *Player) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-p.clock.After(d):
		return true
	}
}
