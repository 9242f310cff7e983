// Package metrics exposes Prometheus collectors for the terminal runtime.
//
// A nil *Metrics is valid and records nothing, so components can take an
// optional metrics handle without branching at every call site.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "model100"

// Metrics groups every collector the runtime updates.
type Metrics struct {
	bytesIn          prometheus.Counter
	bytesOut         prometheus.Counter
	linesDispatched  *prometheus.CounterVec
	modeTransitions  *prometheus.CounterVec
	assistantMode    prometheus.Gauge
	responderCalls   *prometheus.CounterVec
	responderLatency prometheus.Histogram
	playbackActive   prometheus.Gauge
	consoleSessions  prometheus.Gauge
}

// New builds the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		bytesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "serial_bytes_received_total",
			Help:      "Bytes read from the serial link.",
		}),
		bytesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "serial_bytes_sent_total",
			Help:      "Bytes echoed to the serial link.",
		}),
		linesDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "serial_lines_total",
			Help:      "Completed inbound lines by dispatch outcome.",
		}, []string{"outcome"}),
		modeTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mode_transitions_total",
			Help:      "Mode token transitions by target mode.",
		}, []string{"mode"}),
		assistantMode: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "assistant_mode",
			Help:      "1 while the serial session is in assistant mode.",
		}),
		responderCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responder_requests_total",
			Help:      "Assistant requests by result code.",
		}, []string{"result"}),
		responderLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "responder_request_seconds",
			Help:      "Assistant request latency.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
		}),
		playbackActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "playback_active",
			Help:      "Reply playbacks currently in progress.",
		}),
		consoleSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "console_sessions_active",
			Help:      "Attached SSH console sessions.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.bytesIn, m.bytesOut, m.linesDispatched, m.modeTransitions, m.assistantMode,
			m.responderCalls, m.responderLatency, m.playbackActive, m.consoleSessions,
		)
	}
	return m
}

func (m *Metrics) AddBytesIn(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesIn.Add(float64(n))
}

func (m *Metrics) AddBytesOut(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesOut.Add(float64(n))
}

// LineDispatched counts a completed inbound line. outcome is one of
// "enter", "exit", "assistant" or "plain".
func (m *Metrics) LineDispatched(outcome string) {
	if m == nil {
		return
	}
	m.linesDispatched.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ModeChanged(mode string, assistant bool) {
	if m == nil {
		return
	}
	m.modeTransitions.WithLabelValues(mode).Inc()
	if assistant {
		m.assistantMode.Set(1)
	} else {
		m.assistantMode.Set(0)
	}
}

// ResponderDone records one finished assistant request.
func (m *Metrics) ResponderDone(result string, seconds float64) {
	if m == nil {
		return
	}
	m.responderCalls.WithLabelValues(result).Inc()
	m.responderLatency.Observe(seconds)
}

func (m *Metrics) PlaybackStarted() {
	if m == nil {
		return
	}
	m.playbackActive.Inc()
}

func (m *Metrics) PlaybackFinished() {
	if m == nil {
		return
	}
	m.playbackActive.Dec()
}

func (m *Metrics) ConsoleAttached() {
	if m == nil {
		return
	}
	m.consoleSessions.Inc()
}

func (m *Metrics) ConsoleDetached() {
	if m == nil {
		return
	}
	m.consoleSessions.Dec()
}
