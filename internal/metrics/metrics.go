// Package metrics exposes Prometheus instrumentation for call turns.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Turn paths recorded by RecordTurn.
const (
	PathGreeting = "greeting"
	PathRearm    = "rearm"
	PathReprompt = "reprompt"
	PathShortcut = "shortcut"
	PathAgent    = "agent"
	PathFallback = "fallback"
)

// Metrics holds all Prometheus metrics for the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	TurnsTotal      *prometheus.CounterVec
	TurnDuration    *prometheus.HistogramVec
	ToolCallsTotal  *prometheus.CounterVec
	AgentRounds     prometheus.Histogram
	RoundCapTotal   prometheus.Counter
	SessionsStarted prometheus.Counter
}

// New creates a Metrics instance on its own registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "voice_agent"
	}

	registry := prometheus.NewRegistry()

	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Call turns handled, by endpoint and answer path",
		},
		[]string{"endpoint", "path"},
	)

	turnDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Time spent producing a reply",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
		},
		[]string{"endpoint"},
	)

	toolCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations requested by the model",
		},
		[]string{"tool", "outcome"},
	)

	agentRounds := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_tool_rounds",
			Help:      "Tool rounds taken per model turn",
			Buckets:   []float64{0, 1, 2, 3, 4, 5},
		},
	)

	roundCapTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_round_cap_total",
			Help:      "Turns that hit the tool round cap",
		},
	)

	sessionsStarted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Sessions greeted for the first time",
		},
	)

	registry.MustRegister(
		turnsTotal,
		turnDuration,
		toolCallsTotal,
		agentRounds,
		roundCapTotal,
		sessionsStarted,
	)

	return &Metrics{
		registry:        registry,
		TurnsTotal:      turnsTotal,
		TurnDuration:    turnDuration,
		ToolCallsTotal:  toolCallsTotal,
		AgentRounds:     agentRounds,
		RoundCapTotal:   roundCapTotal,
		SessionsStarted: sessionsStarted,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordTurn records one completed turn.
func (m *Metrics) RecordTurn(endpoint, path string, duration time.Duration) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(endpoint, path).Inc()
	m.TurnDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordSessionStart counts a newly greeted session.
func (m *Metrics) RecordSessionStart() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
}

// ObserveToolCall records a tool invocation outcome.
func (m *Metrics) ObserveToolCall(tool, outcome string) {
	if m == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(tool, outcome).Inc()
}

// ObserveRounds records how many tool rounds a model turn used.
func (m *Metrics) ObserveRounds(rounds int, capped bool) {
	if m == nil {
		return
	}
	m.AgentRounds.Observe(float64(rounds))
	if capped {
		m.RoundCapTotal.Inc()
	}
}
