// Package metrics exposes Prometheus collectors for turns, routing decisions,
// UI events and interrupts. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/routemesh/core"
)

// Namespace prefixes every metric name.
const Namespace = "routemesh"

// Turn outcomes.
const (
	OutcomeCompleted   = "completed"
	OutcomeInterrupted = "interrupted"
	OutcomeFailed      = "failed"
)

// Metrics bundles the collectors.
type Metrics struct {
	Turns          *prometheus.CounterVec
	TurnDuration   *prometheus.HistogramVec
	RouteDecisions *prometheus.CounterVec
	UIEvents       *prometheus.CounterVec
	Resumes        *prometheus.CounterVec
	InFlight       prometheus.Gauge
}

// New creates the collectors and registers them on reg. A nil reg leaves
// them unregistered, which is convenient in tests.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "turns_total",
			Help:      "Turns processed, by route and outcome.",
		}, []string{"route", "outcome"}),
		TurnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "turn_duration_seconds",
			Help:      "Wall time of a turn, by route.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"route"}),
		RouteDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "route_decisions_total",
			Help:      "Routing decisions, by route and whether the router fell back.",
		}, []string{"route", "fallback"}),
		UIEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ui_events_total",
			Help:      "UI events emitted, by component and mode.",
		}, []string{"component", "mode"}),
		Resumes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "resumes_total",
			Help:      "Interrupt resumptions, by workflow and action.",
		}, []string{"workflow", "action"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "turns_in_flight",
			Help:      "Turns currently running.",
		}),
	}

	if reg == nil {
		return m, nil
	}

	for _, c := range []prometheus.Collector{m.Turns, m.TurnDuration, m.RouteDecisions, m.UIEvents, m.Resumes, m.InFlight} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// TurnStarted marks a turn as running and returns the function that ends it.
func (m *Metrics) TurnStarted() func() {
	if m == nil {
		return func() {}
	}

	m.InFlight.Inc()

	return m.InFlight.Dec
}

// ObserveTurn records a finished turn.
func (m *Metrics) ObserveTurn(route, outcome string, d time.Duration) {
	if m == nil {
		return
	}

	m.Turns.WithLabelValues(route, outcome).Inc()
	m.TurnDuration.WithLabelValues(route).Observe(d.Seconds())
}

// ObserveDecision records a routing decision.
func (m *Metrics) ObserveDecision(route string, fallback bool) {
	if m == nil {
		return
	}

	fb := "false"
	if fallback {
		fb = "true"
	}

	m.RouteDecisions.WithLabelValues(route, fb).Inc()
}

// ObserveUIEvents counts events by component.
func (m *Metrics) ObserveUIEvents(events []core.UIEvent) {
	if m == nil {
		return
	}

	for _, ev := range events {
		m.UIEvents.WithLabelValues(ev.ComponentKey, string(ev.Mode)).Inc()
	}
}

// ObserveResume records an interrupt resumption.
func (m *Metrics) ObserveResume(workflow, action string) {
	if m == nil {
		return
	}

	m.Resumes.WithLabelValues(workflow, action).Inc()
}
