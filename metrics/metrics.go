// Package metrics exposes Prometheus instrumentation for the tracker service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "behavior_tracker"

// Flush results used as the result label.
const (
	FlushOK      = "ok"
	FlushError   = "error"
	FlushSkipped = "skipped"
)

// Metrics holds the tracker's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	SessionsStarted    prometheus.Counter
	SessionsLive       prometheus.Gauge
	Flushes            *prometheus.CounterVec
	GoalsFired         prometheus.Counter
	GoalReportFailures prometheus.Counter
	RuleEvaluations    prometheus.Counter

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total tracked sessions started",
		}),
		SessionsLive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_live",
			Help:      "Sessions currently held in memory",
		}),
		Flushes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushes_total",
			Help:      "Session snapshot flushes by result (ok, error, skipped)",
		}, []string{"result"}),
		GoalsFired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "goals_fired_total",
			Help:      "Classification goals reached",
		}),
		GoalReportFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "goal_report_failures_total",
			Help:      "Goal notifications the reporter failed to deliver",
		}),
		RuleEvaluations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_evaluations_total",
			Help:      "Classification rule checks performed",
		}),
		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
	m.SessionsLive.Inc()
}

func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.SessionsLive.Dec()
}

func (m *Metrics) Flush(result string) {
	if m == nil {
		return
	}
	m.Flushes.WithLabelValues(result).Inc()
}

func (m *Metrics) GoalFired() {
	if m == nil {
		return
	}
	m.GoalsFired.Inc()
}

func (m *Metrics) GoalReportFailed() {
	if m == nil {
		return
	}
	m.GoalReportFailures.Inc()
}

func (m *Metrics) RuleEvaluated() {
	if m == nil {
		return
	}
	m.RuleEvaluations.Inc()
}
