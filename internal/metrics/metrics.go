// Package metrics exposes Prometheus counters for scoring, alerting and
// guardrail activity.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the obswatch collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	reg *prometheus.Registry

	scoresTotal        *prometheus.CounterVec
	alertsCreated      *prometheus.CounterVec
	alertTransitions   *prometheus.CounterVec
	guardrailChecks    *prometheus.CounterVec
	guardrailViolation *prometheus.CounterVec
	notifications      *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		reg: reg,
		scoresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "obswatch_scores_total",
				Help: "Total number of NEWS2 scores calculated",
			},
			[]string{"tier"},
		),
		alertsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "obswatch_alerts_created_total",
				Help: "Total number of alerts created",
			},
			[]string{"severity"},
		),
		alertTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "obswatch_alert_transitions_total",
				Help: "Total number of alert lifecycle transitions",
			},
			[]string{"transition"},
		),
		guardrailChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "obswatch_guardrail_checks_total",
				Help: "Total number of guardrail checks",
			},
			[]string{"safe"},
		),
		guardrailViolation: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "obswatch_guardrail_violations_total",
				Help: "Total number of guardrail violations by kind",
			},
			[]string{"kind"},
		),
		notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "obswatch_notifications_total",
				Help: "Total number of alert notifications by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// RecordScore records a calculated score by tier.
func (m *Metrics) RecordScore(tier string) {
	if m == nil {
		return
	}
	m.scoresTotal.WithLabelValues(tier).Inc()
}

// RecordAlertCreated records an alert creation by severity.
func (m *Metrics) RecordAlertCreated(severity string) {
	if m == nil {
		return
	}
	m.alertsCreated.WithLabelValues(severity).Inc()
}

// RecordTransition records an alert transition (acknowledge, resolve,
// escalate, explain).
func (m *Metrics) RecordTransition(transition string) {
	if m == nil {
		return
	}
	m.alertTransitions.WithLabelValues(transition).Inc()
}

// RecordGuardrailCheck records a guardrail verdict and its violation kinds.
func (m *Metrics) RecordGuardrailCheck(safe bool, kinds []string) {
	if m == nil {
		return
	}
	m.guardrailChecks.WithLabelValues(strconv.FormatBool(safe)).Inc()
	for _, k := range kinds {
		m.guardrailViolation.WithLabelValues(k).Inc()
	}
}

// RecordNotification records a notification outcome: sent, suppressed or
// failed.
func (m *Metrics) RecordNotification(outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(outcome).Inc()
}
