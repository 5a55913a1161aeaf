package pipeline

import (
	"go.uber.org/zap"

	"github.com/medobsmind/obswatch/internal/alert"
)

// Transitioner applies fn to a stored alert under a per-alert guard.
type Transitioner interface {
	Transition(id string, fn func(a *alert.Alert) error) (*alert.Alert, error)
}

// Lifecycle advances stored alerts on clinician action.
type Lifecycle struct {
	p  *Pipeline
	tr Transitioner
}

// Lifecycle binds the pipeline to the store that serializes transitions.
func (p *Pipeline) Lifecycle(tr Transitioner) *Lifecycle {
	return &Lifecycle{p: p, tr: tr}
}

// Acknowledge marks the alert as seen.
func (l *Lifecycle) Acknowledge(id, by, notes string) (*alert.Alert, error) {
	return l.apply("acknowledge", id, by, func(a *alert.Alert) error {
		return a.Acknowledge(by, notes)
	})
}

// Resolve closes the alert.
func (l *Lifecycle) Resolve(id, by, notes string, outcome alert.Outcome) (*alert.Alert, error) {
	return l.apply("resolve", id, by, func(a *alert.Alert) error {
		return a.Resolve(by, notes, outcome)
	})
}

// Escalate flags the alert for a higher level of care.
func (l *Lifecycle) Escalate(id, by, reason, to string) (*alert.Alert, error) {
	return l.apply("escalate", id, by, func(a *alert.Alert) error {
		return a.Escalate(by, reason, to)
	})
}

func (l *Lifecycle) apply(name, id, by string, fn func(a *alert.Alert) error) (*alert.Alert, error) {
	a, err := l.tr.Transition(id, fn)
	if err != nil {
		l.p.log.Warn("alert transition rejected",
			zap.String("transition", name),
			zap.String("alert_id", id),
			zap.String("by", by),
			zap.Error(err),
		)
		return nil, err
	}
	l.p.metrics.RecordTransition(name)
	l.p.log.Info("alert transition",
		zap.String("transition", name),
		zap.String("alert_id", id),
		zap.String("by", by),
		zap.String("status", string(a.Status)),
	)
	return a, nil
}
