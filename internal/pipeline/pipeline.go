// Package pipeline composes scoring, alerting and the guardrail.
//
// A score decides whether an alert is raised. Any explanatory text bound
// for an alert, whether typed by a clinician or produced by a generator,
// passes the guardrail first; the alert only ever stores the guardrail's
// output.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/medobsmind/obswatch/internal/alert"
	"github.com/medobsmind/obswatch/internal/guardrail"
	"github.com/medobsmind/obswatch/internal/metrics"
	"github.com/medobsmind/obswatch/internal/score"
	"github.com/medobsmind/obswatch/internal/vitals"
)

// Generator produces explanatory text for an alert. Confidence may be nil
// when the generator does not report one.
type Generator interface {
	Explain(ctx context.Context, a *alert.Alert, source *vitals.Snapshot) (text string, confidence *float64, err error)
}

// Options controls alert creation.
type Options struct {
	// MinSeverity is the lowest derived severity that raises an alert.
	MinSeverity alert.Severity
	// UseCOPDScale selects SpO2 scale 2 for every assessment.
	UseCOPDScale bool
}

// Assessment is the outcome of scoring one snapshot.
type Assessment struct {
	PatientID string
	Score     score.Result
	Severity  alert.Severity
	// Alert is nil when the severity is below the configured minimum.
	Alert *alert.Alert
}

// Pipeline is safe for concurrent use; it holds no per-alert state.
type Pipeline struct {
	guard   *guardrail.Engine
	opts    Options
	log     *zap.Logger
	metrics *metrics.Metrics
}

// New creates a Pipeline. log and m may be nil.
func New(guard *guardrail.Engine, opts Options, log *zap.Logger, m *metrics.Metrics) *Pipeline {
	if guard == nil {
		guard = guardrail.New(guardrail.DefaultThresholds())
	}
	if opts.MinSeverity == "" {
		opts.MinSeverity = alert.SevMedium
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{guard: guard, opts: opts, log: log, metrics: m}
}

// Assess scores a snapshot and raises an Active early-warning alert when the
// derived severity reaches the configured minimum. The alert is not stored.
func (p *Pipeline) Assess(patientID string, v vitals.Snapshot, useCOPDScale bool) Assessment {
	return p.AssessAt(patientID, v, useCOPDScale, time.Time{})
}

// AssessAt is Assess for an observation taken at observedAt; a raised alert
// is triggered at that time. A zero observedAt means now.
func (p *Pipeline) AssessAt(patientID string, v vitals.Snapshot, useCOPDScale bool, observedAt time.Time) Assessment {
	res := score.Calculate(v, useCOPDScale || p.opts.UseCOPDScale)
	sev := alert.SeverityForScore(res)
	p.metrics.RecordScore(string(res.Tier))

	as := Assessment{PatientID: patientID, Score: res, Severity: sev}

	p.log.Debug("scored observation",
		zap.String("patient_id", patientID),
		zap.Int("total", res.Total),
		zap.String("tier", string(res.Tier)),
		zap.String("severity", string(sev)),
		zap.Int("recorded", v.Recorded()),
	)

	if !sev.AtLeast(p.opts.MinSeverity) {
		return as
	}

	total := res.Total
	title := fmt.Sprintf("NEWS2 %d: %s risk", total, res.Tier)
	if res.Tier == score.TierLow && res.RedFlag() {
		title = fmt.Sprintf("NEWS2 %d: single parameter red flag", total)
	}
	as.Alert = alert.New(patientID, alert.TypeEarlyWarningScore, sev, title,
		score.Interpret(total), &total, res.Recommendations)
	if !observedAt.IsZero() {
		as.Alert.TriggeredAt = observedAt
	}
	p.metrics.RecordAlertCreated(string(sev))

	p.log.Info("alert raised",
		zap.String("alert_id", as.Alert.ID),
		zap.String("patient_id", patientID),
		zap.String("severity", string(sev)),
		zap.Int("score", total),
	)
	return as
}

// Raise creates an Active alert entered by a clinician. Type and severity
// are validated at this boundary; patient and title are required. The alert
// is not stored.
func (p *Pipeline) Raise(patientID, typ, sev, title, message string, recommendations []string) (*alert.Alert, error) {
	if strings.TrimSpace(patientID) == "" {
		return nil, fmt.Errorf("%w: patient_id is required", alert.ErrInvalidInput)
	}
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("%w: title is required", alert.ErrInvalidInput)
	}
	t, err := alert.ParseType(typ)
	if err != nil {
		return nil, err
	}
	s, err := alert.ParseSeverity(sev)
	if err != nil {
		return nil, err
	}

	a := alert.New(patientID, t, s, title, message, nil, recommendations)
	p.metrics.RecordAlertCreated(string(s))
	p.log.Info("alert raised manually",
		zap.String("alert_id", a.ID),
		zap.String("patient_id", patientID),
		zap.String("type", string(t)),
		zap.String("severity", string(s)),
	)
	return a, nil
}

// Check runs the guardrail and records the verdict.
func (p *Pipeline) Check(text string, source *vitals.Snapshot, confidence *float64) guardrail.Result {
	res := p.guard.Check(text, source, confidence)

	kinds := make([]string, len(res.Violations))
	for i, v := range res.Violations {
		kinds[i] = string(v)
	}
	p.metrics.RecordGuardrailCheck(res.Safe, kinds)

	if len(res.Violations) > 0 {
		p.log.Warn("guardrail violations",
			zap.Strings("violations", kinds),
			zap.Bool("safe", res.Safe),
			zap.String("confidence", string(res.Confidence)),
		)
	}
	return res
}

// Explain checks text and attaches the guardrail output to the alert. The
// alert never sees unchecked text. The only error is a rejected attachment
// on a resolved alert.
func (p *Pipeline) Explain(a *alert.Alert, text string, source *vitals.Snapshot, confidence *float64) (guardrail.Result, error) {
	res := p.Check(text, source, confidence)
	if err := a.AttachExplanation(res.Text(), res.RequiresReview || !res.Safe); err != nil {
		return res, err
	}
	p.metrics.RecordTransition("explain")
	return res, nil
}

// Generate asks gen for an explanation and attaches it through Explain. A
// generator failure degrades to the fallback text flagged for review.
func (p *Pipeline) Generate(ctx context.Context, gen Generator, a *alert.Alert, source *vitals.Snapshot) (guardrail.Result, error) {
	text, confidence, err := gen.Explain(ctx, a, source)
	if err != nil {
		p.log.Warn("explanation generator failed, using fallback",
			zap.String("alert_id", a.ID),
			zap.Error(err),
		)
		res := fallbackResult()
		if err := a.AttachExplanation(res.Text(), true); err != nil {
			return res, err
		}
		p.metrics.RecordTransition("explain")
		return res, nil
	}
	return p.Explain(a, text, source, confidence)
}

func fallbackResult() guardrail.Result {
	text := guardrail.FallbackText
	return guardrail.Result{
		Safe:           true,
		Sanitized:      &text,
		Confidence:     guardrail.ConfidenceLow,
		RequiresReview: true,
		Explanation:    "Explanation unavailable; fallback text used",
	}
}
