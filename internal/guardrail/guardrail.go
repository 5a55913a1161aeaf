// Package guardrail checks free-text clinical explanations before they are
// shown to staff.
//
// Rules run first and always in the same order: pattern scan, confidence
// gate, hallucination heuristic, sanitization, disclaimer, confidence
// classification. The engine is stateless; its compiled tables are read-only
// and shared, so one Engine may serve any number of goroutines.
package guardrail

import (
	"fmt"
	"math"
	"strings"

	"github.com/medobsmind/obswatch/internal/vitals"
)

// Violation identifies a kind of unsafe output.
type Violation string

const (
	Prescription      Violation = "prescription"
	Diagnosis         Violation = "diagnosis"
	OverrideAlert     Violation = "override_alert"
	AbsoluteCertainty Violation = "absolute_certainty"
	BypassClinician   Violation = "bypass_clinician"
	Hallucination     Violation = "hallucination"
	LowConfidence     Violation = "low_confidence"
)

// Confidence is the coarse confidence classification of a checked text.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

const (
	// FallbackText replaces any text that cannot be shown.
	FallbackText = "Clinical assessment required. Please review patient data with attending clinician."
	// ReviewReminder is appended when no review phrase is present.
	ReviewReminder = "Clinician review required for all clinical decisions."
)

// Thresholds configures the confidence gate. Scores below Low are flagged;
// High only affects classification.
type Thresholds struct {
	Low  float64
	High float64
}

// DefaultThresholds returns the standard 0.60 / 0.85 thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{Low: 0.60, High: 0.85}
}

// Result is the verdict for one checked text.
type Result struct {
	Safe       bool
	Violations []Violation
	// Sanitized is the text to display, set only when Safe.
	Sanitized      *string
	Confidence     Confidence
	RequiresReview bool
	Explanation    string
}

// Text returns the displayable text: the sanitized text when safe,
// FallbackText otherwise. It never returns an empty string.
func (r Result) Text() string {
	if r.Safe && r.Sanitized != nil {
		return *r.Sanitized
	}
	return FallbackText
}

// Has reports whether the result carries the given violation.
func (r Result) Has(v Violation) bool {
	for _, got := range r.Violations {
		if got == v {
			return true
		}
	}
	return false
}

// Engine runs guardrail checks.
type Engine struct {
	thresholds Thresholds
}

// New creates an Engine. The zero Thresholds value selects the defaults; any
// other value is used as given, so a Low of 0 flags only negative or
// non-finite scores.
func New(t Thresholds) *Engine {
	if t == (Thresholds{}) {
		t = DefaultThresholds()
	}
	return &Engine{thresholds: t}
}

// Thresholds returns the thresholds in effect.
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

// Check classifies text. source, when non-nil, enables the hallucination
// heuristic; confidence, when non-nil, enables the confidence gate.
func (e *Engine) Check(text string, source *vitals.Snapshot, confidence *float64) Result {
	var violations []Violation
	requiresReview := false

	// 1. Pattern scan.
	for _, r := range rules {
		if r.re.MatchString(text) {
			violations = appendUnique(violations, r.kind)
		}
	}

	// 2. Confidence gate. A non-finite score counts as below the threshold.
	if confidence != nil && !e.confident(*confidence) {
		violations = appendUnique(violations, LowConfidence)
		requiresReview = true
	}

	// 3. Hallucination heuristic.
	if source != nil && mentionsAbsentVital(text, source) {
		violations = appendUnique(violations, Hallucination)
		requiresReview = true
	}

	// 4. Sanitization.
	out := text
	for _, v := range violations {
		if blocking[v] {
			out = FallbackText
			break
		}
	}

	// 5. Disclaimer.
	if !hasReviewPhrase(out) {
		out += "\n\n" + ReviewReminder
	}

	safe := true
	for _, v := range violations {
		if v != LowConfidence {
			safe = false
			break
		}
	}

	res := Result{
		Safe:           safe,
		Violations:     violations,
		Confidence:     e.classify(text, confidence, len(violations) > 0),
		RequiresReview: requiresReview,
	}
	if safe {
		res.Sanitized = &out
	}
	res.Explanation = explain(violations, res.Confidence)
	return res
}

func (e *Engine) confident(c float64) bool {
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return false
	}
	return c >= e.thresholds.Low
}

// classify implements the confidence heuristic. Counting hedges can yield
// medium at most; only violations or a low numeric score yield low.
func (e *Engine) classify(text string, confidence *float64, hasViolations bool) Confidence {
	if hasViolations {
		return ConfidenceLow
	}
	if confidence != nil {
		switch {
		case *confidence >= e.thresholds.High:
			return ConfidenceHigh
		case *confidence >= e.thresholds.Low:
			return ConfidenceMedium
		default:
			return ConfidenceLow
		}
	}
	if countHedges(text) > 0 {
		return ConfidenceMedium
	}
	return ConfidenceHigh
}

func mentionsAbsentVital(text string, source *vitals.Snapshot) bool {
	lower := strings.ToLower(text)
	for _, m := range vitalMentions {
		if strings.Contains(lower, m.name) && !m.present(source) {
			return true
		}
	}
	return false
}

func hasReviewPhrase(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range reviewPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func countHedges(text string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, m := range hedgeMarkers {
		if strings.Contains(lower, m) {
			n++
		}
	}
	return n
}

func appendUnique(vs []Violation, v Violation) []Violation {
	for _, got := range vs {
		if got == v {
			return vs
		}
	}
	return append(vs, v)
}

func explain(violations []Violation, c Confidence) string {
	if len(violations) == 0 {
		return fmt.Sprintf("Output passed safety checks (confidence: %s)", c)
	}
	msgs := make([]string, 0, len(violations))
	for _, v := range violations {
		if m, ok := violationMessages[v]; ok {
			msgs = append(msgs, m)
		} else {
			msgs = append(msgs, string(v))
		}
	}
	return "Safety violations: " + strings.Join(msgs, ", ")
}

// ParseViolation validates a violation kind name.
func ParseViolation(s string) (Violation, bool) {
	v := Violation(strings.ToLower(strings.TrimSpace(s)))
	_, ok := violationMessages[v]
	return v, ok
}
