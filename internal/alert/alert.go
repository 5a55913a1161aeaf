// Package alert defines the clinical alert entity and its lifecycle.
//
// An alert starts Active, may be Acknowledged, and ends Resolved. Escalation
// is a flag orthogonal to status. Nothing may change after resolution.
package alert

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidTransition is returned when a transition is attempted on a
	// resolved alert. The alert is left unchanged.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrInvalidInput is returned for unknown enum values and missing
	// mandatory fields supplied by a caller.
	ErrInvalidInput = errors.New("invalid input")
)

// Status is the lifecycle state of an alert.
type Status string

const (
	StatusActive       Status = "active"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
)

// Type classifies what raised the alert.
type Type string

const (
	TypeEarlyWarningScore   Type = "early_warning_score"
	TypeVitalSignAbnormal   Type = "vital_sign_abnormality"
	TypeClinicalObservation Type = "clinical_observation"
	TypeDeterioration       Type = "deterioration"
)

// Outcome is the advisory classification recorded at resolution.
type Outcome string

const (
	OutcomeNone                 Outcome = ""
	OutcomeTruePositive         Outcome = "true_positive"
	OutcomeFalsePositive        Outcome = "false_positive"
	OutcomeClinicalIntervention Outcome = "clinical_intervention"
	OutcomeSelfResolved         Outcome = "self_resolved"
)

// Acknowledgment holds the notes left when an alert was acknowledged.
type Acknowledgment struct {
	Notes string `json:"notes"`
}

// Resolution holds advisory metadata recorded at resolution.
type Resolution struct {
	Outcome Outcome `json:"outcome"`
}

// Escalation records who escalated an alert, to whom, and why.
type Escalation struct {
	By     string    `json:"escalated_by"`
	To     string    `json:"escalated_to"`
	Reason string    `json:"reason"`
	At     time.Time `json:"timestamp"`
}

// Alert is a clinical alert raised for a patient.
type Alert struct {
	ID              string
	PatientID       string
	Type            Type
	Severity        Severity
	Title           string
	Message         string
	Score           *int
	Recommendations []string
	Status          Status
	TriggeredAt     time.Time

	AcknowledgedBy string
	AcknowledgedAt *time.Time
	Acknowledgment *Acknowledgment

	ResolvedBy      string
	ResolvedAt      *time.Time
	ResolutionNotes string
	Resolution      *Resolution

	Escalated   bool
	EscalatedAt *time.Time
	Escalation  *Escalation

	// Explanation is guardrail-approved text; it is never set from raw input.
	Explanation            string
	ExplanationNeedsReview bool
}

// now is replaced in tests.
var now = time.Now

// New creates an Active, unescalated alert with a generated UUID.
func New(patientID string, typ Type, sev Severity, title, message string, score *int, recommendations []string) *Alert {
	recs := make([]string, len(recommendations))
	copy(recs, recommendations)
	return &Alert{
		ID:              uuid.NewString(),
		PatientID:       patientID,
		Type:            typ,
		Severity:        sev,
		Title:           title,
		Message:         message,
		Score:           score,
		Recommendations: recs,
		Status:          StatusActive,
		TriggeredAt:     now(),
	}
}

// Acknowledge marks the alert as seen by a clinician.
func (a *Alert) Acknowledge(by, notes string) error {
	if a.Status == StatusResolved {
		return fmt.Errorf("%w: cannot acknowledge resolved alert %s", ErrInvalidTransition, a.ID)
	}
	if strings.TrimSpace(by) == "" {
		return fmt.Errorf("%w: acknowledging clinician is required", ErrInvalidInput)
	}

	t := now()
	a.Status = StatusAcknowledged
	a.AcknowledgedBy = by
	a.AcknowledgedAt = &t
	if notes != "" {
		a.Acknowledgment = &Acknowledgment{Notes: notes}
	}
	return nil
}

// Resolve closes the alert. Resolution notes are mandatory.
func (a *Alert) Resolve(by, notes string, outcome Outcome) error {
	if a.Status == StatusResolved {
		return fmt.Errorf("%w: alert %s is already resolved", ErrInvalidTransition, a.ID)
	}
	if strings.TrimSpace(by) == "" {
		return fmt.Errorf("%w: resolving clinician is required", ErrInvalidInput)
	}
	if strings.TrimSpace(notes) == "" {
		return fmt.Errorf("%w: resolution notes are required", ErrInvalidInput)
	}
	if outcome != OutcomeNone && !outcome.valid() {
		return fmt.Errorf("%w: unknown outcome %q", ErrInvalidInput, outcome)
	}

	t := now()
	a.Status = StatusResolved
	a.ResolvedBy = by
	a.ResolvedAt = &t
	a.ResolutionNotes = notes
	if outcome != OutcomeNone {
		a.Resolution = &Resolution{Outcome: outcome}
	}
	return nil
}

// Escalate flags the alert for a higher level of care. Status is unchanged.
func (a *Alert) Escalate(by, reason, to string) error {
	if a.Status == StatusResolved {
		return fmt.Errorf("%w: cannot escalate resolved alert %s", ErrInvalidTransition, a.ID)
	}
	if strings.TrimSpace(by) == "" || strings.TrimSpace(to) == "" {
		return fmt.Errorf("%w: escalation requires both escalated_by and escalated_to", ErrInvalidInput)
	}

	t := now()
	a.Escalated = true
	a.EscalatedAt = &t
	a.Escalation = &Escalation{By: by, To: to, Reason: reason, At: t}
	return nil
}

// AttachExplanation stores text that has already passed the guardrail.
func (a *Alert) AttachExplanation(text string, needsReview bool) error {
	if a.Status == StatusResolved {
		return fmt.Errorf("%w: cannot attach explanation to resolved alert %s", ErrInvalidTransition, a.ID)
	}
	a.Explanation = text
	a.ExplanationNeedsReview = needsReview
	return nil
}

// Open reports whether the alert still needs attention.
func (a *Alert) Open() bool {
	return a.Status != StatusResolved
}

// Label returns a human-readable label for the alert type.
func (t Type) Label() string {
	switch t {
	case TypeEarlyWarningScore:
		return "Early Warning Score"
	case TypeVitalSignAbnormal:
		return "Vital Sign Abnormality"
	case TypeClinicalObservation:
		return "Clinical Observation"
	case TypeDeterioration:
		return "Deterioration"
	default:
		return string(t)
	}
}

func (o Outcome) valid() bool {
	switch o {
	case OutcomeTruePositive, OutcomeFalsePositive, OutcomeClinicalIntervention, OutcomeSelfResolved:
		return true
	}
	return false
}

// ParseStatus validates a status supplied at the boundary.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusActive, StatusAcknowledged, StatusResolved:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, s)
}

// ParseType validates an alert type supplied at the boundary.
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeEarlyWarningScore, TypeVitalSignAbnormal, TypeClinicalObservation, TypeDeterioration:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown alert type %q", ErrInvalidInput, s)
}

// ParseOutcome validates a resolution outcome. Empty means none.
func ParseOutcome(s string) (Outcome, error) {
	o := Outcome(strings.ToLower(strings.TrimSpace(s)))
	if o == OutcomeNone || o.valid() {
		return o, nil
	}
	return "", fmt.Errorf("%w: unknown outcome %q", ErrInvalidInput, s)
}
