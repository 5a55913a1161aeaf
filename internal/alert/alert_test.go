package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t *testing.T, ts time.Time) {
	t.Helper()
	prev := now
	now = func() time.Time { return ts }
	t.Cleanup(func() { now = prev })
}

func newTestAlert() *Alert {
	s := 8
	return New("patient-1", TypeEarlyWarningScore, SevCritical, "NEWS2 8", "High risk", &s, []string{"Continuous monitoring"})
}

func TestNew(t *testing.T) {
	ts := time.Date(2026, 2, 19, 14, 0, 0, 0, time.UTC)
	fixedClock(t, ts)

	a := newTestAlert()

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "patient-1", a.PatientID)
	assert.Equal(t, StatusActive, a.Status)
	assert.False(t, a.Escalated)
	assert.Equal(t, ts, a.TriggeredAt)
	require.NotNil(t, a.Score)
	assert.Equal(t, 8, *a.Score)
	assert.True(t, a.Open())
}

func TestNewUniqueIDs(t *testing.T) {
	a1 := newTestAlert()
	a2 := newTestAlert()
	assert.NotEqual(t, a1.ID, a2.ID)
}

func TestNewCopiesRecommendations(t *testing.T) {
	recs := []string{"a", "b"}
	a := New("p", TypeClinicalObservation, SevLow, "t", "m", nil, recs)
	recs[0] = "changed"
	assert.Equal(t, "a", a.Recommendations[0])
}

func TestAcknowledge(t *testing.T) {
	a := newTestAlert()
	ts := a.TriggeredAt.Add(4 * time.Minute)
	fixedClock(t, ts)

	require.NoError(t, a.Acknowledge("nurse.jones", "Patient reviewed at bedside"))

	assert.Equal(t, StatusAcknowledged, a.Status)
	assert.Equal(t, "nurse.jones", a.AcknowledgedBy)
	require.NotNil(t, a.AcknowledgedAt)
	assert.Equal(t, ts, *a.AcknowledgedAt)
	require.NotNil(t, a.Acknowledgment)
	assert.Equal(t, "Patient reviewed at bedside", a.Acknowledgment.Notes)
}

func TestAcknowledgeWithoutNotes(t *testing.T) {
	a := newTestAlert()
	require.NoError(t, a.Acknowledge("nurse.jones", ""))
	assert.Nil(t, a.Acknowledgment)
}

func TestAcknowledgeTwice(t *testing.T) {
	a := newTestAlert()
	require.NoError(t, a.Acknowledge("nurse.jones", ""))
	require.NoError(t, a.Acknowledge("dr.smith", ""))
	assert.Equal(t, "dr.smith", a.AcknowledgedBy)
}

func TestResolve(t *testing.T) {
	a := newTestAlert()
	require.NoError(t, a.Resolve("dr.smith", "Fluids given, obs improving", OutcomeClinicalIntervention))

	assert.Equal(t, StatusResolved, a.Status)
	assert.Equal(t, "dr.smith", a.ResolvedBy)
	require.NotNil(t, a.ResolvedAt)
	assert.Equal(t, "Fluids given, obs improving", a.ResolutionNotes)
	require.NotNil(t, a.Resolution)
	assert.Equal(t, OutcomeClinicalIntervention, a.Resolution.Outcome)
	assert.False(t, a.Open())
}

func TestResolveRequiresNotes(t *testing.T) {
	a := newTestAlert()
	err := a.Resolve("dr.smith", "  ", OutcomeNone)
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, StatusActive, a.Status)
}

func TestResolveRejectsUnknownOutcome(t *testing.T) {
	a := newTestAlert()
	err := a.Resolve("dr.smith", "done", Outcome("maybe"))
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, StatusActive, a.Status)
}

func TestEscalate(t *testing.T) {
	a := newTestAlert()
	require.NoError(t, a.Acknowledge("nurse.jones", ""))
	require.NoError(t, a.Escalate("nurse.jones", "SBP falling", "outreach team"))

	assert.True(t, a.Escalated)
	assert.Equal(t, StatusAcknowledged, a.Status, "escalation must not change status")
	require.NotNil(t, a.EscalatedAt)
	require.NotNil(t, a.Escalation)
	assert.Equal(t, "outreach team", a.Escalation.To)
	assert.Equal(t, "SBP falling", a.Escalation.Reason)
	assert.Equal(t, *a.EscalatedAt, a.Escalation.At)
}

func TestTransitionsAfterResolveFail(t *testing.T) {
	a := newTestAlert()
	require.NoError(t, a.Resolve("dr.smith", "self-limiting", OutcomeSelfResolved))
	before := *a

	assert.ErrorIs(t, a.Acknowledge("nurse.jones", "late"), ErrInvalidTransition)
	assert.ErrorIs(t, a.Resolve("dr.other", "again", OutcomeNone), ErrInvalidTransition)
	assert.ErrorIs(t, a.Escalate("nurse.jones", "why", "icu"), ErrInvalidTransition)
	assert.ErrorIs(t, a.AttachExplanation("text", false), ErrInvalidTransition)

	assert.Equal(t, before, *a, "alert must be unchanged after failed transitions")
}

func TestAttachExplanation(t *testing.T) {
	a := newTestAlert()
	require.NoError(t, a.AttachExplanation("Clinician review required.", true))
	assert.Equal(t, "Clinician review required.", a.Explanation)
	assert.True(t, a.ExplanationNeedsReview)
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("Acknowledged")
	require.NoError(t, err)
	assert.Equal(t, StatusAcknowledged, st)

	_, err = ParseStatus("closed")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestParseType(t *testing.T) {
	typ, err := ParseType("clinical_observation")
	require.NoError(t, err)
	assert.Equal(t, TypeClinicalObservation, typ)

	_, err = ParseType("warning")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestParseOutcome(t *testing.T) {
	o, err := ParseOutcome("")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNone, o)

	o, err = ParseOutcome("FALSE_POSITIVE")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFalsePositive, o)

	_, err = ParseOutcome("unsure")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestTypeLabel(t *testing.T) {
	assert.Equal(t, "Early Warning Score", TypeEarlyWarningScore.Label())
	assert.Equal(t, "custom", Type("custom").Label())
}
