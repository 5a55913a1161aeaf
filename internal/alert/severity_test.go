package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medobsmind/obswatch/internal/score"
	"github.com/medobsmind/obswatch/internal/vitals"
)

func TestSortActive(t *testing.T) {
	base := time.Date(2026, 2, 19, 8, 0, 0, 0, time.UTC)
	alerts := []*Alert{
		{ID: "m", Severity: SevMedium, TriggeredAt: base},
		{ID: "c", Severity: SevCritical, TriggeredAt: base},
		{ID: "l", Severity: SevLow, TriggeredAt: base},
		{ID: "h", Severity: SevHigh, TriggeredAt: base},
	}

	SortActive(alerts)

	var got []Severity
	for _, a := range alerts {
		got = append(got, a.Severity)
	}
	assert.Equal(t, []Severity{SevCritical, SevHigh, SevMedium, SevLow}, got)
}

func TestSortActiveNewestFirstWithinSeverity(t *testing.T) {
	base := time.Date(2026, 2, 19, 8, 0, 0, 0, time.UTC)
	alerts := []*Alert{
		{ID: "old", Severity: SevHigh, TriggeredAt: base},
		{ID: "new", Severity: SevHigh, TriggeredAt: base.Add(time.Hour)},
		{ID: "crit", Severity: SevCritical, TriggeredAt: base.Add(-time.Hour)},
	}

	SortActive(alerts)

	assert.Equal(t, "crit", alerts[0].ID)
	assert.Equal(t, "new", alerts[1].ID)
	assert.Equal(t, "old", alerts[2].ID)
}

func TestSeverityRankAndAtLeast(t *testing.T) {
	assert.Greater(t, SevCritical.Rank(), SevHigh.Rank())
	assert.Greater(t, SevHigh.Rank(), SevMedium.Rank())
	assert.Greater(t, SevMedium.Rank(), SevLow.Rank())
	assert.Equal(t, 0, Severity("bogus").Rank())

	assert.True(t, SevHigh.AtLeast(SevMedium))
	assert.True(t, SevMedium.AtLeast(SevMedium))
	assert.False(t, SevLow.AtLeast(SevMedium))
}

func TestParseSeverity(t *testing.T) {
	sev, err := ParseSeverity(" CRITICAL ")
	require.NoError(t, err)
	assert.Equal(t, SevCritical, sev)

	_, err = ParseSeverity("urgent")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSeverityForScore(t *testing.T) {
	tests := []struct {
		name string
		v    vitals.Snapshot
		want Severity
	}{
		{"empty is low", vitals.Snapshot{}, SevLow},
		{"single red flag is medium", vitals.Snapshot{Consciousness: vitals.Voice}, SevMedium},
		{
			"medium tier is high",
			vitals.Snapshot{RespiratoryRate: vitals.Float(22), HeartRate: vitals.Float(115), SupplementalOxygen: true},
			SevHigh,
		},
		{
			"high tier is critical",
			vitals.Snapshot{RespiratoryRate: vitals.Float(26), SystolicBP: vitals.Float(88), HeartRate: vitals.Float(135)},
			SevCritical,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SeverityForScore(score.Calculate(tt.v, false)))
		})
	}
}

func TestBuildStats(t *testing.T) {
	base := time.Date(2026, 2, 19, 8, 0, 0, 0, time.UTC)
	ack := func(d time.Duration) *time.Time {
		ts := base.Add(d)
		return &ts
	}

	alerts := []*Alert{
		{Severity: SevCritical, Status: StatusActive, TriggeredAt: base, Escalated: true},
		{Severity: SevHigh, Status: StatusAcknowledged, TriggeredAt: base, AcknowledgedAt: ack(4 * time.Minute)},
		{Severity: SevHigh, Status: StatusResolved, TriggeredAt: base, AcknowledgedAt: ack(8 * time.Minute)},
		{Severity: SevLow, Status: StatusActive, TriggeredAt: base.Add(-48 * time.Hour)},
	}

	s := BuildStats(alerts, base.Add(-time.Hour), time.Time{})

	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.Active)
	assert.Equal(t, 1, s.Acknowledged)
	assert.Equal(t, 1, s.Resolved)
	assert.Equal(t, 1, s.Escalated)
	assert.Equal(t, 1, s.Critical)
	assert.Equal(t, 2, s.High)
	assert.Equal(t, 0, s.Low)
	require.NotNil(t, s.MeanAckMinutes)
	assert.InDelta(t, 6.0, *s.MeanAckMinutes, 0.001)
}

func TestBuildStatsNoAcks(t *testing.T) {
	s := BuildStats([]*Alert{{Severity: SevLow, Status: StatusActive, TriggeredAt: time.Now()}}, time.Time{}, time.Time{})
	assert.Equal(t, 1, s.Total)
	assert.Nil(t, s.MeanAckMinutes)
}
