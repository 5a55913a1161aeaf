package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medobsmind/obswatch/internal/alert"
)

func TestCheckCooldown(t *testing.T) {
	db := testDB(t)
	window := 15 * time.Minute
	threshold := 3
	base := time.Now()

	tests := []struct {
		wantNotify     bool
		wantAggregated bool
		wantCount      int
	}{
		{true, false, 0},  // first alert
		{false, false, 1}, // within cooldown
		{false, false, 2},
		{true, true, 3}, // aggregate threshold reached
		{false, false, 4},
	}

	for i, tt := range tests {
		a := makeAlert("p1", alert.SevCritical, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, db.Insert(a))

		res, err := db.CheckCooldown(a, window, threshold)
		require.NoError(t, err)
		assert.Equal(t, tt.wantNotify, res.ShouldNotify, "alert %d", i)
		assert.Equal(t, tt.wantAggregated, res.Aggregated, "alert %d", i)
		assert.Equal(t, tt.wantCount, res.RecentCount, "alert %d", i)
	}
}

func TestCheckCooldownKeyedByPatientAndSeverity(t *testing.T) {
	db := testDB(t)
	now := time.Now()

	first := makeAlert("p1", alert.SevCritical, now)
	require.NoError(t, db.Insert(first))

	otherPatient := makeAlert("p2", alert.SevCritical, now)
	require.NoError(t, db.Insert(otherPatient))
	res, err := db.CheckCooldown(otherPatient, 15*time.Minute, 3)
	require.NoError(t, err)
	assert.True(t, res.ShouldNotify)

	otherSeverity := makeAlert("p1", alert.SevHigh, now)
	require.NoError(t, db.Insert(otherSeverity))
	res, err = db.CheckCooldown(otherSeverity, 15*time.Minute, 3)
	require.NoError(t, err)
	assert.True(t, res.ShouldNotify)
}

func TestCheckCooldownWindowExpired(t *testing.T) {
	db := testDB(t)
	now := time.Now()

	require.NoError(t, db.Insert(makeAlert("p1", alert.SevCritical, now.Add(-time.Hour))))

	a := makeAlert("p1", alert.SevCritical, now)
	require.NoError(t, db.Insert(a))

	res, err := db.CheckCooldown(a, 15*time.Minute, 3)
	require.NoError(t, err)
	assert.True(t, res.ShouldNotify)
	assert.Equal(t, 0, res.RecentCount)
}

func TestCheckCooldownFailsOpen(t *testing.T) {
	db := testDB(t)
	a := makeAlert("p1", alert.SevCritical, time.Now())
	require.NoError(t, db.Insert(a))
	require.NoError(t, db.Close())

	res, err := db.CheckCooldown(a, 15*time.Minute, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checking cooldown")
	assert.True(t, res.ShouldNotify)
	assert.False(t, res.Aggregated)
}

func TestMarkNotified(t *testing.T) {
	db := testDB(t)
	a := makeAlert("p1", alert.SevCritical, time.Now())
	require.NoError(t, db.Insert(a))
	assert.NoError(t, db.MarkNotified(a.ID))
}
