package store

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/medobsmind/obswatch/internal/alert"
)

// DedupResult describes whether an alert should be notified.
type DedupResult struct {
	// ShouldNotify is true if this alert should trigger a notification.
	ShouldNotify bool
	// RecentCount is the number of similar alerts within the cooldown window,
	// not counting this one.
	RecentCount int
	// Aggregated is true if the notification was suppressed during cooldown
	// but the aggregate threshold was just reached, so a summary should fire.
	Aggregated bool
}

// CheckCooldown determines whether an alert should be notified based on how
// many similar alerts (same patient, type and severity) were raised within
// the cooldown window. Cooldown gates notification only; the alert itself is
// always stored.
//
// Logic:
//   - No prior alerts within window: notify (first occurrence).
//   - Prior alerts but count < threshold: suppress.
//   - count == threshold: notify as aggregated (repeated deterioration).
//   - count > threshold: suppress (aggregate already sent).
//
// If the count cannot be read the result fails open: ShouldNotify is true and
// the error is returned alongside it, so a storage fault never silences an
// alert.
func (d *DB) CheckCooldown(a *alert.Alert, window time.Duration, threshold int) (DedupResult, error) {
	since := formatTime(a.TriggeredAt.Add(-window))

	var count int
	err := d.db.QueryRow(`SELECT COUNT(*) FROM alerts
		WHERE patient_id = ? AND type = ? AND severity = ? AND triggered_at >= ? AND id != ?`,
		a.PatientID, string(a.Type), string(a.Severity), since, a.ID,
	).Scan(&count)
	if err != nil {
		return DedupResult{ShouldNotify: true}, fmt.Errorf("checking cooldown: %w", err)
	}

	result := DedupResult{RecentCount: count}

	switch {
	case count == 0:
		result.ShouldNotify = true
	case threshold > 0 && count == threshold:
		result.ShouldNotify = true
		result.Aggregated = true
	}

	d.log.Debug("cooldown check",
		zap.String("patient_id", a.PatientID),
		zap.String("type", string(a.Type)),
		zap.String("severity", string(a.Severity)),
		zap.Int("recent_count", count),
		zap.Int("threshold", threshold),
		zap.Bool("should_notify", result.ShouldNotify),
	)

	return result, nil
}
