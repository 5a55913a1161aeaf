package alert

import "time"

// Stats holds aggregated alert counts for a time window.
type Stats struct {
	Since time.Time
	Until time.Time

	Total        int
	Active       int
	Acknowledged int
	Resolved     int
	Escalated    int

	Critical int
	High     int
	Medium   int
	Low      int

	// MeanAckMinutes is the mean trigger-to-acknowledgment latency. Nil when
	// no alert in the window has been acknowledged.
	MeanAckMinutes *float64
}

// BuildStats aggregates the alerts triggered within [since, until]. A zero
// until means no upper bound.
func BuildStats(alerts []*Alert, since, until time.Time) Stats {
	s := Stats{Since: since, Until: until}

	var ackTotal time.Duration
	var ackCount int

	for _, a := range alerts {
		if a.TriggeredAt.Before(since) {
			continue
		}
		if !until.IsZero() && a.TriggeredAt.After(until) {
			continue
		}

		s.Total++
		switch a.Status {
		case StatusActive:
			s.Active++
		case StatusAcknowledged:
			s.Acknowledged++
		case StatusResolved:
			s.Resolved++
		}
		if a.Escalated {
			s.Escalated++
		}

		switch a.Severity {
		case SevCritical:
			s.Critical++
		case SevHigh:
			s.High++
		case SevMedium:
			s.Medium++
		case SevLow:
			s.Low++
		}

		if a.AcknowledgedAt != nil {
			ackTotal += a.AcknowledgedAt.Sub(a.TriggeredAt)
			ackCount++
		}
	}

	if ackCount > 0 {
		mean := ackTotal.Minutes() / float64(ackCount)
		s.MeanAckMinutes = &mean
	}
	return s
}
