package alert

import (
	"fmt"
	"sort"
	"strings"

	"github.com/medobsmind/obswatch/internal/score"
)

// Severity indicates the urgency of an alert. It is a four-level taxonomy
// distinct from the three score tiers.
type Severity string

const (
	SevCritical Severity = "critical"
	SevHigh     Severity = "high"
	SevMedium   Severity = "medium"
	SevLow      Severity = "low"
)

// Rank orders severities for sorting; higher is more urgent. Unknown
// severities rank below Low.
func (s Severity) Rank() int {
	switch s {
	case SevCritical:
		return 4
	case SevHigh:
		return 3
	case SevMedium:
		return 2
	case SevLow:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether s is as urgent as min.
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank()
}

// Label returns a human-readable label for the severity.
func (s Severity) Label() string {
	return string(s)
}

// ParseSeverity validates a severity supplied at the boundary.
func ParseSeverity(s string) (Severity, error) {
	switch sev := Severity(strings.ToLower(strings.TrimSpace(s))); sev {
	case SevCritical, SevHigh, SevMedium, SevLow:
		return sev, nil
	}
	return "", fmt.Errorf("%w: unknown severity %q", ErrInvalidInput, s)
}

// SeverityForScore derives alert severity from a score result: high tier is
// critical, medium tier is high, a low tier with a single red-flag parameter
// is medium, anything else is low.
func SeverityForScore(r score.Result) Severity {
	switch r.Tier {
	case score.TierHigh:
		return SevCritical
	case score.TierMedium:
		return SevHigh
	}
	if r.RedFlag() {
		return SevMedium
	}
	return SevLow
}

// SortActive orders alerts by severity (critical first), then by most recent
// trigger time. The sort is stable.
func SortActive(alerts []*Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		ri, rj := alerts[i].Severity.Rank(), alerts[j].Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		return alerts[i].TriggeredAt.After(alerts[j].TriggeredAt)
	})
}
