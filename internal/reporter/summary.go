package reporter

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/medobsmind/obswatch/internal/alert"
	"github.com/medobsmind/obswatch/internal/format"
)

// Summary holds alert statistics for a reporting period.
type Summary struct {
	Ward  string
	Stats alert.Stats

	// PatientBreakdown counts alerts per patient.
	PatientBreakdown map[string]int
	// OpenCritical lists unresolved critical alerts, most recent first.
	OpenCritical []*alert.Alert
}

// BuildSummary aggregates alerts triggered within [since, until].
func BuildSummary(ward string, alerts []*alert.Alert, since, until time.Time) *Summary {
	s := &Summary{
		Ward:             ward,
		Stats:            alert.BuildStats(alerts, since, until),
		PatientBreakdown: make(map[string]int),
	}

	for _, a := range alerts {
		if a.TriggeredAt.Before(since) || (!until.IsZero() && a.TriggeredAt.After(until)) {
			continue
		}
		s.PatientBreakdown[a.PatientID]++
		if a.Severity == alert.SevCritical && a.Open() {
			s.OpenCritical = append(s.OpenCritical, a)
		}
	}
	alert.SortActive(s.OpenCritical)
	return s
}

// FormatSummary formats a Summary as human-readable text suitable for ntfy
// or stdout output.
func FormatSummary(s *Summary) string {
	var b strings.Builder
	st := s.Stats

	fmt.Fprintf(&b, "=== %s ===\n", s.Ward)
	fmt.Fprintf(&b, "Period: %s - %s\n\n",
		st.Since.Local().Format("Jan 02 15:04"),
		st.Until.Local().Format("Jan 02 15:04"))

	fmt.Fprintf(&b, "Alerts:        %d", st.Total)
	if st.Total > 0 {
		fmt.Fprintf(&b, " (%s)", formatBreakdown(s.PatientBreakdown))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "By severity:   %d critical, %d high, %d medium, %d low\n",
		st.Critical, st.High, st.Medium, st.Low)
	fmt.Fprintf(&b, "By status:     %d active, %d acknowledged, %d resolved\n",
		st.Active, st.Acknowledged, st.Resolved)
	fmt.Fprintf(&b, "Escalated:     %d\n", st.Escalated)
	fmt.Fprintf(&b, "Mean time to acknowledge: %s\n", format.Minutes(st.MeanAckMinutes))

	if len(s.OpenCritical) > 0 {
		b.WriteString("\nOpen critical alerts:\n")
		for _, a := range s.OpenCritical {
			fmt.Fprintf(&b, "- %s %s (%s)\n", a.PatientID, a.Title, a.Status)
		}
	}

	return b.String()
}

// FormatSummaryTitle generates the ntfy title for a summary notification.
func FormatSummaryTitle(ward string, since, until time.Time) string {
	return fmt.Sprintf("\U0001f4ca obswatch %s summary (%s - %s)",
		ward,
		since.Local().Format("Jan 02 15:04"),
		until.Local().Format("Jan 02 15:04"))
}

// formatBreakdown turns a map[string]int into "foo ×2, bar ×1" sorted by
// count desc, then name.
func formatBreakdown(m map[string]int) string {
	type entry struct {
		name  string
		count int
	}

	entries := make([]entry, 0, len(m))
	for name, count := range m {
		entries = append(entries, entry{name, count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].name < entries[j].name
	})

	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = fmt.Sprintf("%s ×%d", e.name, e.count)
	}
	return strings.Join(parts, ", ")
}
