package reporter

import (
	"fmt"
	"strings"

	"github.com/medobsmind/obswatch/internal/alert"
)

// severityEmoji maps alert severities to display emojis for ntfy titles.
var severityEmoji = map[alert.Severity]string{
	alert.SevCritical: "\U0001f534", // red circle
	alert.SevHigh:     "\U0001f7e0", // orange circle
	alert.SevMedium:   "\U0001f7e1", // yellow circle
}

// severityTags maps alert severities to ntfy tag names.
var severityTags = map[alert.Severity]string{
	alert.SevCritical: "rotating_light,hospital",
	alert.SevHigh:     "warning,hospital",
	alert.SevMedium:   "eyes,hospital",
}

// FormatTitle builds the ntfy notification title for an alert.
func FormatTitle(ward string, a *alert.Alert) string {
	emoji := severityEmoji[a.Severity]
	if emoji == "" {
		emoji = "❗" // exclamation mark
	}
	return fmt.Sprintf("%s [%s] %s: %s", emoji, ward, a.PatientID, a.Title)
}

// FormatBody builds the ntfy notification body for an alert. Only the
// guardrail-approved explanation is included.
func FormatBody(a *alert.Alert) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Patient: %s\n", a.PatientID)
	fmt.Fprintf(&b, "Severity: %s\n", a.Severity.Label())
	if a.Score != nil {
		fmt.Fprintf(&b, "NEWS2: %d\n", *a.Score)
	}
	fmt.Fprintf(&b, "Time: %s\n", a.TriggeredAt.Format("2006-01-02 15:04:05 MST"))

	if a.Message != "" {
		b.WriteString("\n")
		b.WriteString(a.Message)
		b.WriteString("\n")
	}

	if len(a.Recommendations) > 0 {
		b.WriteString("\nRecommended:\n")
		for _, r := range a.Recommendations {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}

	if a.Explanation != "" {
		b.WriteString("\n")
		b.WriteString(a.Explanation)
		b.WriteString("\n")
		if a.ExplanationNeedsReview {
			b.WriteString("(explanation flagged for clinician review)\n")
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// TagsForSeverity returns the ntfy tags string for an alert severity.
func TagsForSeverity(sev alert.Severity) string {
	if tags, ok := severityTags[sev]; ok {
		return tags
	}
	return "hospital"
}
