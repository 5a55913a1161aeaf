// Package format provides shared parsing and formatting utilities.
package format

import (
	"fmt"
	"strings"
	"time"
)

// ParseDuration extends time.ParseDuration with support for a "d" (days)
// suffix, e.g. "7d".
func ParseDuration(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		var days int
		if _, err := fmt.Sscanf(strings.TrimSuffix(s, "d"), "%d", &days); err != nil {
			return 0, fmt.Errorf("invalid days format: %s", s)
		}
		if days < 0 {
			return 0, fmt.Errorf("negative duration: %s", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// Duration formats a duration in human-readable form ("45s", "12m",
// "3h 5m", "2d 4h").
func Duration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		return fmt.Sprintf("%dh %dm", h, m)
	}
	days := int(d.Hours()) / 24
	h := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, h)
}

// Minutes formats a latency in minutes with one decimal, or "n/a".
func Minutes(m *float64) string {
	if m == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f min", *m)
}
