// Package score computes the NEWS2 early warning score from a vitals snapshot.
//
// Thresholds follow the Royal College of Physicians NEWS2 chart (2017):
// total 0-4 is low risk, 5-6 medium, 7 or more high.
package score

import (
	"github.com/medobsmind/obswatch/internal/vitals"
)

// Component names a scored parameter.
type Component string

const (
	RespiratoryRate    Component = "respiratory_rate"
	SpO2               Component = "spo2"
	SupplementalOxygen Component = "supplemental_oxygen"
	Temperature        Component = "temperature"
	SystolicBP         Component = "systolic_bp"
	HeartRate          Component = "heart_rate"
	Consciousness      Component = "consciousness"
)

// Tier is the clinical risk band of a total score. It is a different
// taxonomy from alert severity.
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

const (
	mediumThreshold = 5
	highThreshold   = 7
)

// redFlagScore is the sub-score that marks a single extreme parameter.
const redFlagScore = 3

// Result is the outcome of one scoring call.
type Result struct {
	Components         map[Component]int `json:"components"`
	Total              int               `json:"total"`
	Tier               Tier              `json:"tier"`
	Recommendations    []string          `json:"recommendations"`
	RequiresEscalation bool              `json:"requires_escalation"`
}

// Calculate scores every recorded parameter of v. Missing readings are left
// out of both the component map and the total. Scale 2 is used for SpO2 when
// either useCOPDScale or v.UseCOPDScale is set.
func Calculate(v vitals.Snapshot, useCOPDScale bool) Result {
	components := make(map[Component]int, 7)

	if v.RespiratoryRate != nil {
		components[RespiratoryRate] = respiratoryRateTable.lookup(*v.RespiratoryRate)
	}

	if v.SpO2 != nil {
		t := spo2Scale1Table
		if useCOPDScale || v.UseCOPDScale {
			t = spo2Scale2Table
		}
		components[SpO2] = t.lookup(*v.SpO2)
	}

	components[SupplementalOxygen] = 0
	if v.SupplementalOxygen {
		components[SupplementalOxygen] = supplementalOxygenScore
	}

	if v.Temperature != nil {
		components[Temperature] = temperatureTable.lookup(*v.Temperature)
	}
	if v.SystolicBP != nil {
		components[SystolicBP] = systolicBPTable.lookup(*v.SystolicBP)
	}
	if v.HeartRate != nil {
		components[HeartRate] = heartRateTable.lookup(*v.HeartRate)
	}
	if v.Consciousness != "" {
		components[Consciousness] = consciousnessScore(v.Consciousness)
	}

	total := 0
	for _, s := range components {
		total += s
	}

	tier := TierFor(total)
	return Result{
		Components:         components,
		Total:              total,
		Tier:               tier,
		Recommendations:    Recommendations(tier),
		RequiresEscalation: tier != TierLow,
	}
}

// consciousnessScore maps an AVPU symbol. Unknown symbols score 0; callers
// are expected to reject them with vitals.ParseConsciousness first.
func consciousnessScore(c vitals.Consciousness) int {
	switch c {
	case vitals.Alert:
		return 0
	case vitals.Voice, vitals.Pain, vitals.Unresponsive:
		return 3
	default:
		return 0
	}
}

// TierFor returns the risk tier of a total score.
func TierFor(total int) Tier {
	switch {
	case total >= highThreshold:
		return TierHigh
	case total >= mediumThreshold:
		return TierMedium
	default:
		return TierLow
	}
}

// Recommendations returns a copy of the fixed list for tier.
func Recommendations(tier Tier) []string {
	var src []string
	switch tier {
	case TierHigh:
		src = highRecommendations
	case TierMedium:
		src = mediumRecommendations
	default:
		src = lowRecommendations
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}

// RedFlag reports whether any single parameter scored 3.
func (r Result) RedFlag() bool {
	for c, s := range r.Components {
		if c == SupplementalOxygen {
			continue
		}
		if s >= redFlagScore {
			return true
		}
	}
	return false
}

// Interpret returns a one-line clinical reading of a total score.
func Interpret(total int) string {
	switch {
	case total <= 0:
		return "No acute illness detected"
	case total < mediumThreshold:
		return "Low clinical risk - routine monitoring"
	case total < highThreshold:
		return "Medium risk - increased monitoring and clinical review required"
	default:
		return "High risk - urgent or emergency clinical assessment required"
	}
}

// ParseTier validates a tier string supplied at the boundary.
func ParseTier(s string) (Tier, bool) {
	switch Tier(s) {
	case TierLow, TierMedium, TierHigh:
		return Tier(s), true
	}
	return "", false
}
