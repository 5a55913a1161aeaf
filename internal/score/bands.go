package score

import "math"

// band maps every value up to and including max to a sub-score.
type band struct {
	max   float64
	score int
}

// table is an ascending list of bands. The final band must be unbounded so
// that the table covers every value exactly once.
type table []band

var unbounded = math.Inf(1)

// lookup returns the score of the first band whose upper bound is >= v.
func (t table) lookup(v float64) int {
	for _, b := range t {
		if v <= b.max {
			return b.score
		}
	}
	return 0
}

// Respiratory rate, breaths/min.
var respiratoryRateTable = table{
	{8, 3},
	{11, 1},
	{20, 0},
	{24, 2},
	{unbounded, 3},
}

// SpO2 scale 1, for patients without a hypercapnic target range.
var spo2Scale1Table = table{
	{91, 3},
	{93, 2},
	{95, 1},
	{unbounded, 0},
}

// SpO2 scale 2, target 88-92% for hypercapnic respiratory failure.
var spo2Scale2Table = table{
	{83, 3},
	{85, 2},
	{87, 1},
	{92, 0},
	{94, 1},
	{96, 2},
	{unbounded, 3},
}

// Temperature, °C.
var temperatureTable = table{
	{35.0, 3},
	{36.0, 1},
	{38.0, 0},
	{39.0, 1},
	{unbounded, 2},
}

// Systolic blood pressure, mmHg.
var systolicBPTable = table{
	{90, 3},
	{100, 2},
	{110, 1},
	{219, 0},
	{unbounded, 3},
}

// Heart rate, beats/min.
var heartRateTable = table{
	{40, 3},
	{50, 1},
	{90, 0},
	{110, 1},
	{130, 2},
	{unbounded, 3},
}

// supplementalOxygenScore is added whenever the patient is on oxygen.
const supplementalOxygenScore = 2

// Recommendation lists per tier.
var (
	lowRecommendations = []string{
		"Continue routine monitoring",
		"Assess frequency of monitoring",
	}
	mediumRecommendations = []string{
		"Increase monitoring frequency",
		"Inform registered nurse",
		"Urgent review by ward-based doctor",
	}
	highRecommendations = []string{
		"Continuous monitoring",
		"Emergency assessment by clinical team",
		"Consider ICU/HDU transfer",
		"Alert senior clinician immediately",
	}
)
