package guardrail

import (
	"regexp"

	"github.com/medobsmind/obswatch/internal/vitals"
)

// rule tags one unsafe-language pattern with the violation it signals.
type rule struct {
	re   *regexp.Regexp
	kind Violation
}

// rules is scanned in order; a text may match several kinds.
var rules = []rule{
	// Prescription: dosing or administration language.
	// Example: "Prescribe ceftriaxone 1g IV", "give 500 mg paracetamol"
	{regexp.MustCompile(`(?i)\b(prescribe|give|administer)\s+(\w+\s+)?\d+(\.\d+)?\s*(mg|g|ml|units|mcg)\b`), Prescription},
	{regexp.MustCompile(`(?i)\bstart\s+(patient\s+on|him\s+on|her\s+on|him|her)\s+\w+\s+\d+`), Prescription},

	// Diagnosis: assertive disease naming.
	// Example: "Patient has sepsis", "diagnosed with pneumonia"
	{regexp.MustCompile(`(?i)\b(patient\s+has|diagnosis\s+is|diagnosed\s+with)\s+[a-z]+`), Diagnosis},
	{regexp.MustCompile(`(?i)\b(definitely|certainly)\s+(has|is)\s+\w+`), Diagnosis},

	// Override: telling staff to disregard an alert.
	// Example: "Ignore the NEWS2 alert"
	{regexp.MustCompile(`(?i)\b(ignore|dismiss|override)\s+(the\s+|this\s+)?(\w+\s+)?(alert|alarm|warning)s?\b`), OverrideAlert},
	{regexp.MustCompile(`(?i)\bno\s+need\s+to\s+(call|inform|notify)\b`), OverrideAlert},

	// Absolute certainty claims.
	{regexp.MustCompile(`(?i)(100%|\babsolutely|\bdefinitely|\bcertainly)\s+(sure|certain|is|has)\b`), AbsoluteCertainty},

	// Discouraging clinician review.
	{regexp.MustCompile(`(?i)\bdo\s+not\s+(call|inform|notify)\s+(the\s+)?(doctor|clinician|physician)`), BypassClinician},
	{regexp.MustCompile(`(?i)\bno\s+need\s+for\s+(a\s+)?(doctor|clinician|medical)\s+review`), BypassClinician},
}

// blocking violations replace the whole text with FallbackText.
var blocking = map[Violation]bool{
	Prescription:    true,
	Diagnosis:       true,
	OverrideAlert:   true,
	BypassClinician: true,
}

// vitalMention maps a vital-sign name that may appear in text to whether
// the source snapshot carries a value for it. Name-based only.
type vitalMention struct {
	name    string
	present func(v *vitals.Snapshot) bool
}

var vitalMentions = []vitalMention{
	{"heart rate", func(v *vitals.Snapshot) bool { return v.HeartRate != nil }},
	{"blood pressure", func(v *vitals.Snapshot) bool { return v.SystolicBP != nil }},
	{"temperature", func(v *vitals.Snapshot) bool { return v.Temperature != nil }},
	{"respiratory rate", func(v *vitals.Snapshot) bool { return v.RespiratoryRate != nil }},
	{"spo2", func(v *vitals.Snapshot) bool { return v.SpO2 != nil }},
	{"spo₂", func(v *vitals.Snapshot) bool { return v.SpO2 != nil }},
	{"oxygen saturation", func(v *vitals.Snapshot) bool { return v.SpO2 != nil }},
}

// hedgeMarkers show appropriate caution and lower heuristic confidence.
var hedgeMarkers = []string{
	"may indicate",
	"could suggest",
	"consider",
	"possible",
	"potential",
	"consistent with",
	"suggestive of",
	"compatible with",
	"might be",
}

// reviewPhrases satisfy the disclaimer requirement when already present.
var reviewPhrases = []string{
	"clinician review",
	"doctor review",
	"medical review",
	"clinical assessment",
	"doctor assessment",
}

// softenRules rewrite assertive phrasing into assistive phrasing, in order.
var softenRules = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(?i)\bpatient\s+has\s+(\w+)`), "clinical features suggest possible ${1}"},
	{regexp.MustCompile(`(?i)\bdiagnosis\s+is\s+(\w+)`), "findings consistent with ${1}"},
	{regexp.MustCompile(`(?i)\bprescribe\s+(\w+)`), "consider ${1} therapy per hospital protocol"},
	{regexp.MustCompile(`(?i)\bgive\s+(\w+)`), "may consider ${1} if clinically indicated"},
	{regexp.MustCompile(`(?i)\b(definitely|certainly)\s+`), "likely "},
}

var violationMessages = map[Violation]string{
	Prescription:      "Output contained prescription language",
	Diagnosis:         "Output contained diagnostic language",
	OverrideAlert:     "Output suggested ignoring alerts",
	AbsoluteCertainty: "Output claimed absolute certainty",
	BypassClinician:   "Output suggested bypassing clinician",
	Hallucination:     "Output may contain hallucinated facts",
	LowConfidence:     "Output confidence below threshold",
}
