// Package vitals defines the vital-sign snapshot scored by the early warning
// engine and the boundary checks applied before a snapshot reaches it.
package vitals

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidInput is returned for values a caller must reject at the boundary.
var ErrInvalidInput = errors.New("invalid input")

// Consciousness is a level on the AVPU scale. The zero value means the
// level was not recorded.
type Consciousness string

const (
	Alert        Consciousness = "A"
	Voice        Consciousness = "V"
	Pain         Consciousness = "P"
	Unresponsive Consciousness = "U"
)

// Label returns the long form of the AVPU level.
func (c Consciousness) Label() string {
	switch c {
	case Alert:
		return "Alert"
	case Voice:
		return "Voice"
	case Pain:
		return "Pain"
	case Unresponsive:
		return "Unresponsive"
	default:
		return string(c)
	}
}

// Known reports whether c is one of the four AVPU symbols.
func (c Consciousness) Known() bool {
	switch c {
	case Alert, Voice, Pain, Unresponsive:
		return true
	}
	return false
}

// ParseConsciousness accepts a letter or full word, case-insensitively.
// An empty string yields the zero value (not recorded).
func ParseConsciousness(s string) (Consciousness, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	switch strings.ToLower(s) {
	case "a", "alert":
		return Alert, nil
	case "v", "voice":
		return Voice, nil
	case "p", "pain":
		return Pain, nil
	case "u", "unresponsive":
		return Unresponsive, nil
	}
	return "", fmt.Errorf("%w: unknown consciousness level %q", ErrInvalidInput, s)
}

// Snapshot is a single set of observations. Nil pointers are readings that
// were not taken.
type Snapshot struct {
	RespiratoryRate    *float64      `json:"respiratory_rate,omitempty"`
	SpO2               *float64      `json:"spo2,omitempty"`
	SupplementalOxygen bool          `json:"supplemental_oxygen"`
	Temperature        *float64      `json:"temperature,omitempty"`
	SystolicBP         *float64      `json:"systolic_bp,omitempty"`
	HeartRate          *float64      `json:"heart_rate,omitempty"`
	Consciousness      Consciousness `json:"consciousness,omitempty"`
	UseCOPDScale       bool          `json:"copd_scale"`
}

// Float returns a pointer to v, for building snapshots inline.
func Float(v float64) *float64 {
	return &v
}

// Validate rejects readings that cannot be physical measurements. Absent
// readings are never an error.
func (s Snapshot) Validate() error {
	checks := []struct {
		name string
		v    *float64
	}{
		{"respiratory_rate", s.RespiratoryRate},
		{"spo2", s.SpO2},
		{"temperature", s.Temperature},
		{"systolic_bp", s.SystolicBP},
		{"heart_rate", s.HeartRate},
	}
	for _, c := range checks {
		if c.v == nil {
			continue
		}
		if math.IsNaN(*c.v) || math.IsInf(*c.v, 0) || *c.v < 0 {
			return fmt.Errorf("%w: %s = %v", ErrInvalidInput, c.name, *c.v)
		}
	}
	if s.SpO2 != nil && *s.SpO2 > 100 {
		return fmt.Errorf("%w: spo2 = %v exceeds 100%%", ErrInvalidInput, *s.SpO2)
	}
	if s.Consciousness != "" && !s.Consciousness.Known() {
		return fmt.Errorf("%w: unknown consciousness level %q", ErrInvalidInput, s.Consciousness)
	}
	return nil
}

// Recorded returns the number of the seven scored parameters present.
// Supplemental oxygen always counts as recorded.
func (s Snapshot) Recorded() int {
	n := 1
	for _, v := range []*float64{s.RespiratoryRate, s.SpO2, s.Temperature, s.SystolicBP, s.HeartRate} {
		if v != nil {
			n++
		}
	}
	if s.Consciousness != "" {
		n++
	}
	return n
}

// Complete reports whether every scored parameter was recorded.
func (s Snapshot) Complete() bool {
	return s.Recorded() == 7
}
