package guardrail

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSoften(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{
			"Patient has sepsis. Prescribe antibiotics.",
			"clinical features suggest possible sepsis. consider antibiotics therapy per hospital protocol.",
		},
		{"Diagnosis is pneumonia", "findings consistent with pneumonia"},
		{"Give fluids", "may consider fluids if clinically indicated"},
		{"This is definitely improving", "This is likely improving"},
		{"Observations stable.", "Observations stable."},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Soften(tt.in))
		})
	}
}

func TestSoftenedTextStillChecked(t *testing.T) {
	e := New(DefaultThresholds())

	softened := Soften("Patient has sepsis.")
	r := e.Check(softened, nil, nil)

	assert.True(t, r.Safe)
	assert.NotContains(t, r.Violations, Diagnosis)
}
