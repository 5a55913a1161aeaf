package main

import (
	"flag"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medobsmind/obswatch/internal/alert"
	"github.com/medobsmind/obswatch/internal/guardrail"
	"github.com/medobsmind/obswatch/internal/score"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestConfidenceFlagRange(t *testing.T) {
	tests := []struct {
		in   string
		ok   bool
		want float64
	}{
		{"0", true, 0},
		{"0.75", true, 0.75},
		{"1", true, 1},
		{"-0.1", false, 0},
		{"1.5", false, 0},
		{"NaN", false, 0},
		{"Inf", false, 0},
		{"-Inf", false, 0},
		{"high", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var c confidenceFlag
			fs := newFlagSet()
			fs.Var(&c, "confidence", "")
			err := fs.Parse([]string{"-confidence", tt.in})
			if !tt.ok {
				assert.Error(t, err)
				assert.Nil(t, c.v)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, c.v)
			assert.Equal(t, tt.want, *c.v)
		})
	}
}

func TestListFlagRepeats(t *testing.T) {
	var recs listFlag
	fs := newFlagSet()
	fs.Var(&recs, "recommend", "")
	require.NoError(t, fs.Parse([]string{"-recommend", "Repeat observations", "-recommend", "Inform nurse in charge"}))
	assert.Equal(t, listFlag{"Repeat observations", "Inform nurse in charge"}, recs)
}

func TestVitalsFlagsSource(t *testing.T) {
	fs := newFlagSet()
	vf := addVitalsFlags(fs)
	require.NoError(t, fs.Parse(nil))
	src, err := vf.source()
	require.NoError(t, err)
	assert.Nil(t, src)

	fs = newFlagSet()
	vf = addVitalsFlags(fs)
	require.NoError(t, fs.Parse([]string{"-hr", "118", "-spo2", "93"}))
	src, err = vf.source()
	require.NoError(t, err)
	require.NotNil(t, src)
	require.NotNil(t, src.HeartRate)
	assert.Equal(t, 118.0, *src.HeartRate)
	assert.Nil(t, src.RespiratoryRate)

	fs = newFlagSet()
	vf = addVitalsFlags(fs)
	require.NoError(t, fs.Parse([]string{"-avpu", "X"}))
	_, err = vf.source()
	assert.Error(t, err)
}

func TestParseViolations(t *testing.T) {
	got, err := parseViolations("prescription, Diagnosis,,hallucination")
	require.NoError(t, err)
	assert.Equal(t, []guardrail.Violation{guardrail.Prescription, guardrail.Diagnosis, guardrail.Hallucination}, got)

	got, err = parseViolations("")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = parseViolations("prescription,rudeness")
	assert.ErrorContains(t, err, "rudeness")
}

func TestFilterByTier(t *testing.T) {
	scored := func(n int) *alert.Alert {
		return alert.New("p1", alert.TypeEarlyWarningScore, alert.SevMedium, "NEWS2", "", &n, nil)
	}
	manual := alert.New("p1", alert.TypeClinicalObservation, alert.SevHigh, "Looks unwell", "", nil, nil)
	low, medium, high := scored(2), scored(5), scored(8)

	all := []*alert.Alert{low, medium, high, manual}
	assert.Equal(t, []*alert.Alert{low}, filterByTier(all, score.TierLow))
	assert.Equal(t, []*alert.Alert{medium}, filterByTier(all, score.TierMedium))
	assert.Equal(t, []*alert.Alert{high}, filterByTier(all, score.TierHigh))
}
