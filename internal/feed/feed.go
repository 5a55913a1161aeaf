// Package feed reads bedside observations as JSON lines.
package feed

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/medobsmind/obswatch/internal/vitals"
)

// Observation is one validated set of vitals for a patient.
type Observation struct {
	PatientID  string
	ObservedAt time.Time
	Vitals     vitals.Snapshot
}

// line is the wire form of an observation. Consciousness is parsed
// separately so that "alert" and "A" are both accepted.
type line struct {
	PatientID          string    `json:"patient_id"`
	ObservedAt         time.Time `json:"observed_at"`
	RespiratoryRate    *float64  `json:"respiratory_rate"`
	SpO2               *float64  `json:"spo2"`
	SupplementalOxygen bool      `json:"supplemental_oxygen"`
	Temperature        *float64  `json:"temperature"`
	SystolicBP         *float64  `json:"systolic_bp"`
	HeartRate          *float64  `json:"heart_rate"`
	Consciousness      string    `json:"consciousness"`
	COPDScale          bool      `json:"copd_scale"`
}

// Reader turns a stream of JSON lines into observations.
type Reader struct {
	r   io.Reader
	log *zap.Logger
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader, log *zap.Logger) *Reader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reader{r: r, log: log}
}

// Observations starts reading and returns a channel of valid observations.
// The channel is closed at end of input or when ctx is cancelled. Lines
// that do not parse or fail validation are logged and skipped.
func (rd *Reader) Observations(ctx context.Context) <-chan Observation {
	ch := make(chan Observation, 64)

	go func() {
		defer close(ch)

		scanner := bufio.NewScanner(rd.r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		n := 0
		for scanner.Scan() {
			n++
			text := strings.TrimSpace(scanner.Text())
			if text == "" {
				continue
			}

			obs, err := Parse([]byte(text))
			if err != nil {
				rd.log.Warn("skipping observation", zap.Int("line", n), zap.Error(err))
				continue
			}

			select {
			case ch <- obs:
			case <-ctx.Done():
				return
			}
		}

		if err := scanner.Err(); err != nil {
			rd.log.Warn("observation scanner error", zap.Error(err))
		}
	}()

	return ch
}

// Parse decodes and validates a single JSON observation. A missing
// observed_at defaults to now.
func Parse(data []byte) (Observation, error) {
	var l line
	if err := json.Unmarshal(data, &l); err != nil {
		return Observation{}, fmt.Errorf("decoding observation: %w", err)
	}
	if strings.TrimSpace(l.PatientID) == "" {
		return Observation{}, fmt.Errorf("%w: patient_id is required", vitals.ErrInvalidInput)
	}

	avpu, err := vitals.ParseConsciousness(l.Consciousness)
	if err != nil {
		return Observation{}, err
	}

	snap := vitals.Snapshot{
		RespiratoryRate:    l.RespiratoryRate,
		SpO2:               l.SpO2,
		SupplementalOxygen: l.SupplementalOxygen,
		Temperature:        l.Temperature,
		SystolicBP:         l.SystolicBP,
		HeartRate:          l.HeartRate,
		Consciousness:      avpu,
		UseCOPDScale:       l.COPDScale,
	}
	if err := snap.Validate(); err != nil {
		return Observation{}, err
	}

	observed := l.ObservedAt
	if observed.IsZero() {
		observed = time.Now()
	}
	return Observation{PatientID: l.PatientID, ObservedAt: observed, Vitals: snap}, nil
}
