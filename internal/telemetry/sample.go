package telemetry

import (
	"math"
	"time"

	"fleetmon/internal/errors"
)

// Metric value bounds. cpu, ram and disk are percentages and must stay
// inside the closed interval [MetricMin, MetricMax].
const (
	MetricMin = 0.0
	MetricMax = 100.0
)

// Sample represents a single persisted measurement from a source.
// Samples are immutable once written: created by ingestion, deleted only
// by retention, never updated.
type Sample struct {
	// Identity
	SourceID string `json:"sourceId"` // Monitored host (free-form, logically unique)

	// Timestamp, assigned by the ingestion service, never client-supplied
	ObservedAt int64 `json:"observedAt"` // Unix timestamp in milliseconds

	// Resource usage percentages in [0, 100]
	CPU  float64 `json:"cpu"`
	RAM  float64 `json:"ram"`
	Disk float64 `json:"disk"`

	// Host metadata
	OS            string `json:"os"`            // Opaque descriptive string
	UptimeSeconds int64  `json:"uptimeSeconds"` // Non-negative
}

// ObservedTime returns the observation timestamp as a time.Time.
func (s *Sample) ObservedTime() time.Time {
	return time.UnixMilli(s.ObservedAt)
}

// Age returns how long ago the sample was observed relative to now.
func (s *Sample) Age(now time.Time) time.Duration {
	return now.Sub(s.ObservedTime())
}

// NewSample is the ingestion input: every Sample field except ObservedAt,
// which the ingestion service assigns.
type NewSample struct {
	SourceID      string  `json:"sourceId"`
	CPU           float64 `json:"cpu"`
	RAM           float64 `json:"ram"`
	Disk          float64 `json:"disk"`
	OS            string  `json:"os"`
	UptimeSeconds int64   `json:"uptimeSeconds"`
}

// Validate checks every field and reports all violations together.
// A sample that fails validation is never persisted, not even partially.
func (n *NewSample) Validate() error {
	v := errors.NewValidationErrors()

	if n.SourceID == "" {
		v.AddMissing("sourceId")
	}
	checkPercent(v, "cpu", n.CPU)
	checkPercent(v, "ram", n.RAM)
	checkPercent(v, "disk", n.Disk)
	if n.UptimeSeconds < 0 {
		v.AddField("uptimeSeconds", "must not be negative")
	}

	return v.Err()
}

// At materializes the Sample this input becomes once ingestion assigns
// the observation timestamp.
func (n *NewSample) At(observedAt int64) Sample {
	return Sample{
		SourceID:      n.SourceID,
		ObservedAt:    observedAt,
		CPU:           n.CPU,
		RAM:           n.RAM,
		Disk:          n.Disk,
		OS:            n.OS,
		UptimeSeconds: n.UptimeSeconds,
	}
}

func checkPercent(v *errors.ValidationErrors, field string, value float64) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		v.AddField(field, "must be a finite number")
		return
	}
	if value < MetricMin || value > MetricMax {
		v.AddField(field, "must be between 0 and 100")
	}
}
