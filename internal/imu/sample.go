// Package imu ingests dual-gyroscope samples from the knee strap and
// validates them into the tagged form the fusion filter consumes. The strap
// carries one sensor above and one below the joint; the difference of their
// angular rates about the flexion axis approximates the joint's own
// rotational rate.
package imu

import (
	"errors"
	"fmt"
	"math"
)

// Axis selects which gyroscope axis carries the flexion rotation.
type Axis int

const (
	AxisX Axis = 0
	AxisY Axis = 1
	AxisZ Axis = 2
)

// Sample is one validated relative angular-rate measurement.
type Sample struct {
	TimestampMS float64 `json:"timestamp_ms"`
	RateDegS    float64 `json:"rate_deg_s"`
}

var (
	// ErrNonMonotonic is returned when a sample does not advance the clock.
	ErrNonMonotonic = errors.New("imu: timestamps must be strictly increasing")
	// ErrNotFinite is returned for NaN or infinite fields.
	ErrNotFinite = errors.New("imu: sample fields must be finite")
)

// Validate checks a single sample for finite fields.
func (s Sample) Validate() error {
	if math.IsNaN(s.TimestampMS) || math.IsInf(s.TimestampMS, 0) ||
		math.IsNaN(s.RateDegS) || math.IsInf(s.RateDegS, 0) {
		return ErrNotFinite
	}
	return nil
}

// ValidateSeries checks that every sample is finite and that timestamps are
// strictly increasing. Returns the index of the first offending sample in
// the error.
func ValidateSeries(samples []Sample) error {
	for i, s := range samples {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
		if i > 0 && s.TimestampMS <= samples[i-1].TimestampMS {
			return fmt.Errorf("sample %d (t=%.3f after t=%.3f): %w",
				i, s.TimestampMS, samples[i-1].TimestampMS, ErrNonMonotonic)
		}
	}
	return nil
}

// RelativeRate computes the joint's angular rate from the two straddling
// gyroscopes: the distal sensor's rate minus the proximal sensor's rate
// about the flexion axis, in deg/s.
func RelativeRate(gyroProximal, gyroDistal [3]float64, axis Axis) float64 {
	return gyroDistal[axis] - gyroProximal[axis]
}
