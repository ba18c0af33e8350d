// Package align estimates the clock offset between the strap's inertial
// stream and the vision-derived angular-rate stream by cross-correlating the
// two signals on a common time grid. The offset is diagnostic: it tells the
// operator how far apart the two clocks started, it is not applied
// automatically.
package align

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/stat"
)

// DefaultStepMS is the default resampling grid step.
const DefaultStepMS = 10.0

// minStdDev is the smallest standard deviation worth z-scoring by. Flatter
// signals skip normalization instead of dividing by near-zero.
const minStdDev = 1e-5

// Config holds aligner tuning.
type Config struct {
	// StepMS is the common grid step in milliseconds. Zero means
	// DefaultStepMS.
	StepMS float64
}

// Result is the estimated offset between the two streams.
//
// A positive OffsetMS means the inertial stream's features occur later than
// the vision stream's corresponding features by that many milliseconds.
// Score is the peak correlation divided by the grid length; near 1 for a
// clean match, near 0 for unrelated signals.
type Result struct {
	OffsetMS float64 `json:"offset_ms"`
	Score    float64 `json:"correlation_score"`
}

// Align estimates the time offset between an IMU-derived series and a
// CV-derived series. Each series is given as parallel value/timestamp
// slices with strictly increasing millisecond timestamps.
//
// Degenerate inputs still produce a defined Result rather than an error: a
// single-sample series is held constant across the grid, and an empty
// series yields a zero offset with zero confidence. The score is expected
// to be low in those cases; halting a whole session over a thin diagnostic
// signal would be worse.
func Align(imuValues, imuTimesMS, cvValues, cvTimesMS []float64, cfg Config) (Result, error) {
	if len(imuValues) != len(imuTimesMS) {
		return Result{}, fmt.Errorf("align: imu series lengths differ (%d values, %d timestamps)",
			len(imuValues), len(imuTimesMS))
	}
	if len(cvValues) != len(cvTimesMS) {
		return Result{}, fmt.Errorf("align: cv series lengths differ (%d values, %d timestamps)",
			len(cvValues), len(cvTimesMS))
	}
	if len(imuValues) == 0 || len(cvValues) == 0 {
		return Result{}, nil
	}

	step := cfg.StepMS
	if step <= 0 {
		step = DefaultStepMS
	}

	// Common grid from 0 to the later of the two series' ends, exclusive.
	maxTime := imuTimesMS[len(imuTimesMS)-1]
	if last := cvTimesMS[len(cvTimesMS)-1]; last > maxTime {
		maxTime = last
	}
	n := int(math.Ceil(maxTime / step))
	if n < 2 {
		n = 2
	}

	imuGrid, err := resampleToGrid(imuValues, imuTimesMS, n, step)
	if err != nil {
		return Result{}, fmt.Errorf("align: imu series: %w", err)
	}
	cvGrid, err := resampleToGrid(cvValues, cvTimesMS, n, step)
	if err != nil {
		return Result{}, fmt.Errorf("align: cv series: %w", err)
	}

	zscore(imuGrid)
	zscore(cvGrid)

	lag, peak := crossCorrelatePeak(imuGrid, cvGrid)
	return Result{
		OffsetMS: float64(lag) * step,
		Score:    peak / float64(n),
	}, nil
}

// resampleToGrid linearly interpolates a series onto the n-point grid
// {0, step, 2*step, ...}. Outside the series' own range the boundary value
// is held; a single-sample series is held constant everywhere.
func resampleToGrid(values, timesMS []float64, n int, step float64) ([]float64, error) {
	out := make([]float64, n)
	if len(values) == 1 {
		for i := range out {
			out[i] = values[0]
		}
		return out, nil
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(timesMS, values); err != nil {
		return nil, err
	}

	first, last := timesMS[0], timesMS[len(timesMS)-1]
	for i := range out {
		t := float64(i) * step
		// PiecewiseLinear clamps to the boundary values outside the fitted
		// range; make the hold explicit so the behavior does not depend on
		// the interpolator's extrapolation choice.
		switch {
		case t <= first:
			out[i] = values[0]
		case t >= last:
			out[i] = values[len(values)-1]
		default:
			out[i] = pl.Predict(t)
		}
	}
	return out, nil
}

// zscore normalizes a series in place to zero mean and unit (population)
// standard deviation. Degenerate flat series are left untouched.
func zscore(xs []float64) {
	mean := stat.Mean(xs, nil)
	std := stat.PopStdDev(xs, nil)
	if std < minStdDev {
		return
	}
	for i := range xs {
		xs[i] = (xs[i] - mean) / std
	}
}

// crossCorrelatePeak computes the full cross-correlation of a against v
// (equal lengths) and returns the lag with the maximum value along with
// that value. Lag l means a[j] pairs with v[j-l]: a positive lag says a's
// features trail v's.
func crossCorrelatePeak(a, v []float64) (lag int, peak float64) {
	n := len(a)
	bestLag := -(n - 1)
	best := math.Inf(-1)

	for l := -(n - 1); l <= n-1; l++ {
		var sum float64
		lo := 0
		if l > 0 {
			lo = l
		}
		hi := n
		if l < 0 {
			hi = n + l
		}
		for j := lo; j < hi; j++ {
			sum += a[j] * v[j-l]
		}
		if sum > best {
			best = sum
			bestLag = l
		}
	}
	return bestLag, best
}
