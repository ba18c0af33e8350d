package pose

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// SessionSummary aggregates a processed session's knee metrics: range of
// motion, peaks, and symmetry. NaN frames are excluded from every statistic.
type SessionSummary struct {
	TotalFrames     int
	FPS             float64
	DurationSeconds float64

	LeftKneeROM  float64
	RightKneeROM float64

	LeftKneeMaxFlexion  float64
	RightKneeMaxFlexion float64
	LeftKneeMinFlexion  float64
	RightKneeMinFlexion float64

	LeftKneePeakVelocity  float64
	RightKneePeakVelocity float64

	MeanAsymmetry float64
	MaxAsymmetry  float64

	LeftKneeMaxValgus  float64
	RightKneeMaxValgus float64
}

func finite(vals []float64) []float64 {
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

func minMax(vals []float64) (min, max float64) {
	if len(vals) == 0 {
		return math.NaN(), math.NaN()
	}
	min, max = vals[0], vals[0]
	for _, v := range vals[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

// Summarize computes a SessionSummary from per-frame metrics. Returns a zero
// summary when metrics is empty.
func Summarize(metrics []FrameMetrics, fps float64) SessionSummary {
	s := SessionSummary{TotalFrames: len(metrics), FPS: fps}
	if len(metrics) == 0 {
		return s
	}
	if fps > 0 {
		s.DurationSeconds = float64(len(metrics)) / fps
	}

	leftFlex := make([]float64, 0, len(metrics))
	rightFlex := make([]float64, 0, len(metrics))
	leftVel := make([]float64, 0, len(metrics))
	rightVel := make([]float64, 0, len(metrics))
	asym := make([]float64, 0, len(metrics))
	leftValgus := make([]float64, 0, len(metrics))
	rightValgus := make([]float64, 0, len(metrics))

	for _, m := range metrics {
		leftFlex = append(leftFlex, m.LeftKneeFlexion)
		rightFlex = append(rightFlex, m.RightKneeFlexion)
		leftVel = append(leftVel, math.Abs(m.LeftKneeVelocity))
		rightVel = append(rightVel, math.Abs(m.RightKneeVelocity))
		asym = append(asym, m.Asymmetry)
		leftValgus = append(leftValgus, m.LeftKneeValgus)
		rightValgus = append(rightValgus, m.RightKneeValgus)
	}

	leftFlex = finite(leftFlex)
	rightFlex = finite(rightFlex)
	leftVel = finite(leftVel)
	rightVel = finite(rightVel)
	asym = finite(asym)
	leftValgus = finite(leftValgus)
	rightValgus = finite(rightValgus)

	s.LeftKneeMinFlexion, s.LeftKneeMaxFlexion = minMax(leftFlex)
	s.RightKneeMinFlexion, s.RightKneeMaxFlexion = minMax(rightFlex)
	s.LeftKneeROM = s.LeftKneeMaxFlexion - s.LeftKneeMinFlexion
	s.RightKneeROM = s.RightKneeMaxFlexion - s.RightKneeMinFlexion

	_, s.LeftKneePeakVelocity = minMax(leftVel)
	_, s.RightKneePeakVelocity = minMax(rightVel)

	if len(asym) > 0 {
		s.MeanAsymmetry = stat.Mean(asym, nil)
	}
	_, s.MaxAsymmetry = minMax(asym)
	_, s.LeftKneeMaxValgus = minMax(leftValgus)
	_, s.RightKneeMaxValgus = minMax(rightValgus)

	return s
}
