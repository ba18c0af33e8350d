package pose

import "math"

// FrameMetrics collects the per-frame knee measurements exported to CSV and
// persisted per session.
type FrameMetrics struct {
	Frame       int
	TimestampMS float64

	LeftKneeFlexion  float64
	RightKneeFlexion float64

	LeftKneeValgus  float64
	LeftKneeVarus   float64
	RightKneeValgus float64
	RightKneeVarus  float64

	LeftKneeVelocity  float64 // deg/s
	RightKneeVelocity float64
	LeftKneeAccel     float64 // deg/s^2
	RightKneeAccel    float64

	Asymmetry float64 // |left - right| flexion

	LeftConfidence  float64
	RightConfidence float64
}

// ValgusVarus computes the frontal-plane (X-Z, y up) deviation of the knee
// from the hip-ankle line. The returned pair is (valgus, varus) in degrees;
// exactly one of the two is non-zero depending on the deviation direction.
func ValgusVarus(hip, knee, ankle Keypoint) (valgus, varus float64) {
	hx, hz := hip.X, hip.Z
	kx, kz := knee.X, knee.Z
	ax, az := ankle.X, ankle.Z

	lineX, lineZ := ax-hx, az-hz
	lineNorm := math.Hypot(lineX, lineZ)
	if lineNorm < 1e-6 {
		return 0, 0
	}

	// Project the knee onto the hip-ankle line and measure the lateral
	// deviation from the projection point.
	toKneeX, toKneeZ := kx-hx, kz-hz
	t := (toKneeX*lineX + toKneeZ*lineZ) / (lineNorm * lineNorm)
	projX := hx + t*lineX
	projZ := hz + t*lineZ

	devX, devZ := kx-projX, kz-projZ
	dev := math.Hypot(devX, devZ)
	if dev < 1e-6 {
		return 0, 0
	}

	angle := math.Atan2(dev, lineNorm*math.Abs(t-0.5)) * 180.0 / math.Pi

	// Sign of the 2D cross product picks the deviation side.
	cross := lineX*toKneeZ - lineZ*toKneeX
	if cross > 0 {
		return angle, 0
	}
	return 0, angle
}

// AnalyzeFrames computes FrameMetrics for every frame. Velocities and
// accelerations are finite differences at the frame interval; the first
// frame of each chain starts at zero. NaN flexion angles propagate into the
// dependent metrics.
func AnalyzeFrames(frames []Frame, fps float64, norm *Normalizer) []FrameMetrics {
	if norm == nil {
		norm = NewNormalizer()
	}
	if fps <= 0 {
		fps = 30.0
	}
	dt := 1.0 / fps

	left, _ := JointByID(LeftKneeFlexion)
	right, _ := JointByID(RightKneeFlexion)
	leftSeries := BuildSeries(frames, fps, left, norm)
	rightSeries := BuildSeries(frames, fps, right, norm)

	out := make([]FrameMetrics, len(frames))
	var prevLeft, prevRight, prevLeftVel, prevRightVel float64
	havePrev := false
	havePrevVel := false

	for i, f := range frames {
		nf := norm.Normalize(f)
		m := FrameMetrics{
			Frame:            f.Index,
			TimestampMS:      FrameTimestampMS(f.Index, fps),
			LeftKneeFlexion:  leftSeries[i].AngleDeg,
			RightKneeFlexion: rightSeries[i].AngleDeg,
			LeftConfidence:   leftSeries[i].Confidence,
			RightConfidence:  rightSeries[i].Confidence,
		}

		if !IsSentinel(nf) {
			m.LeftKneeValgus, m.LeftKneeVarus = ValgusVarus(
				nf.Keypoints[LeftHip], nf.Keypoints[LeftKnee], nf.Keypoints[LeftAnkle])
			m.RightKneeValgus, m.RightKneeVarus = ValgusVarus(
				nf.Keypoints[RightHip], nf.Keypoints[RightKnee], nf.Keypoints[RightAnkle])
		}

		if havePrev {
			m.LeftKneeVelocity = (m.LeftKneeFlexion - prevLeft) / dt
			m.RightKneeVelocity = (m.RightKneeFlexion - prevRight) / dt
		}
		if havePrevVel {
			m.LeftKneeAccel = (m.LeftKneeVelocity - prevLeftVel) / dt
			m.RightKneeAccel = (m.RightKneeVelocity - prevRightVel) / dt
		}

		m.Asymmetry = math.Abs(m.LeftKneeFlexion - m.RightKneeFlexion)

		out[i] = m

		prevLeft, prevRight = m.LeftKneeFlexion, m.RightKneeFlexion
		havePrevVel = havePrev
		prevLeftVel, prevRightVel = m.LeftKneeVelocity, m.RightKneeVelocity
		havePrev = true
	}
	return out
}
