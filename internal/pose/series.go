package pose

import "math"

// JointID identifies one of the tracked joint angles.
type JointID string

const (
	LeftKneeFlexion       JointID = "left_knee_flexion"
	RightKneeFlexion      JointID = "right_knee_flexion"
	LeftHipFlexion        JointID = "left_hip_flexion"
	RightHipFlexion       JointID = "right_hip_flexion"
	LeftAnkleDorsiflexion JointID = "left_ankle_dorsiflexion"
	RightAnkleDorsiflex   JointID = "right_ankle_dorsiflexion"
)

// JointSpec names the three keypoints (proximal, vertex, distal) whose
// 3-point angle defines a joint's flexion.
type JointSpec struct {
	ID       JointID
	Proximal int
	Vertex   int
	Distal   int
}

// TrackedJoints lists the six joint angles the pipeline produces, in output
// column order.
var TrackedJoints = []JointSpec{
	{ID: LeftKneeFlexion, Proximal: LeftHip, Vertex: LeftKnee, Distal: LeftAnkle},
	{ID: RightKneeFlexion, Proximal: RightHip, Vertex: RightKnee, Distal: RightAnkle},
	{ID: LeftHipFlexion, Proximal: LeftShoulder, Vertex: LeftHip, Distal: LeftKnee},
	{ID: RightHipFlexion, Proximal: RightShoulder, Vertex: RightHip, Distal: RightKnee},
	{ID: LeftAnkleDorsiflexion, Proximal: LeftKnee, Vertex: LeftAnkle, Distal: LeftBigToe},
	{ID: RightAnkleDorsiflex, Proximal: RightKnee, Vertex: RightAnkle, Distal: RightBigToe},
}

// JointByID returns the keypoint triple for a joint ID, or false if unknown.
func JointByID(id JointID) (JointSpec, bool) {
	for _, j := range TrackedJoints {
		if j.ID == id {
			return j, true
		}
	}
	return JointSpec{}, false
}

// AngleSample is one joint angle measurement derived from a single frame.
// AngleDeg and Confidence are NaN when the angle is undefined (sentinel
// frame or degenerate keypoints).
type AngleSample struct {
	TimestampMS float64
	AngleDeg    float64
	Confidence  float64
}

// Valid reports whether the sample carries a defined angle and confidence.
func (s AngleSample) Valid() bool {
	return !math.IsNaN(s.AngleDeg) && !math.IsNaN(s.Confidence)
}

// BuildSeries produces one AngleSample per frame for the given joint.
// Frames are normalized first; sentinel frames yield NaN angle and NaN
// confidence so the output stays index-aligned with the input frames.
func BuildSeries(frames []Frame, fps float64, joint JointSpec, norm *Normalizer) []AngleSample {
	if norm == nil {
		norm = NewNormalizer()
	}

	out := make([]AngleSample, len(frames))
	for i, f := range frames {
		ts := FrameTimestampMS(f.Index, fps)
		nf := norm.Normalize(f)

		if IsSentinel(nf) {
			out[i] = AngleSample{TimestampMS: ts, AngleDeg: math.NaN(), Confidence: math.NaN()}
			continue
		}

		a := nf.Keypoints[joint.Proximal]
		b := nf.Keypoints[joint.Vertex]
		c := nf.Keypoints[joint.Distal]

		angle := Angle(a, b, c)
		// A single undetected keypoint (near-zero after normalization) also
		// leaves the angle undefined even when the difference vectors happen
		// to be non-degenerate.
		if a.Norm() < MinVectorNorm || b.Norm() < MinVectorNorm || c.Norm() < MinVectorNorm {
			angle = math.NaN()
		}

		conf := (a.Confidence + b.Confidence + c.Confidence) / 3.0
		out[i] = AngleSample{TimestampMS: ts, AngleDeg: angle, Confidence: conf}
	}
	return out
}

// BuildAllSeries builds the series for every tracked joint.
func BuildAllSeries(frames []Frame, fps float64, norm *Normalizer) map[JointID][]AngleSample {
	out := make(map[JointID][]AngleSample, len(TrackedJoints))
	for _, joint := range TrackedJoints {
		out[joint.ID] = BuildSeries(frames, fps, joint, norm)
	}
	return out
}

// AngularRate derives an angular-rate series (deg/s) from an angle series by
// finite differences between consecutive valid samples. Pairs spanning an
// undefined sample are skipped, so the output may be shorter than the input.
// Returns parallel value and timestamp slices; timestamps are the midpoint
// of each difference interval.
func AngularRate(samples []AngleSample) (values, timestampsMS []float64) {
	prev := -1
	for i, s := range samples {
		if !s.Valid() {
			continue
		}
		if prev >= 0 {
			p := samples[prev]
			dt := (s.TimestampMS - p.TimestampMS) / 1000.0
			if dt > 0 {
				values = append(values, (s.AngleDeg-p.AngleDeg)/dt)
				timestampsMS = append(timestampsMS, (s.TimestampMS+p.TimestampMS)/2.0)
			}
		}
		prev = i
	}
	return values, timestampsMS
}
