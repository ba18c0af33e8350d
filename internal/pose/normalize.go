package pose

import "math"

// Constants for the torso-height normalization model.
const (
	// SentinelSumThreshold is the minimum sum of absolute coordinate values
	// for a frame to count as a detection. Below this the frame is treated
	// as "no person detected" and emitted as all zeros.
	SentinelSumThreshold = 0.1

	// DefaultTorsoNormMin is the minimum torso height to normalize by.
	// Shorter torsos (collapsed or duplicate trunk keypoints) leave the
	// frame unscaled rather than amplifying noise.
	DefaultTorsoNormMin = 0.01
)

// Normalizer scales pose frames by the subject's torso height so angle
// geometry is comparable across subjects and camera distances without
// camera calibration. Torso height is the distance from the shoulder
// midpoint to the hip midpoint.
type Normalizer struct {
	// TorsoNormMin is the minimum torso height to divide by.
	TorsoNormMin float64
}

// NewNormalizer returns a Normalizer with the default minimum torso height.
func NewNormalizer() *Normalizer {
	return &Normalizer{TorsoNormMin: DefaultTorsoNormMin}
}

func midpoint(a, b Keypoint) Keypoint {
	return Keypoint{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2, Z: (a.Z + b.Z) / 2}
}

// TorsoHeight returns the shoulder-midpoint to hip-midpoint distance.
func TorsoHeight(f Frame) float64 {
	chest := midpoint(f.Keypoints[LeftShoulder], f.Keypoints[RightShoulder])
	pelvis := midpoint(f.Keypoints[LeftHip], f.Keypoints[RightHip])
	return chest.Sub(pelvis).Norm()
}

// IsSentinel reports whether the frame represents "no detection": the sum of
// absolute coordinate values is below the sentinel threshold.
func IsSentinel(f Frame) bool {
	var sum float64
	for _, k := range f.Keypoints {
		sum += math.Abs(k.X) + math.Abs(k.Y) + math.Abs(k.Z)
	}
	return sum < SentinelSumThreshold
}

// Normalize scales every keypoint coordinate in the frame by the torso
// height. Sentinel frames come back as all-zero frames with zero confidence.
// If the torso height is below TorsoNormMin the coordinates are left
// unscaled. Confidences pass through untouched.
func (n *Normalizer) Normalize(f Frame) Frame {
	if IsSentinel(f) {
		return Frame{Index: f.Index}
	}

	torso := TorsoHeight(f)
	if torso <= n.TorsoNormMin {
		return f
	}

	out := Frame{Index: f.Index}
	for i, k := range f.Keypoints {
		out.Keypoints[i] = Keypoint{
			X:          k.X / torso,
			Y:          k.Y / torso,
			Z:          k.Z / torso,
			Confidence: k.Confidence,
		}
	}
	return out
}
