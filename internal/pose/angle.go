package pose

import "math"

// MinVectorNorm is the smallest limb-segment vector magnitude treated as
// defined geometry. Below this (duplicate or zero keypoints) the angle is NaN.
const MinVectorNorm = 1e-9

// Angle computes the interior angle in degrees at vertex b formed by the
// vectors b->a and b->c. Returns NaN when either vector is degenerate.
// The cosine is clamped to [-1, 1] before acos so floating-point rounding
// cannot cause a domain error.
func Angle(a, b, c Keypoint) float64 {
	ba := a.Sub(b)
	bc := c.Sub(b)

	nba := ba.Norm()
	nbc := bc.Norm()
	if nba < MinVectorNorm || nbc < MinVectorNorm {
		return math.NaN()
	}

	dot := ba.X*bc.X + ba.Y*bc.Y + ba.Z*bc.Z
	cos := dot / (nba * nbc)
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return math.Acos(cos) * 180.0 / math.Pi
}
