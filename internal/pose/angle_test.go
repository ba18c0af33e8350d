package pose

import (
	"math"
	"testing"
)

func kp(x, y, z float64) Keypoint {
	return Keypoint{X: x, Y: y, Z: z, Confidence: 1.0}
}

func TestAngle_Colinear(t *testing.T) {
	// b between a and c on a straight line: interior angle is 180 degrees.
	a := kp(0, 0, 0)
	b := kp(1, 0, 0)
	c := kp(2, 0, 0)

	got := Angle(a, b, c)
	if math.Abs(got-180.0) > 1e-9 {
		t.Errorf("colinear angle = %v, want 180", got)
	}
}

func TestAngle_RightAngle(t *testing.T) {
	a := kp(1, 0, 0)
	b := kp(0, 0, 0)
	c := kp(0, 1, 0)

	got := Angle(a, b, c)
	if math.Abs(got-90.0) > 1e-9 {
		t.Errorf("right angle = %v, want 90", got)
	}
}

func TestAngle_DegenerateVectors(t *testing.T) {
	tests := []struct {
		name    string
		a, b, c Keypoint
	}{
		{"duplicate proximal", kp(1, 1, 1), kp(1, 1, 1), kp(2, 0, 0)},
		{"duplicate distal", kp(2, 0, 0), kp(1, 1, 1), kp(1, 1, 1)},
		{"all identical", kp(0, 0, 0), kp(0, 0, 0), kp(0, 0, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Angle(tt.a, tt.b, tt.c); !math.IsNaN(got) {
				t.Errorf("Angle = %v, want NaN", got)
			}
		})
	}
}

func TestAngle_ClampHandlesRounding(t *testing.T) {
	// Nearly identical directions can push the cosine fractionally above 1.
	a := kp(1, 1e-16, 0)
	b := kp(0, 0, 0)
	c := kp(1, 0, 0)

	got := Angle(a, b, c)
	if math.IsNaN(got) {
		t.Fatal("expected defined angle, got NaN")
	}
	if got < 0 || got > 1e-6 {
		t.Errorf("near-zero angle = %v, want ~0", got)
	}
}

func TestNormalize_ScaleInvariance(t *testing.T) {
	base := Frame{Index: 3}
	for i := range base.Keypoints {
		base.Keypoints[i] = kp(float64(i)*0.3+0.2, float64(i)*0.1-0.4, 0.5)
	}

	norm := NewNormalizer()
	ref := norm.Normalize(base)

	for _, k := range []float64{2.0, 0.5, 17.3} {
		scaled := Frame{Index: 3}
		for i, p := range base.Keypoints {
			scaled.Keypoints[i] = Keypoint{X: p.X * k, Y: p.Y * k, Z: p.Z * k, Confidence: p.Confidence}
		}
		got := norm.Normalize(scaled)
		for i := range got.Keypoints {
			if math.Abs(got.Keypoints[i].X-ref.Keypoints[i].X) > 1e-9 ||
				math.Abs(got.Keypoints[i].Y-ref.Keypoints[i].Y) > 1e-9 ||
				math.Abs(got.Keypoints[i].Z-ref.Keypoints[i].Z) > 1e-9 {
				t.Fatalf("scale %v keypoint %d = %+v, want %+v", k, i, got.Keypoints[i], ref.Keypoints[i])
			}
		}
	}
}

func TestNormalize_SentinelFrame(t *testing.T) {
	var empty Frame
	got := NewNormalizer().Normalize(empty)
	if !IsSentinel(got) {
		t.Error("normalizing a sentinel frame should stay a sentinel")
	}
	for i, k := range got.Keypoints {
		if k.X != 0 || k.Y != 0 || k.Z != 0 || k.Confidence != 0 {
			t.Fatalf("keypoint %d = %+v, want zero", i, k)
		}
	}
}

func TestNormalize_ShortTorsoLeavesUnscaled(t *testing.T) {
	f := Frame{}
	// Shoulders and hips nearly coincide; another keypoint carries the
	// magnitude so the frame is not a sentinel.
	f.Keypoints[LeftShoulder] = kp(0.001, 0, 0)
	f.Keypoints[RightShoulder] = kp(0.001, 0, 0)
	f.Keypoints[LeftHip] = kp(0, 0, 0)
	f.Keypoints[RightHip] = kp(0, 0, 0)
	f.Keypoints[Nose] = kp(1, 2, 3)

	got := NewNormalizer().Normalize(f)
	if got.Keypoints[Nose] != f.Keypoints[Nose] {
		t.Errorf("short torso frame was rescaled: %+v", got.Keypoints[Nose])
	}
}

func TestRemapAxes(t *testing.T) {
	k := Keypoint{X: 1, Y: 2, Z: 3, Confidence: 0.7}
	got := RemapAxes(k)
	want := Keypoint{X: 1, Y: 3, Z: -2, Confidence: 0.7}
	if got != want {
		t.Errorf("RemapAxes = %+v, want %+v", got, want)
	}
}
