// Package pose converts 3D pose-estimation keypoints into anatomical joint
// angles. It owns the torso-height normalization model, the 3-point angle
// formula, and the per-joint time series builder that downstream fusion
// consumes.
package pose

import "math"

// NumKeypoints is the number of body+foot keypoints per frame, in the
// canonical wholebody order below.
const NumKeypoints = 23

// Keypoint indices in the canonical order emitted by the 3D pose model.
const (
	Nose = iota
	LeftEye
	RightEye
	LeftEar
	RightEar
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
	LeftBigToe
	LeftSmallToe
	LeftHeel
	RightBigToe
	RightSmallToe
	RightHeel
)

// KeypointNames maps each index to its canonical name, used for CSV headers.
var KeypointNames = [NumKeypoints]string{
	"nose", "left_eye", "right_eye", "left_ear", "right_ear",
	"left_shoulder", "right_shoulder", "left_elbow", "right_elbow",
	"left_wrist", "right_wrist", "left_hip", "right_hip",
	"left_knee", "right_knee", "left_ankle", "right_ankle",
	"left_big_toe", "left_small_toe", "left_heel",
	"right_big_toe", "right_small_toe", "right_heel",
}

// Keypoint is a single 3D position with a detection confidence in [0,1].
type Keypoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Confidence float64 `json:"confidence"`
}

// Norm returns the Euclidean magnitude of the keypoint position.
func (k Keypoint) Norm() float64 {
	return math.Sqrt(k.X*k.X + k.Y*k.Y + k.Z*k.Z)
}

// Sub returns the vector k - o as a Keypoint with zero confidence.
func (k Keypoint) Sub(o Keypoint) Keypoint {
	return Keypoint{X: k.X - o.X, Y: k.Y - o.Y, Z: k.Z - o.Z}
}

// Frame is one decoded video frame's worth of keypoints. A frame with no
// detected person carries all-zero keypoints with zero confidence.
type Frame struct {
	Index     int                    `json:"index"`
	Keypoints [NumKeypoints]Keypoint `json:"keypoints"`
}

// FrameTimestampMS derives the timestamp of a frame from its index and the
// video frame rate.
func FrameTimestampMS(index int, fps float64) float64 {
	if fps <= 0 {
		fps = 30.0
	}
	return float64(index) * (1000.0 / fps)
}

// RemapAxes converts a keypoint from the pose model's coordinate system
// (x, z, -y) into the working frame where y is up: X->X, Z->Y, -Y->Z.
func RemapAxes(k Keypoint) Keypoint {
	return Keypoint{X: k.X, Y: k.Z, Z: -k.Y, Confidence: k.Confidence}
}

// RemapFrame applies RemapAxes to every keypoint in the frame.
func RemapFrame(f Frame) Frame {
	out := Frame{Index: f.Index}
	for i, k := range f.Keypoints {
		out.Keypoints[i] = RemapAxes(k)
	}
	return out
}
