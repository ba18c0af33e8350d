package fusion

import "github.com/gaitworks/flexion/internal/pose"

// FrameAngle is a per-frame fused angle on the video timeline.
type FrameAngle struct {
	FrameIndex  int     `json:"frame_index"`
	TimestampMS float64 `json:"timestamp_ms"`
	AngleDeg    float64 `json:"angle_deg"`
}

// MapToFrames projects the fused timeline back onto the video frame
// timeline. Frame i gets the mean of all fused samples with timestamps
// strictly before the frame's own timestamp that have not been consumed by
// an earlier frame; each fused sample contributes to exactly one frame.
// Frames with no new fused samples keep the base series value, so the
// output always has exactly one angle per base frame.
func MapToFrames(base []pose.AngleSample, fused []FusedSample) []FrameAngle {
	out := make([]FrameAngle, len(base))
	fi := 0
	for i, b := range base {
		var sum float64
		var n int
		for fi < len(fused) && fused[fi].TimestampMS < b.TimestampMS {
			sum += fused[fi].AngleDeg
			n++
			fi++
		}
		angle := b.AngleDeg
		if n > 0 {
			angle = sum / float64(n)
		}
		out[i] = FrameAngle{FrameIndex: i, TimestampMS: b.TimestampMS, AngleDeg: angle}
	}
	return out
}
