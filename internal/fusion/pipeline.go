package fusion

import (
	"github.com/gaitworks/flexion/internal/imu"
	"github.com/gaitworks/flexion/internal/monitoring"
	"github.com/gaitworks/flexion/internal/pose"
)

// FusedSample is one output of the fusion pipeline, on the merged
// predict/update timeline.
type FusedSample struct {
	TimestampMS float64 `json:"timestamp_ms"`
	AngleDeg    float64 `json:"angle_deg"`
	BiasDegS    float64 `json:"bias_deg_s"`
}

// Fuse runs the EKF over a vision angle series and an inertial rate series,
// merged by timestamp. The filter is seeded from the first valid vision
// sample; everything before it is discarded. With no usable inertial data
// the output degrades to the vision series passed through the update step
// alone, which leaves the angles unchanged.
//
// Invalid vision samples (NaN angle) and non-advancing inertial timestamps
// are skipped, not propagated.
func Fuse(visionSeries []pose.AngleSample, imuSeries []imu.Sample, cfg FilterConfig) []FusedSample {
	seed := -1
	for i, s := range visionSeries {
		if s.Valid() {
			seed = i
			break
		}
	}
	if seed < 0 {
		return nil
	}

	f := NewFilter(visionSeries[seed].AngleDeg, cfg)
	lastTS := visionSeries[seed].TimestampMS

	out := make([]FusedSample, 0, len(visionSeries)+len(imuSeries))
	out = append(out, FusedSample{TimestampMS: lastTS, AngleDeg: f.Angle(), BiasDegS: f.Bias()})

	vi, ii := seed+1, 0
	for ii < len(imuSeries) && imuSeries[ii].TimestampMS <= lastTS {
		ii++
	}

	for vi < len(visionSeries) || ii < len(imuSeries) {
		// Inertial sample first on ties so the vision correction lands on an
		// already-propagated state.
		takeIMU := ii < len(imuSeries) &&
			(vi >= len(visionSeries) || imuSeries[ii].TimestampMS <= visionSeries[vi].TimestampMS)

		if takeIMU {
			s := imuSeries[ii]
			ii++
			dt := (s.TimestampMS - lastTS) / 1000.0
			if dt <= 0 {
				continue
			}
			if err := f.Predict(s.RateDegS, dt); err != nil {
				monitoring.Logf("fusion: skipping inertial sample at %.1fms: %v", s.TimestampMS, err)
				continue
			}
			lastTS = s.TimestampMS
			out = append(out, FusedSample{TimestampMS: lastTS, AngleDeg: f.Angle(), BiasDegS: f.Bias()})
			continue
		}

		s := visionSeries[vi]
		vi++
		if !s.Valid() {
			continue
		}
		if dt := (s.TimestampMS - lastTS) / 1000.0; dt > 0 {
			// Coast to the measurement time with zero commanded rate; the
			// bias estimate still integrates.
			if err := f.Predict(0, dt); err != nil {
				monitoring.Logf("fusion: coast to %.1fms failed: %v", s.TimestampMS, err)
			} else {
				lastTS = s.TimestampMS
			}
		}
		f.Update(s.AngleDeg, s.Confidence)
		if s.TimestampMS >= lastTS {
			lastTS = s.TimestampMS
		}
		out = append(out, FusedSample{TimestampMS: lastTS, AngleDeg: f.Angle(), BiasDegS: f.Bias()})
	}

	return out
}

// Process runs the full fusion pass for one joint: EKF fusion over the
// merged timeline, then projection back onto the video frame timeline.
// With no inertial samples the vision series is returned unchanged, frame
// for frame.
func Process(visionSeries []pose.AngleSample, imuSeries []imu.Sample, cfg FilterConfig) []FrameAngle {
	if len(imuSeries) == 0 {
		out := make([]FrameAngle, len(visionSeries))
		for i, s := range visionSeries {
			out[i] = FrameAngle{FrameIndex: i, TimestampMS: s.TimestampMS, AngleDeg: s.AngleDeg}
		}
		return out
	}
	fused := Fuse(visionSeries, imuSeries, cfg)
	return MapToFrames(visionSeries, fused)
}
