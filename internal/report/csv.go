// Package report renders processed sessions for humans: CSV exports of the
// per-frame metrics and summaries, an HTML chart of raw vs fused
// trajectories, and a PNG plot for offline review.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/gaitworks/flexion/internal/pose"
)

// metricsHeader is the per-frame CSV column layout, kept stable because
// downstream analysis notebooks index it by name.
var metricsHeader = []string{
	"frame", "timestamp_ms",
	"left_knee_flexion", "right_knee_flexion",
	"left_knee_valgus", "left_knee_varus",
	"right_knee_valgus", "right_knee_varus",
	"left_knee_velocity", "right_knee_velocity",
	"left_knee_accel", "right_knee_accel",
	"asymmetry",
	"left_confidence", "right_confidence",
}

func fmtFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// WriteMetricsCSV writes one row per frame in the metricsHeader layout.
// NaN values become empty cells.
func WriteMetricsCSV(w io.Writer, metrics []pose.FrameMetrics) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(metricsHeader); err != nil {
		return err
	}
	for _, m := range metrics {
		row := []string{
			strconv.Itoa(m.Frame),
			fmtFloat(m.TimestampMS),
			fmtFloat(m.LeftKneeFlexion), fmtFloat(m.RightKneeFlexion),
			fmtFloat(m.LeftKneeValgus), fmtFloat(m.LeftKneeVarus),
			fmtFloat(m.RightKneeValgus), fmtFloat(m.RightKneeVarus),
			fmtFloat(m.LeftKneeVelocity), fmtFloat(m.RightKneeVelocity),
			fmtFloat(m.LeftKneeAccel), fmtFloat(m.RightKneeAccel),
			fmtFloat(m.Asymmetry),
			fmtFloat(m.LeftConfidence), fmtFloat(m.RightConfidence),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSummaryCSV writes the session summary as metric,value rows.
func WriteSummaryCSV(w io.Writer, s pose.SessionSummary) error {
	cw := csv.NewWriter(w)
	rows := [][2]string{
		{"total_frames", strconv.Itoa(s.TotalFrames)},
		{"fps", fmtFloat(s.FPS)},
		{"duration_seconds", fmtFloat(s.DurationSeconds)},
		{"left_knee_rom", fmtFloat(s.LeftKneeROM)},
		{"right_knee_rom", fmtFloat(s.RightKneeROM)},
		{"left_knee_max_flexion", fmtFloat(s.LeftKneeMaxFlexion)},
		{"right_knee_max_flexion", fmtFloat(s.RightKneeMaxFlexion)},
		{"left_knee_min_flexion", fmtFloat(s.LeftKneeMinFlexion)},
		{"right_knee_min_flexion", fmtFloat(s.RightKneeMinFlexion)},
		{"left_knee_peak_velocity", fmtFloat(s.LeftKneePeakVelocity)},
		{"right_knee_peak_velocity", fmtFloat(s.RightKneePeakVelocity)},
		{"mean_asymmetry", fmtFloat(s.MeanAsymmetry)},
		{"max_asymmetry", fmtFloat(s.MaxAsymmetry)},
		{"left_knee_max_valgus", fmtFloat(s.LeftKneeMaxValgus)},
		{"right_knee_max_valgus", fmtFloat(s.RightKneeMaxValgus)},
	}
	if err := cw.Write([]string{"metric", "value"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r[:]); err != nil {
			return fmt.Errorf("failed to write %s row: %w", r[0], err)
		}
	}
	cw.Flush()
	return cw.Error()
}
