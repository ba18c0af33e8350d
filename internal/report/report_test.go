package report

import (
	"bytes"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gaitworks/flexion/internal/fusion"
	"github.com/gaitworks/flexion/internal/pose"
)

func sampleMetrics() []pose.FrameMetrics {
	return []pose.FrameMetrics{
		{
			Frame: 0, TimestampMS: 0,
			LeftKneeFlexion: 170, RightKneeFlexion: 168,
			Asymmetry:      2,
			LeftConfidence: 0.9, RightConfidence: 0.85,
		},
		{
			Frame: 1, TimestampMS: 33.3333,
			LeftKneeFlexion: math.NaN(), RightKneeFlexion: 165,
			LeftKneeVelocity: math.NaN(), RightKneeVelocity: -90,
			Asymmetry:        math.NaN(),
			LeftConfidence:   math.NaN(), RightConfidence: 0.8,
		},
	}
}

func TestWriteMetricsCSV_Layout(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMetricsCSV(&buf, sampleMetrics()); err != nil {
		t.Fatalf("WriteMetricsCSV failed: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}

	header := rows[0]
	if header[0] != "frame" || header[2] != "left_knee_flexion" || header[12] != "asymmetry" {
		t.Errorf("unexpected header layout: %v", header)
	}
	if len(header) != 15 {
		t.Errorf("header has %d columns, want 15", len(header))
	}

	if rows[1][2] != "170.0000" {
		t.Errorf("left flexion cell = %q, want 170.0000", rows[1][2])
	}
	// NaN renders as an empty cell.
	if rows[2][2] != "" {
		t.Errorf("NaN flexion cell = %q, want empty", rows[2][2])
	}
	if rows[2][3] != "165.0000" {
		t.Errorf("right flexion cell = %q, want 165.0000", rows[2][3])
	}
}

func TestWriteSummaryCSV(t *testing.T) {
	var buf bytes.Buffer
	s := pose.SessionSummary{TotalFrames: 90, FPS: 30, DurationSeconds: 3, LeftKneeROM: 55}
	if err := WriteSummaryCSV(&buf, s); err != nil {
		t.Fatalf("WriteSummaryCSV failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "total_frames,90") {
		t.Errorf("missing total_frames row in:\n%s", out)
	}
	if !strings.Contains(out, "left_knee_rom,55.0000") {
		t.Errorf("missing left_knee_rom row in:\n%s", out)
	}
}

func trajectoryFixture(n int) ([]pose.AngleSample, []fusion.FrameAngle) {
	raw := make([]pose.AngleSample, n)
	fused := make([]fusion.FrameAngle, n)
	for i := range raw {
		ts := float64(i) * 1000.0 / 30.0
		angle := 45 + 20*math.Sin(float64(i)/10)
		raw[i] = pose.AngleSample{TimestampMS: ts, AngleDeg: angle + 2, Confidence: 0.9}
		fused[i] = fusion.FrameAngle{FrameIndex: i, TimestampMS: ts, AngleDeg: angle}
	}
	raw[3].AngleDeg = math.NaN()
	return raw, fused
}

func TestRenderTrajectoryHTML(t *testing.T) {
	raw, fused := trajectoryFixture(60)

	var buf bytes.Buffer
	if err := RenderTrajectoryHTML(&buf, pose.LeftKneeFlexion, raw, fused); err != nil {
		t.Fatalf("RenderTrajectoryHTML failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "left_knee_flexion trajectory") {
		t.Error("chart title missing from rendered HTML")
	}
	for _, series := range []string{"raw", "fused"} {
		if !strings.Contains(out, series) {
			t.Errorf("series %q missing from rendered HTML", series)
		}
	}
}

func TestRenderTrajectoryHTML_LengthMismatch(t *testing.T) {
	raw, fused := trajectoryFixture(10)
	if err := RenderTrajectoryHTML(&bytes.Buffer{}, pose.LeftKneeFlexion, raw, fused[:5]); err == nil {
		t.Error("expected length mismatch error")
	}
}

func TestSaveTrajectoryPNG(t *testing.T) {
	raw, fused := trajectoryFixture(60)
	path := filepath.Join(t.TempDir(), "trajectory.png")

	if err := SaveTrajectoryPNG(path, pose.RightKneeFlexion, raw, fused); err != nil {
		t.Fatalf("SaveTrajectoryPNG failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("plot file missing: %v", err)
	}
	if info.Size() == 0 {
		t.Error("plot file is empty")
	}
}
