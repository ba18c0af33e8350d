package report

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/gaitworks/flexion/internal/fusion"
	"github.com/gaitworks/flexion/internal/pose"
)

// SaveTrajectoryPNG renders the raw and fused series for one joint to a PNG
// file. NaN raw samples are skipped, so gaps show as breaks in the raw line.
func SaveTrajectoryPNG(path string, joint pose.JointID, raw []pose.AngleSample, fused []fusion.FrameAngle) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s trajectory", joint)
	p.X.Label.Text = "time (ms)"
	p.Y.Label.Text = "angle (deg)"

	rawPts := make(plotter.XYs, 0, len(raw))
	for _, s := range raw {
		if math.IsNaN(s.AngleDeg) {
			continue
		}
		rawPts = append(rawPts, plotter.XY{X: s.TimestampMS, Y: s.AngleDeg})
	}
	fusedPts := make(plotter.XYs, 0, len(fused))
	for _, s := range fused {
		if math.IsNaN(s.AngleDeg) {
			continue
		}
		fusedPts = append(fusedPts, plotter.XY{X: s.TimestampMS, Y: s.AngleDeg})
	}

	rawLine, err := plotter.NewLine(rawPts)
	if err != nil {
		return fmt.Errorf("failed to build raw line: %w", err)
	}
	rawLine.Width = vg.Points(1)
	rawLine.Color = color.RGBA{R: 160, G: 160, B: 160, A: 255}

	fusedLine, err := plotter.NewLine(fusedPts)
	if err != nil {
		return fmt.Errorf("failed to build fused line: %w", err)
	}
	fusedLine.Width = vg.Points(1)
	fusedLine.Color = color.RGBA{R: 31, G: 158, B: 137, A: 255}

	p.Add(rawLine, fusedLine)
	p.Legend.Add("raw", rawLine)
	p.Legend.Add("fused", fusedLine)

	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	return nil
}
