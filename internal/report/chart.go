package report

import (
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/gaitworks/flexion/internal/fusion"
	"github.com/gaitworks/flexion/internal/pose"
)

// RenderTrajectoryHTML writes a self-contained HTML line chart comparing the
// raw vision angle series against the fused output for one joint.
func RenderTrajectoryHTML(w io.Writer, joint pose.JointID, raw []pose.AngleSample, fused []fusion.FrameAngle) error {
	if len(raw) != len(fused) {
		return fmt.Errorf("report: series lengths differ (%d raw, %d fused)", len(raw), len(fused))
	}

	xAxis := make([]string, len(raw))
	rawData := make([]opts.LineData, len(raw))
	fusedData := make([]opts.LineData, len(fused))
	for i := range raw {
		xAxis[i] = fmt.Sprintf("%.0f", raw[i].TimestampMS)
		rawData[i] = opts.LineData{Value: chartValue(raw[i].AngleDeg)}
		fusedData[i] = opts.LineData{Value: chartValue(fused[i].AngleDeg)}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Joint Trajectory", Theme: "dark", Width: "1200px", Height: "600px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("%s trajectory", joint),
			Subtitle: fmt.Sprintf("%d frames, raw vs fused", len(raw)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "time (ms)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "angle (deg)"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)

	line.SetXAxis(xAxis).
		AddSeries("raw", rawData).
		AddSeries("fused", fusedData).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(false)}))

	return line.Render(w)
}

// chartValue maps NaN to nil so echarts draws a gap instead of breaking.
func chartValue(v float64) interface{} {
	if math.IsNaN(v) {
		return nil
	}
	return v
}
