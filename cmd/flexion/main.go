// Command flexion processes a recorded session offline: it reads a keypoint
// CSV and an optional inertial CSV, fuses them, and writes the per-frame
// metrics, summary, and trajectory renderings.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/gaitworks/flexion/internal/align"
	"github.com/gaitworks/flexion/internal/config"
	"github.com/gaitworks/flexion/internal/db"
	"github.com/gaitworks/flexion/internal/fusion"
	"github.com/gaitworks/flexion/internal/imu"
	"github.com/gaitworks/flexion/internal/pose"
	"github.com/gaitworks/flexion/internal/report"
)

var (
	poseFile   = flag.String("pose", "", "keypoint CSV path (required)")
	imuFile    = flag.String("imu", "", "inertial CSV path (optional; vision-only without it)")
	jointFlag  = flag.String("joint", string(pose.LeftKneeFlexion), "joint for alignment and rendering")
	fpsFlag    = flag.Float64("fps", 0, "video frame rate (default from config)")
	remap      = flag.Bool("remap", false, "remap keypoints from the pose model's axis convention")
	configFile = flag.String("config", "", "tuning config JSON path")
	outCSV     = flag.String("out-csv", "", "write per-frame metrics CSV here")
	outSummary = flag.String("out-summary", "", "write summary CSV here")
	outChart   = flag.String("chart", "", "write raw-vs-fused HTML chart here")
	outPlot    = flag.String("plot", "", "write raw-vs-fused PNG plot here")
	dbFile     = flag.String("db", "", "persist the session to this SQLite file")
)

func main() {
	flag.Parse()
	if *poseFile == "" {
		flag.Usage()
		log.Fatal("-pose is required")
	}

	cfg := config.EmptyTuningConfig()
	if *configFile != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configFile)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	fps := *fpsFlag
	if fps == 0 {
		fps = cfg.GetFPS()
	}

	joint := pose.JointID(*jointFlag)
	if _, ok := pose.JointByID(joint); !ok {
		log.Fatalf("unknown joint %q", joint)
	}

	frames, err := readFrames(*poseFile, *remap)
	if err != nil {
		log.Fatalf("failed to read pose frames: %v", err)
	}
	log.Printf("loaded %d frames at %.1f fps", len(frames), fps)

	var samples []imu.Sample
	if *imuFile != "" {
		samples, err = readIMU(*imuFile)
		if err != nil {
			log.Fatalf("failed to read imu samples: %v", err)
		}
		log.Printf("loaded %d imu samples", len(samples))
	}

	norm := pose.NewNormalizer()
	norm.TorsoNormMin = cfg.GetTorsoNormMin()
	series := pose.BuildAllSeries(frames, fps, norm)

	fused := make(map[pose.JointID][]fusion.FrameAngle, len(series))
	for id, s := range series {
		fused[id] = fusion.Process(s, samples, cfg.FilterConfig())
	}

	var alignRes *align.Result
	if len(samples) >= 2 {
		res, err := alignSeries(series[joint], samples, cfg.GetAlignStepMS())
		if err != nil {
			log.Printf("alignment skipped: %v", err)
		} else {
			alignRes = &res
			log.Printf("clock offset estimate: %.0fms (score %.2f)", res.OffsetMS, res.Score)
		}
	}

	metrics := pose.AnalyzeFrames(frames, fps, norm)
	summary := pose.Summarize(metrics, fps)
	log.Printf("left knee ROM %.1f deg, right knee ROM %.1f deg",
		summary.LeftKneeROM, summary.RightKneeROM)

	if err := writeOutputs(joint, series[joint], fused[joint], metrics, summary); err != nil {
		log.Fatal(err)
	}
	if *dbFile != "" {
		if err := persist(fps, series, fused, summary, alignRes); err != nil {
			log.Fatalf("failed to persist session: %v", err)
		}
	}
}

func readFrames(path string, remapAxes bool) ([]pose.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	frames, err := pose.ReadKeypointCSV(f)
	if err != nil {
		return nil, err
	}
	if remapAxes {
		for i := range frames {
			frames[i] = pose.RemapFrame(frames[i])
		}
	}
	return frames, nil
}

func readIMU(path string) ([]imu.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return imu.ReadCSV(f)
}

func alignSeries(base []pose.AngleSample, samples []imu.Sample, stepMS float64) (align.Result, error) {
	rates, rateTS := pose.AngularRate(base)
	imuTS := make([]float64, len(samples))
	imuRates := make([]float64, len(samples))
	for i, s := range samples {
		imuTS[i] = s.TimestampMS
		imuRates[i] = s.RateDegS
	}
	return align.Align(imuRates, imuTS, rates, rateTS, align.Config{StepMS: stepMS})
}

func writeOutputs(joint pose.JointID, raw []pose.AngleSample, fusedSeries []fusion.FrameAngle,
	metrics []pose.FrameMetrics, summary pose.SessionSummary) error {

	writeFile := func(path string, write func(f *os.File) error) error {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := write(f); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		log.Printf("wrote %s", path)
		return nil
	}

	if *outCSV != "" {
		if err := writeFile(*outCSV, func(f *os.File) error {
			return report.WriteMetricsCSV(f, metrics)
		}); err != nil {
			return err
		}
	}
	if *outSummary != "" {
		if err := writeFile(*outSummary, func(f *os.File) error {
			return report.WriteSummaryCSV(f, summary)
		}); err != nil {
			return err
		}
	}
	if *outChart != "" {
		if err := writeFile(*outChart, func(f *os.File) error {
			return report.RenderTrajectoryHTML(f, joint, raw, fusedSeries)
		}); err != nil {
			return err
		}
	}
	if *outPlot != "" {
		if err := report.SaveTrajectoryPNG(*outPlot, joint, raw, fusedSeries); err != nil {
			return err
		}
		log.Printf("wrote %s", *outPlot)
	}
	return nil
}

func persist(fps float64, series map[pose.JointID][]pose.AngleSample,
	fused map[pose.JointID][]fusion.FrameAngle, summary pose.SessionSummary,
	alignRes *align.Result) error {

	store, err := db.NewDB(*dbFile)
	if err != nil {
		return err
	}
	defer store.Close()

	rec := db.SessionRecord{ID: uuid.NewString(), CreatedAt: time.Now().UTC(), FPS: fps}
	if alignRes != nil {
		rec.OffsetMS = &alignRes.OffsetMS
		rec.CorrelationScore = &alignRes.Score
	}
	if err := store.InsertSession(rec); err != nil {
		return err
	}
	for id, raw := range series {
		if err := store.InsertTrajectory(rec.ID, id, raw, fused[id]); err != nil {
			return err
		}
	}
	if err := store.InsertSummary(rec.ID, summary); err != nil {
		return err
	}
	log.Printf("persisted session %s to %s", rec.ID, *dbFile)
	return nil
}
