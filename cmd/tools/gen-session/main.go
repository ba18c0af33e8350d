// Command gen-session generates a synthetic capture for end-to-end testing:
// a keypoint CSV tracing a sinusoidal knee flexion cycle and a matching
// inertial CSV with a biased, noisy gyro. Feed both to the flexion CLI to
// exercise the full pipeline without hardware.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"strconv"

	"github.com/gaitworks/flexion/internal/imu"
	"github.com/gaitworks/flexion/internal/pose"
)

var (
	poseOut   = flag.String("pose", "session_pose.csv", "keypoint CSV output path")
	imuOut    = flag.String("imu", "session_imu.csv", "inertial CSV output path")
	frames    = flag.Int("n", 300, "number of video frames")
	fps       = flag.Float64("fps", 30, "video frame rate")
	imuHz     = flag.Float64("imu-hz", 200, "inertial sample rate")
	amplitude = flag.Float64("amplitude", 30, "flexion amplitude in degrees")
	periodS   = flag.Float64("period", 1.5, "flexion cycle period in seconds")
	gyroBias  = flag.Float64("bias", 2, "gyro bias in deg/s")
	noise     = flag.Float64("noise", 2, "gyro noise sigma in deg/s")
	offsetMS  = flag.Float64("offset", 0, "clock offset applied to the inertial stream")
	seed      = flag.Int64("seed", 1, "random seed")
)

// flexionAngle is the knee angle at time t: 180 deg is a straight leg, the
// sinusoid bends it by the configured amplitude.
func flexionAngle(tS float64) float64 {
	return 180 - *amplitude/2 - *amplitude/2*math.Sin(2*math.Pi*tS / *periodS)
}

func flexionRate(tS float64) float64 {
	return -*amplitude / 2 * 2 * math.Pi / *periodS * math.Cos(2*math.Pi*tS / *periodS)
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := writePose(); err != nil {
		log.Fatalf("failed to write pose CSV: %v", err)
	}
	log.Printf("wrote %d frames to %s", *frames, *poseOut)

	if err := writeIMU(rng); err != nil {
		log.Fatalf("failed to write imu CSV: %v", err)
	}
	log.Printf("wrote inertial stream to %s", *imuOut)
}

// standingPose returns a neutral upright keypoint set; the legs get posed
// per frame on top of it.
func standingPose() [pose.NumKeypoints]pose.Keypoint {
	var kps [pose.NumKeypoints]pose.Keypoint
	for i := range kps {
		kps[i] = pose.Keypoint{
			X:          0.1 * float64(i%5),
			Y:          1.8 - 0.07*float64(i),
			Z:          0.05 * float64(i%3),
			Confidence: 1,
		}
	}
	return kps
}

// poseLeg places hip, knee, and ankle so the hip-knee-ankle angle equals
// angleDeg, bending in the sagittal (Y-Z) plane.
func poseLeg(kps *[pose.NumKeypoints]pose.Keypoint, hip, knee, ankle int, angleDeg, xOff float64) {
	const thigh, shank = 0.45, 0.42
	h := pose.Keypoint{X: xOff, Y: 1.0, Z: 0, Confidence: 1}

	k := pose.Keypoint{X: xOff, Y: h.Y - thigh, Z: 0, Confidence: 1}

	// Shank direction rotated from straight-down by the bend angle.
	bend := (180 - angleDeg) * math.Pi / 180
	a := pose.Keypoint{
		X:          xOff,
		Y:          k.Y - shank*math.Cos(bend),
		Z:          k.Z + shank*math.Sin(bend),
		Confidence: 1,
	}

	kps[hip] = h
	kps[knee] = k
	kps[ankle] = a
}

func writePose() error {
	f, err := os.Create(*poseOut)
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	header := []string{"frame"}
	for _, name := range pose.KeypointNames {
		header = append(header, name+"_x", name+"_y", name+"_z", name+"_conf")
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for i := 0; i < *frames; i++ {
		tS := float64(i) / *fps
		kps := standingPose()
		angle := flexionAngle(tS)
		poseLeg(&kps, pose.LeftHip, pose.LeftKnee, pose.LeftAnkle, angle, -0.15)
		poseLeg(&kps, pose.RightHip, pose.RightKnee, pose.RightAnkle, angle, 0.15)

		row := []string{strconv.Itoa(i)}
		for _, kp := range kps {
			row = append(row,
				fmt.Sprintf("%.6f", kp.X),
				fmt.Sprintf("%.6f", kp.Y),
				fmt.Sprintf("%.6f", kp.Z),
				fmt.Sprintf("%.3f", kp.Confidence),
			)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeIMU(rng *rand.Rand) error {
	durS := float64(*frames) / *fps
	var samples []imu.Sample
	for tS := 1.0 / *imuHz; tS < durS; tS += 1.0 / *imuHz {
		samples = append(samples, imu.Sample{
			TimestampMS: tS*1000 + *offsetMS,
			RateDegS:    flexionRate(tS) + *gyroBias + rng.NormFloat64()*(*noise),
		})
	}

	f, err := os.Create(*imuOut)
	if err != nil {
		return err
	}
	defer f.Close()
	return imu.WriteCSV(f, samples)
}
