// Command imu-capture records the strap's live serial stream to an inertial
// CSV for offline processing. Stop it with Ctrl-C or let -duration expire;
// whatever was captured is written on the way out.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gaitworks/flexion/internal/imu"
)

var (
	portName = flag.String("port", "", "serial port of the strap bridge (required)")
	axisName = flag.String("axis", "x", "gyro axis to capture: x, y, or z")
	outPath  = flag.String("out", "capture_imu.csv", "inertial CSV output path")
	duration = flag.Duration("duration", 0, "stop after this long (0 = run until interrupted)")
)

func parseAxis(name string) (imu.Axis, error) {
	switch name {
	case "x":
		return imu.AxisX, nil
	case "y":
		return imu.AxisY, nil
	case "z":
		return imu.AxisZ, nil
	}
	return 0, fmt.Errorf("unknown axis %q (want x, y, or z)", name)
}

func main() {
	flag.Parse()
	if *portName == "" {
		flag.Usage()
		os.Exit(2)
	}

	axis, err := parseAxis(*axisName)
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	port, err := imu.NewStrapPort(*portName, axis)
	if err != nil {
		log.Fatalf("failed to open strap port: %v", err)
	}
	defer port.Close()

	log.Printf("capturing from %s (axis %s), interrupt to stop", *portName, *axisName)
	samples, err := imu.Record(ctx, port)
	if err != nil {
		log.Fatalf("capture failed: %v", err)
	}
	if dropped := port.Dropped(); dropped > 0 {
		log.Printf("warning: %d packets lost to sequence gaps", dropped)
	}

	f, err := os.Create(*outPath)
	if err != nil {
		log.Fatalf("failed to create %s: %v", *outPath, err)
	}
	defer f.Close()
	if err := imu.WriteCSV(f, samples); err != nil {
		log.Fatalf("failed to write %s: %v", *outPath, err)
	}
	log.Printf("wrote %d samples to %s", len(samples), *outPath)
}
