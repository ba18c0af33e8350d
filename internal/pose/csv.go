package pose

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// ReadKeypointCSV parses a keypoint export into frames. The expected layout
// is one row per frame: a "frame" column followed by <name>_x, <name>_y,
// <name>_z for each of the 23 canonical keypoints, with optional
// <name>_conf columns. Missing confidence columns default to 1.0 so exports
// from models that do not report per-keypoint scores remain loadable.
func ReadKeypointCSV(r io.Reader) ([]Frame, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read keypoint CSV header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	if _, ok := col["frame"]; !ok {
		return nil, fmt.Errorf("keypoint CSV missing required column %q", "frame")
	}
	for _, name := range KeypointNames {
		for _, axis := range []string{"_x", "_y", "_z"} {
			if _, ok := col[name+axis]; !ok {
				return nil, fmt.Errorf("keypoint CSV missing required column %q", name+axis)
			}
		}
	}

	var frames []Frame
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read keypoint CSV row: %w", err)
		}

		get := func(name string) (float64, error) {
			idx := col[name]
			if idx >= len(row) {
				return 0, fmt.Errorf("row %d too short for column %q", len(frames), name)
			}
			return strconv.ParseFloat(row[idx], 64)
		}

		frameIdx, err := get("frame")
		if err != nil {
			return nil, fmt.Errorf("failed to parse frame index: %w", err)
		}

		f := Frame{Index: int(frameIdx)}
		for ki, name := range KeypointNames {
			x, err := get(name + "_x")
			if err != nil {
				return nil, fmt.Errorf("failed to parse %s_x: %w", name, err)
			}
			y, err := get(name + "_y")
			if err != nil {
				return nil, fmt.Errorf("failed to parse %s_y: %w", name, err)
			}
			z, err := get(name + "_z")
			if err != nil {
				return nil, fmt.Errorf("failed to parse %s_z: %w", name, err)
			}
			conf := 1.0
			if ci, ok := col[name+"_conf"]; ok && ci < len(row) {
				if c, err := strconv.ParseFloat(row[ci], 64); err == nil {
					conf = c
				}
			}
			f.Keypoints[ki] = Keypoint{X: x, Y: y, Z: z, Confidence: conf}
		}
		frames = append(frames, f)
	}
	return frames, nil
}
