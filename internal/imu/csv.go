package imu

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// ReadCSV parses a two-column export of relative-rate samples:
// timestamp_ms,rate_deg_s with a header row. The series is validated before
// return so malformed bench captures fail loudly at the boundary.
func ReadCSV(r io.Reader) ([]Sample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read IMU CSV header: %w", err)
	}
	if header[0] != "timestamp_ms" || header[1] != "rate_deg_s" {
		return nil, fmt.Errorf("unexpected IMU CSV header %v, want [timestamp_ms rate_deg_s]", header)
	}

	var samples []Sample
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read IMU CSV row %d: %w", len(samples)+1, err)
		}

		ts, err := strconv.ParseFloat(row[0], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: failed to parse timestamp_ms: %w", len(samples)+1, err)
		}
		rate, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: failed to parse rate_deg_s: %w", len(samples)+1, err)
		}
		samples = append(samples, Sample{TimestampMS: ts, RateDegS: rate})
	}

	if err := ValidateSeries(samples); err != nil {
		return nil, err
	}
	return samples, nil
}

// WriteCSV writes samples in the same two-column layout ReadCSV accepts.
func WriteCSV(w io.Writer, samples []Sample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp_ms", "rate_deg_s"}); err != nil {
		return err
	}
	for _, s := range samples {
		row := []string{
			strconv.FormatFloat(s.TimestampMS, 'f', -1, 64),
			strconv.FormatFloat(s.RateDegS, 'f', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
