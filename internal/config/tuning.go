package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gaitworks/flexion/internal/fusion"
)

// TuningConfig represents the root configuration for pipeline tuning.
// The schema matches the /api/params endpoint so the same JSON can be used
// for startup configuration and inspection.
// All fields are pointers so a partial JSON file only overrides what it
// names; the Get* accessors supply defaults for everything else.
type TuningConfig struct {
	// Pose params
	FPS          *float64 `json:"fps,omitempty"`
	TorsoNormMin *float64 `json:"torso_norm_min,omitempty"`

	// Alignment params
	AlignStepMS *float64 `json:"align_step_ms,omitempty"`

	// Fusion filter params
	P0Angle          *float64 `json:"p0_angle,omitempty"`
	P0Bias           *float64 `json:"p0_bias,omitempty"`
	QAngle           *float64 `json:"q_angle,omitempty"`
	QBias            *float64 `json:"q_bias,omitempty"`
	VarianceBias     *float64 `json:"variance_bias,omitempty"`
	ConfidenceCutoff *float64 `json:"confidence_cutoff,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field explicitly
// set to its default, suitable for serializing a reference config file.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		FPS:              ptrFloat64(30),
		TorsoNormMin:     ptrFloat64(0.01),
		AlignStepMS:      ptrFloat64(10),
		P0Angle:          ptrFloat64(5),
		P0Bias:           ptrFloat64(1),
		QAngle:           ptrFloat64(0.005),
		QBias:            ptrFloat64(0.001),
		VarianceBias:     ptrFloat64(16),
		ConfidenceCutoff: ptrFloat64(0.3),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. Fields omitted
// from the JSON retain their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.FPS != nil && *c.FPS <= 0 {
		return fmt.Errorf("fps must be positive, got %f", *c.FPS)
	}
	if c.TorsoNormMin != nil && *c.TorsoNormMin < 0 {
		return fmt.Errorf("torso_norm_min must be non-negative, got %f", *c.TorsoNormMin)
	}
	if c.AlignStepMS != nil && *c.AlignStepMS <= 0 {
		return fmt.Errorf("align_step_ms must be positive, got %f", *c.AlignStepMS)
	}
	for name, v := range map[string]*float64{
		"p0_angle":      c.P0Angle,
		"p0_bias":       c.P0Bias,
		"q_angle":       c.QAngle,
		"q_bias":        c.QBias,
		"variance_bias": c.VarianceBias,
	} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", name, *v)
		}
	}
	if c.ConfidenceCutoff != nil && (*c.ConfidenceCutoff < 0 || *c.ConfidenceCutoff > 1) {
		return fmt.Errorf("confidence_cutoff must be between 0 and 1, got %f", *c.ConfidenceCutoff)
	}
	return nil
}

// GetFPS returns the fps value or the default.
func (c *TuningConfig) GetFPS() float64 {
	if c.FPS == nil {
		return 30
	}
	return *c.FPS
}

// GetTorsoNormMin returns the torso_norm_min value or the default.
func (c *TuningConfig) GetTorsoNormMin() float64 {
	if c.TorsoNormMin == nil {
		return 0.01
	}
	return *c.TorsoNormMin
}

// GetAlignStepMS returns the align_step_ms value or the default.
func (c *TuningConfig) GetAlignStepMS() float64 {
	if c.AlignStepMS == nil {
		return 10
	}
	return *c.AlignStepMS
}

// GetP0Angle returns the p0_angle value or the default.
func (c *TuningConfig) GetP0Angle() float64 {
	if c.P0Angle == nil {
		return 5
	}
	return *c.P0Angle
}

// GetP0Bias returns the p0_bias value or the default.
func (c *TuningConfig) GetP0Bias() float64 {
	if c.P0Bias == nil {
		return 1
	}
	return *c.P0Bias
}

// GetQAngle returns the q_angle value or the default.
func (c *TuningConfig) GetQAngle() float64 {
	if c.QAngle == nil {
		return 0.005
	}
	return *c.QAngle
}

// GetQBias returns the q_bias value or the default.
func (c *TuningConfig) GetQBias() float64 {
	if c.QBias == nil {
		return 0.001
	}
	return *c.QBias
}

// GetVarianceBias returns the variance_bias value or the default.
func (c *TuningConfig) GetVarianceBias() float64 {
	if c.VarianceBias == nil {
		return 16
	}
	return *c.VarianceBias
}

// GetConfidenceCutoff returns the confidence_cutoff value or the default.
func (c *TuningConfig) GetConfidenceCutoff() float64 {
	if c.ConfidenceCutoff == nil {
		return 0.3
	}
	return *c.ConfidenceCutoff
}

// FilterConfig assembles the EKF tuning from the config values.
func (c *TuningConfig) FilterConfig() fusion.FilterConfig {
	return fusion.FilterConfig{
		InitialCovAngle:   c.GetP0Angle(),
		InitialCovBias:    c.GetP0Bias(),
		ProcessNoiseAngle: c.GetQAngle(),
		ProcessNoiseBias:  c.GetQBias(),
		VarianceBias:      c.GetVarianceBias(),
		ConfidenceCutoff:  c.GetConfidenceCutoff(),
	}
}
