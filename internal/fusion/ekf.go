// Package fusion combines the vision-derived joint-angle series with the
// strap's inertial rate stream. A two-state extended Kalman filter carries
// the joint angle and the relative gyro bias; inertial samples drive the
// predict step, vision angles the correction step, and the fused output is
// mapped back onto the original video frame timeline.
package fusion

import (
	"errors"
	"fmt"
	"math"
)

// FilterConfig holds the EKF tuning parameters.
type FilterConfig struct {
	// InitialCovAngle and InitialCovBias seed the diagonal of P.
	InitialCovAngle float64
	InitialCovBias  float64

	// ProcessNoiseAngle and ProcessNoiseBias form the diagonal of Q, added
	// on every predict. Small values because angle drift and bias drift
	// between consecutive short steps are slow.
	ProcessNoiseAngle float64
	ProcessNoiseBias  float64

	// VarianceBias is the base measurement variance; the effective R is
	// VarianceBias / (confidence + 1e-3) so higher-confidence vision
	// measurements pull harder.
	VarianceBias float64

	// ConfidenceCutoff is the minimum vision confidence for an update to
	// touch the state at all.
	ConfidenceCutoff float64
}

// DefaultFilterConfig returns the tuning used for relative knee motion.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		InitialCovAngle:   5.0,
		InitialCovBias:    1.0,
		ProcessNoiseAngle: 0.005,
		ProcessNoiseBias:  0.001,
		VarianceBias:      16.0,
		ConfidenceCutoff:  0.3,
	}
}

// ErrNonPositiveDt is returned by Predict for a zero or negative timestep.
// Duplicate or out-of-order timestamps must be skipped by the caller; the
// filter refuses them rather than corrupting its linearization.
var ErrNonPositiveDt = errors.New("fusion: predict requires dt > 0")

// Filter is the two-state EKF: x = [angle_deg, bias_deg_per_s]. A Filter is
// owned by a single session and is not safe for concurrent use; predict and
// update calls must arrive in strictly increasing timestamp order.
type Filter struct {
	angle float64
	bias  float64

	// P is the 2x2 covariance, row-major.
	P [4]float64

	cfg FilterConfig
}

// NewFilter creates a filter seeded with the first valid vision angle so
// the initial estimate is anatomically plausible rather than zero.
func NewFilter(initialAngleDeg float64, cfg FilterConfig) *Filter {
	return &Filter{
		angle: initialAngleDeg,
		P:     [4]float64{cfg.InitialCovAngle, 0, 0, cfg.InitialCovBias},
		cfg:   cfg,
	}
}

// Angle returns the current fused angle estimate in degrees.
func (f *Filter) Angle() float64 { return f.angle }

// Bias returns the current relative gyro bias estimate in deg/s.
func (f *Filter) Bias() float64 { return f.bias }

// Covariance returns a copy of the 2x2 covariance matrix, row-major.
func (f *Filter) Covariance() [4]float64 { return f.P }

// CovarianceTrace returns trace(P), a scalar uncertainty summary.
func (f *Filter) CovarianceTrace() float64 { return f.P[0] + f.P[3] }

// Predict advances the state by dtS seconds using the relative gyro rate:
//
//	angle' = angle + (rate - bias) * dtS
//	bias'  = bias                       (random walk)
//
// with Jacobian F = [[1, -dt], [0, 1]] and P' = F P Fᵀ + Q.
func (f *Filter) Predict(relativeGyroDegS, dtS float64) error {
	if dtS <= 0 || math.IsNaN(dtS) {
		return fmt.Errorf("%w (dt=%v)", ErrNonPositiveDt, dtS)
	}
	if math.IsNaN(relativeGyroDegS) {
		return fmt.Errorf("fusion: predict with NaN rate")
	}

	f.angle += (relativeGyroDegS - f.bias) * dtS

	// P' = F P Fᵀ + Q, expanded for F = [[1, -dt], [0, 1]]:
	//   P00' = P00 - dt*(P10 + P01) + dt²*P11 + Q00
	//   P01' = P01 - dt*P11
	//   P10' = P10 - dt*P11
	//   P11' = P11 + Q11
	p00, p01, p10, p11 := f.P[0], f.P[1], f.P[2], f.P[3]
	f.P[0] = p00 - dtS*(p10+p01) + dtS*dtS*p11 + f.cfg.ProcessNoiseAngle
	f.P[1] = p01 - dtS*p11
	f.P[2] = p10 - dtS*p11
	f.P[3] = p11 + f.cfg.ProcessNoiseBias

	return nil
}

// Update corrects the state with a vision angle measurement and returns the
// resulting angle estimate. Measurements below the confidence cutoff leave
// the state and covariance untouched. Callers must filter NaN measurements
// before calling; they never reach the filter in a valid pipeline.
func (f *Filter) Update(cvAngleDeg, cvConfidence float64) float64 {
	if cvConfidence < f.cfg.ConfidenceCutoff {
		return f.angle
	}

	// Observation H = [1, 0]: vision observes the angle directly.
	r := f.cfg.VarianceBias / (cvConfidence + 1e-3)
	y := cvAngleDeg - f.angle
	s := f.P[0] + r

	// Gain K = P Hᵀ / S = [P00/S, P10/S]ᵀ.
	k0 := f.P[0] / s
	k1 := f.P[2] / s

	f.angle += k0 * y
	f.bias += k1 * y

	// P' = (I - K H) P.
	p00, p01, p10, p11 := f.P[0], f.P[1], f.P[2], f.P[3]
	f.P[0] = (1 - k0) * p00
	f.P[1] = (1 - k0) * p01
	f.P[2] = p10 - k1*p00
	f.P[3] = p11 - k1*p01

	return f.angle
}
