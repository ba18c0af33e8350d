package fusion

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_ConvergesToConstantTruth(t *testing.T) {
	const truth = 45.0
	f := NewFilter(0, DefaultFilterConfig())

	dt := 1.0 / 30.0
	for i := 0; i < 20000; i++ {
		require.NoError(t, f.Predict(0, dt))
		f.Update(truth, 1.0)
	}

	assert.InDelta(t, truth, f.Angle(), 1e-2,
		"repeated high-confidence measurements must pull the estimate onto the truth")
	assert.InDelta(t, 0.0, f.Bias(), 1e-2,
		"with an unbiased rate the bias estimate must settle near zero")
}

func TestFilter_LearnsGyroBias(t *testing.T) {
	// Truth ramps at 30 deg/s; the gyro reads 32 deg/s, a +2 deg/s bias.
	const trueRate, gyroBias = 30.0, 2.0
	cfg := DefaultFilterConfig()
	f := NewFilter(0, cfg)

	dt := 1.0 / 100.0
	angle := 0.0
	for i := 0; i < 30000; i++ {
		angle += trueRate * dt
		require.NoError(t, f.Predict(trueRate+gyroBias, dt))
		f.Update(angle, 1.0)
	}

	assert.InDelta(t, gyroBias, f.Bias(), 0.25)
	assert.InDelta(t, angle, f.Angle(), 0.5)
}

func TestFilter_LowConfidenceIsNoOp(t *testing.T) {
	f := NewFilter(10, DefaultFilterConfig())
	require.NoError(t, f.Predict(5, 0.01))

	angle, bias, p := f.Angle(), f.Bias(), f.Covariance()

	got := f.Update(90, 0.2999)

	assert.Equal(t, angle, got, "rejected update must return the untouched estimate")
	assert.Equal(t, angle, f.Angle())
	assert.Equal(t, bias, f.Bias())
	assert.Equal(t, p, f.Covariance(), "covariance must be bit-for-bit unchanged")
}

func TestFilter_PredictRejectsBadDt(t *testing.T) {
	f := NewFilter(10, DefaultFilterConfig())
	angle, bias, p := f.Angle(), f.Bias(), f.Covariance()

	for _, dt := range []float64{0, -0.5, math.NaN()} {
		err := f.Predict(5, dt)
		assert.ErrorIs(t, err, ErrNonPositiveDt, "dt=%v", dt)
	}
	assert.Error(t, f.Predict(math.NaN(), 0.01))

	assert.Equal(t, angle, f.Angle(), "state must survive rejected predicts")
	assert.Equal(t, bias, f.Bias())
	assert.Equal(t, p, f.Covariance())
}

func TestFilter_UpdateShrinksCovarianceTrace(t *testing.T) {
	f := NewFilter(0, DefaultFilterConfig())
	dt := 1.0 / 50.0
	for i := 0; i < 200; i++ {
		require.NoError(t, f.Predict(float64(i%7), dt))
		before := f.CovarianceTrace()
		f.Update(float64(i), 0.9)
		after := f.CovarianceTrace()
		assert.LessOrEqual(t, after, before, "update %d must not grow trace(P)", i)
	}
}

func TestFilter_HigherConfidencePullsHarder(t *testing.T) {
	mk := func(conf float64) float64 {
		f := NewFilter(0, DefaultFilterConfig())
		return f.Update(10, conf)
	}
	weak := mk(0.4)
	strong := mk(1.0)
	assert.Greater(t, strong, weak,
		"a confident measurement must move the estimate further toward it")
}
