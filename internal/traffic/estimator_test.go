package traffic

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ========================================
// SCALER TESTS
// ========================================

func TestFitScaler_MeanAndStd(t *testing.T) {
	rows := []FeatureVector{
		{0, 0, 0, 50, 0.2},
		{12, 3, 0.5, 50, 0.4},
		{24, 6, 1.0, 50, 0.6},
	}

	s := FitScaler(rows)

	assert.InDelta(t, 12.0, s.Mean[FeatHourOfDay], 1e-9)
	assert.InDelta(t, 3.0, s.Mean[FeatDayOfWeek], 1e-9)
	assert.InDelta(t, 0.5, s.Mean[FeatWeatherImpact], 1e-9)
	assert.InDelta(t, 50.0, s.Mean[FeatBaseSpeedLimit], 1e-9)
	assert.InDelta(t, 0.4, s.Mean[FeatHistoricalCongestion], 1e-9)

	// population standard deviation
	assert.InDelta(t, 9.797958971, s.Std[FeatHourOfDay], 1e-6)
	// constant column keeps divisor 1
	assert.Equal(t, 1.0, s.Std[FeatBaseSpeedLimit])
}

func TestScaler_NormalizeCentersAndScales(t *testing.T) {
	rows := []FeatureVector{
		{0, 0, 0, 50, 0},
		{10, 2, 1, 50, 1},
	}
	s := FitScaler(rows)

	n0 := s.Normalize(rows[0])
	n1 := s.Normalize(rows[1])

	for i := 0; i < NumFeatures; i++ {
		assert.InDelta(t, 0, n0[i]+n1[i], 1e-9, "normalized pair should be symmetric around zero")
	}
	// constant column normalizes to zero for training inputs
	assert.Equal(t, 0.0, n0[FeatBaseSpeedLimit])
}

// Prediction-time normalization must reuse the frozen training parameters
func TestScaler_ParametersAreFrozen(t *testing.T) {
	s := FitScaler([]FeatureVector{
		{0, 0, 0, 50, 0},
		{10, 2, 1, 50, 1},
	})
	before := *s

	// Normalizing unseen data must not shift the parameters
	s.Normalize(FeatureVector{23, 6, 0.9, 80, 0.7})
	s.Normalize(FeatureVector{1, 1, 0.1, 30, 0.1})

	assert.Equal(t, before, *s)
}

// ========================================
// ESTIMATOR TESTS
// ========================================

func TestEstimator_FitRecoversLinearRelation(t *testing.T) {
	// y = 5 + 2*x2 - 3*x4, other columns vary but carry no weight
	rng := rand.New(rand.NewSource(1))
	rows := make([]NormalizedFeatureVector, 40)
	targets := make([]float64, len(rows))
	for i := range rows {
		for j := 0; j < NumFeatures; j++ {
			rows[i][j] = rng.NormFloat64()
		}
		targets[i] = 5 + 2*rows[i][2] - 3*rows[i][4]
	}

	e := &Estimator{}
	require.NoError(t, e.Fit(rows, targets))

	for i, r := range rows {
		assert.InDelta(t, targets[i], e.Predict(r), 1e-6)
	}
}

// Columns with zero variance must not break the fit; they keep zero weight
func TestEstimator_FitWithConstantColumns(t *testing.T) {
	// hour, day and base speed constant, as happens for real retrains where
	// every row is stamped with the same wall-clock time
	rows := make([]NormalizedFeatureVector, 50)
	targets := make([]float64, 50)
	for i := range rows {
		w := float64(i) / 50
		c := float64(i%10) / 10
		rows[i] = NormalizedFeatureVector{0, 0, w, 0, c}
		targets[i] = 48 - 10*w - 25*c
	}

	e := &Estimator{}
	require.NoError(t, e.Fit(rows, targets))

	assert.Equal(t, 0.0, e.Coeffs[FeatHourOfDay+1])
	assert.Equal(t, 0.0, e.Coeffs[FeatDayOfWeek+1])
	assert.Equal(t, 0.0, e.Coeffs[FeatBaseSpeedLimit+1])

	for i, r := range rows {
		assert.InDelta(t, targets[i], e.Predict(r), 1e-6)
	}
}

func TestEstimator_FitAllConstantPredictsMean(t *testing.T) {
	rows := []NormalizedFeatureVector{
		{0, 0, 0, 0, 0},
		{0, 0, 0, 0, 0},
		{0, 0, 0, 0, 0},
	}
	targets := []float64{10, 20, 30}

	e := &Estimator{}
	require.NoError(t, e.Fit(rows, targets))

	assert.InDelta(t, 20.0, e.Predict(rows[0]), 1e-9)
}

func TestEstimator_FitRejectsMismatchedInput(t *testing.T) {
	e := &Estimator{}
	err := e.Fit([]NormalizedFeatureVector{{1, 2, 3, 4, 5}}, []float64{1, 2})
	assert.Error(t, err)

	err = e.Fit(nil, nil)
	assert.Error(t, err)
}

func TestRSquared_PerfectFitIsOne(t *testing.T) {
	e := &Estimator{Coeffs: []float64{1, 0, 0, 2, 0, 0}}
	rows := []NormalizedFeatureVector{
		{0, 0, 1, 0, 0},
		{0, 0, 2, 0, 0},
		{0, 0, 3, 0, 0},
	}
	targets := []float64{3, 5, 7}

	assert.InDelta(t, 1.0, rSquared(e, rows, targets), 1e-9)
}

// ========================================
// PERSISTENCE TESTS
// ========================================

func TestSaveAndLoadSnapshot_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	snap := &ModelSnapshot{
		Estimator:   &Estimator{Coeffs: []float64{1.5, 0.1, -0.2, 0.3, -0.4, 0.5}},
		Scaler:      &Scaler{Mean: [NumFeatures]float64{1, 2, 3, 4, 5}, Std: [NumFeatures]float64{1, 1, 2, 1, 3}},
		TrainScore:  0.91,
		TestScore:   0.88,
		SampleCount: 250,
		TrainedAt:   time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
	}

	require.NoError(t, SaveSnapshot(dir, snap))

	loaded, err := LoadSnapshot(dir)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, snap.Estimator.Coeffs, loaded.Estimator.Coeffs)
	assert.Equal(t, snap.Scaler.Mean, loaded.Scaler.Mean)
	assert.Equal(t, snap.Scaler.Std, loaded.Scaler.Std)
	assert.Equal(t, snap.TrainScore, loaded.TrainScore)
	assert.Equal(t, snap.TestScore, loaded.TestScore)
	assert.Equal(t, snap.SampleCount, loaded.SampleCount)
	assert.True(t, snap.TrainedAt.Equal(loaded.TrainedAt))
}

func TestLoadSnapshot_NoArtifactReturnsNil(t *testing.T) {
	loaded, err := LoadSnapshot(t.TempDir())

	require.NoError(t, err)
	assert.Nil(t, loaded)
}

// Half a pair is unusable: a model without its scaler must not load
func TestLoadSnapshot_MissingScalerReturnsNil(t *testing.T) {
	dir := t.TempDir()

	snap := &ModelSnapshot{
		Estimator: &Estimator{Coeffs: []float64{1, 0, 0, 0, 0, 0}},
		Scaler:    &Scaler{Std: [NumFeatures]float64{1, 1, 1, 1, 1}},
		TrainedAt: time.Now(),
	}
	require.NoError(t, SaveSnapshot(dir, snap))
	require.NoError(t, os.Remove(filepath.Join(dir, "scaler.json")))

	loaded, err := LoadSnapshot(dir)

	require.NoError(t, err)
	assert.Nil(t, loaded)
}
