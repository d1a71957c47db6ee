package traffic

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// trainingHistory builds n parseable history entries with varying fields
func trainingHistory(n int) []string {
	entries := make([]string, n)
	for i := 0; i < n; i++ {
		frac := float64(i) / float64(n)
		obs := Observation{
			SegmentID:        "seg-1",
			CurrentSpeed:     50 - 30*frac,
			CongestionFactor: frac,
			TrafficDensity:   float64(i),
			WeatherImpact:    float64(i%7) / 7,
		}
		data, _ := json.Marshal(obs)
		entries[i] = string(data)
	}
	return entries
}

func newTestTrainer(t *testing.T, repo RepositoryInterface, minTestR2 float64) *Trainer {
	t.Helper()
	return NewTrainer(repo, t.TempDir(), 50.0, minTestR2, 42)
}

// ========================================
// SAMPLE FLOOR TESTS
// ========================================

func TestRetrain_99SamplesIsInsufficient(t *testing.T) {
	repo := new(mockRepo)
	repo.On("ScanSegments", mock.Anything).Return([]string{"seg-1"}, nil)
	repo.On("History", mock.Anything, "seg-1").Return(trainingHistory(99), nil)

	_, err := newTestTrainer(t, repo, 0).Retrain(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestRetrain_Exactly100SamplesSucceeds(t *testing.T) {
	repo := new(mockRepo)
	repo.On("ScanSegments", mock.Anything).Return([]string{"seg-1"}, nil)
	repo.On("History", mock.Anything, "seg-1").Return(trainingHistory(100), nil)

	snap, err := newTestTrainer(t, repo, 0).Retrain(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 100, snap.SampleCount)
	require.NotNil(t, snap.Estimator)
	require.NotNil(t, snap.Scaler)
	assert.Len(t, snap.Estimator.Coeffs, NumFeatures+1)
	assert.False(t, snap.TrainedAt.IsZero())
}

// Malformed records are skipped before the floor is applied
func TestRetrain_MalformedRecordsDoNotCountTowardFloor(t *testing.T) {
	history := append(trainingHistory(99), "junk", "{broken", "[]")

	repo := new(mockRepo)
	repo.On("ScanSegments", mock.Anything).Return([]string{"seg-1"}, nil)
	repo.On("History", mock.Anything, "seg-1").Return(history, nil)

	_, err := newTestTrainer(t, repo, 0).Retrain(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestRetrain_AggregatesAcrossSegments(t *testing.T) {
	repo := new(mockRepo)
	repo.On("ScanSegments", mock.Anything).Return([]string{"seg-1", "seg-2"}, nil)
	repo.On("History", mock.Anything, "seg-1").Return(trainingHistory(60), nil)
	repo.On("History", mock.Anything, "seg-2").Return(trainingHistory(60), nil)

	snap, err := newTestTrainer(t, repo, 0).Retrain(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 120, snap.SampleCount)
}

func TestRetrain_StoreFailurePropagates(t *testing.T) {
	repo := new(mockRepo)
	repo.On("ScanSegments", mock.Anything).
		Return(nil, fmt.Errorf("%w: scan segments: connection refused", ErrStoreUnavailable))

	_, err := newTestTrainer(t, repo, 0).Retrain(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

// ========================================
// TRAINING ROW STAMPING
// ========================================

// Every aggregated row carries the wall-clock hour and day at retrain time,
// not the record's own timestamp. Faithful to the inherited pipeline; flagged
// as a candidate defect in DESIGN.md.
func TestAggregate_StampsRowsWithRetrainTime(t *testing.T) {
	repo := new(mockRepo)
	repo.On("ScanSegments", mock.Anything).Return([]string{"seg-1"}, nil)
	repo.On("History", mock.Anything, "seg-1").Return(trainingHistory(10), nil)

	// Thursday 2026-08-20 17:00
	fixed := time.Date(2026, 8, 20, 17, 0, 0, 0, time.UTC)
	trainer := newTestTrainer(t, repo, 0).WithNow(func() time.Time { return fixed })

	features, targets, err := trainer.aggregate(context.Background())

	require.NoError(t, err)
	require.Len(t, features, 10)
	require.Len(t, targets, 10)
	for _, fv := range features {
		assert.Equal(t, 17.0, fv[FeatHourOfDay])
		assert.Equal(t, 3.0, fv[FeatDayOfWeek])
		assert.Equal(t, 50.0, fv[FeatBaseSpeedLimit])
	}
}

func TestAggregate_RecordFieldDefaults(t *testing.T) {
	repo := new(mockRepo)
	repo.On("ScanSegments", mock.Anything).Return([]string{"seg-1"}, nil)
	repo.On("History", mock.Anything, "seg-1").Return([]string{`{"segment_id":"seg-1"}`}, nil)

	features, targets, err := newTestTrainer(t, repo, 0).aggregate(context.Background())

	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Equal(t, 0.0, features[0][FeatWeatherImpact])
	assert.Equal(t, 0.3, features[0][FeatHistoricalCongestion])
	assert.Equal(t, 25.0, targets[0])
}

// ========================================
// FIT AND PERSISTENCE
// ========================================

// The seeded split makes retrains over identical data reproducible
func TestRetrain_Deterministic(t *testing.T) {
	newRepo := func() *mockRepo {
		repo := new(mockRepo)
		repo.On("ScanSegments", mock.Anything).Return([]string{"seg-1"}, nil)
		repo.On("History", mock.Anything, "seg-1").Return(trainingHistory(200), nil)
		return repo
	}

	fixed := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return fixed }

	first, err := newTestTrainer(t, newRepo(), 0).WithNow(clock).Retrain(context.Background())
	require.NoError(t, err)
	second, err := newTestTrainer(t, newRepo(), 0).WithNow(clock).Retrain(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Estimator.Coeffs, second.Estimator.Coeffs)
	assert.Equal(t, first.Scaler.Mean, second.Scaler.Mean)
	assert.Equal(t, first.TrainScore, second.TrainScore)
	assert.Equal(t, first.TestScore, second.TestScore)
}

func TestRetrain_PersistsArtifacts(t *testing.T) {
	repo := new(mockRepo)
	repo.On("ScanSegments", mock.Anything).Return([]string{"seg-1"}, nil)
	repo.On("History", mock.Anything, "seg-1").Return(trainingHistory(150), nil)

	dir := t.TempDir()
	trainer := NewTrainer(repo, dir, 50.0, 0, 42)

	snap, err := trainer.Retrain(context.Background())
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "traffic_model.json"))
	assert.FileExists(t, filepath.Join(dir, "scaler.json"))

	loaded, err := LoadSnapshot(dir)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, snap.Estimator.Coeffs, loaded.Estimator.Coeffs)
}

// Baseline behavior accepts any fit result; the gate only applies when a
// minimum test score is configured
func TestRetrain_StrictModeRejectsPoorFit(t *testing.T) {
	// Targets are pure noise, so the test split cannot score well
	rng := rand.New(rand.NewSource(7))
	entries := make([]string, 200)
	for i := range entries {
		obs := Observation{
			SegmentID:        "seg-1",
			CurrentSpeed:     rng.Float64() * 80,
			CongestionFactor: rng.Float64(),
			WeatherImpact:    rng.Float64(),
		}
		data, _ := json.Marshal(obs)
		entries[i] = string(data)
	}

	repo := new(mockRepo)
	repo.On("ScanSegments", mock.Anything).Return([]string{"seg-1"}, nil)
	repo.On("History", mock.Anything, "seg-1").Return(entries, nil)

	_, err := newTestTrainer(t, repo, 0.999).Retrain(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLowQualityModel)
}

// ========================================
// BOOTSTRAP
// ========================================

func TestBootstrap_TrainsAndPersists(t *testing.T) {
	dir := t.TempDir()
	trainer := NewTrainer(new(mockRepo), dir, 50.0, 0, 42)

	snap, err := trainer.Bootstrap()

	require.NoError(t, err)
	assert.Equal(t, 1000, snap.SampleCount)
	assert.Len(t, snap.Estimator.Coeffs, NumFeatures+1)
	assert.FileExists(t, filepath.Join(dir, "traffic_model.json"))
	assert.FileExists(t, filepath.Join(dir, "scaler.json"))

	// A linear fit over the synthetic traffic shape should explain a good
	// share of the variance
	assert.Greater(t, snap.TrainScore, 0.5)
	assert.Greater(t, snap.TestScore, 0.5)
}
