package traffic

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/richxcame/traffic-prediction/pkg/logger"
	"go.uber.org/zap"
)

// minTrainingSamples is the floor below which a retrain is rejected
const minTrainingSamples = 100

// bootstrapSamples is the size of the synthetic dataset used when the service
// starts with no persisted model and no usable history.
const bootstrapSamples = 1000

// Defaults substituted for absent fields when aggregating history rows
const (
	defaultTrainingWeather = 0.0
	defaultTrainingSpeed   = 25.0
)

// Trainer rebuilds the estimator+scaler pair from the historical store
type Trainer struct {
	repo           RepositoryInterface
	modelDir       string
	baseSpeedLimit float64
	minTestR2      float64
	seed           int64
	now            func() time.Time
}

// NewTrainer creates a new trainer. minTestR2 of 0 disables the quality gate,
// matching the baseline behavior of accepting any fit result.
func NewTrainer(repo RepositoryInterface, modelDir string, baseSpeedLimit, minTestR2 float64, seed int64) *Trainer {
	return &Trainer{
		repo:           repo,
		modelDir:       modelDir,
		baseSpeedLimit: baseSpeedLimit,
		minTestR2:      minTestR2,
		seed:           seed,
		now:            time.Now,
	}
}

// WithNow overrides the trainer's clock, for tests
func (t *Trainer) WithNow(now func() time.Time) *Trainer {
	t.now = now
	return t
}

// Retrain aggregates all recorded history, fits a fresh estimator+scaler pair,
// persists it, and returns the new snapshot. The caller owns swapping it into
// the live slot.
func (t *Trainer) Retrain(ctx context.Context) (*ModelSnapshot, error) {
	features, targets, err := t.aggregate(ctx)
	if err != nil {
		trainingRuns.WithLabelValues("store_error").Inc()
		return nil, err
	}

	if len(features) < minTrainingSamples {
		trainingRuns.WithLabelValues("insufficient_data").Inc()
		return nil, fmt.Errorf("%w: have %d samples, need at least %d",
			ErrInsufficientData, len(features), minTrainingSamples)
	}

	snap, err := t.fit(features, targets)
	if err != nil {
		trainingRuns.WithLabelValues("fit_error").Inc()
		return nil, err
	}

	if t.minTestR2 > 0 && snap.TestScore < t.minTestR2 {
		trainingRuns.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: test score %.3f below %.3f",
			ErrLowQualityModel, snap.TestScore, t.minTestR2)
	}

	if err := SaveSnapshot(t.modelDir, snap); err != nil {
		trainingRuns.WithLabelValues("persist_error").Inc()
		return nil, err
	}

	trainingRuns.WithLabelValues("success").Inc()
	trainingSamples.Set(float64(snap.SampleCount))
	logger.WithContext(ctx).Info("Model retrained",
		zap.Int("samples", snap.SampleCount),
		zap.Float64("train_score", snap.TrainScore),
		zap.Float64("test_score", snap.TestScore),
	)

	return snap, nil
}

// aggregate builds training rows from every recorded observation. Each row is
// stamped with the wall-clock hour and day-of-week at retrain time rather than
// the record's own timestamp, so retrains over the same data at different
// times produce different rows.
// TODO: switch to the record's own timestamp once downstream consumers confirm
// nothing depends on the current stamping.
func (t *Trainer) aggregate(ctx context.Context) ([]FeatureVector, []float64, error) {
	segments, err := t.repo.ScanSegments(ctx)
	if err != nil {
		return nil, nil, err
	}

	now := t.now()
	hour := float64(now.Hour())
	day := float64(dayOfWeek(now))

	var features []FeatureVector
	var targets []float64
	var skipped int

	for _, segmentID := range segments {
		history, err := t.repo.History(ctx, segmentID)
		if err != nil {
			return nil, nil, err
		}

		for _, raw := range history {
			var rec historicalRecord
			if err := json.Unmarshal([]byte(raw), &rec); err != nil {
				skipped++
				continue
			}

			weather := defaultTrainingWeather
			if rec.WeatherImpact != nil {
				weather = *rec.WeatherImpact
			}
			congestion := defaultHistoricalCongestion
			if rec.CongestionFactor != nil {
				congestion = *rec.CongestionFactor
			}
			speed := defaultTrainingSpeed
			if rec.CurrentSpeed != nil {
				speed = *rec.CurrentSpeed
			}

			features = append(features, FeatureVector{hour, day, weather, t.baseSpeedLimit, congestion})
			targets = append(targets, speed)
		}
	}

	if skipped > 0 {
		malformedHistoryRecords.Add(float64(skipped))
		logger.WithContext(ctx).Warn("Skipped malformed records while aggregating training data",
			zap.Int("skipped", skipped))
	}

	return features, targets, nil
}

// fit splits the rows 80/20 with a seeded shuffle, fits the scaler on the
// training partition only, then fits the estimator on the scaled rows.
func (t *Trainer) fit(features []FeatureVector, targets []float64) (*ModelSnapshot, error) {
	n := len(features)
	perm := rand.New(rand.NewSource(t.seed)).Perm(n)

	nTest := n / 5
	if nTest == 0 && n > 1 {
		nTest = 1
	}
	nTrain := n - nTest

	trainX := make([]FeatureVector, 0, nTrain)
	trainY := make([]float64, 0, nTrain)
	testX := make([]FeatureVector, 0, nTest)
	testY := make([]float64, 0, nTest)
	for i, idx := range perm {
		if i < nTrain {
			trainX = append(trainX, features[idx])
			trainY = append(trainY, targets[idx])
		} else {
			testX = append(testX, features[idx])
			testY = append(testY, targets[idx])
		}
	}

	scaler := FitScaler(trainX)
	scaledTrain := make([]NormalizedFeatureVector, len(trainX))
	for i, row := range trainX {
		scaledTrain[i] = scaler.Normalize(row)
	}
	scaledTest := make([]NormalizedFeatureVector, len(testX))
	for i, row := range testX {
		scaledTest[i] = scaler.Normalize(row)
	}

	estimator := &Estimator{}
	if err := estimator.Fit(scaledTrain, trainY); err != nil {
		return nil, err
	}

	return &ModelSnapshot{
		Estimator:   estimator,
		Scaler:      scaler,
		TrainScore:  rSquared(estimator, scaledTrain, trainY),
		TestScore:   rSquared(estimator, scaledTest, testY),
		SampleCount: n,
		TrainedAt:   t.now(),
	}, nil
}

// Bootstrap trains an initial model from synthetic data so prediction works
// before any real history has accumulated. The generator mirrors the traffic
// shape the service expects: rush-hour and weather slowdowns, busier weekends.
func (t *Trainer) Bootstrap() (*ModelSnapshot, error) {
	rng := rand.New(rand.NewSource(t.seed))

	features := make([]FeatureVector, bootstrapSamples)
	targets := make([]float64, bootstrapSamples)
	for i := 0; i < bootstrapSamples; i++ {
		hour := float64(rng.Intn(24))
		day := float64(rng.Intn(7))
		weather := rng.Float64()
		base := 30 + rng.Float64()*50
		congestion := rng.Float64()

		rush := 1.0
		if (hour >= 7 && hour <= 9) || (hour >= 16 && hour <= 19) {
			rush = 0.7
		}
		weekend := 1.0
		if day >= 5 {
			weekend = 1.2
		}

		speed := base * (1 - congestion*0.5) * rush * weekend * (1 - weather*0.3)

		features[i] = FeatureVector{hour, day, weather, base, congestion}
		targets[i] = speed
	}

	snap, err := t.fit(features, targets)
	if err != nil {
		return nil, err
	}

	if err := SaveSnapshot(t.modelDir, snap); err != nil {
		return nil, err
	}

	trainingRuns.WithLabelValues("bootstrap").Inc()
	logger.Info("Bootstrapped model from synthetic data",
		zap.Int("samples", snap.SampleCount),
		zap.Float64("train_score", snap.TrainScore),
		zap.Float64("test_score", snap.TestScore),
	)

	return snap, nil
}
