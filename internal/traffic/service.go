package traffic

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/richxcame/traffic-prediction/pkg/logger"
	"go.uber.org/zap"
)

// Service orchestrates feature construction, inference, derived metrics and
// caching for traffic predictions.
type Service struct {
	repo     RepositoryInterface
	features *FeatureBuilder
	trainer  *Trainer

	// model is the process-wide estimator+scaler slot. Read per prediction,
	// replaced wholesale by retrain; readers always observe a consistent pair.
	model atomic.Pointer[ModelSnapshot]

	modelDir       string
	baseSpeedLimit float64
	predictionTTL  time.Duration
	now            func() time.Time
}

// NewService creates a new traffic prediction service
func NewService(repo RepositoryInterface, trainer *Trainer, modelDir string, baseSpeedLimit float64, predictionTTL time.Duration) *Service {
	if predictionTTL <= 0 {
		predictionTTL = defaultPredictionTTL
	}
	return &Service{
		repo:           repo,
		features:       NewFeatureBuilder(repo, baseSpeedLimit),
		trainer:        trainer,
		modelDir:       modelDir,
		baseSpeedLimit: baseSpeedLimit,
		predictionTTL:  predictionTTL,
		now:            time.Now,
	}
}

// WithNow overrides the service clock, for tests
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// SetModel installs a snapshot into the live slot, for tests and startup
func (s *Service) SetModel(snap *ModelSnapshot) {
	s.model.Store(snap)
}

// LoadOrBootstrap restores the persisted estimator+scaler pair, or trains a
// fresh one from synthetic data when no artifact exists yet.
func (s *Service) LoadOrBootstrap() error {
	snap, err := LoadSnapshot(s.modelDir)
	if err != nil {
		return err
	}
	if snap != nil {
		logger.Info("Loaded persisted model",
			zap.Time("trained_at", snap.TrainedAt),
			zap.Int("samples", snap.SampleCount),
		)
		s.model.Store(snap)
		return nil
	}

	logger.Info("No persisted model found, training from scratch")
	snap, err = s.trainer.Bootstrap()
	if err != nil {
		return fmt.Errorf("bootstrap model: %w", err)
	}
	s.model.Store(snap)
	return nil
}

// Predict forecasts near-term speed and congestion for the observed segment,
// caches the result and returns it.
func (s *Service) Predict(ctx context.Context, obs *Observation) (*Prediction, error) {
	// One snapshot for the whole request: estimator and scaler stay paired
	// even if a retrain swap lands mid-flight.
	snap := s.model.Load()
	if snap == nil || snap.Estimator == nil || snap.Scaler == nil {
		predictionsTotal.WithLabelValues("model_unavailable").Inc()
		return nil, ErrModelUnavailable
	}

	now := s.now()
	fv, err := s.features.Build(ctx, obs.SegmentID, obs, now)
	if err != nil {
		predictionsTotal.WithLabelValues("store_error").Inc()
		return nil, err
	}

	speed := snap.Estimator.Predict(snap.Scaler.Normalize(fv))

	// Congestion is the speed deficit against nominal free-flow speed: one
	// regression target drives both outputs.
	congestion := clamp((s.baseSpeedLimit-speed)/s.baseSpeedLimit, 0, 1)

	// Heuristic proxy for model certainty, peaking at moderate congestion.
	// Not a calibrated interval.
	confidence := clamp(1-math.Abs(congestion-0.5), 0.5, 0.95)

	pred := &Prediction{
		SegmentID:           obs.SegmentID,
		PredictedSpeed:      speed,
		PredictedCongestion: congestion,
		PredictionTime:      now,
		ValidUntil:          now.Add(s.predictionTTL),
		Confidence:          confidence,
	}

	// A failed cache write never fails the prediction
	if err := s.repo.CachePrediction(ctx, pred); err != nil {
		cacheWriteFailures.Inc()
		logger.WithContext(ctx).Warn("Failed to cache prediction",
			zap.String("segment_id", obs.SegmentID),
			zap.Error(err),
		)
	}

	predictionsTotal.WithLabelValues("success").Inc()
	logger.WithContext(ctx).Info("Generated traffic prediction",
		zap.String("segment_id", obs.SegmentID),
		zap.Float64("predicted_speed", speed),
		zap.Float64("predicted_congestion", congestion),
	)

	return pred, nil
}

// PredictBatch predicts sequentially for each observation. The whole batch
// fails on the first error with no partial results.
func (s *Service) PredictBatch(ctx context.Context, observations []Observation) ([]Prediction, error) {
	predictions := make([]Prediction, 0, len(observations))
	for i := range observations {
		pred, err := s.Predict(ctx, &observations[i])
		if err != nil {
			return nil, fmt.Errorf("batch item %d (%s): %w", i, observations[i].SegmentID, err)
		}
		predictions = append(predictions, *pred)
	}
	return predictions, nil
}

// Retrain rebuilds the model from all recorded history and atomically swaps
// the new estimator+scaler pair into the live slot.
func (s *Service) Retrain(ctx context.Context) (*TrainingResult, error) {
	snap, err := s.trainer.Retrain(ctx)
	if err != nil {
		return nil, err
	}

	s.model.Store(snap)

	return &TrainingResult{
		SamplesUsed: snap.SampleCount,
		TrainScore:  snap.TrainScore,
		TestScore:   snap.TestScore,
	}, nil
}

// RecordObservation appends an observation to the segment's history without
// predicting. This is the ingestion side of the pipeline.
func (s *Service) RecordObservation(ctx context.Context, obs *Observation) error {
	if obs.Timestamp.IsZero() {
		obs.Timestamp = s.now()
	}
	return s.repo.RecordObservation(ctx, obs)
}

// CachedPrediction returns the live cached prediction for a segment, if any
func (s *Service) CachedPrediction(ctx context.Context, segmentID string) (*Prediction, error) {
	return s.repo.CachedPrediction(ctx, segmentID)
}

// ModelInfo describes the currently loaded model
func (s *Service) ModelInfo() *ModelInfo {
	info := &ModelInfo{
		ModelType: modelType,
		Features:  FeatureNames(),
		Target:    targetName,
	}

	if snap := s.model.Load(); snap != nil {
		info.ModelLoaded = snap.Estimator != nil
		info.ScalerLoaded = snap.Scaler != nil
		info.LastTraining = snap.TrainedAt
	}

	return info
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
