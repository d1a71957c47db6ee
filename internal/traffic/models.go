package traffic

import (
	"errors"
	"time"
)

// NumFeatures is the width of the model's feature vector
const NumFeatures = 5

// Feature indices. The estimator is fit on exactly this order; changing it
// silently shifts every prediction rather than producing an error.
const (
	FeatHourOfDay = iota
	FeatDayOfWeek
	FeatWeatherImpact
	FeatBaseSpeedLimit
	FeatHistoricalCongestion
)

// featureNames in model order, reported by /model/info
var featureNames = [NumFeatures]string{
	"hour_of_day",
	"day_of_week",
	"weather_impact",
	"base_speed_limit",
	"historical_congestion",
}

// FeatureNames returns the ordered feature names
func FeatureNames() []string {
	names := make([]string, NumFeatures)
	copy(names, featureNames[:])
	return names
}

// FeatureVector is a raw, unscaled feature row in model order
type FeatureVector [NumFeatures]float64

// NormalizedFeatureVector is a feature row after standardization by a fitted Scaler
type NormalizedFeatureVector [NumFeatures]float64

// Observation is a live sensor reading for a road segment. Immutable once
// recorded: the historical store only ever appends.
type Observation struct {
	SegmentID        string    `json:"segment_id" binding:"required"`
	CurrentSpeed     float64   `json:"current_speed" binding:"gte=0"`
	CongestionFactor float64   `json:"congestion_factor" binding:"gte=0,lte=1"`
	TrafficDensity   float64   `json:"traffic_density" binding:"gte=0"`
	WeatherImpact    float64   `json:"weather_impact" binding:"gte=0,lte=1"`
	Timestamp        time.Time `json:"timestamp"`
}

// Prediction is a forecast for a road segment, cached for PredictionTTL
type Prediction struct {
	SegmentID           string    `json:"segment_id"`
	PredictedSpeed      float64   `json:"predicted_speed"`
	PredictedCongestion float64   `json:"predicted_congestion"`
	PredictionTime      time.Time `json:"prediction_time"`
	ValidUntil          time.Time `json:"valid_until"`
	Confidence          float64   `json:"confidence"`
}

// TrainingResult summarizes a completed retrain
type TrainingResult struct {
	SamplesUsed int     `json:"samples_used"`
	TrainScore  float64 `json:"train_score"`
	TestScore   float64 `json:"test_score"`
}

// ModelInfo describes the currently loaded model
type ModelInfo struct {
	ModelType    string    `json:"model_type"`
	Features     []string  `json:"features"`
	Target       string    `json:"target"`
	ModelLoaded  bool      `json:"model_loaded"`
	ScalerLoaded bool      `json:"scaler_loaded"`
	LastTraining time.Time `json:"last_training"`
}

// BatchResponse is the payload returned by batch prediction
type BatchResponse struct {
	Predictions []Prediction `json:"predictions"`
	Count       int          `json:"count"`
}

// TrainResponse is the payload returned by a retrain request
type TrainResponse struct {
	Message     string `json:"message"`
	SamplesUsed int    `json:"samples_used"`
}

// Error taxonomy. Handlers translate these to HTTP status codes; everything
// else is a generic internal error with the cause logged, never leaked.
var (
	// ErrModelUnavailable: estimator or scaler not loaded
	ErrModelUnavailable = errors.New("prediction model not loaded")
	// ErrInsufficientData: retrain requested with fewer than minTrainingSamples rows
	ErrInsufficientData = errors.New("insufficient training data")
	// ErrStoreUnavailable: the history or cache store failed; retryable
	ErrStoreUnavailable = errors.New("traffic store unavailable")
	// ErrLowQualityModel: strict mode rejected a retrain below the score floor
	ErrLowQualityModel = errors.New("retrained model below quality threshold")
	// ErrPredictionNotFound: no live cached prediction for the segment
	ErrPredictionNotFound = errors.New("no cached prediction for segment")
)
