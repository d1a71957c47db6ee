package traffic

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisClient "github.com/richxcame/traffic-prediction/pkg/redis"
)

// Key formats are externally visible and shared with the ingestion backend;
// they must stay stable for interop with existing cache data.
const (
	historicalKeyPrefix  = "historical_traffic:"
	predictionKeyPrefix  = "prediction:"
	historicalKeyPattern = historicalKeyPrefix + "*"

	defaultPredictionTTL = 30 * time.Minute
)

// Repository stores traffic history and cached predictions in Redis
type Repository struct {
	redis         *redisClient.Client
	predictionTTL time.Duration
}

// NewRepository creates a new traffic repository
func NewRepository(redis *redisClient.Client, predictionTTL time.Duration) *Repository {
	if predictionTTL <= 0 {
		predictionTTL = defaultPredictionTTL
	}
	return &Repository{redis: redis, predictionTTL: predictionTTL}
}

// RecordObservation appends an observation to the segment's history log.
// The log is unbounded and never evicted; growth is a known inherited risk.
func (r *Repository) RecordObservation(ctx context.Context, obs *Observation) error {
	data, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("marshal observation: %w", err)
	}

	key := historicalKeyPrefix + obs.SegmentID
	if err := r.redis.PushToList(ctx, key, data); err != nil {
		return fmt.Errorf("%w: append history for %s: %v", ErrStoreUnavailable, obs.SegmentID, err)
	}
	return nil
}

// History returns all raw history entries for a segment in insertion order.
// A segment with no history yields an empty slice.
func (r *Repository) History(ctx context.Context, segmentID string) ([]string, error) {
	entries, err := r.redis.ListRange(ctx, historicalKeyPrefix+segmentID)
	if err != nil {
		if redisClient.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read history for %s: %v", ErrStoreUnavailable, segmentID, err)
	}
	return entries, nil
}

// ScanSegments enumerates all segments that have any recorded history
func (r *Repository) ScanSegments(ctx context.Context) ([]string, error) {
	keys, err := r.redis.ScanKeys(ctx, historicalKeyPattern)
	if err != nil {
		return nil, fmt.Errorf("%w: scan segments: %v", ErrStoreUnavailable, err)
	}

	segments := make([]string, 0, len(keys))
	for _, key := range keys {
		segments = append(segments, key[len(historicalKeyPrefix):])
	}
	return segments, nil
}

// CachePrediction stores the serialized prediction under prediction:{segment_id}
// with the configured TTL. Last write wins.
func (r *Repository) CachePrediction(ctx context.Context, pred *Prediction) error {
	data, err := json.Marshal(pred)
	if err != nil {
		return fmt.Errorf("marshal prediction: %w", err)
	}

	key := predictionKeyPrefix + pred.SegmentID
	if err := r.redis.SetWithExpiration(ctx, key, data, r.predictionTTL); err != nil {
		return fmt.Errorf("%w: cache prediction for %s: %v", ErrStoreUnavailable, pred.SegmentID, err)
	}
	return nil
}

// CachedPrediction reads back the live cached prediction for a segment
func (r *Repository) CachedPrediction(ctx context.Context, segmentID string) (*Prediction, error) {
	data, err := r.redis.GetString(ctx, predictionKeyPrefix+segmentID)
	if err != nil {
		if redisClient.IsNotFound(err) {
			return nil, ErrPredictionNotFound
		}
		return nil, fmt.Errorf("%w: read cached prediction for %s: %v", ErrStoreUnavailable, segmentID, err)
	}

	var pred Prediction
	if err := json.Unmarshal([]byte(data), &pred); err != nil {
		return nil, fmt.Errorf("unmarshal cached prediction for %s: %w", segmentID, err)
	}
	return &pred, nil
}
