package traffic

import (
	"context"
	"encoding/json"
	"time"

	"github.com/richxcame/traffic-prediction/pkg/logger"
	"go.uber.org/zap"
)

// defaultHistoricalCongestion is the congestion prior when a segment has no
// parseable history, and the per-record fallback when a parsed record lacks
// a congestion_factor field.
const defaultHistoricalCongestion = 0.3

// historicalRecord is the loosely-typed shape of a stored history entry.
// Pointer fields distinguish "absent" from zero so absent fields can take
// their documented defaults instead of silently becoming zero.
type historicalRecord struct {
	CongestionFactor *float64 `json:"congestion_factor"`
	WeatherImpact    *float64 `json:"weather_impact"`
	CurrentSpeed     *float64 `json:"current_speed"`
}

// FeatureBuilder assembles fixed-order feature vectors from the current time,
// a live observation, and the segment's history.
type FeatureBuilder struct {
	repo           RepositoryInterface
	baseSpeedLimit float64
}

// NewFeatureBuilder creates a new feature builder
func NewFeatureBuilder(repo RepositoryInterface, baseSpeedLimit float64) *FeatureBuilder {
	return &FeatureBuilder{repo: repo, baseSpeedLimit: baseSpeedLimit}
}

// Build constructs the feature vector for a segment. Hour and day-of-week come
// from now, not from the observation's own timestamp: a prediction is always
// made "as of now" and history informs only the congestion prior. Returns an
// error only when the history store is unreachable; malformed history entries
// are skipped, counted, and never fatal.
func (b *FeatureBuilder) Build(ctx context.Context, segmentID string, obs *Observation, now time.Time) (FeatureVector, error) {
	var fv FeatureVector

	history, err := b.repo.History(ctx, segmentID)
	if err != nil {
		return fv, err
	}

	congestion, skipped := historicalCongestion(history)
	if skipped > 0 {
		malformedHistoryRecords.Add(float64(skipped))
		logger.WithContext(ctx).Debug("Skipped malformed history records",
			zap.String("segment_id", segmentID),
			zap.Int("skipped", skipped),
		)
	}

	fv[FeatHourOfDay] = float64(now.Hour())
	fv[FeatDayOfWeek] = float64(dayOfWeek(now))
	fv[FeatWeatherImpact] = obs.WeatherImpact
	fv[FeatBaseSpeedLimit] = b.baseSpeedLimit
	fv[FeatHistoricalCongestion] = congestion

	return fv, nil
}

// historicalCongestion computes the mean congestion over parseable history
// entries, or the default prior when none parse. Also returns the number of
// entries skipped as malformed.
func historicalCongestion(history []string) (float64, int) {
	var sum float64
	var n, skipped int

	for _, raw := range history {
		var rec historicalRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			skipped++
			continue
		}
		if rec.CongestionFactor != nil {
			sum += *rec.CongestionFactor
		} else {
			sum += defaultHistoricalCongestion
		}
		n++
	}

	if n == 0 {
		return defaultHistoricalCongestion, skipped
	}
	return sum / float64(n), skipped
}

// dayOfWeek maps time.Weekday onto the model's 0=Monday..6=Sunday convention
// the estimator was trained with.
func dayOfWeek(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
