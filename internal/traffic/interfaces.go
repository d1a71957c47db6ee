package traffic

import (
	"context"
)

// RepositoryInterface defines the interface for traffic data storage
type RepositoryInterface interface {
	// Historical store: append-only per-segment log, insertion order preserved
	RecordObservation(ctx context.Context, obs *Observation) error
	History(ctx context.Context, segmentID string) ([]string, error)
	ScanSegments(ctx context.Context) ([]string, error)

	// Prediction cache: at most one live value per segment, last write wins
	CachePrediction(ctx context.Context, pred *Prediction) error
	CachedPrediction(ctx context.Context, segmentID string) (*Prediction, error)
}
