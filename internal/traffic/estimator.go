package traffic

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/sajari/regression"
)

// modelType is reported by /model/info
const modelType = "LinearRegression"

// targetName is the regression target
const targetName = "current_speed"

// Artifact file names under the model directory. Estimator and scaler are
// persisted as a pair and only loaded when both are present.
const (
	modelFileName  = "traffic_model.json"
	scalerFileName = "scaler.json"
)

// Scaler standardizes features to zero mean and unit variance. Parameters are
// fit once on a training split and frozen; prediction-time normalization must
// reuse exactly those frozen parameters.
type Scaler struct {
	Mean [NumFeatures]float64 `json:"mean"`
	Std  [NumFeatures]float64 `json:"std"`
}

// FitScaler computes per-feature mean and population standard deviation
// over the training rows.
func FitScaler(rows []FeatureVector) *Scaler {
	s := &Scaler{}
	if len(rows) == 0 {
		for i := range s.Std {
			s.Std[i] = 1
		}
		return s
	}

	n := float64(len(rows))
	for _, row := range rows {
		for i := 0; i < NumFeatures; i++ {
			s.Mean[i] += row[i]
		}
	}
	for i := 0; i < NumFeatures; i++ {
		s.Mean[i] /= n
	}

	for _, row := range rows {
		for i := 0; i < NumFeatures; i++ {
			d := row[i] - s.Mean[i]
			s.Std[i] += d * d
		}
	}
	for i := 0; i < NumFeatures; i++ {
		s.Std[i] = math.Sqrt(s.Std[i] / n)
		// Constant features pass through unscaled
		if s.Std[i] == 0 {
			s.Std[i] = 1
		}
	}

	return s
}

// Normalize applies the frozen scaling transform to a raw feature vector
func (s *Scaler) Normalize(fv FeatureVector) NormalizedFeatureVector {
	var out NormalizedFeatureVector
	for i := 0; i < NumFeatures; i++ {
		out[i] = (fv[i] - s.Mean[i]) / s.Std[i]
	}
	return out
}

// Estimator is a least-squares linear regression over normalized features.
// Any supervised regressor satisfying Fit/Predict would do; coefficients are
// kept explicitly so a persisted model predicts without refitting.
type Estimator struct {
	// Coeffs[0] is the intercept, Coeffs[1:] the per-feature weights
	Coeffs []float64 `json:"coefficients"`
}

// Fit trains the estimator on normalized rows against the target values.
// Zero-variance columns carry no signal and make the least-squares system
// singular, so the regression runs over the varying columns only and the
// rest keep zero weights.
func (e *Estimator) Fit(rows []NormalizedFeatureVector, targets []float64) error {
	if len(rows) == 0 || len(rows) != len(targets) {
		return fmt.Errorf("estimator fit: %d rows vs %d targets", len(rows), len(targets))
	}

	active := activeColumns(rows)
	e.Coeffs = make([]float64, NumFeatures+1)

	if len(active) == 0 {
		// Nothing to regress on; predict the target mean
		var mean float64
		for _, y := range targets {
			mean += y
		}
		e.Coeffs[0] = mean / float64(len(targets))
		return nil
	}

	var r regression.Regression
	r.SetObserved(targetName)
	for i, col := range active {
		r.SetVar(i, featureNames[col])
	}
	for i, row := range rows {
		point := make([]float64, len(active))
		for j, col := range active {
			point[j] = row[col]
		}
		r.Train(regression.DataPoint(targets[i], point))
	}

	if err := r.Run(); err != nil {
		return fmt.Errorf("estimator fit: %w", err)
	}

	coeffs := r.GetCoeffs()
	if len(coeffs) != len(active)+1 {
		return fmt.Errorf("estimator fit: got %d coefficients, want %d", len(coeffs), len(active)+1)
	}
	e.Coeffs[0] = coeffs[0]
	for j, col := range active {
		e.Coeffs[col+1] = coeffs[j+1]
	}
	return nil
}

// activeColumns returns the indices of columns that vary across the rows
func activeColumns(rows []NormalizedFeatureVector) []int {
	var active []int
	for col := 0; col < NumFeatures; col++ {
		first := rows[0][col]
		for _, row := range rows[1:] {
			if row[col] != first {
				active = append(active, col)
				break
			}
		}
	}
	return active
}

// Predict returns the predicted speed for a normalized feature vector
func (e *Estimator) Predict(x NormalizedFeatureVector) float64 {
	pred := e.Coeffs[0]
	for i := 0; i < NumFeatures; i++ {
		pred += e.Coeffs[i+1] * x[i]
	}
	return pred
}

// rSquared computes the coefficient of determination of the estimator over
// the given rows, for training observability.
func rSquared(e *Estimator, rows []NormalizedFeatureVector, targets []float64) float64 {
	if len(rows) == 0 {
		return 0
	}

	var mean float64
	for _, y := range targets {
		mean += y
	}
	mean /= float64(len(targets))

	var ssRes, ssTot float64
	for i, row := range rows {
		d := targets[i] - e.Predict(row)
		ssRes += d * d
		t := targets[i] - mean
		ssTot += t * t
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}

// ModelSnapshot is an immutable estimator+scaler pair plus training metadata.
// The process-wide slot holds at most one snapshot and is replaced wholesale;
// mixing one generation's estimator with another's scaler is never valid.
type ModelSnapshot struct {
	Estimator   *Estimator `json:"estimator"`
	Scaler      *Scaler    `json:"scaler"`
	TrainScore  float64    `json:"train_score"`
	TestScore   float64    `json:"test_score"`
	SampleCount int        `json:"sample_count"`
	TrainedAt   time.Time  `json:"trained_at"`
}

// modelArtifact is the on-disk shape of the estimator file
type modelArtifact struct {
	ModelType   string    `json:"model_type"`
	Target      string    `json:"target"`
	Features    []string  `json:"features"`
	Coeffs      []float64 `json:"coefficients"`
	TrainScore  float64   `json:"train_score"`
	TestScore   float64   `json:"test_score"`
	SampleCount int       `json:"sample_count"`
	TrainedAt   time.Time `json:"trained_at"`
}

// SaveSnapshot persists the estimator and scaler to the model directory so a
// restart recovers without retraining.
func SaveSnapshot(dir string, snap *ModelSnapshot) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	artifact := modelArtifact{
		ModelType:   modelType,
		Target:      targetName,
		Features:    FeatureNames(),
		Coeffs:      snap.Estimator.Coeffs,
		TrainScore:  snap.TrainScore,
		TestScore:   snap.TestScore,
		SampleCount: snap.SampleCount,
		TrainedAt:   snap.TrainedAt,
	}
	if err := writeJSON(filepath.Join(dir, modelFileName), artifact); err != nil {
		return fmt.Errorf("persist model: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, scalerFileName), snap.Scaler); err != nil {
		return fmt.Errorf("persist scaler: %w", err)
	}
	return nil
}

// LoadSnapshot restores a persisted estimator+scaler pair. Returns
// (nil, nil) when no artifact exists yet.
func LoadSnapshot(dir string) (*ModelSnapshot, error) {
	var artifact modelArtifact
	if err := readJSON(filepath.Join(dir, modelFileName), &artifact); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("load model: %w", err)
	}

	var scaler Scaler
	if err := readJSON(filepath.Join(dir, scalerFileName), &scaler); err != nil {
		// Half a pair is unusable; treat it as no model rather than risk
		// predicting with a mismatched scaler.
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("load scaler: %w", err)
	}

	if len(artifact.Coeffs) != NumFeatures+1 {
		return nil, fmt.Errorf("load model: got %d coefficients, want %d", len(artifact.Coeffs), NumFeatures+1)
	}

	return &ModelSnapshot{
		Estimator:   &Estimator{Coeffs: artifact.Coeffs},
		Scaler:      &scaler,
		TrainScore:  artifact.TrainScore,
		TestScore:   artifact.TestScore,
		SampleCount: artifact.SampleCount,
		TrainedAt:   artifact.TrainedAt,
	}, nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
