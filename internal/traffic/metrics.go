package traffic

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	predictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traffic_predictions_total",
			Help: "Total number of traffic predictions by outcome",
		},
		[]string{"outcome"},
	)

	cacheWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "traffic_prediction_cache_write_failures_total",
			Help: "Prediction cache writes that failed without failing the request",
		},
	)

	malformedHistoryRecords = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "traffic_malformed_history_records_total",
			Help: "Historical records skipped because they failed to parse",
		},
	)

	trainingRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traffic_model_training_runs_total",
			Help: "Model training runs by outcome",
		},
		[]string{"outcome"},
	)

	trainingSamples = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "traffic_model_training_samples",
			Help: "Sample count used by the most recent training run",
		},
	)
)
