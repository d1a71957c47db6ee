package traffic

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/traffic-prediction/pkg/common"
	"github.com/richxcame/traffic-prediction/pkg/logger"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for traffic prediction
type Handler struct {
	service *Service
}

// NewHandler creates a new traffic prediction handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// PredictTraffic predicts traffic conditions for a road segment
// POST /predict/traffic
func (h *Handler) PredictTraffic(c *gin.Context) {
	var obs Observation
	if err := c.ShouldBindJSON(&obs); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	pred, err := h.service.Predict(c.Request.Context(), &obs)
	if err != nil {
		h.predictionError(c, err)
		return
	}

	common.SuccessResponse(c, pred)
}

// PredictBatch predicts traffic conditions for multiple road segments.
// The whole batch fails on the first bad item; there is no partial success.
// POST /predict/batch
func (h *Handler) PredictBatch(c *gin.Context) {
	var observations []Observation
	if err := c.ShouldBindJSON(&observations); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	predictions, err := h.service.PredictBatch(c.Request.Context(), observations)
	if err != nil {
		h.predictionError(c, err)
		return
	}

	common.SuccessResponse(c, BatchResponse{
		Predictions: predictions,
		Count:       len(predictions),
	})
}

// GetCachedPrediction returns the live cached prediction for a segment
// GET /predict/traffic/:segment_id
func (h *Handler) GetCachedPrediction(c *gin.Context) {
	segmentID := c.Param("segment_id")

	pred, err := h.service.CachedPrediction(c.Request.Context(), segmentID)
	if err != nil {
		switch {
		case errors.Is(err, ErrPredictionNotFound):
			common.AppErrorResponse(c, common.NewNotFoundError("no cached prediction for segment"))
		case errors.Is(err, ErrStoreUnavailable):
			common.ErrorResponse(c, http.StatusInternalServerError, "traffic store unavailable, retry later")
		default:
			logger.WithContext(c.Request.Context()).Error("Failed to read cached prediction", zap.Error(err))
			common.ErrorResponse(c, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	common.SuccessResponse(c, pred)
}

// RecordObservation records a traffic observation without predicting
// POST /traffic/data
func (h *Handler) RecordObservation(c *gin.Context) {
	var obs Observation
	if err := c.ShouldBindJSON(&obs); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.RecordObservation(c.Request.Context(), &obs); err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			common.ErrorResponse(c, http.StatusInternalServerError, "traffic store unavailable, retry later")
			return
		}
		logger.WithContext(c.Request.Context()).Error("Failed to record observation", zap.Error(err))
		common.ErrorResponse(c, http.StatusInternalServerError, "internal server error")
		return
	}

	common.SuccessResponse(c, gin.H{"message": "observation recorded"})
}

// TrainModel retrains the traffic prediction model
// POST /train/model
func (h *Handler) TrainModel(c *gin.Context) {
	result, err := h.service.Retrain(c.Request.Context())
	if err != nil {
		switch {
		case errors.Is(err, ErrInsufficientData):
			common.AppErrorResponse(c, common.NewBadRequestError("insufficient training data (need at least 100 samples)"))
		case errors.Is(err, ErrLowQualityModel):
			common.ErrorResponse(c, http.StatusUnprocessableEntity, "retrained model rejected by quality threshold")
		case errors.Is(err, ErrStoreUnavailable):
			common.ErrorResponse(c, http.StatusInternalServerError, "traffic store unavailable, retry later")
		default:
			logger.WithContext(c.Request.Context()).Error("Model training failed", zap.Error(err))
			common.ErrorResponse(c, http.StatusInternalServerError, "model training failed")
		}
		return
	}

	common.SuccessResponse(c, TrainResponse{
		Message:     "Model retrained successfully",
		SamplesUsed: result.SamplesUsed,
	})
}

// GetModelInfo returns information about the current model
// GET /model/info
func (h *Handler) GetModelInfo(c *gin.Context) {
	common.SuccessResponse(c, h.service.ModelInfo())
}

// predictionError maps a prediction failure onto the HTTP error taxonomy
func (h *Handler) predictionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrModelUnavailable):
		common.AppErrorResponse(c, common.NewServiceUnavailableError("prediction model not loaded"))
	case errors.Is(err, ErrStoreUnavailable):
		common.ErrorResponse(c, http.StatusInternalServerError, "traffic store unavailable, retry later")
	default:
		logger.WithContext(c.Request.Context()).Error("Prediction failed", zap.Error(err))
		common.ErrorResponse(c, http.StatusInternalServerError, "internal server error")
	}
}

// RegisterRoutes registers traffic prediction routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/predict/traffic", h.PredictTraffic)
	r.POST("/predict/batch", h.PredictBatch)
	r.GET("/predict/traffic/:segment_id", h.GetCachedPrediction)
	r.POST("/traffic/data", h.RecordObservation)
	r.POST("/train/model", h.TrainModel)
	r.GET("/model/info", h.GetModelInfo)
}
