package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/matchsight/matchsight-be/internal/api/domain"
	"github.com/matchsight/matchsight-be/internal/api/dto"
	"github.com/matchsight/matchsight-be/internal/api/model"
)

// CreateAnalysis handles POST /api/v1/analyses
// Registers a new analysis job for an uploaded video
func (h *AnalysisHandler) CreateAnalysis(c *gin.Context) {
	var req dto.CreateAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	analysis, err := h.store.CreateAnalysis(c.Request.Context(), req.OwnerID, req.VideoKey)
	if err != nil {
		h.logger.Error("Failed to create analysis", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create analysis",
		})
		return
	}

	c.JSON(http.StatusCreated, toAnalysisDTO(analysis))
}

// GetAnalysis handles GET /api/v1/analyses/:analysis_id
// Returns the current lifecycle state of one analysis; the result field
// is present only once the job has completed
func (h *AnalysisHandler) GetAnalysis(c *gin.Context) {
	analysisID := c.Param("analysis_id")

	if _, err := uuid.Parse(analysisID); err != nil {
		h.logger.Error("Invalid analysis_id format",
			slog.String("analysis_id", analysisID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "analysis_id must be a valid UUID",
		})
		return
	}

	analysis, err := h.store.GetAnalysisByID(c.Request.Context(), analysisID)
	if err != nil {
		if errors.Is(err, domain.ErrAnalysisNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Analysis not found",
			})
			return
		}
		h.logger.Error("Failed to get analysis", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get analysis",
		})
		return
	}

	c.JSON(http.StatusOK, toAnalysisDTO(analysis))
}

// ListAnalyses handles GET /api/v1/analyses
// Lists an owner's analyses with optional status filter and cursor pagination
func (h *AnalysisHandler) ListAnalyses(c *gin.Context) {
	var req dto.ListAnalysesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.OwnerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "owner_id is required",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeAnalysisCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	var cursorCreatedAt time.Time
	var cursorID string
	if cursor != nil {
		cursorCreatedAt = cursor.CreatedAt
		cursorID = cursor.AnalysisID
	}

	// Fetch one extra row to know whether another page exists
	analyses, err := h.store.ListAnalyses(c.Request.Context(), req.OwnerID, req.Status, req.PageSize+1, cursorCreatedAt, cursorID)
	if err != nil {
		h.logger.Error("Failed to list analyses", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list analyses",
		})
		return
	}

	hasMore := len(analyses) > req.PageSize
	if hasMore {
		analyses = analyses[:req.PageSize]
	}

	items := make([]dto.AnalysisDTO, len(analyses))
	for i := range analyses {
		items[i] = toAnalysisDTO(&analyses[i])
	}

	var nextCursor string
	if hasMore {
		last := analyses[len(analyses)-1]
		nextCursor = EncodeAnalysisCursor(&AnalysisCursor{
			CreatedAt:  last.CreatedAt,
			AnalysisID: last.ID,
		})
	}

	c.JSON(http.StatusOK, dto.ListAnalysesResponse{
		Analyses:   items,
		NextCursor: nextCursor,
	})
}

// ProcessAnalysis handles POST /api/v1/analyses/:analysis_id/process
// Accepts the client-extracted feature payload, stores it on the pending
// row, and enqueues the job for the inference workers. The row stays
// pending if enqueue fails, so the client can retry delivery.
func (h *AnalysisHandler) ProcessAnalysis(c *gin.Context) {
	analysisID := c.Param("analysis_id")

	if _, err := uuid.Parse(analysisID); err != nil {
		h.logger.Error("Invalid analysis_id format",
			slog.String("analysis_id", analysisID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "analysis_id must be a valid UUID",
		})
		return
	}

	var req dto.ProcessAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	if req.ID != "" && req.ID != analysisID {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "body id does not match analysis_id in path",
		})
		return
	}

	if len(req.Features) == 0 || !json.Valid(req.Features) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "features must be a valid JSON payload",
		})
		return
	}

	if err := h.store.SetFeatures(c.Request.Context(), analysisID, req.Features); err != nil {
		if errors.Is(err, domain.ErrAnalysisNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Analysis not found or already processed",
			})
			return
		}
		h.logger.Error("Failed to store features", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to store features",
		})
		return
	}

	message, err := json.Marshal(gin.H{"analysis_id": analysisID})
	if err != nil {
		h.logger.Error("Failed to marshal queue message", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to enqueue analysis",
		})
		return
	}

	if err := h.queue.PublishWithRetry(c.Request.Context(), message, "application/json"); err != nil {
		h.logger.Error("Failed to publish analysis message",
			slog.String("analysis_id", analysisID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "Failed to enqueue analysis",
		})
		return
	}

	h.logger.Info("Analysis enqueued for processing",
		slog.String("analysis_id", analysisID),
	)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
	})
}

func toAnalysisDTO(analysis *model.Analysis) dto.AnalysisDTO {
	out := dto.AnalysisDTO{
		ID:        analysis.ID,
		OwnerID:   analysis.OwnerID,
		VideoKey:  analysis.VideoKey,
		Status:    analysis.Status,
		CreatedAt: analysis.CreatedAt.Format(time.RFC3339),
	}

	if analysis.Status == domain.StatusComplete && len(analysis.Result) > 0 {
		out.Result = json.RawMessage(analysis.Result)
	}
	if analysis.ErrorMessage.Valid {
		out.ErrorMessage = analysis.ErrorMessage.String
	}
	if analysis.CompletedAt.Valid {
		out.CompletedAt = analysis.CompletedAt.Time.Format(time.RFC3339)
	}

	return out
}
