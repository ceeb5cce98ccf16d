package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/matchsight/matchsight-be/internal/api/model"
)

// AnalysisStore abstracts the persistence layer used by the handlers
type AnalysisStore interface {
	CreateAnalysis(ctx context.Context, ownerID, videoKey string) (*model.Analysis, error)
	GetAnalysisByID(ctx context.Context, id string) (*model.Analysis, error)
	ListAnalyses(ctx context.Context, ownerID, status string, limit int, cursorCreatedAt time.Time, cursorID string) ([]model.Analysis, error)
	SetFeatures(ctx context.Context, id string, features []byte) error
}

// QueuePublisher abstracts the message queue used to hand jobs to workers
type QueuePublisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger *slog.Logger
	Store  AnalysisStore
	Queue  QueuePublisher
}

// AnalysisHandler handles analysis-related HTTP requests
type AnalysisHandler struct {
	logger *slog.Logger
	store  AnalysisStore
	queue  QueuePublisher
}

// NewAnalysisHandler creates a new AnalysisHandler instance
func NewAnalysisHandler(deps *Dependencies) *AnalysisHandler {
	return &AnalysisHandler{
		logger: deps.Logger,
		store:  deps.Store,
		queue:  deps.Queue,
	}
}
