package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/matchsight/matchsight-be/internal/api/domain"
	"github.com/matchsight/matchsight-be/internal/api/model"
)

// Storage handles analysis persistence for the API service
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// CreateAnalysis inserts a new analysis row in pending state and returns it
func (s *Storage) CreateAnalysis(ctx context.Context, ownerID, videoKey string) (*model.Analysis, error) {
	analysis := &model.Analysis{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		VideoKey:  videoKey,
		Status:    domain.StatusPending,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	query := `
		INSERT INTO analyses (id, owner_id, video_key, status, created_at, updated_at)
		VALUES (:id, :owner_id, :video_key, :status, :created_at, :updated_at)`

	if _, err := s.db.NamedExecContext(ctx, query, analysis); err != nil {
		return nil, fmt.Errorf("failed to create analysis: %w", err)
	}

	s.logger.Info("Analysis created",
		slog.String("analysis_id", analysis.ID),
		slog.String("owner_id", ownerID),
	)

	return analysis, nil
}

// GetAnalysisByID fetches a single analysis by its id
func (s *Storage) GetAnalysisByID(ctx context.Context, id string) (*model.Analysis, error) {
	var analysis model.Analysis

	query := `
		SELECT id, owner_id, video_key, status, features, result,
		       error_message, worker_id, created_at, updated_at, completed_at
		FROM analyses
		WHERE id = $1`

	if err := s.db.GetContext(ctx, &analysis, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAnalysisNotFound
		}
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}

	return &analysis, nil
}

// ListAnalyses returns analyses filtered by owner and status, newest first.
// Cursor pagination keys on (created_at, id) so pages stay stable while
// new rows arrive.
func (s *Storage) ListAnalyses(ctx context.Context, ownerID, status string, limit int, cursorCreatedAt time.Time, cursorID string) ([]model.Analysis, error) {
	query := `
		SELECT id, owner_id, video_key, status, features, result,
		       error_message, worker_id, created_at, updated_at, completed_at
		FROM analyses
		WHERE owner_id = $1`
	args := []interface{}{ownerID}

	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	if cursorID != "" {
		args = append(args, cursorCreatedAt, cursorID)
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", len(args)-1, len(args))
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	analyses := []model.Analysis{}
	if err := s.db.SelectContext(ctx, &analyses, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}

	return analyses, nil
}

// SetFeatures stores the client-extracted feature payload on a pending analysis
func (s *Storage) SetFeatures(ctx context.Context, id string, features []byte) error {
	query := `
		UPDATE analyses
		SET features = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3`

	result, err := s.db.ExecContext(ctx, query, id, features, domain.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to set features: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rows == 0 {
		return domain.ErrAnalysisNotFound
	}

	return nil
}
