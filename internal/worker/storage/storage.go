package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/matchsight/matchsight-be/internal/analysis"
	"github.com/matchsight/matchsight-be/internal/worker/domain"
)

// Storage handles all database operations for the worker
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// ClaimAnalysis attempts to claim a pending analysis using optimistic locking.
// Returns the job details on success, ErrAnalysisAlreadyClaimed if another
// worker got there first or the row is not pending.
func (s *Storage) ClaimAnalysis(ctx context.Context, analysisID, workerID string) (*domain.AnalysisJob, error) {
	query := `
		UPDATE analyses
		SET status = $1,
		    worker_id = $2,
		    started_at = NOW(),
		    last_heartbeat_at = NOW(),
		    updated_at = NOW()
		WHERE id = $3
		  AND status = $4
		RETURNING id, owner_id, video_key, features
	`

	var job domain.AnalysisJob
	var features []byte

	err := s.db.QueryRowContext(ctx, query, domain.StatusRunning, workerID, analysisID, domain.StatusPending).Scan(
		&job.ID,
		&job.OwnerID,
		&job.VideoKey,
		&features,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Failed to claim analysis - already claimed or not found",
				slog.String("analysis_id", analysisID),
				slog.String("worker_id", workerID),
			)
			return nil, domain.ErrAnalysisAlreadyClaimed
		}
		return nil, fmt.Errorf("failed to claim analysis: %w", err)
	}

	job.Features = features
	job.Status = domain.StatusRunning
	job.WorkerID = workerID

	s.logger.Info("Analysis claimed successfully",
		slog.String("analysis_id", analysisID),
		slog.String("worker_id", workerID),
	)

	return &job, nil
}

// CompleteAnalysis stores the inference result and moves the row to complete
func (s *Storage) CompleteAnalysis(ctx context.Context, analysisID string, result *analysis.ResultPayload) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	query := `
		UPDATE analyses
		SET status = $1,
		    result = $2,
		    error_message = NULL,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE id = $3 AND status = $4
	`

	res, err := s.db.ExecContext(ctx, query, domain.StatusComplete, resultJSON, analysisID, domain.StatusRunning)
	if err != nil {
		return fmt.Errorf("failed to complete analysis: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrAnalysisNotFound
	}

	s.logger.Info("Analysis completed",
		slog.String("analysis_id", analysisID),
	)

	return nil
}

// FailAnalysis records the failure reason and moves the row to error
func (s *Storage) FailAnalysis(ctx context.Context, analysisID, message string) error {
	query := `
		UPDATE analyses
		SET status = $1,
		    error_message = $2,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE id = $3 AND status = $4
	`

	res, err := s.db.ExecContext(ctx, query, domain.StatusError, message, analysisID, domain.StatusRunning)
	if err != nil {
		return fmt.Errorf("failed to mark analysis as error: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrAnalysisNotFound
	}

	s.logger.Info("Analysis marked as error",
		slog.String("analysis_id", analysisID),
		slog.String("error_message", message),
	)

	return nil
}

// UpdateHeartbeat updates the last_heartbeat_at timestamp for a running analysis
func (s *Storage) UpdateHeartbeat(ctx context.Context, analysisID string) error {
	query := `
		UPDATE analyses
		SET last_heartbeat_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1 AND status = $2
	`

	result, err := s.db.ExecContext(ctx, query, analysisID, domain.StatusRunning)
	if err != nil {
		return fmt.Errorf("failed to update analysis heartbeat: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Warn("Heartbeat update - no rows affected (analysis may not be running)",
			slog.String("analysis_id", analysisID),
		)
	}

	return nil
}
