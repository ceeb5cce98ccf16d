package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/matchsight/matchsight-be/internal/worker/domain"
)

// processAnalysis claims one analysis and runs it through inference with
// timeout and heartbeat. The processor owns the terminal state transition.
func (w *Worker) processAnalysis(ctx context.Context, msg *domain.JobMessage) error {
	w.logger.Info("Processing analysis",
		slog.String("analysis_id", msg.AnalysisID),
		slog.String("worker_id", w.workerID),
	)

	// Claim the row (pending -> running)
	job, err := w.storage.ClaimAnalysis(ctx, msg.AnalysisID, w.workerID)
	if err != nil {
		if errors.Is(err, domain.ErrAnalysisAlreadyClaimed) {
			w.logger.Warn("Analysis already claimed, skipping",
				slog.String("analysis_id", msg.AnalysisID),
			)
			return fmt.Errorf("analysis already claimed: %w", err)
		}
		// Database error, could be transient
		w.logger.Error("Failed to claim analysis",
			slog.String("analysis_id", msg.AnalysisID),
			slog.String("error", err.Error()),
		)
		return domain.NewRetryableError(fmt.Errorf("failed to claim analysis: %w", err))
	}

	// A row enqueued without features can never succeed; fail it now
	if len(job.Features) == 0 {
		w.logger.Error("Claimed analysis has no feature payload",
			slog.String("analysis_id", job.ID),
		)
		// Keep the terminal write alive even if ctx died during the claim
		failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if failErr := w.storage.FailAnalysis(failCtx, job.ID, "no feature payload delivered"); failErr != nil {
			w.logger.Error("Failed to mark analysis as error",
				slog.String("analysis_id", job.ID),
				slog.String("error", failErr.Error()),
			)
		}
		return domain.ErrMissingFeatures
	}

	jobCtx := ctx
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	// Heartbeat while inference is in flight
	heartbeatDone := make(chan struct{})
	go w.sendHeartbeat(jobCtx, job.ID, heartbeatDone)
	defer close(heartbeatDone)

	// The processor writes the terminal state in every outcome
	if err := w.processor.Process(jobCtx, job.ID, job.Features); err != nil {
		w.logger.Error("Inference stage failed",
			slog.String("analysis_id", job.ID),
			slog.String("error", err.Error()),
		)
		return err
	}

	w.logger.Info("Inference stage finished",
		slog.String("analysis_id", job.ID),
		slog.String("owner_id", job.OwnerID),
	)

	return nil
}

// sendHeartbeat periodically updates the analysis heartbeat timestamp
func (w *Worker) sendHeartbeat(ctx context.Context, analysisID string, done <-chan struct{}) {
	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()

	w.logger.Debug("Heartbeat started",
		slog.String("analysis_id", analysisID),
	)

	for {
		select {
		case <-done:
			w.logger.Debug("Heartbeat stopped",
				slog.String("analysis_id", analysisID),
			)
			return

		case <-ctx.Done():
			w.logger.Debug("Heartbeat stopped - context canceled",
				slog.String("analysis_id", analysisID),
			)
			return

		case <-ticker.C:
			if err := w.storage.UpdateHeartbeat(ctx, analysisID); err != nil {
				w.logger.Warn("Failed to update heartbeat",
					slog.String("analysis_id", analysisID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
