package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/matchsight/matchsight-be/internal/analysis"
	"github.com/matchsight/matchsight-be/internal/worker/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Info("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Info("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case msg, ok := <-w.jobsChan:
			if !ok {
				w.logger.Info("Worker goroutine stopping - jobsChan closed",
					slog.String("worker_name", workerName),
				)
				return
			}

			w.logger.Info("Worker received analysis",
				slog.String("worker_name", workerName),
				slog.String("analysis_id", msg.AnalysisID),
				slog.Uint64("delivery_tag", msg.DeliveryTag),
			)

			err := w.processAnalysis(ctx, msg)

			channel := w.rabbitClient.GetChannel()
			if channel == nil {
				w.logger.Error("Failed to get RabbitMQ channel for ACK/NACK",
					slog.String("worker_name", workerName),
					slog.String("analysis_id", msg.AnalysisID),
				)
				continue
			}

			if err != nil {
				w.logger.Error("Analysis processing failed",
					slog.String("worker_name", workerName),
					slog.String("analysis_id", msg.AnalysisID),
					slog.String("error", err.Error()),
				)

				requeue := w.shouldRequeue(err)

				if nackErr := channel.Nack(msg.DeliveryTag, false, requeue); nackErr != nil {
					w.logger.Error("Failed to NACK message",
						slog.String("worker_name", workerName),
						slog.String("analysis_id", msg.AnalysisID),
						slog.String("error", nackErr.Error()),
					)
				} else {
					w.logger.Info("Message NACKed",
						slog.String("worker_name", workerName),
						slog.String("analysis_id", msg.AnalysisID),
						slog.Bool("requeue", requeue),
					)
				}
			} else {
				if ackErr := channel.Ack(msg.DeliveryTag, false); ackErr != nil {
					w.logger.Error("Failed to ACK message",
						slog.String("worker_name", workerName),
						slog.String("analysis_id", msg.AnalysisID),
						slog.String("error", ackErr.Error()),
					)
				} else {
					w.logger.Info("Analysis completed successfully",
						slog.String("worker_name", workerName),
						slog.String("analysis_id", msg.AnalysisID),
					)
				}
			}
		}
	}
}

// shouldRequeue decides whether a failed analysis goes back on the queue.
// Anything that already reached a terminal state must not be retried here;
// full re-submission through the API is the retry path.
func (w *Worker) shouldRequeue(err error) bool {
	// Another worker owns it, or the row was not pending
	if errors.Is(err, domain.ErrAnalysisAlreadyClaimed) {
		return false
	}

	// Terminal: the processor already marked the row error
	if errors.Is(err, domain.ErrMissingFeatures) {
		return false
	}
	if errors.Is(err, analysis.ErrInferenceTransport) {
		return false
	}
	if errors.Is(err, analysis.ErrMalformedOutput) {
		return false
	}

	// Requeue for transient/retryable errors
	var retryableErr *domain.RetryableError
	if errors.As(err, &retryableErr) {
		return true
	}

	return false
}
