package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrInferenceTransport indicates the completion collaborator failed before a
// completion was produced. The job is marked error; retry is the caller's
// decision via full re-submission.
var ErrInferenceTransport = errors.New("inference transport failed")

// Store is the terminal-state writer the service drives. The service is the
// sole writer of terminal job state.
type Store interface {
	// CompleteAnalysis persists the result, sets completed_at, and marks the
	// job complete, atomically.
	CompleteAnalysis(ctx context.Context, jobID string, result *ResultPayload) error
	// FailAnalysis marks the job error with a diagnostic message.
	FailAnalysis(ctx context.Context, jobID string, message string) error
}

// Service consumes one (jobID, features) pair per invocation: it asks the
// completion collaborator for a structured report, validates it, and writes
// the job's terminal state. Invoking it twice for the same job overwrites the
// terminal state, which is acceptable; it is never left non-terminal.
type Service struct {
	logger   *slog.Logger
	provider CompletionProvider
	store    Store
	timeout  time.Duration
}

// NewService creates an analysis service. Timeout bounds one completion call.
func NewService(provider CompletionProvider, store Store, timeout time.Duration, logger *slog.Logger) *Service {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Service{
		logger:   logger,
		provider: provider,
		store:    store,
		timeout:  timeout,
	}
}

// Process runs the inference stage for one job. The returned error describes
// why the job failed; in every failure path the job has already been moved to
// its terminal error state.
func (s *Service) Process(ctx context.Context, jobID string, featuresJSON json.RawMessage) error {
	prompt, err := BuildPrompt(featuresJSON)
	if err != nil {
		s.fail(ctx, jobID, err.Error())
		return fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	completionCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	completion, err := s.provider.Complete(completionCtx, prompt)
	if err != nil {
		s.logger.Error("Completion request failed",
			slog.String("job_id", jobID),
			slog.String("provider", s.provider.Name()),
			slog.String("error", err.Error()),
		)
		s.fail(ctx, jobID, fmt.Sprintf("inference failed: %s", err.Error()))
		return fmt.Errorf("%w: %v", ErrInferenceTransport, err)
	}

	result, err := ParseResult(completion)
	if err != nil {
		s.logger.Error("Completion did not match result contract",
			slog.String("job_id", jobID),
			slog.String("provider", s.provider.Name()),
			slog.String("error", err.Error()),
		)
		s.fail(ctx, jobID, fmt.Sprintf("invalid inference output: %s", err.Error()))
		return err
	}

	if err := s.store.CompleteAnalysis(ctx, jobID, result); err != nil {
		// The job must not be left running with no work in flight.
		s.fail(ctx, jobID, fmt.Sprintf("persisting result: %s", err.Error()))
		return fmt.Errorf("persisting result for job %s: %w", jobID, err)
	}

	s.logger.Info("Analysis complete",
		slog.String("job_id", jobID),
		slog.String("provider", s.provider.Name()),
		slog.Int("recommendation_count", len(result.Recommendations)),
	)

	return nil
}

func (s *Service) fail(ctx context.Context, jobID, message string) {
	// The job context may already be dead (timeout, shutdown); the terminal
	// write must still land or the row stays running with no work in flight.
	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := s.store.FailAnalysis(failCtx, jobID, message); err != nil {
		s.logger.Error("Failed to mark job as error",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}
