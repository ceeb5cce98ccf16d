package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/matchsight/matchsight-be/internal/worker/domain"
	"github.com/matchsight/matchsight-be/shared/rabbitmq"
)

// AnalysisStorage is the persistence surface the worker needs to own a job
type AnalysisStorage interface {
	ClaimAnalysis(ctx context.Context, analysisID, workerID string) (*domain.AnalysisJob, error)
	UpdateHeartbeat(ctx context.Context, analysisID string) error
	FailAnalysis(ctx context.Context, analysisID, message string) error
}

// Processor runs the inference stage for one claimed analysis. It is
// responsible for writing the job's terminal state.
type Processor interface {
	Process(ctx context.Context, analysisID string, features json.RawMessage) error
}

// Config holds worker configuration
type Config struct {
	Logger            *slog.Logger
	RabbitClient      *rabbitmq.Client
	Storage           AnalysisStorage
	Processor         Processor
	WorkerID          string
	QueueName         string
	Concurrency       int
	PrefetchCount     int
	JobTimeout        time.Duration
	HeartbeatInterval time.Duration
}

// Worker consumes analysis messages and drives them through inference
type Worker struct {
	logger            *slog.Logger
	rabbitClient      *rabbitmq.Client
	storage           AnalysisStorage
	processor         Processor
	workerID          string
	queueName         string
	concurrency       int
	prefetchCount     int
	jobTimeout        time.Duration
	heartbeatInterval time.Duration
	jobsChan          chan *domain.JobMessage
	wg                sync.WaitGroup
	stopChan          chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = concurrency
	}

	heartbeat := cfg.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}

	return &Worker{
		logger:            cfg.Logger,
		rabbitClient:      cfg.RabbitClient,
		storage:           cfg.Storage,
		processor:         cfg.Processor,
		workerID:          cfg.WorkerID,
		queueName:         cfg.QueueName,
		concurrency:       concurrency,
		prefetchCount:     prefetch,
		jobTimeout:        cfg.JobTimeout,
		heartbeatInterval: heartbeat,
		jobsChan:          make(chan *domain.JobMessage),
		stopChan:          make(chan struct{}),
	}
}

// Start begins consuming and processing analyses. Blocks until the context
// is canceled or the delivery channel closes.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	deliveries, err := w.setupConsumer(ctx)
	if err != nil {
		return err
	}

	w.spawnWorkerPool(ctx)
	w.startMessageDispatcher(ctx, deliveries)

	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
