package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// JobFetcher fetches the current state of one job
type JobFetcher interface {
	Poll(ctx context.Context, jobID string) (*Job, error)
}

// Task is one owned polling loop. It stops on its own when the job reaches
// a terminal state, or when canceled.
type Task struct {
	jobID  string
	cancel context.CancelFunc
	done   chan struct{}
}

// Done is closed when the polling loop has exited
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Cancel stops the polling loop. Safe to call more than once.
func (t *Task) Cancel() {
	t.cancel()
}

// Poller owns the polling loops for in-flight jobs. At most one task runs
// per job id; starting a second poll for the same job replaces the first.
type Poller struct {
	logger   *slog.Logger
	fetcher  JobFetcher
	interval time.Duration

	mu    sync.Mutex
	tasks map[string]*Task
}

// NewPoller creates a poller. Interval <= 0 falls back to 2 seconds.
func NewPoller(fetcher JobFetcher, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Poller{
		logger:   logger,
		fetcher:  fetcher,
		interval: interval,
		tasks:    make(map[string]*Task),
	}
}

// Start begins polling a job. onUpdate fires after every successful fetch,
// including the terminal one. The first fetch happens immediately.
func (p *Poller) Start(ctx context.Context, jobID string, onUpdate func(*Job)) *Task {
	taskCtx, cancel := context.WithCancel(ctx)
	task := &Task{
		jobID:  jobID,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	p.mu.Lock()
	if prev, ok := p.tasks[jobID]; ok {
		prev.cancel()
	}
	p.tasks[jobID] = task
	p.mu.Unlock()

	go p.run(taskCtx, task, onUpdate)

	return task
}

// Cancel stops the polling loop for a job, if one is running
func (p *Poller) Cancel(jobID string) {
	p.mu.Lock()
	task, ok := p.tasks[jobID]
	p.mu.Unlock()

	if ok {
		task.cancel()
	}
}

// CancelAll stops every polling loop
func (p *Poller) CancelAll() {
	p.mu.Lock()
	tasks := make([]*Task, 0, len(p.tasks))
	for _, task := range p.tasks {
		tasks = append(tasks, task)
	}
	p.mu.Unlock()

	for _, task := range tasks {
		task.cancel()
	}
}

func (p *Poller) run(ctx context.Context, task *Task, onUpdate func(*Job)) {
	defer close(task.done)
	defer func() {
		p.mu.Lock()
		if p.tasks[task.jobID] == task {
			delete(p.tasks, task.jobID)
		}
		p.mu.Unlock()
	}()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		job, err := p.fetcher.Poll(ctx, task.jobID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Transient fetch errors keep the loop alive; the job state is
			// authoritative on the server
			p.logger.Warn("Poll failed",
				slog.String("job_id", task.jobID),
				slog.String("error", err.Error()),
			)
		} else {
			if onUpdate != nil {
				onUpdate(job)
			}
			if job.Terminal() {
				p.logger.Debug("Polling stopped - job reached terminal state",
					slog.String("job_id", task.jobID),
					slog.String("status", job.Status),
				)
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
