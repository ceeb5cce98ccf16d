package mock

import (
	"context"
	"sync"

	"github.com/matchsight/matchsight-be/internal/pose"
	"github.com/matchsight/matchsight-be/internal/video"
)

// Estimator satisfies pose.Estimator for testing.
type Estimator struct {
	DetectFunc func(ctx context.Context, frame video.Frame) ([]pose.Subject, error)

	mu    sync.Mutex
	calls int
}

func (e *Estimator) Detect(ctx context.Context, frame video.Frame) ([]pose.Subject, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if e.DetectFunc != nil {
		return e.DetectFunc(ctx, frame)
	}
	return nil, nil
}

// Calls returns how many times Detect has been invoked.
func (e *Estimator) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// NewStatic returns an estimator that yields the same subjects for every frame.
func NewStatic(subjects []pose.Subject) *Estimator {
	return &Estimator{
		DetectFunc: func(_ context.Context, _ video.Frame) ([]pose.Subject, error) {
			return subjects, nil
		},
	}
}

// NewFailing returns an estimator that always returns the given error.
func NewFailing(err error) *Estimator {
	return &Estimator{
		DetectFunc: func(_ context.Context, _ video.Frame) ([]pose.Subject, error) {
			return nil, err
		},
	}
}

var _ pose.Estimator = (*Estimator)(nil)
