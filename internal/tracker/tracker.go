package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

var (
	// ErrSizeLimitExceeded is returned before any bytes are sent when the
	// video is larger than the configured limit
	ErrSizeLimitExceeded = errors.New("video exceeds size limit")

	// ErrUploadFailed wraps failures while sending video bytes to object storage
	ErrUploadFailed = errors.New("video upload failed")

	// ErrEnqueueFailed wraps failures while registering the job after a
	// successful upload. The video is already stored; Enqueue can be retried
	// without re-uploading.
	ErrEnqueueFailed = errors.New("job registration failed")
)

// EnqueueError is returned by Submit when the upload succeeded but job
// registration failed. VideoKey is the stored object's key, so the caller can
// retry Enqueue alone instead of re-uploading.
type EnqueueError struct {
	VideoKey string
	Err      error
}

func (e *EnqueueError) Error() string {
	return fmt.Sprintf("%s (video stored at %s)", e.Err.Error(), e.VideoKey)
}

func (e *EnqueueError) Unwrap() error {
	return e.Err
}

// Job is the client-side view of an analysis job
type Job struct {
	ID           string          `json:"id"`
	OwnerID      string          `json:"owner_id"`
	VideoKey     string          `json:"video_key"`
	Status       string          `json:"status"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// Terminal reports whether the job admits no further transitions
func (j *Job) Terminal() bool {
	return j.Status == "complete" || j.Status == "error"
}

// ObjectStore uploads video bytes under a key
type ObjectStore interface {
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
}

// API is the analysis service surface the tracker drives
type API interface {
	CreateAnalysis(ctx context.Context, ownerID, videoKey string) (*Job, error)
	DeliverFeatures(ctx context.Context, analysisID string, features json.RawMessage) error
	GetAnalysis(ctx context.Context, analysisID string) (*Job, error)
	ListAnalyses(ctx context.Context, ownerID string) ([]Job, error)
}

// Tracker coordinates the client side of the pipeline: video upload, job
// registration, feature delivery, and status polling.
type Tracker struct {
	logger        *slog.Logger
	store         ObjectStore
	api           API
	maxVideoBytes int64
	now           func() time.Time
}

// New creates a tracker. maxVideoBytes <= 0 disables the size gate.
func New(store ObjectStore, api API, maxVideoBytes int64, logger *slog.Logger) *Tracker {
	return &Tracker{
		logger:        logger,
		store:         store,
		api:           api,
		maxVideoBytes: maxVideoBytes,
		now:           time.Now,
	}
}

// Upload stores the video bytes and returns the storage key. Keys are
// prefixed with the upload timestamp so re-submitting the same file never
// collides with an earlier attempt.
func (t *Tracker) Upload(ctx context.Context, name string, reader io.Reader, size int64) (string, error) {
	if t.maxVideoBytes > 0 && size > t.maxVideoBytes {
		return "", fmt.Errorf("%w: %d bytes (limit %d)", ErrSizeLimitExceeded, size, t.maxVideoBytes)
	}

	key := fmt.Sprintf("%d_%s", t.now().UnixMilli(), sanitizeName(name))

	if err := t.store.Put(ctx, key, reader, size, "video/mp4"); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	t.logger.Info("Video uploaded",
		slog.String("key", key),
		slog.Int64("size", size),
	)

	return key, nil
}

// Enqueue registers a new job for an already-uploaded video. Each call
// creates a fresh job with its own id, so retrying after a failed run never
// resurrects the old job.
func (t *Tracker) Enqueue(ctx context.Context, ownerID, videoKey string) (*Job, error) {
	job, err := t.api.CreateAnalysis(ctx, ownerID, videoKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnqueueFailed, err)
	}

	t.logger.Info("Job registered",
		slog.String("job_id", job.ID),
		slog.String("video_key", videoKey),
	)

	return job, nil
}

// Submit uploads the video and registers a job in one call. The two failure
// modes stay distinguishable: ErrUploadFailed means nothing was stored,
// ErrEnqueueFailed means the video is stored and the returned EnqueueError
// carries its key so Enqueue can be retried without re-uploading.
func (t *Tracker) Submit(ctx context.Context, ownerID, name string, reader io.Reader, size int64) (*Job, error) {
	key, err := t.Upload(ctx, name, reader, size)
	if err != nil {
		return nil, err
	}

	job, err := t.Enqueue(ctx, ownerID, key)
	if err != nil {
		return nil, &EnqueueError{VideoKey: key, Err: err}
	}
	return job, nil
}

// Deliver hands the extracted feature payload to the service, which stores
// it and queues the job for inference
func (t *Tracker) Deliver(ctx context.Context, jobID string, features json.RawMessage) error {
	if err := t.api.DeliverFeatures(ctx, jobID, features); err != nil {
		return err
	}

	t.logger.Info("Features delivered",
		slog.String("job_id", jobID),
	)

	return nil
}

// Poll fetches the current state of one job
func (t *Tracker) Poll(ctx context.Context, jobID string) (*Job, error) {
	return t.api.GetAnalysis(ctx, jobID)
}

// ListForOwner fetches the owner's jobs, newest first
func (t *Tracker) ListForOwner(ctx context.Context, ownerID string) ([]Job, error) {
	return t.api.ListAnalyses(ctx, ownerID)
}

// sanitizeName strips path separators and whitespace from a file name so it
// is safe to embed in an object key
func sanitizeName(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		" ", "_",
	)
	cleaned := replacer.Replace(strings.TrimSpace(name))
	if cleaned == "" {
		cleaned = "video"
	}
	return cleaned
}
