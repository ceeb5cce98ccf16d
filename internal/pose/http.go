package pose

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/matchsight/matchsight-be/internal/video"
)

// Config holds settings for the HTTP-backed estimator.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// HTTPEstimator calls a pose inference server over HTTP. The server accepts a
// JPEG frame on POST /v1/detect and returns detected subjects as JSON.
type HTTPEstimator struct {
	baseURL string
	client  *http.Client
}

// NewHTTPEstimator creates an estimator and verifies the model server is
// reachable. An unreachable server fails here with ErrModelUnavailable so the
// caller can surface it once instead of per frame.
func NewHTTPEstimator(cfg *Config) (*HTTPEstimator, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base url is required", ErrModelUnavailable)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	e := &HTTPEstimator{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/healthz", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: health check returned %d", ErrModelUnavailable, resp.StatusCode)
	}

	return e, nil
}

type detectResponse struct {
	Subjects []Subject `json:"subjects"`
}

func (e *HTTPEstimator) Detect(ctx context.Context, frame video.Frame) ([]Subject, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/detect", bytes.NewReader(frame.Data))
	if err != nil {
		return nil, fmt.Errorf("building detect request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")
	req.Header.Set("X-Frame-Width", strconv.Itoa(frame.Width))
	req.Header.Set("X-Frame-Height", strconv.Itoa(frame.Height))

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("detect returned %d: %s", resp.StatusCode, string(body))
	}

	var decoded detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding detect response: %w", err)
	}

	return decoded.Subjects, nil
}

var _ Estimator = (*HTTPEstimator)(nil)
