package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is an HTTP implementation of API against the analysis service
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an API client. Timeout <= 0 falls back to 30 seconds.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) CreateAnalysis(ctx context.Context, ownerID, videoKey string) (*Job, error) {
	body, err := json.Marshal(map[string]string{
		"owner_id":  ownerID,
		"video_key": videoKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var job Job
	if err := c.do(ctx, http.MethodPost, "/api/v1/analyses", body, http.StatusCreated, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) DeliverFeatures(ctx context.Context, analysisID string, features json.RawMessage) error {
	body, err := json.Marshal(map[string]json.RawMessage{
		"features": features,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	path := fmt.Sprintf("/api/v1/analyses/%s/process", url.PathEscape(analysisID))
	return c.do(ctx, http.MethodPost, path, body, http.StatusOK, nil)
}

func (c *Client) GetAnalysis(ctx context.Context, analysisID string) (*Job, error) {
	path := fmt.Sprintf("/api/v1/analyses/%s", url.PathEscape(analysisID))

	var job Job
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) ListAnalyses(ctx context.Context, ownerID string) ([]Job, error) {
	path := "/api/v1/analyses?owner_id=" + url.QueryEscape(ownerID)

	var resp struct {
		Analyses []Job `json:"analyses"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return resp.Analyses, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, wantStatus int, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d from %s %s: %s", resp.StatusCode, method, path, strings.TrimSpace(string(detail)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
