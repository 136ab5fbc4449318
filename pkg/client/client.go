// Package client is a typed HTTP client for the ingress API, used by the
// operator CLI and end-to-end tests.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultTimeout is the default timeout for API requests
const DefaultTimeout = 30 * time.Second

// Options contains configuration options for the API client
type Options struct {
	// BaseURL is the base URL of the API
	BaseURL string

	// Timeout is the per-request timeout
	Timeout time.Duration
}

// Client talks to the ingress API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new API client with the given options
func New(opts *Options) (*Client, error) {
	if opts == nil || opts.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL:    opts.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// HealthResponse is the healthz payload.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// UploadURLRequest asks for a direct-upload credential.
type UploadURLRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	Folder      string `json:"folder,omitempty"`
	ExpiresSec  int    `json:"expires_sec,omitempty"`
}

// UploadURL is a direct-upload credential.
type UploadURL struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	S3Key   string            `json:"s3_key"`
}

// CreateJobRequest creates a fabrication job.
type CreateJobRequest struct {
	S3Key         string   `json:"s3_key"`
	Axis          string   `json:"axis,omitempty"`
	BaseOffsetMM  *float64 `json:"base_offset_mm,omitempty"`
	MoldPaddingMM *float64 `json:"mold_padding_mm,omitempty"`
}

// CreateJobResponse acknowledges job creation.
type CreateJobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// JobParams are the fabrication parameters of a job.
type JobParams struct {
	Axis          string  `json:"axis"`
	BaseOffsetMM  float64 `json:"base_offset_mm"`
	MoldPaddingMM float64 `json:"mold_padding_mm"`
}

// Job is the job record as reported by the API.
type Job struct {
	ID         string            `json:"id"`
	Status     string            `json:"status"`
	CreatedAt  string            `json:"created_at"`
	UpdatedAt  string            `json:"updated_at"`
	InputKey   string            `json:"input_key"`
	Params     JobParams         `json:"params"`
	OutputKeys map[string]string `json:"output_keys,omitempty"`
	Error      *string           `json:"error"`
}

// Terminal reports whether the job reached done or failed.
func (j *Job) Terminal() bool {
	return j.Status == "done" || j.Status == "failed"
}

// Downloads carries signed output URLs.
type Downloads struct {
	Prosthetic string `json:"prosthetic"`
	Mold       string `json:"mold"`
	ExpiresSec int    `json:"expires_sec"`
}

type apiError struct {
	Error string `json:"error"`
}

// Health checks the API's health endpoint.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doJSON(ctx, http.MethodGet, "/healthz", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateUploadURL requests a direct-upload credential.
func (c *Client) CreateUploadURL(ctx context.Context, req UploadURLRequest) (*UploadURL, error) {
	var resp UploadURL
	if err := c.doJSON(ctx, http.MethodPost, "/upload-url", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UploadFile PUTs data to a previously issued upload credential.
func (c *Client) UploadFile(ctx context.Context, cred *UploadURL, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, cred.Method, cred.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	for k, v := range cred.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, body)
	}
	return nil
}

// CreateJob creates and enqueues a fabrication job.
func (c *Client) CreateJob(ctx context.Context, req CreateJobRequest) (*CreateJobResponse, error) {
	var resp CreateJobResponse
	if err := c.doJSON(ctx, http.MethodPost, "/jobs/new", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetJob fetches the job record for id.
func (c *Client) GetJob(ctx context.Context, id string) (*Job, error) {
	var resp Job
	if err := c.doJSON(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetDownloads fetches signed download URLs for a finished job.
func (c *Client) GetDownloads(ctx context.Context, id string) (*Downloads, error) {
	var resp Downloads
	if err := c.doJSON(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id)+"/downloads", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// WaitForJob polls the job until it reaches a terminal state or ctx expires.
func (c *Client) WaitForJob(ctx context.Context, id string, interval time.Duration) (*Job, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		j, err := c.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if j.Terminal() {
			return j, nil
		}

		select {
		case <-ctx.Done():
			return j, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
