// Package assetgen is the HTTP client for the AI asset-generation worker.
// The worker drafts localized email subject lines and bodies from a prompt;
// this client submits jobs and polls their status. Generated content is not
// applied to a campaign automatically: an admin reviews the result and saves
// it through the regular asset endpoint.
package assetgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// JobStatus represents asset generation job states
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// SubmitRequest describes the content to generate: one source locale's
// creative brief, fanned out to the target locales.
type SubmitRequest struct {
	SourceLocale    string   `json:"source_locale"`
	Subject         string   `json:"subject"`
	BodyDescription string   `json:"body_description"`
	TemplateName    string   `json:"template_name"`
	TargetLocales   []string `json:"target_locales,omitempty"`
}

// GeneratedAsset is one locale's generated creative.
type GeneratedAsset struct {
	Subject  string `json:"subject"`
	HTMLBody string `json:"html_body"`
	TextBody string `json:"text_body"`
}

// JobState is a point-in-time view of a generation job.
type JobState struct {
	JobID    string                    `json:"job_id"`
	Status   JobStatus                 `json:"status"`
	Progress int                       `json:"progress"`
	Result   map[string]GeneratedAsset `json:"result,omitempty"`
	Error    string                    `json:"error,omitempty"`
}

// Client talks to the asset-generation worker over HTTP.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
}

// NewClient creates a new asset generation client.
func NewClient(baseURL string, requestTimeout, pollInterval time.Duration) *Client {
	if requestTimeout <= 0 {
		requestTimeout = 15 * time.Second
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}

	return &Client{
		baseURL:      baseURL,
		httpClient:   &http.Client{Timeout: requestTimeout},
		pollInterval: pollInterval,
	}
}

// Submit submits a generation job for a campaign and returns the job id.
func (c *Client) Submit(ctx context.Context, campaignID string, req *SubmitRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal submit request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/campaigns/%s/generation-jobs", c.baseURL, campaignID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var resp struct {
		JobID string `json:"job_id"`
	}
	if err := c.do(httpReq, &resp); err != nil {
		return "", err
	}
	if resp.JobID == "" {
		return "", fmt.Errorf("asset generation worker returned no job id")
	}

	return resp.JobID, nil
}

// PollStatus fetches the current state of a generation job.
func (c *Client) PollStatus(ctx context.Context, campaignID, jobID string) (*JobState, error) {
	url := fmt.Sprintf("%s/v1/campaigns/%s/generation-jobs/%s", c.baseURL, campaignID, jobID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	state := &JobState{}
	if err := c.do(httpReq, state); err != nil {
		return nil, err
	}

	return state, nil
}

// Await polls until the job reaches a terminal status or ctx is done.
func (c *Client) Await(ctx context.Context, campaignID, jobID string) (*JobState, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		state, err := c.PollStatus(ctx, campaignID, jobID)
		if err != nil {
			return nil, err
		}
		if state.Status == JobStatusCompleted || state.Status == JobStatusFailed {
			return state, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for generation job %s: %w", jobID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("asset generation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("asset generation worker returned %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode asset generation response: %w", err)
	}

	return nil
}
