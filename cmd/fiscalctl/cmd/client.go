package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"fiscalsync/pkg/api"
)

// SyncClient handles API calls to the fiscalsync daemon.
type SyncClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewSyncClient creates a new client with the given base URL and token.
func NewSyncClient(baseURL, token string) *SyncClient {
	return &SyncClient{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// do performs one authenticated request and decodes the response into out.
func (c *SyncClient) do(method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.Token))
	req.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp api.ErrorResponse
		raw, _ := io.ReadAll(resp.Body)
		message := string(raw)
		if json.Unmarshal(raw, &errResp) == nil && errResp.Error != "" {
			message = errResp.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: message}
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// StartSync sends POST /clients/{id}/sync.
func (c *SyncClient) StartSync(clientID string, req api.StartSyncRequest) (*api.StartSyncResponse, error) {
	var resp api.StartSyncResponse
	if err := c.do(http.MethodPost, fmt.Sprintf("/clients/%s/sync", clientID), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetJob sends GET /jobs/{id}.
func (c *SyncClient) GetJob(jobID string) (*api.JobResponse, error) {
	var resp api.JobResponse
	if err := c.do(http.MethodGet, fmt.Sprintf("/jobs/%s", jobID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListJobs sends GET /jobs.
func (c *SyncClient) ListJobs(limit int) (*api.ListJobsResponse, error) {
	var resp api.ListJobsResponse
	if err := c.do(http.MethodGet, fmt.Sprintf("/jobs?limit=%d", limit), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CancelJob sends POST /jobs/{id}/cancel.
func (c *SyncClient) CancelJob(jobID string) error {
	return c.do(http.MethodPost, fmt.Sprintf("/jobs/%s/cancel", jobID), nil, nil)
}

// ResumeJob sends POST /jobs/{id}/resume.
func (c *SyncClient) ResumeJob(jobID string) error {
	return c.do(http.MethodPost, fmt.Sprintf("/jobs/%s/resume", jobID), nil, nil)
}

// CancelAll sends POST /tenants/cancel-all.
func (c *SyncClient) CancelAll() (*api.CountResponse, error) {
	var resp api.CountResponse
	if err := c.do(http.MethodPost, "/tenants/cancel-all", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ClearTerminalJobs sends DELETE /jobs/terminal.
func (c *SyncClient) ClearTerminalJobs() (*api.CountResponse, error) {
	var resp api.CountResponse
	if err := c.do(http.MethodDelete, "/jobs/terminal", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
