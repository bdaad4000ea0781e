// Package orgo provides a client for the Orgo remote desktop automation
// API: prompt-driven tasks on a hosted desktop plus file export for
// retrieving what the desktop downloaded.
package orgo

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the remote desktop operations used by the pipeline.
type Client interface {
	// RunTask executes a natural-language task on the desktop and blocks
	// until the agent reports an outcome.
	RunTask(ctx context.Context, instructions string) (*TaskResult, error)
	// ExportFile fetches a file from the desktop's filesystem. The path is
	// relative to the desktop user's home directory.
	ExportFile(ctx context.Context, remotePath string) ([]byte, error)
	// ListFiles lists a directory on the desktop.
	ListFiles(ctx context.Context, dir string) ([]FileInfo, error)
}

// TaskResult is the agent's report for one task.
type TaskResult struct {
	Status  string `json:"status"`  // "completed" or "failed"
	Outcome string `json:"outcome"` // agent-reported outcome token
	Detail  string `json:"detail"`
}

// Agent outcome tokens the task prompts instruct the agent to report.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeAuthLost = "auth_lost"
)

// FileInfo describes a file on the desktop.
type FileInfo struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom API base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithTaskTimeout bounds how long a single task may run. Desktop tasks walk
// a real browser, so the default is generous.
func WithTaskTimeout(d time.Duration) Option {
	return func(c *httpClient) { c.taskTimeout = d }
}

type httpClient struct {
	apiKey      string
	desktopID   string
	baseURL     string
	taskTimeout time.Duration
	http        *http.Client
}

// NewClient creates a client bound to one desktop.
func NewClient(apiKey, desktopID string, opts ...Option) Client {
	c := &httpClient{
		apiKey:      apiKey,
		desktopID:   desktopID,
		baseURL:     "https://www.orgo.ai/api",
		taskTimeout: 5 * time.Minute,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "orgo: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "orgo: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "orgo: request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "orgo: read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("orgo: %s returned status %d: %s", path, resp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrap(err, "orgo: unmarshal response")
	}
	return nil
}

func (c *httpClient) RunTask(ctx context.Context, instructions string) (*TaskResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.taskTimeout)
	defer cancel()

	var result TaskResult
	err := c.post(ctx, "/computers/prompt", map[string]any{
		"desktopId":    c.desktopID,
		"instructions": instructions,
	}, &result)
	if err != nil {
		return nil, err
	}
	if result.Status != "completed" {
		return nil, eris.Errorf("orgo: task failed: %s", result.Detail)
	}
	return &result, nil
}

func (c *httpClient) ExportFile(ctx context.Context, remotePath string) ([]byte, error) {
	var exported struct {
		Success bool   `json:"success"`
		URL     string `json:"url"`
		Error   string `json:"error"`
	}
	err := c.post(ctx, "/files/export", map[string]any{
		"desktopId": c.desktopID,
		"path":      remotePath,
	}, &exported)
	if err != nil {
		return nil, err
	}
	if !exported.Success || exported.URL == "" {
		return nil, eris.Errorf("orgo: export of %s failed: %s", remotePath, exported.Error)
	}

	// The export URL is a short-lived signed link.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, exported.URL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "orgo: create download request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "orgo: download exported file")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("orgo: download returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (c *httpClient) ListFiles(ctx context.Context, dir string) ([]FileInfo, error) {
	var result struct {
		Success bool       `json:"success"`
		Files   []FileInfo `json:"files"`
		Error   string     `json:"error"`
	}
	err := c.post(ctx, "/files/list", map[string]any{
		"desktopId": c.desktopID,
		"path":      dir,
	}, &result)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, eris.Errorf("orgo: list of %s failed: %s", dir, result.Error)
	}
	return result.Files, nil
}
