// Package client is a typed HTTP client for the coordination server,
// shared by the CLI and the MCP adapter.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultBaseURL matches the default server bind address.
const DefaultBaseURL = "http://127.0.0.1:44755"

// Client talks to one coordination server.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the given base URL. An empty baseURL uses the
// default local server address. The underlying timeout covers the longest
// relay window (batch, 300s) plus slack.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 310 * time.Second},
	}
}

// doJSON issues one request and decodes the JSON response into out. Non-2xx
// statuses are returned as errors carrying the body's error field when one
// is present.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var failure struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &failure) == nil && failure.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, failure.Error)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

// Health reports whether the server is up and what version it runs.
func (c *Client) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Version, nil
}

// ExtractOptions narrows what the plugin extracts. Nil boolean fields fall
// back to the server's configured defaults.
type ExtractOptions struct {
	Services       []string `json:"services,omitempty"`
	IncludeTerrain *bool    `json:"includeTerrain,omitempty"`
	IncludeAssets  *bool    `json:"includeAssets,omitempty"`
}

// StartExtraction opens a new extraction session.
func (c *Client) StartExtraction(ctx context.Context, opts ExtractOptions) (sessionID string, err error) {
	var resp struct {
		SessionID string `json:"sessionId"`
		Status    string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/extract/start", opts, &resp); err != nil {
		return "", err
	}
	return resp.SessionID, nil
}

// ExtractStatus is the server's view of the current extraction session.
type ExtractStatus struct {
	SessionID      string `json:"sessionId"`
	Status         string `json:"status"`
	ChunksReceived int    `json:"chunksReceived"`
	TotalChunks    int    `json:"totalChunks"`
	Complete       bool   `json:"complete"`
}

// ExtractionStatus fetches the current session snapshot.
func (c *Client) ExtractionStatus(ctx context.Context) (*ExtractStatus, error) {
	var status ExtractStatus
	if err := c.doJSON(ctx, http.MethodGet, "/extract/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ExportExtraction flattens the session into a single JSON file on the
// server's filesystem.
func (c *Client) ExportExtraction(ctx context.Context, outputPath string) (instanceCount int, err error) {
	var resp struct {
		Success       bool   `json:"success"`
		InstanceCount int    `json:"instanceCount"`
		Error         string `json:"error"`
	}
	err = c.doJSON(ctx, http.MethodPost, "/extract/export",
		map[string]string{"outputPath": outputPath}, &resp)
	if err != nil {
		return 0, err
	}
	if !resp.Success {
		return 0, fmt.Errorf("export failed: %s", resp.Error)
	}
	return resp.InstanceCount, nil
}

// FinalizeResult mirrors the server's finalize summary.
type FinalizeResult struct {
	FilesWritten   int `json:"filesWritten"`
	ScriptsWritten int `json:"scriptsWritten"`
	TotalInstances int `json:"totalInstances"`
}

// FinalizeExtraction materializes the session into the project's src/ tree.
func (c *Client) FinalizeExtraction(ctx context.Context, projectDir string) (*FinalizeResult, error) {
	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
		FinalizeResult
	}
	err := c.doJSON(ctx, http.MethodPost, "/extract/finalize",
		map[string]string{"projectDir": projectDir}, &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("finalize failed: %s", resp.Error)
	}
	return &resp.FinalizeResult, nil
}

// AgentResponse is the plugin's reply relayed through the server.
type AgentResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error,omitempty"`
}

// SyncCommand relays one command to the plugin and returns its reply.
func (c *Client) SyncCommand(ctx context.Context, command string, payload any) (*AgentResponse, error) {
	var resp AgentResponse
	err := c.doJSON(ctx, http.MethodPost, "/sync/command",
		map[string]any{"command": command, "payload": payload}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// SyncBatch relays a batch of operations to the plugin in one request.
func (c *Client) SyncBatch(ctx context.Context, operations []any) (*AgentResponse, error) {
	var resp AgentResponse
	err := c.doJSON(ctx, http.MethodPost, "/sync/batch",
		map[string]any{"operations": operations}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ConsoleMessage is one line of Studio console output captured by the
// plugin's test recorder.
type ConsoleMessage struct {
	Message   string  `json:"message"`
	Type      string  `json:"type"`
	Timestamp float64 `json:"timestamp"`
}

// TestCapture is the recorder's state as reported by the plugin.
type TestCapture struct {
	Capturing     bool             `json:"capturing"`
	Output        []ConsoleMessage `json:"output"`
	TotalMessages int              `json:"totalMessages"`
}

// StartTest tells the plugin to begin capturing console output.
func (c *Client) StartTest(ctx context.Context) error {
	var resp AgentResponse
	if err := c.doJSON(ctx, http.MethodPost, "/test/start", nil, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("test start failed: %s", resp.Error)
	}
	return nil
}

// TestStatus polls the capture buffer without stopping the recorder.
func (c *Client) TestStatus(ctx context.Context) (*TestCapture, error) {
	return c.testCapture(ctx, http.MethodGet, "/test/status")
}

// StopTest ends the capture and returns everything recorded.
func (c *Client) StopTest(ctx context.Context) (*TestCapture, error) {
	return c.testCapture(ctx, http.MethodPost, "/test/stop")
}

func (c *Client) testCapture(ctx context.Context, method, path string) (*TestCapture, error) {
	var resp AgentResponse
	if err := c.doJSON(ctx, method, path, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("test capture failed: %s", resp.Error)
	}
	var capture TestCapture
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &capture); err != nil {
			return nil, fmt.Errorf("bad capture payload: %w", err)
		}
	}
	return &capture, nil
}

// ReadTree asks the server to read a project's src/ tree into an instance
// list with script sources merged in.
func (c *Client) ReadTree(ctx context.Context, projectDir string) ([]map[string]any, error) {
	var resp struct {
		Success   bool             `json:"success"`
		Error     string           `json:"error"`
		Instances []map[string]any `json:"instances"`
		Count     int              `json:"count"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/sync/read-tree",
		map[string]string{"projectDir": projectDir}, &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("read-tree failed: %s", resp.Error)
	}
	return resp.Instances, nil
}

// StartWatch registers a project with the server's file watcher.
func (c *Client) StartWatch(ctx context.Context, projectDir string) error {
	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/watch/start",
		map[string]string{"projectDir": projectDir}, &resp)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("watch start failed: %s", resp.Error)
	}
	return nil
}

// WatchStatus lists the project directories currently being watched.
func (c *Client) WatchStatus(ctx context.Context) ([]string, error) {
	var resp struct {
		Watching []string `json:"watching"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/watch/status", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Watching, nil
}
