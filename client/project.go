package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rbxsync/rbxsync/git"
	"github.com/rbxsync/rbxsync/harness"
)

// envelope is the shared success/error/data shape used by the git and
// harness endpoints, which answer 200 and put the outcome in the body.
type envelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) callEnvelope(ctx context.Context, path string, body, data any) error {
	var env envelope
	if err := c.doJSON(ctx, http.MethodPost, path, body, &env); err != nil {
		return err
	}
	if !env.Success {
		return fmt.Errorf("%s: %s", path, env.Error)
	}
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			return fmt.Errorf("failed to decode %s data: %w", path, err)
		}
	}
	return nil
}

// GitStatus fetches repository status for a project directory.
func (c *Client) GitStatus(ctx context.Context, projectDir string) (*git.Status, error) {
	var status git.Status
	err := c.callEnvelope(ctx, "/git/status",
		map[string]string{"projectDir": projectDir}, &status)
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// GitLog fetches recent commits. A non-positive limit uses the server
// default.
func (c *Client) GitLog(ctx context.Context, projectDir string, limit int) ([]git.Commit, error) {
	var commits []git.Commit
	err := c.callEnvelope(ctx, "/git/log",
		map[string]any{"projectDir": projectDir, "limit": limit}, &commits)
	if err != nil {
		return nil, err
	}
	return commits, nil
}

// GitCommit stages (optionally) and commits in a project directory.
func (c *Client) GitCommit(ctx context.Context, projectDir, message string, addAll bool) (string, error) {
	var output string
	err := c.callEnvelope(ctx, "/git/commit",
		map[string]any{"projectDir": projectDir, "message": message, "addAll": addAll}, &output)
	if err != nil {
		return "", err
	}
	return output, nil
}

// GitInit initializes a repository in a project directory.
func (c *Client) GitInit(ctx context.Context, projectDir string) (string, error) {
	var output string
	err := c.callEnvelope(ctx, "/git/init",
		map[string]string{"projectDir": projectDir}, &output)
	if err != nil {
		return "", err
	}
	return output, nil
}

// HarnessInitOptions configures harness initialization. Template names an
// embedded genre template whose features seed the backlog.
type HarnessInitOptions struct {
	Name        string `json:"name"`
	Genre       string `json:"genre,omitempty"`
	Description string `json:"description,omitempty"`
	Template    string `json:"template,omitempty"`
}

// HarnessInit sets up feature tracking for a project.
func (c *Client) HarnessInit(ctx context.Context, projectDir string, opts HarnessInitOptions) error {
	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	body := map[string]any{
		"projectDir":  projectDir,
		"name":        opts.Name,
		"genre":       opts.Genre,
		"description": opts.Description,
		"template":    opts.Template,
	}
	if err := c.doJSON(ctx, http.MethodPost, "/harness/init", body, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("harness init failed: %s", resp.Error)
	}
	return nil
}

// HarnessStatus fetches the backlog and session summary for a project.
func (c *Client) HarnessStatus(ctx context.Context, projectDir string) (*harness.StatusSummary, error) {
	var summary harness.StatusSummary
	err := c.callEnvelope(ctx, "/harness/status",
		map[string]string{"projectDir": projectDir}, &summary)
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// HarnessFeatureUpdate patches a feature by ID or name.
func (c *Client) HarnessFeatureUpdate(ctx context.Context, projectDir, feature, status, note string) (*harness.Feature, error) {
	var updated harness.Feature
	err := c.callEnvelope(ctx, "/harness/feature/update", map[string]any{
		"projectDir": projectDir,
		"feature":    feature,
		"status":     status,
		"note":       note,
	}, &updated)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// HarnessStartSession opens a new development session log.
func (c *Client) HarnessStartSession(ctx context.Context, projectDir, goals string) (sessionID string, err error) {
	var resp struct {
		Success   bool   `json:"success"`
		Error     string `json:"error"`
		SessionID string `json:"sessionId"`
	}
	body := map[string]string{"projectDir": projectDir, "goals": goals}
	if err := c.doJSON(ctx, http.MethodPost, "/harness/session/start", body, &resp); err != nil {
		return "", err
	}
	if !resp.Success {
		return "", fmt.Errorf("session start failed: %s", resp.Error)
	}
	return resp.SessionID, nil
}

// HarnessEndSession closes a session with a summary and handoff notes.
func (c *Client) HarnessEndSession(ctx context.Context, projectDir, sessionID, summary string, handoffNotes []string) error {
	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	body := map[string]any{
		"projectDir":   projectDir,
		"sessionId":    sessionID,
		"summary":      summary,
		"handoffNotes": handoffNotes,
	}
	if err := c.doJSON(ctx, http.MethodPost, "/harness/session/end", body, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("session end failed: %s", resp.Error)
	}
	return nil
}
