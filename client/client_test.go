package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rbxsync/rbxsync/config"
	"github.com/rbxsync/rbxsync/extract"
	"github.com/rbxsync/rbxsync/relay"
	"github.com/rbxsync/rbxsync/server"
)

// newClientAndServer runs a real server handler behind httptest so client
// round trips exercise both sides of the wire.
func newClientAndServer(t *testing.T) (*Client, *server.State, *httptest.Server) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Server.PollTimeoutSecs = 1
	cfg.Server.CommandTimeoutSecs = 1
	cfg.Server.BatchTimeoutSecs = 1

	state := server.NewState(cfg, nil)
	state.Sessions = extract.NewManager(t.TempDir(), nil)
	ts := httptest.NewServer(state.Handler())
	t.Cleanup(func() {
		ts.Close()
		state.Watch.Close()
		state.Dispatcher.Close()
	})
	return New(ts.URL), state, ts
}

func TestHealthRoundTrip(t *testing.T) {
	c, _, _ := newClientAndServer(t)

	version, err := c.Health(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if version != server.Version {
		t.Errorf("version = %q, want %q", version, server.Version)
	}
}

func TestHealthUnreachable(t *testing.T) {
	c := New("http://127.0.0.1:1")
	if _, err := c.Health(context.Background()); err == nil {
		t.Error("expected error for unreachable server")
	}
}

func TestExtractionLifecycle(t *testing.T) {
	c, state, ts := newClientAndServer(t)

	sessionID, err := c.StartExtraction(context.Background(), ExtractOptions{
		Services: []string{"Workspace"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if sessionID == "" {
		t.Fatal("empty session id")
	}
	if state.Dispatcher.Pending() != 1 {
		t.Errorf("pending = %d, want the queued extract:start", state.Dispatcher.Pending())
	}

	// Feed a chunk directly through the HTTP surface, as the plugin would.
	chunk := map[string]any{
		"sessionId":   sessionID,
		"chunkIndex":  1,
		"totalChunks": 1,
		"data":        []map[string]any{{"path": "Workspace.Part", "className": "Part"}},
		"projectDir":  t.TempDir(),
	}
	data, _ := json.Marshal(chunk)
	resp, err := http.Post(ts.URL+"/extract/chunk", "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	status, err := c.ExtractionStatus(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !status.Complete || status.ChunksReceived != 1 {
		t.Errorf("status = %+v", status)
	}

	out := filepath.Join(t.TempDir(), "export.json")
	count, err := c.ExportExtraction(context.Background(), out)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("instance count = %d, want 1", count)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("export file missing: %v", err)
	}
}

func TestSyncCommandTimeoutSurfacesError(t *testing.T) {
	c, _, _ := newClientAndServer(t)

	_, err := c.SyncCommand(context.Background(), "sync:update", map[string]any{})
	if err == nil {
		t.Fatal("expected timeout error with no plugin attached")
	}
}

func TestSyncBatchRoundTrip(t *testing.T) {
	c, state, _ := newClientAndServer(t)

	// Play the plugin: answer the batch as soon as it is polled.
	go func() {
		req, ok := state.Dispatcher.Poll(context.Background(), relay.DefaultPollTimeout)
		if !ok {
			return
		}
		state.Dispatcher.Deliver(relay.Response{
			ID:      req.ID,
			Success: true,
			Data:    json.RawMessage(`{"applied":2}`),
		})
	}()

	resp, err := c.SyncBatch(context.Background(), []any{
		map[string]any{"type": "update", "path": "ReplicatedStorage/A"},
		map[string]any{"type": "delete", "path": "ReplicatedStorage/B"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Success {
		t.Errorf("batch response = %+v", resp)
	}
	var result struct {
		Applied int `json:"applied"`
	}
	if err := json.Unmarshal(resp.Data, &result); err != nil || result.Applied != 2 {
		t.Errorf("applied = %d (err %v), want 2", result.Applied, err)
	}
}

func TestTestCaptureLifecycle(t *testing.T) {
	c, state, _ := newClientAndServer(t)

	// Play the plugin for the start, status, and stop commands in order.
	go func() {
		replies := map[string]string{
			"test:start":  `{"capturing":true,"output":[],"totalMessages":0}`,
			"test:output": `{"capturing":true,"output":[{"message":"hello","type":"MessageOutput","timestamp":0.5}],"totalMessages":1}`,
			"test:stop":   `{"capturing":false,"output":[{"message":"hello","type":"MessageOutput","timestamp":0.5}],"totalMessages":1}`,
		}
		for range replies {
			req, ok := state.Dispatcher.Poll(context.Background(), relay.DefaultPollTimeout)
			if !ok {
				return
			}
			state.Dispatcher.Deliver(relay.Response{
				ID:      req.ID,
				Success: true,
				Data:    json.RawMessage(replies[req.Command]),
			})
		}
	}()

	if err := c.StartTest(context.Background()); err != nil {
		t.Fatal(err)
	}

	status, err := c.TestStatus(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !status.Capturing || status.TotalMessages != 1 {
		t.Errorf("status = %+v", status)
	}

	capture, err := c.StopTest(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if capture.Capturing {
		t.Error("capture still active after stop")
	}
	if len(capture.Output) != 1 || capture.Output[0].Message != "hello" {
		t.Errorf("output = %+v", capture.Output)
	}
	if capture.Output[0].Type != "MessageOutput" {
		t.Errorf("message type = %q", capture.Output[0].Type)
	}
}

func TestStartTestTimeoutSurfacesError(t *testing.T) {
	c, _, _ := newClientAndServer(t)

	// No plugin polling means the relay times out and the client reports it.
	if err := c.StartTest(context.Background()); err == nil {
		t.Error("expected error when no plugin is connected")
	}
}

func TestReadTreeRoundTrip(t *testing.T) {
	c, _, _ := newClientAndServer(t)

	projectDir := t.TempDir()
	srcDir := filepath.Join(projectDir, "src", "ReplicatedStorage")
	if err := os.MkdirAll(srcDir, 0755); err != nil {
		t.Fatal(err)
	}
	inst := `{"path": "ReplicatedStorage.Util", "className": "ModuleScript", "properties": {}}`
	if err := os.WriteFile(filepath.Join(srcDir, "Util.rbxjson"), []byte(inst), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(srcDir, "Util.luau"), []byte("return {}"), 0644); err != nil {
		t.Fatal(err)
	}

	instances, err := c.ReadTree(context.Background(), projectDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 1 {
		t.Fatalf("instances = %d, want 1", len(instances))
	}
}

func TestWatchRoundTrip(t *testing.T) {
	c, _, _ := newClientAndServer(t)

	projectDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(projectDir, "src"), 0755); err != nil {
		t.Fatal(err)
	}

	if err := c.StartWatch(context.Background(), projectDir); err != nil {
		t.Fatal(err)
	}
	watching, err := c.WatchStatus(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(watching) != 1 {
		t.Errorf("watching = %v", watching)
	}
}

func TestHarnessRoundTrip(t *testing.T) {
	c, _, _ := newClientAndServer(t)
	ctx := context.Background()
	projectDir := t.TempDir()

	err := c.HarnessInit(ctx, projectDir, HarnessInitOptions{
		Name:     "Dungeon Crawler",
		Template: "rpg",
	})
	if err != nil {
		t.Fatal(err)
	}

	sessionID, err := c.HarnessStartSession(ctx, projectDir, "combat first")
	if err != nil {
		t.Fatal(err)
	}

	updated, err := c.HarnessFeatureUpdate(ctx, projectDir, "Combat system", "in_progress", "hitbox done")
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != "in_progress" {
		t.Errorf("status = %q", updated.Status)
	}

	if err := c.HarnessEndSession(ctx, projectDir, sessionID, "combat mostly done", nil); err != nil {
		t.Fatal(err)
	}

	summary, err := c.HarnessStatus(ctx, projectDir)
	if err != nil {
		t.Fatal(err)
	}
	if summary.TotalFeatures == 0 {
		t.Error("template features missing from summary")
	}
	if summary.OpenSessions != 0 {
		t.Errorf("open sessions = %d, want 0", summary.OpenSessions)
	}
}

func TestGitStatusError(t *testing.T) {
	c, _, _ := newClientAndServer(t)

	if _, err := c.GitStatus(context.Background(), t.TempDir()); err == nil {
		t.Error("expected error for non-repository directory")
	}
}
