package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rbxsync/rbxsync/config"
	"github.com/rbxsync/rbxsync/extract"
	"github.com/rbxsync/rbxsync/relay"
)

// newTestServer builds a State with sub-second relay windows so timeout
// paths finish quickly.
func newTestServer(t *testing.T) (*State, *httptest.Server) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Server.PollTimeoutSecs = 1
	cfg.Server.CommandTimeoutSecs = 1
	cfg.Server.BatchTimeoutSecs = 1

	state := NewState(cfg, nil)
	ts := httptest.NewServer(state.Handler())
	t.Cleanup(func() {
		ts.Close()
		state.Watch.Close()
		state.Dispatcher.Close()
	})
	return state, ts
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)
	if body["status"] != "ok" || body["version"] != Version {
		t.Errorf("unexpected health body: %v", body)
	}
}

func TestAgentPollEmpty(t *testing.T) {
	_, ts := newTestServer(t)

	start := time.Now()
	resp, err := http.Get(ts.URL + "/agent/poll")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if elapsed := time.Since(start); elapsed < 500*time.Millisecond {
		t.Errorf("poll returned in %v, expected to hold for the window", elapsed)
	}
}

func TestAgentPollDeliversQueuedRequest(t *testing.T) {
	state, ts := newTestServer(t)

	id := state.Dispatcher.Enqueue("sync:update", json.RawMessage(`{"path":"ReplicatedStorage/Util"}`))

	resp, err := http.Get(ts.URL + "/agent/poll")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var req relay.Request
	if err := json.NewDecoder(resp.Body).Decode(&req); err != nil {
		t.Fatal(err)
	}
	if req.ID != id || req.Command != "sync:update" {
		t.Errorf("polled request = %+v", req)
	}
}

func TestSyncCommandRoundTrip(t *testing.T) {
	_, ts := newTestServer(t)

	// Play the plugin: poll for the command and reply to it.
	done := make(chan error, 1)
	go func() {
		resp, err := http.Get(ts.URL + "/agent/poll")
		if err != nil {
			done <- err
			return
		}
		defer resp.Body.Close()

		var req relay.Request
		if err := json.NewDecoder(resp.Body).Decode(&req); err != nil {
			done <- err
			return
		}
		reply := map[string]any{
			"id":      req.ID.String(),
			"success": true,
			"data":    map[string]any{"applied": 1},
		}
		data, _ := json.Marshal(reply)
		r, err := http.Post(ts.URL+"/agent/reply", "application/json", bytes.NewReader(data))
		if err == nil {
			r.Body.Close()
		}
		done <- err
	}()

	resp, body := postJSON(t, ts.URL+"/sync/command", map[string]any{
		"command": "sync:update",
		"payload": map[string]any{"path": "ServerScriptService/Main"},
	})
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200: %v", resp.StatusCode, body)
	}
	if body["success"] != true {
		t.Errorf("response body = %v", body)
	}
	data, _ := body["data"].(map[string]any)
	if data["applied"] != float64(1) {
		t.Errorf("data = %v", data)
	}
}

func TestTestCaptureEndpointsRelayCommands(t *testing.T) {
	_, ts := newTestServer(t)

	// Each endpoint maps to its own plugin command; play the plugin for
	// all three in turn.
	endpoints := []struct {
		method  string
		path    string
		command string
	}{
		{http.MethodPost, "/test/start", "test:start"},
		{http.MethodGet, "/test/status", "test:output"},
		{http.MethodPost, "/test/stop", "test:stop"},
	}
	for _, ep := range endpoints {
		done := make(chan error, 1)
		go func() {
			resp, err := http.Get(ts.URL + "/agent/poll")
			if err != nil {
				done <- err
				return
			}
			defer resp.Body.Close()

			var req relay.Request
			if err := json.NewDecoder(resp.Body).Decode(&req); err != nil {
				done <- err
				return
			}
			if req.Command != ep.command {
				done <- fmt.Errorf("%s relayed %q, want %q", ep.path, req.Command, ep.command)
				return
			}
			reply := map[string]any{
				"id":      req.ID.String(),
				"success": true,
				"data":    map[string]any{"capturing": true, "output": []any{}, "totalMessages": 0},
			}
			data, _ := json.Marshal(reply)
			r, err := http.Post(ts.URL+"/agent/reply", "application/json", bytes.NewReader(data))
			if err == nil {
				r.Body.Close()
			}
			done <- err
		}()

		httpReq, err := http.NewRequest(ep.method, ts.URL+ep.path, nil)
		if err != nil {
			t.Fatal(err)
		}
		resp, err := http.DefaultClient.Do(httpReq)
		if err != nil {
			t.Fatal(err)
		}
		var body map[string]any
		json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if err := <-done; err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: status = %d, want 200: %v", ep.path, resp.StatusCode, body)
		}
		if body["success"] != true {
			t.Errorf("%s: body = %v", ep.path, body)
		}
	}
}

func TestSyncCommandTimeout(t *testing.T) {
	_, ts := newTestServer(t)

	resp, body := postJSON(t, ts.URL+"/sync/command", map[string]any{
		"command": "sync:update",
		"payload": map[string]any{},
	})
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504: %v", resp.StatusCode, body)
	}
	if body["error"] == "" {
		t.Error("expected error message in body")
	}
}

func TestSyncCommandMalformed(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/sync/command", "application/json", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}

	resp, _ = postJSON(t, ts.URL+"/sync/command", map[string]any{"payload": map[string]any{}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing command: status = %d, want 400", resp.StatusCode)
	}
}

func TestExtractLifecycleOverHTTP(t *testing.T) {
	state, ts := newTestServer(t)
	state.Sessions = extract.NewManager(t.TempDir(), nil)

	resp, body := postJSON(t, ts.URL+"/extract/start", map[string]any{
		"services": []string{"Workspace"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d", resp.StatusCode)
	}
	sessionID, _ := body["sessionId"].(string)
	if sessionID == "" || body["status"] != "started" {
		t.Fatalf("start body = %v", body)
	}

	// Starting must queue the extract:start command for the plugin.
	if state.Dispatcher.Pending() != 1 {
		t.Errorf("pending = %d, want 1", state.Dispatcher.Pending())
	}

	for i := 1; i <= 2; i++ {
		resp, body = postJSON(t, ts.URL+"/extract/chunk", map[string]any{
			"sessionId":   sessionID,
			"chunkIndex":  i,
			"totalChunks": 2,
			"data":        []map[string]any{{"path": fmt.Sprintf("Workspace.Part%d", i), "className": "Part"}},
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("chunk %d status = %d", i, resp.StatusCode)
		}
	}
	if body["received"] != float64(2) || body["total"] != float64(2) {
		t.Errorf("chunk body = %v", body)
	}

	statusResp, err := http.Get(ts.URL + "/extract/status")
	if err != nil {
		t.Fatal(err)
	}
	defer statusResp.Body.Close()
	var status map[string]any
	json.NewDecoder(statusResp.Body).Decode(&status)
	if status["complete"] != true || status["sessionId"] != sessionID {
		t.Errorf("status body = %v", status)
	}

	out := filepath.Join(t.TempDir(), "export.json")
	resp, body = postJSON(t, ts.URL+"/extract/export", map[string]any{"outputPath": out})
	if resp.StatusCode != http.StatusOK || body["success"] != true {
		t.Fatalf("export failed: %d %v", resp.StatusCode, body)
	}
	if body["instanceCount"] != float64(2) {
		t.Errorf("instanceCount = %v", body["instanceCount"])
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("export file not written: %v", err)
	}
}

func TestExtractExportNoSession(t *testing.T) {
	_, ts := newTestServer(t)

	resp, body := postJSON(t, ts.URL+"/extract/export", map[string]any{
		"outputPath": filepath.Join(t.TempDir(), "out.json"),
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400: %v", resp.StatusCode, body)
	}
}

func TestExtractStatusEmpty(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/extract/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)
	if body["status"] != "no_active_session" {
		t.Errorf("body = %v", body)
	}
}

func TestReadTreeOverHTTP(t *testing.T) {
	_, ts := newTestServer(t)

	projectDir := t.TempDir()
	srcDir := filepath.Join(projectDir, "src", "ServerScriptService")
	if err := os.MkdirAll(srcDir, 0755); err != nil {
		t.Fatal(err)
	}
	inst := `{"path": "ServerScriptService.Main", "className": "Script", "properties": {}}`
	if err := os.WriteFile(filepath.Join(srcDir, "Main.rbxjson"), []byte(inst), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(srcDir, "Main.server.luau"), []byte("print('hi')"), 0644); err != nil {
		t.Fatal(err)
	}

	resp, body := postJSON(t, ts.URL+"/sync/read-tree", map[string]any{"projectDir": projectDir})
	if resp.StatusCode != http.StatusOK || body["success"] != true {
		t.Fatalf("read-tree failed: %d %v", resp.StatusCode, body)
	}
	if body["count"] != float64(1) {
		t.Fatalf("count = %v", body["count"])
	}

	instances, _ := body["instances"].([]any)
	first, _ := instances[0].(map[string]any)
	props, _ := first["properties"].(map[string]any)
	source, _ := props["Source"].(map[string]any)
	if source["value"] != "print('hi')" {
		t.Errorf("merged source = %v", source)
	}
}

func TestReadTreeMissingSrc(t *testing.T) {
	_, ts := newTestServer(t)

	resp, body := postJSON(t, ts.URL+"/sync/read-tree", map[string]any{"projectDir": t.TempDir()})
	if resp.StatusCode != http.StatusBadRequest || body["success"] != false {
		t.Errorf("status = %d, body = %v", resp.StatusCode, body)
	}
}

func TestWatchStartAndStatus(t *testing.T) {
	_, ts := newTestServer(t)

	projectDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(projectDir, "src"), 0755); err != nil {
		t.Fatal(err)
	}

	resp, body := postJSON(t, ts.URL+"/watch/start", map[string]any{"projectDir": projectDir})
	if resp.StatusCode != http.StatusOK || body["success"] != true {
		t.Fatalf("watch start failed: %d %v", resp.StatusCode, body)
	}

	statusResp, err := http.Get(ts.URL + "/watch/status")
	if err != nil {
		t.Fatal(err)
	}
	defer statusResp.Body.Close()
	var status map[string]any
	json.NewDecoder(statusResp.Body).Decode(&status)
	watching, _ := status["watching"].([]any)
	if len(watching) != 1 {
		t.Errorf("watching = %v, want one entry", watching)
	}

	resp, _ = postJSON(t, ts.URL+"/watch/start", map[string]any{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing projectDir: status = %d, want 400", resp.StatusCode)
	}
}

func TestHarnessOverHTTP(t *testing.T) {
	_, ts := newTestServer(t)
	projectDir := t.TempDir()

	resp, body := postJSON(t, ts.URL+"/harness/init", map[string]any{
		"projectDir": projectDir,
		"name":       "Mine Tycoon",
		"template":   "tycoon",
	})
	if resp.StatusCode != http.StatusOK || body["success"] != true {
		t.Fatalf("init failed: %d %v", resp.StatusCode, body)
	}
	if body["features"] == float64(0) {
		t.Error("template should seed features")
	}

	resp, body = postJSON(t, ts.URL+"/harness/session/start", map[string]any{
		"projectDir": projectDir,
		"goals":      "droppers",
	})
	if resp.StatusCode != http.StatusOK || body["success"] != true {
		t.Fatalf("session start failed: %v", body)
	}
	sessionID, _ := body["sessionId"].(string)

	resp, body = postJSON(t, ts.URL+"/harness/feature/update", map[string]any{
		"projectDir": projectDir,
		"feature":    "Plot claiming",
		"status":     "in_progress",
		"note":       "spawn pads placed",
	})
	if resp.StatusCode != http.StatusOK || body["success"] != true {
		t.Fatalf("feature update failed: %v", body)
	}

	resp, body = postJSON(t, ts.URL+"/harness/session/end", map[string]any{
		"projectDir": projectDir,
		"sessionId":  sessionID,
		"summary":    "plots working",
	})
	if resp.StatusCode != http.StatusOK || body["success"] != true {
		t.Fatalf("session end failed: %v", body)
	}

	resp, body = postJSON(t, ts.URL+"/harness/status", map[string]any{"projectDir": projectDir})
	if resp.StatusCode != http.StatusOK || body["success"] != true {
		t.Fatalf("status failed: %v", body)
	}
	data, _ := body["data"].(map[string]any)
	byStatus, _ := data["byStatus"].(map[string]any)
	if byStatus["in_progress"] != float64(1) {
		t.Errorf("byStatus = %v", byStatus)
	}
}

func TestHarnessInitGenreSeedsTemplate(t *testing.T) {
	_, ts := newTestServer(t)

	// A genre with a matching template seeds features without an
	// explicit template field.
	resp, body := postJSON(t, ts.URL+"/harness/init", map[string]any{
		"projectDir": t.TempDir(),
		"name":       "Mine Tycoon",
		"genre":      "tycoon",
	})
	if resp.StatusCode != http.StatusOK || body["success"] != true {
		t.Fatalf("init failed: %d %v", resp.StatusCode, body)
	}
	if body["features"] == float64(0) {
		t.Error("genre with a matching template should seed features")
	}

	// A genre with no template is plain metadata, not an error.
	resp, body = postJSON(t, ts.URL+"/harness/init", map[string]any{
		"projectDir": t.TempDir(),
		"name":       "Space Farm",
		"genre":      "farming",
	})
	if resp.StatusCode != http.StatusOK || body["success"] != true {
		t.Fatalf("init with unmatched genre failed: %d %v", resp.StatusCode, body)
	}
	if body["features"] != float64(0) {
		t.Errorf("features = %v, want 0 for unmatched genre", body["features"])
	}

	// An explicit unknown template is still rejected.
	resp, _ = postJSON(t, ts.URL+"/harness/init", map[string]any{
		"projectDir": t.TempDir(),
		"name":       "Space Farm",
		"template":   "farming",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown template: status = %d, want 400", resp.StatusCode)
	}
}

func TestGitEndpointsReportFailureInBody(t *testing.T) {
	_, ts := newTestServer(t)

	// Not a repository: transport succeeds, operation fails.
	resp, body := postJSON(t, ts.URL+"/git/status", map[string]any{"projectDir": t.TempDir()})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["success"] != false || body["error"] == "" {
		t.Errorf("body = %v", body)
	}
}
