package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rbxsync/rbxsync/client"
)

func TestRootCommandRegistration(t *testing.T) {
	want := map[string]bool{
		"init":         false,
		"serve":        false,
		"stop":         false,
		"extract":      false,
		"sync":         false,
		"watch":        false,
		"status":       false,
		"harness":      false,
		"obfuscate":    false,
		"build-plugin": false,
		"mcp-serve":    false,
	}

	for _, cmd := range rootCmd.Commands() {
		name := strings.Fields(cmd.Use)[0]
		if _, ok := want[name]; ok {
			want[name] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestBuildOperations(t *testing.T) {
	instances := []map[string]any{
		{"path": "Workspace.Baseplate", "className": "Part"},
		{"className": "Folder"},
		{"path": "", "className": "Part"},
	}

	ops := buildOperations(instances)
	if len(ops) != 1 {
		t.Fatalf("expected 1 operation, got %d", len(ops))
	}
	op := ops[0].(map[string]any)
	if op["type"] != "update" || op["path"] != "Workspace.Baseplate" {
		t.Errorf("unexpected operation: %#v", op)
	}
}

func TestObfuscatedPath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"main.luau", "main.obf.luau"},
		{"src/init.server.luau", "src/init.server.obf.luau"},
		{"noext", "noext.obf"},
	}
	for _, tt := range tests {
		if got := obfuscatedPath(tt.in); got != tt.want {
			t.Errorf("obfuscatedPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWaitForExtractionCompletes(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]any{
			"sessionId":      "sess-1",
			"status":         "extracting",
			"chunksReceived": calls,
			"totalChunks":    2,
			"complete":       calls >= 2,
		})
	}))
	defer ts.Close()

	c := client.New(ts.URL)
	status, err := waitForExtraction(context.Background(), c, "sess-1", 30*time.Second)
	if err != nil {
		t.Fatalf("waitForExtraction error: %v", err)
	}
	if !status.Complete {
		t.Error("expected complete status")
	}
	if status.ChunksReceived != 2 {
		t.Errorf("expected 2 chunks received, got %d", status.ChunksReceived)
	}
}

func TestWaitForExtractionSessionReplaced(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"sessionId": "other-session",
			"status":    "extracting",
		})
	}))
	defer ts.Close()

	c := client.New(ts.URL)
	_, err := waitForExtraction(context.Background(), c, "sess-1", 30*time.Second)
	if err == nil {
		t.Fatal("expected error when the session is replaced")
	}
	if !strings.Contains(err.Error(), "replaced") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestResolveLogDirFlagWins(t *testing.T) {
	old := serveLogDir
	defer func() { serveLogDir = old }()

	serveLogDir = "/tmp/custom-logs"
	dir, err := resolveLogDir()
	if err != nil {
		t.Fatalf("resolveLogDir error: %v", err)
	}
	if dir != "/tmp/custom-logs" {
		t.Errorf("expected flag value, got %s", dir)
	}
}
