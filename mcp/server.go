// Package mcp provides an MCP (Model Context Protocol) server for rbxsync.
// This allows AI agents to drive extraction, sync, git, and harness
// operations against a running rbxsync server as native tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/alpkeskin/gotoon"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rbxsync/rbxsync/client"
)

// Server wraps the MCP server with rbxsync functionality.
type Server struct {
	mcpServer *server.MCPServer
	api       *client.Client
}

// ExtractResult is the tool output for a started extraction.
type ExtractResult struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Hint      string `json:"hint"`
}

// SyncResult is the tool output for a sync_to_studio run.
type SyncResult struct {
	Operations int      `json:"operations"`
	Applied    int      `json:"applied"`
	Errors     []string `json:"errors,omitempty"`
}

// RunCodeResult is the tool output for run_code.
type RunCodeResult struct {
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// encodeOutput encodes data in the specified format (json or toon).
func encodeOutput(data any, format string) (string, error) {
	switch format {
	case "toon":
		return gotoon.Encode(data)
	default: // "json"
		jsonBytes, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return "", err
		}
		return string(jsonBytes), nil
	}
}

// NewServer creates a new MCP server talking to the rbxsync server at baseURL.
// An empty baseURL uses client.DefaultBaseURL.
func NewServer(baseURL string) (*Server, error) {
	s := &Server{
		api: client.New(baseURL),
	}

	// Create MCP server
	s.mcpServer = server.NewMCPServer(
		"rbxsync",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	// Register tools
	s.registerTools()

	return s, nil
}

// registerTools registers all rbxsync tools with the MCP server.
func (s *Server) registerTools() {
	// rbxsync_extract_game tool
	extractTool := mcp.NewTool("rbxsync_extract_game",
		mcp.WithDescription("Extract the open Roblox place from Studio into git-friendly files. Starts a chunked extraction session; poll rbxsync_extract_status until complete, then call rbxsync_finalize_extraction."),
		mcp.WithString("services",
			mcp.Description("Comma-separated list of services to extract (default: all whitelisted services)"),
		),
		mcp.WithBoolean("include_terrain",
			mcp.Description("Include serialized Terrain data (default: true)"),
		),
		mcp.WithBoolean("include_assets",
			mcp.Description("Include asset references (default: true)"),
		),
		mcp.WithString("format",
			mcp.Description("Output format: 'json' (default) or 'toon' (token-efficient)"),
		),
	)
	s.mcpServer.AddTool(extractTool, s.handleExtractGame)

	// rbxsync_extract_status tool
	extractStatusTool := mcp.NewTool("rbxsync_extract_status",
		mcp.WithDescription("Check progress of the current extraction session: chunks received, total chunks, and completeness."),
		mcp.WithString("format",
			mcp.Description("Output format: 'json' (default) or 'toon' (token-efficient)"),
		),
	)
	s.mcpServer.AddTool(extractStatusTool, s.handleExtractStatus)

	// rbxsync_finalize_extraction tool
	finalizeTool := mcp.NewTool("rbxsync_finalize_extraction",
		mcp.WithDescription("Write the extracted session to disk as a project tree (scripts as .luau, instances as .rbxjson) under <project_dir>/src."),
		mcp.WithString("project_dir",
			mcp.Required(),
			mcp.Description("Absolute path of the project directory to write into"),
		),
		mcp.WithString("format",
			mcp.Description("Output format: 'json' (default) or 'toon' (token-efficient)"),
		),
	)
	s.mcpServer.AddTool(finalizeTool, s.handleFinalize)

	// rbxsync_sync_to_studio tool
	syncTool := mcp.NewTool("rbxsync_sync_to_studio",
		mcp.WithDescription("Push the on-disk project tree back into Roblox Studio. Reads <project_dir>/src and sends one update operation per instance to the plugin."),
		mcp.WithString("project_dir",
			mcp.Required(),
			mcp.Description("Absolute path of the project directory to sync from"),
		),
		mcp.WithString("format",
			mcp.Description("Output format: 'json' (default) or 'toon' (token-efficient)"),
		),
	)
	s.mcpServer.AddTool(syncTool, s.handleSyncToStudio)

	// rbxsync_read_tree tool
	readTreeTool := mcp.NewTool("rbxsync_read_tree",
		mcp.WithDescription("Read the on-disk project tree and return all instances with their properties and merged script sources."),
		mcp.WithString("project_dir",
			mcp.Required(),
			mcp.Description("Absolute path of the project directory to read"),
		),
		mcp.WithString("format",
			mcp.Description("Output format: 'json' (default) or 'toon' (token-efficient)"),
		),
	)
	s.mcpServer.AddTool(readTreeTool, s.handleReadTree)

	// rbxsync_run_code tool
	runCodeTool := mcp.NewTool("rbxsync_run_code",
		mcp.WithDescription("Execute Luau code in Roblox Studio via the plugin and return its output."),
		mcp.WithString("code",
			mcp.Required(),
			mcp.Description("Luau source to execute"),
		),
		mcp.WithString("format",
			mcp.Description("Output format: 'json' (default) or 'toon' (token-efficient)"),
		),
	)
	s.mcpServer.AddTool(runCodeTool, s.handleRunCode)

	// rbxsync_run_test tool
	runTestTool := mcp.NewTool("rbxsync_run_test",
		mcp.WithDescription("Run a play test in Roblox Studio: capture console output for the given duration, then stop and return the messages grouped by severity. Stop any running test before syncing code changes."),
		mcp.WithNumber("duration",
			mcp.Description("How long to capture, in seconds (default: 5)"),
		),
	)
	s.mcpServer.AddTool(runTestTool, s.handleRunTest)

	// rbxsync_stop_test tool
	stopTestTool := mcp.NewTool("rbxsync_stop_test",
		mcp.WithDescription("Stop a running play test and return everything captured so far."),
	)
	s.mcpServer.AddTool(stopTestTool, s.handleStopTest)

	// rbxsync_git_status tool
	gitStatusTool := mcp.NewTool("rbxsync_git_status",
		mcp.WithDescription("Get git status of the project: branch, staged/modified/untracked files."),
		mcp.WithString("project_dir",
			mcp.Required(),
			mcp.Description("Absolute path of the project directory"),
		),
		mcp.WithString("format",
			mcp.Description("Output format: 'json' (default) or 'toon' (token-efficient)"),
		),
	)
	s.mcpServer.AddTool(gitStatusTool, s.handleGitStatus)

	// rbxsync_git_commit tool
	gitCommitTool := mcp.NewTool("rbxsync_git_commit",
		mcp.WithDescription("Commit changes in the project repository."),
		mcp.WithString("project_dir",
			mcp.Required(),
			mcp.Description("Absolute path of the project directory"),
		),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("Commit message"),
		),
		mcp.WithBoolean("add_all",
			mcp.Description("Stage all changes before committing (default: true)"),
		),
		mcp.WithString("format",
			mcp.Description("Output format: 'json' (default) or 'toon' (token-efficient)"),
		),
	)
	s.mcpServer.AddTool(gitCommitTool, s.handleGitCommit)

	// rbxsync_harness_init tool
	harnessInitTool := mcp.NewTool("rbxsync_harness_init",
		mcp.WithDescription("Initialize the development harness for a project: game definition plus a feature backlog, optionally seeded from a genre template."),
		mcp.WithString("project_dir",
			mcp.Required(),
			mcp.Description("Absolute path of the project directory"),
		),
		mcp.WithString("game_name",
			mcp.Required(),
			mcp.Description("Name of the game"),
		),
		mcp.WithString("genre",
			mcp.Description("Genre of the game; seeds features from the matching template when one exists (tycoon, obby, simulator, rpg, horror)"),
		),
		mcp.WithString("template",
			mcp.Description("Explicit feature template to instantiate; defaults to the genre"),
		),
		mcp.WithString("description",
			mcp.Description("Short description of the game"),
		),
	)
	s.mcpServer.AddTool(harnessInitTool, s.handleHarnessInit)

	// rbxsync_harness_status tool
	harnessStatusTool := mcp.NewTool("rbxsync_harness_status",
		mcp.WithDescription("Get current harness state: feature counts by status and open sessions."),
		mcp.WithString("project_dir",
			mcp.Required(),
			mcp.Description("Absolute path of the project directory"),
		),
		mcp.WithString("format",
			mcp.Description("Output format: 'json' (default) or 'toon' (token-efficient)"),
		),
	)
	s.mcpServer.AddTool(harnessStatusTool, s.handleHarnessStatus)

	// rbxsync_harness_feature_update tool
	featureUpdateTool := mcp.NewTool("rbxsync_harness_feature_update",
		mcp.WithDescription("Update a feature's status in the harness backlog. Matches by feature ID or name."),
		mcp.WithString("project_dir",
			mcp.Required(),
			mcp.Description("Absolute path of the project directory"),
		),
		mcp.WithString("feature",
			mcp.Required(),
			mcp.Description("Feature ID or name"),
		),
		mcp.WithString("status",
			mcp.Required(),
			mcp.Description("New status: planned, in_progress, testing, done, or blocked"),
		),
		mcp.WithString("note",
			mcp.Description("Optional note to append to the feature"),
		),
		mcp.WithString("format",
			mcp.Description("Output format: 'json' (default) or 'toon' (token-efficient)"),
		),
	)
	s.mcpServer.AddTool(featureUpdateTool, s.handleHarnessFeatureUpdate)

	// rbxsync_harness_session_start tool
	sessionStartTool := mcp.NewTool("rbxsync_harness_session_start",
		mcp.WithDescription("Start a development session and get its session ID for logging."),
		mcp.WithString("project_dir",
			mcp.Required(),
			mcp.Description("Absolute path of the project directory"),
		),
		mcp.WithString("goals",
			mcp.Description("What this session aims to accomplish"),
		),
	)
	s.mcpServer.AddTool(sessionStartTool, s.handleHarnessSessionStart)

	// rbxsync_harness_session_end tool
	sessionEndTool := mcp.NewTool("rbxsync_harness_session_end",
		mcp.WithDescription("End a development session with a summary and handoff notes for the next session."),
		mcp.WithString("project_dir",
			mcp.Required(),
			mcp.Description("Absolute path of the project directory"),
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session ID returned by rbxsync_harness_session_start"),
		),
		mcp.WithString("summary",
			mcp.Description("What was accomplished"),
		),
		mcp.WithString("handoff_notes",
			mcp.Description("Newline-separated notes for the next session"),
		),
	)
	s.mcpServer.AddTool(sessionEndTool, s.handleHarnessSessionEnd)
}

// buildSyncOperations converts read-tree instances into plugin update
// operations, skipping any instance without a path.
func buildSyncOperations(instances []map[string]any) []any {
	ops := make([]any, 0, len(instances))
	for _, inst := range instances {
		path, ok := inst["path"].(string)
		if !ok || path == "" {
			continue
		}
		ops = append(ops, map[string]any{
			"type": "update",
			"path": path,
			"data": inst,
		})
	}
	return ops
}

// handleExtractGame handles the rbxsync_extract_game tool call.
func (s *Server) handleExtractGame(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format := request.GetString("format", "json")
	if format != "json" && format != "toon" {
		return mcp.NewToolResultError("format must be 'json' or 'toon'"), nil
	}

	opts := client.ExtractOptions{}
	if services := request.GetString("services", ""); services != "" {
		for _, svc := range strings.Split(services, ",") {
			if svc = strings.TrimSpace(svc); svc != "" {
				opts.Services = append(opts.Services, svc)
			}
		}
	}
	if request.GetArguments()["include_terrain"] != nil {
		v := request.GetBool("include_terrain", true)
		opts.IncludeTerrain = &v
	}
	if request.GetArguments()["include_assets"] != nil {
		v := request.GetBool("include_assets", true)
		opts.IncludeAssets = &v
	}

	sessionID, err := s.api.StartExtraction(ctx, opts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to start extraction: %v", err)), nil
	}

	output, err := encodeOutput(ExtractResult{
		SessionID: sessionID,
		Status:    "started",
		Hint:      "poll rbxsync_extract_status until complete, then call rbxsync_finalize_extraction",
	}, format)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(output), nil
}

// handleExtractStatus handles the rbxsync_extract_status tool call.
func (s *Server) handleExtractStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format := request.GetString("format", "json")
	if format != "json" && format != "toon" {
		return mcp.NewToolResultError("format must be 'json' or 'toon'"), nil
	}

	status, err := s.api.ExtractionStatus(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get extraction status: %v", err)), nil
	}

	output, err := encodeOutput(status, format)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(output), nil
}

// handleFinalize handles the rbxsync_finalize_extraction tool call.
func (s *Server) handleFinalize(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectDir, err := request.RequireString("project_dir")
	if err != nil {
		return mcp.NewToolResultError("project_dir parameter is required"), nil
	}
	format := request.GetString("format", "json")
	if format != "json" && format != "toon" {
		return mcp.NewToolResultError("format must be 'json' or 'toon'"), nil
	}

	result, err := s.api.FinalizeExtraction(ctx, projectDir)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to finalize extraction: %v", err)), nil
	}

	output, err := encodeOutput(result, format)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(output), nil
}

// handleSyncToStudio handles the rbxsync_sync_to_studio tool call.
func (s *Server) handleSyncToStudio(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectDir, err := request.RequireString("project_dir")
	if err != nil {
		return mcp.NewToolResultError("project_dir parameter is required"), nil
	}
	format := request.GetString("format", "json")
	if format != "json" && format != "toon" {
		return mcp.NewToolResultError("format must be 'json' or 'toon'"), nil
	}

	instances, err := s.api.ReadTree(ctx, projectDir)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read project tree: %v", err)), nil
	}
	ops := buildSyncOperations(instances)
	if len(ops) == 0 {
		return mcp.NewToolResultText("no instances to sync"), nil
	}

	resp, err := s.api.SyncBatch(ctx, ops)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("sync batch failed: %v", err)), nil
	}

	result := SyncResult{Operations: len(ops)}
	if len(resp.Data) > 0 {
		var batch struct {
			Applied int      `json:"applied"`
			Errors  []string `json:"errors"`
		}
		if err := json.Unmarshal(resp.Data, &batch); err == nil {
			result.Applied = batch.Applied
			result.Errors = batch.Errors
		}
	}
	if !resp.Success && resp.Error != "" {
		result.Errors = append(result.Errors, resp.Error)
	}

	output, err := encodeOutput(result, format)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(output), nil
}

// handleReadTree handles the rbxsync_read_tree tool call.
func (s *Server) handleReadTree(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectDir, err := request.RequireString("project_dir")
	if err != nil {
		return mcp.NewToolResultError("project_dir parameter is required"), nil
	}
	format := request.GetString("format", "json")
	if format != "json" && format != "toon" {
		return mcp.NewToolResultError("format must be 'json' or 'toon'"), nil
	}

	instances, err := s.api.ReadTree(ctx, projectDir)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read project tree: %v", err)), nil
	}

	output, err := encodeOutput(instances, format)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(output), nil
}

// handleRunCode handles the rbxsync_run_code tool call.
func (s *Server) handleRunCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := request.RequireString("code")
	if err != nil {
		return mcp.NewToolResultError("code parameter is required"), nil
	}
	format := request.GetString("format", "json")
	if format != "json" && format != "toon" {
		return mcp.NewToolResultError("format must be 'json' or 'toon'"), nil
	}

	resp, err := s.api.SyncCommand(ctx, "run_code", map[string]string{"code": code})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run_code failed: %v", err)), nil
	}

	result := RunCodeResult{Success: resp.Success, Error: resp.Error}
	if len(resp.Data) > 0 {
		var data struct {
			Output string `json:"output"`
		}
		if err := json.Unmarshal(resp.Data, &data); err == nil {
			result.Output = data.Output
		}
		if result.Output == "" {
			result.Output = string(resp.Data)
		}
	}

	output, err := encodeOutput(result, format)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(output), nil
}

// handleRunTest handles the rbxsync_run_test tool call: start capture, wait
// out the requested duration, then stop and report what was recorded.
func (s *Server) handleRunTest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	duration := request.GetFloat("duration", 5)
	if duration <= 0 {
		duration = 5
	}

	if err := s.api.StartTest(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to start test: %v", err)), nil
	}

	timer := time.NewTimer(time.Duration(duration * float64(time.Second)))
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}

	capture, err := s.api.StopTest(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to stop test: %v", err)), nil
	}
	return mcp.NewToolResultText(formatCapture(capture)), nil
}

// handleStopTest handles the rbxsync_stop_test tool call.
func (s *Server) handleStopTest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	capture, err := s.api.StopTest(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to stop test: %v", err)), nil
	}
	return mcp.NewToolResultText(formatCapture(capture)), nil
}

// formatCapture renders captured console output grouped by severity,
// errors first.
func formatCapture(capture *client.TestCapture) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Total messages: %d\n", capture.TotalMessages)
	groups := []struct {
		label   string
		msgType string
	}{
		{"ERRORS", "MessageError"},
		{"WARNINGS", "MessageWarning"},
		{"OUTPUT", "MessageOutput"},
	}
	for _, group := range groups {
		var lines []string
		for _, msg := range capture.Output {
			if msg.Type == group.msgType {
				lines = append(lines, fmt.Sprintf("[%.2fs] %s", msg.Timestamp, msg.Message))
			}
		}
		if len(lines) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n=== %s (%d) ===\n%s\n", group.label, len(lines), strings.Join(lines, "\n"))
	}
	return b.String()
}

// handleGitStatus handles the rbxsync_git_status tool call.
func (s *Server) handleGitStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectDir, err := request.RequireString("project_dir")
	if err != nil {
		return mcp.NewToolResultError("project_dir parameter is required"), nil
	}
	format := request.GetString("format", "json")
	if format != "json" && format != "toon" {
		return mcp.NewToolResultError("format must be 'json' or 'toon'"), nil
	}

	status, err := s.api.GitStatus(ctx, projectDir)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get git status: %v", err)), nil
	}

	output, err := encodeOutput(status, format)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(output), nil
}

// handleGitCommit handles the rbxsync_git_commit tool call.
func (s *Server) handleGitCommit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectDir, err := request.RequireString("project_dir")
	if err != nil {
		return mcp.NewToolResultError("project_dir parameter is required"), nil
	}
	message, err := request.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError("message parameter is required"), nil
	}
	addAll := request.GetBool("add_all", true)
	format := request.GetString("format", "json")
	if format != "json" && format != "toon" {
		return mcp.NewToolResultError("format must be 'json' or 'toon'"), nil
	}

	hash, err := s.api.GitCommit(ctx, projectDir, message, addAll)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("commit failed: %v", err)), nil
	}

	output, err := encodeOutput(map[string]string{"hash": hash}, format)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(output), nil
}

// handleHarnessInit handles the rbxsync_harness_init tool call.
func (s *Server) handleHarnessInit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectDir, err := request.RequireString("project_dir")
	if err != nil {
		return mcp.NewToolResultError("project_dir parameter is required"), nil
	}
	gameName, err := request.RequireString("game_name")
	if err != nil {
		return mcp.NewToolResultError("game_name parameter is required"), nil
	}

	opts := client.HarnessInitOptions{
		Name:        gameName,
		Genre:       request.GetString("genre", ""),
		Description: request.GetString("description", ""),
		Template:    request.GetString("template", ""),
	}
	if err := s.api.HarnessInit(ctx, projectDir, opts); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("harness init failed: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("harness initialized for %q", gameName)), nil
}

// handleHarnessStatus handles the rbxsync_harness_status tool call.
func (s *Server) handleHarnessStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectDir, err := request.RequireString("project_dir")
	if err != nil {
		return mcp.NewToolResultError("project_dir parameter is required"), nil
	}
	format := request.GetString("format", "json")
	if format != "json" && format != "toon" {
		return mcp.NewToolResultError("format must be 'json' or 'toon'"), nil
	}

	summary, err := s.api.HarnessStatus(ctx, projectDir)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get harness status: %v", err)), nil
	}

	output, err := encodeOutput(summary, format)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(output), nil
}

// handleHarnessFeatureUpdate handles the rbxsync_harness_feature_update tool call.
func (s *Server) handleHarnessFeatureUpdate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectDir, err := request.RequireString("project_dir")
	if err != nil {
		return mcp.NewToolResultError("project_dir parameter is required"), nil
	}
	feature, err := request.RequireString("feature")
	if err != nil {
		return mcp.NewToolResultError("feature parameter is required"), nil
	}
	status, err := request.RequireString("status")
	if err != nil {
		return mcp.NewToolResultError("status parameter is required"), nil
	}
	note := request.GetString("note", "")
	format := request.GetString("format", "json")
	if format != "json" && format != "toon" {
		return mcp.NewToolResultError("format must be 'json' or 'toon'"), nil
	}

	updated, err := s.api.HarnessFeatureUpdate(ctx, projectDir, feature, status, note)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("feature update failed: %v", err)), nil
	}

	output, err := encodeOutput(updated, format)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(output), nil
}

// handleHarnessSessionStart handles the rbxsync_harness_session_start tool call.
func (s *Server) handleHarnessSessionStart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectDir, err := request.RequireString("project_dir")
	if err != nil {
		return mcp.NewToolResultError("project_dir parameter is required"), nil
	}
	goals := request.GetString("goals", "")

	sessionID, err := s.api.HarnessStartSession(ctx, projectDir, goals)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("session start failed: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("session started: %s", sessionID)), nil
}

// handleHarnessSessionEnd handles the rbxsync_harness_session_end tool call.
func (s *Server) handleHarnessSessionEnd(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectDir, err := request.RequireString("project_dir")
	if err != nil {
		return mcp.NewToolResultError("project_dir parameter is required"), nil
	}
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id parameter is required"), nil
	}
	summary := request.GetString("summary", "")

	var notes []string
	if raw := request.GetString("handoff_notes", ""); raw != "" {
		for _, line := range strings.Split(raw, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				notes = append(notes, line)
			}
		}
	}

	if err := s.api.HarnessEndSession(ctx, projectDir, sessionID, summary, notes); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("session end failed: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("session %s closed", sessionID)), nil
}

// Serve starts the MCP server on stdin/stdout.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}
