package cli

import (
	"fmt"

	"github.com/rbxsync/rbxsync/mcp"
	"github.com/spf13/cobra"
)

var mcpServeCmd = &cobra.Command{
	Use:   "mcp-serve",
	Short: "Start rbxsync as an MCP server",
	Long: `Start rbxsync as an MCP (Model Context Protocol) server.

This allows AI agents to drive rbxsync as a native tool. The process
communicates via stdio and forwards every tool call to the rbxsync HTTP
server (which must already be running; see 'rbxsync serve').

Exposed tools:
  - rbxsync_extract_game / rbxsync_extract_status / rbxsync_finalize_extraction
  - rbxsync_sync_to_studio / rbxsync_read_tree / rbxsync_run_code
  - rbxsync_git_status / rbxsync_git_commit
  - rbxsync_harness_init / _status / _feature_update / _session_start / _session_end

Configuration for Claude Code:
  claude mcp add rbxsync -- rbxsync mcp-serve

Configuration for Cursor (.cursor/mcp.json):
  {
    "mcpServers": {
      "rbxsync": {
        "command": "rbxsync",
        "args": ["mcp-serve"]
      }
    }
  }`,
	RunE: runMCPServe,
}

func init() {
	rootCmd.AddCommand(mcpServeCmd)
}

func runMCPServe(cmd *cobra.Command, args []string) error {
	srv, err := mcp.NewServer(serverURL)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	return srv.Serve()
}
