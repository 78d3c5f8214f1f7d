package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rbxsync/rbxsync/client"
	"github.com/spf13/cobra"
)

var (
	extractProject   string
	extractServices  string
	extractNoTerrain bool
	extractNoAssets  bool
	extractExportOut string
	extractTimeout   int
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract the open place from Studio into the project tree",
	Long: `Extract the place currently open in Roblox Studio into git-friendly files.

The server opens an extraction session and queues a start request for the
plugin. The plugin uploads the place in chunks; this command polls session
progress and, once all chunks have arrived, finalizes them into
<project>/src as .luau scripts and .rbxjson instance files.

The server must be running ('rbxsync serve') and the plugin connected in
Studio.

Examples:
  rbxsync extract
  rbxsync extract --project ./mygame --services Workspace,ServerScriptService
  rbxsync extract --export place.json`,
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVar(&extractProject, "project", ".", "Project directory to finalize into")
	extractCmd.Flags().StringVar(&extractServices, "services", "", "Comma-separated services to extract (default: all whitelisted)")
	extractCmd.Flags().BoolVar(&extractNoTerrain, "no-terrain", false, "Skip serialized Terrain data")
	extractCmd.Flags().BoolVar(&extractNoAssets, "no-assets", false, "Skip asset references")
	extractCmd.Flags().StringVar(&extractExportOut, "export", "", "Export the raw session to a JSON file instead of finalizing")
	extractCmd.Flags().IntVar(&extractTimeout, "timeout", 300, "Seconds to wait for the plugin to finish uploading")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	c := api()
	ctx := context.Background()

	if _, err := c.Health(ctx); err != nil {
		return fmt.Errorf("server is not reachable at %s: %w\nStart it with 'rbxsync serve'", serverURL, err)
	}

	opts := client.ExtractOptions{}
	if extractServices != "" {
		for _, svc := range strings.Split(extractServices, ",") {
			if svc = strings.TrimSpace(svc); svc != "" {
				opts.Services = append(opts.Services, svc)
			}
		}
	}
	if extractNoTerrain {
		v := false
		opts.IncludeTerrain = &v
	}
	if extractNoAssets {
		v := false
		opts.IncludeAssets = &v
	}

	sessionID, err := c.StartExtraction(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to start extraction: %w", err)
	}
	fmt.Printf("Extraction session %s started, waiting for the plugin...\n", sessionID)

	status, err := waitForExtraction(ctx, c, sessionID, time.Duration(extractTimeout)*time.Second)
	if err != nil {
		return err
	}
	fmt.Printf("Received %d/%d chunks\n", status.ChunksReceived, status.TotalChunks)

	if extractExportOut != "" {
		out, err := filepath.Abs(extractExportOut)
		if err != nil {
			return err
		}
		count, err := c.ExportExtraction(ctx, out)
		if err != nil {
			return err
		}
		fmt.Printf("Exported %d instances to %s\n", count, out)
		return nil
	}

	projectDir, err := filepath.Abs(extractProject)
	if err != nil {
		return err
	}
	result, err := c.FinalizeExtraction(ctx, projectDir)
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %d files (%d scripts) for %d instances under %s\n",
		result.FilesWritten, result.ScriptsWritten, result.TotalInstances,
		filepath.Join(projectDir, "src"))
	return nil
}

// waitForExtraction polls session status until the upload completes. A
// session can be replaced if Studio restarts mid-extraction, so a changed
// session ID aborts the wait.
func waitForExtraction(ctx context.Context, c *client.Client, sessionID string, timeout time.Duration) (*client.ExtractStatus, error) {
	deadline := time.Now().Add(timeout)
	lastReceived := -1

	for time.Now().Before(deadline) {
		status, err := c.ExtractionStatus(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to poll extraction status: %w", err)
		}
		if status.SessionID != "" && status.SessionID != sessionID {
			return nil, fmt.Errorf("extraction session was replaced (now %s); re-run extract", status.SessionID)
		}
		if status.Complete {
			return status, nil
		}
		if status.ChunksReceived != lastReceived {
			lastReceived = status.ChunksReceived
			if status.TotalChunks > 0 {
				fmt.Printf("  %d/%d chunks\n", status.ChunksReceived, status.TotalChunks)
			}
		}
		time.Sleep(time.Second)
	}

	return nil, fmt.Errorf("timed out after %v waiting for the plugin to upload; is the plugin connected in Studio?", timeout)
}
