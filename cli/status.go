package cli

import (
	"context"
	"fmt"

	"github.com/rbxsync/rbxsync/daemon"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server, extraction, and watcher status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	c := api()
	ctx := context.Background()

	version, err := c.Health(ctx)
	if err != nil {
		fmt.Printf("Server: not reachable at %s\n", serverURL)
		if logDir, dirErr := daemon.GetDefaultLogDir(); dirErr == nil {
			if pid, pidErr := daemon.GetRunningPID(logDir); pidErr == nil && pid > 0 {
				fmt.Printf("A background server process exists (PID %d) but is not answering; check the logs in %s\n", pid, logDir)
			}
		}
		return nil
	}
	fmt.Printf("Server: running (version %s) at %s\n", version, serverURL)

	if status, err := c.ExtractionStatus(ctx); err == nil {
		if status.SessionID == "" {
			fmt.Println("Extraction: no active session")
		} else {
			fmt.Printf("Extraction: session %s, %d/%d chunks", status.SessionID, status.ChunksReceived, status.TotalChunks)
			if status.Complete {
				fmt.Print(" (complete)")
			}
			fmt.Println()
		}
	}

	if watching, err := c.WatchStatus(ctx); err == nil {
		if len(watching) == 0 {
			fmt.Println("Watching: nothing")
		} else {
			fmt.Printf("Watching: %d project(s)\n", len(watching))
			for _, dir := range watching {
				fmt.Printf("  %s\n", dir)
			}
		}
	}

	return nil
}
