package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

var watchProject string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Mirror local file edits into Roblox Studio",
	Long: `Register the project with the server's file watcher.

The server watches <project>/src for changes to .luau and .rbxjson files,
debounces rapid edits, and queues the resulting sync operations for the
Studio plugin. Watching continues until the server stops; registering the
same project twice is a no-op.`,
	RunE: runWatch,
}

var watchStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List the projects currently being watched",
	RunE: func(cmd *cobra.Command, args []string) error {
		watching, err := api().WatchStatus(context.Background())
		if err != nil {
			return err
		}
		if len(watching) == 0 {
			fmt.Println("No projects are being watched")
			return nil
		}
		for _, dir := range watching {
			fmt.Println(dir)
		}
		return nil
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchProject, "project", ".", "Project directory to watch")
	watchCmd.AddCommand(watchStatusCmd)
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	c := api()
	ctx := context.Background()

	projectDir, err := filepath.Abs(watchProject)
	if err != nil {
		return err
	}

	if err := c.StartWatch(ctx, projectDir); err != nil {
		return fmt.Errorf("failed to start watching: %w", err)
	}
	fmt.Printf("Watching %s\n", filepath.Join(projectDir, "src"))
	fmt.Println("Edits to .luau and .rbxjson files will be mirrored into Studio while the server runs")
	return nil
}
