package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

var syncProject string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push the whole project tree into Roblox Studio",
	Long: `Read the project's src/ tree and push every instance into the place open
in Roblox Studio as a single batch.

For continuous mirroring of individual edits, use 'rbxsync watch' instead;
sync is for bringing Studio up to date with the full tree after a pull or
a branch switch.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncProject, "project", ".", "Project directory to sync from")
	rootCmd.AddCommand(syncCmd)
}

// buildOperations converts read-tree instances into one update operation
// per instance, skipping anything without a path.
func buildOperations(instances []map[string]any) []any {
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

func runSync(cmd *cobra.Command, args []string) error {
	c := api()
	ctx := context.Background()

	projectDir, err := filepath.Abs(syncProject)
	if err != nil {
		return err
	}

	instances, err := c.ReadTree(ctx, projectDir)
	if err != nil {
		return fmt.Errorf("failed to read project tree: %w", err)
	}
	ops := buildOperations(instances)
	if len(ops) == 0 {
		fmt.Println("Nothing to sync")
		return nil
	}

	fmt.Printf("Syncing %d instances to Studio...\n", len(ops))
	resp, err := c.SyncBatch(ctx, ops)
	if err != nil {
		return fmt.Errorf("sync batch failed: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("plugin rejected the batch: %s", resp.Error)
	}

	var batch struct {
		Applied int      `json:"applied"`
		Errors  []string `json:"errors"`
	}
	if len(resp.Data) > 0 {
		_ = json.Unmarshal(resp.Data, &batch)
	}
	fmt.Printf("Applied %d operations\n", batch.Applied)
	for _, e := range batch.Errors {
		fmt.Printf("  error: %s\n", e)
	}
	return nil
}
