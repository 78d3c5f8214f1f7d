package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rbxsync/rbxsync/config"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize an rbxsync project",
	Long: `Create the project skeleton in the given directory (default: current).

This writes .rbxsync/config.yaml with default server and watcher settings
and creates the src/ directory that extraction fills and the watcher
monitors. Existing configuration is left untouched unless --force is set.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing configuration")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	projectDir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	if config.Exists(projectDir) && !initForce {
		return fmt.Errorf("project already initialized at %s (use --force to overwrite)", config.GetConfigPath(projectDir))
	}

	cfg := config.DefaultConfig()
	if err := cfg.Save(projectDir); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}

	if err := os.MkdirAll(filepath.Join(projectDir, "src"), 0755); err != nil {
		return fmt.Errorf("failed to create src directory: %w", err)
	}

	fmt.Printf("Initialized rbxsync project in %s\n", projectDir)
	fmt.Printf("Config: %s\n", config.GetConfigPath(projectDir))
	fmt.Println("\nNext steps:")
	fmt.Println("  rbxsync serve --background")
	fmt.Println("  rbxsync extract")
	return nil
}
