package cli

import (
	"fmt"

	"github.com/rbxsync/rbxsync/plugin"
	"github.com/spf13/cobra"
)

var (
	buildPluginSource  string
	buildPluginOutput  string
	buildPluginName    string
	buildPluginInstall bool
)

var buildPluginCmd = &cobra.Command{
	Use:   "build-plugin",
	Short: "Build the Studio plugin from Luau sources",
	Long: `Package the plugin's Luau sources into a .rbxmx model Studio can load.

The source directory must contain init.server.luau as the entry point.
Other top-level files become children of the entry Script:
  *.server.luau -> Script
  *.client.luau -> LocalScript
  *.luau        -> ModuleScript

With --install, the built model is also copied into the local Studio
plugins directory so it loads on the next Studio restart.`,
	RunE: runBuildPlugin,
}

func init() {
	buildPluginCmd.Flags().StringVar(&buildPluginSource, "source", "", "Plugin source directory (default: plugin/src)")
	buildPluginCmd.Flags().StringVar(&buildPluginOutput, "output", "", "Output path for the .rbxmx model (default: build/RbxSync.rbxmx)")
	buildPluginCmd.Flags().StringVar(&buildPluginName, "name", "", "Plugin name inside Studio (default: RbxSync)")
	buildPluginCmd.Flags().BoolVar(&buildPluginInstall, "install", false, "Copy the built model into the Studio plugins directory")
	rootCmd.AddCommand(buildPluginCmd)
}

func runBuildPlugin(cmd *cobra.Command, args []string) error {
	cfg := plugin.DefaultBuildConfig()
	if buildPluginSource != "" {
		cfg.SourceDir = buildPluginSource
	}
	if buildPluginOutput != "" {
		cfg.OutputPath = buildPluginOutput
	}
	if buildPluginName != "" {
		cfg.PluginName = buildPluginName
	}

	modelPath, err := plugin.Build(cfg)
	if err != nil {
		return fmt.Errorf("plugin build failed: %w", err)
	}
	fmt.Printf("Built %s\n", modelPath)

	if buildPluginInstall {
		installed, err := plugin.Install(modelPath, cfg.PluginName)
		if err != nil {
			return fmt.Errorf("install failed: %w", err)
		}
		fmt.Printf("Installed to %s (restart Studio to load it)\n", installed)
	}
	return nil
}
