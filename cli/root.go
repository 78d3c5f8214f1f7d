// Package cli implements the rbxsync command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/rbxsync/rbxsync/client"
	"github.com/rbxsync/rbxsync/server"
	"github.com/spf13/cobra"
)

var serverURL string

var rootCmd = &cobra.Command{
	Use:   "rbxsync",
	Short: "Sync Roblox Studio places with git-friendly files on disk",
	Long: `rbxsync keeps a Roblox place and a local file tree in sync.

A local HTTP server relays requests between this CLI (and the MCP adapter)
and a Studio plugin that long-polls for work. Extraction pulls the open
place out of Studio as .luau scripts and .rbxjson instance files; sync and
the file watcher push local edits back in.

Typical flow:
  rbxsync serve --background      Start the local server
  rbxsync extract                 Pull the place into ./src
  rbxsync watch                   Mirror local edits into Studio
  rbxsync sync                    Push the whole tree back at once`,
	Version:       server.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", client.DefaultBaseURL, "Base URL of the rbxsync server")
}

// api returns a client bound to the --server flag.
func api() *client.Client {
	return client.New(serverURL)
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
