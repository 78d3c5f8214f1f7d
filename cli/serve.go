package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rbxsync/rbxsync/config"
	"github.com/rbxsync/rbxsync/daemon"
	"github.com/rbxsync/rbxsync/logging"
	"github.com/rbxsync/rbxsync/server"
	"github.com/spf13/cobra"
)

var (
	serveBackground bool
	serveLogDir     string
	serveStatus     bool
	serveStop       bool
	serveHost       string
	servePort       int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the rbxsync coordination server",
	Long: `Start the local HTTP server that coordinates the CLI, the MCP adapter,
and the Roblox Studio plugin.

The server exposes long-poll endpoints for the plugin, extraction session
endpoints, sync relay endpoints, and project-level git/harness endpoints.
Configuration is read from .rbxsync/config.yaml in the current directory
when present; --host and --port override it.

Background mode:
  rbxsync serve --background             Run in background with default log directory
  rbxsync serve --background --log-dir /custom/path
  rbxsync serve --status                 Check if a background server is running
  rbxsync serve --stop                   Stop the background server

Default log directories:
  Linux:   ~/.local/state/rbxsync/logs/rbxsync-serve.log (or $XDG_STATE_HOME)
  macOS:   ~/Library/Logs/rbxsync/rbxsync-serve.log
  Windows: %LOCALAPPDATA%\rbxsync\logs\rbxsync-serve.log`,
	RunE: runServe,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background rbxsync server",
	RunE: func(cmd *cobra.Command, args []string) error {
		logDir, err := resolveLogDir()
		if err != nil {
			return err
		}
		stopped, err := stopServeDaemon(logDir)
		if err != nil {
			return err
		}
		if !stopped {
			fmt.Println("No background server is running")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveBackground, "background", false, "Run in background mode")
	serveCmd.Flags().StringVar(&serveLogDir, "log-dir", "", "Directory for log files (default: OS-specific)")
	serveCmd.Flags().BoolVar(&serveStatus, "status", false, "Show background server status")
	serveCmd.Flags().BoolVar(&serveStop, "stop", false, "Stop the background server")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Bind address (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides config)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(stopCmd)
}

func resolveLogDir() (string, error) {
	if serveLogDir != "" {
		return serveLogDir, nil
	}
	logDir, err := daemon.GetDefaultLogDir()
	if err != nil {
		return "", fmt.Errorf("failed to get default log directory: %w", err)
	}
	return logDir, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	activeFlags := 0
	if serveBackground {
		activeFlags++
	}
	if serveStatus {
		activeFlags++
	}
	if serveStop {
		activeFlags++
	}
	if activeFlags > 1 {
		return fmt.Errorf("flags --background, --status, and --stop are mutually exclusive")
	}

	logDir, err := resolveLogDir()
	if err != nil {
		return err
	}

	if serveStatus {
		return showServeStatus(logDir)
	}

	if serveStop {
		stopped, err := stopServeDaemon(logDir)
		if err != nil {
			return err
		}
		if !stopped {
			fmt.Println("No background server is running")
		}
		return nil
	}

	if serveBackground {
		return startBackgroundServe(logDir)
	}

	// Already running in the background? (stale PID files are cleaned up)
	pid, err := daemon.GetRunningPID(logDir)
	if err != nil {
		return fmt.Errorf("failed to check running status: %w", err)
	}
	if pid > 0 {
		return fmt.Errorf("server is already running in background (PID %d)\nUse 'rbxsync stop' to stop it", pid)
	}

	return runServeForeground(logDir)
}

func loadServeConfig() *config.Config {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	cfg := config.LoadOrDefault(cwd)
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	return cfg
}

func runServeForeground(logDir string) error {
	cfg := loadServeConfig()

	isBackgroundChild := os.Getenv("RBXSYNC_BACKGROUND") == "1"
	if isBackgroundChild {
		if err := daemon.WritePIDFile(logDir); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() {
			_ = daemon.RemoveReadyFile(logDir)
			_ = daemon.RemovePIDFile(logDir)
		}()
	}

	log := logging.New(cfg.Logging.Level)
	state := server.NewState(cfg, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	stopCh := daemon.StopChannel()
	go func() {
		select {
		case <-sigChan:
		case <-stopCh:
		case <-ctx.Done():
		}
		cancel()
	}()

	// Mark ready once the health endpoint answers, so --background parents
	// know startup succeeded.
	if isBackgroundChild {
		go waitUntilHealthy(ctx, cfg.Addr(), func() {
			_ = daemon.WriteReadyFile(logDir)
		})
	} else {
		fmt.Printf("rbxsync server listening on %s (Ctrl+C to stop)\n", cfg.Addr())
	}

	return state.Run(ctx)
}

// waitUntilHealthy polls the health endpoint until it answers or ctx ends.
func waitUntilHealthy(ctx context.Context, addr string, onReady func()) {
	url := "http://" + addr + "/health"
	httpClient := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			resp, err := httpClient.Get(url)
			if err != nil {
				continue
			}
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				onReady()
				return
			}
		}
	}
}

func showServeStatus(logDir string) error {
	pid, err := daemon.GetRunningPID(logDir)
	if err != nil {
		return fmt.Errorf("failed to read PID file: %w", err)
	}

	if pid == 0 {
		fmt.Println("Status: not running")
		fmt.Printf("Log directory: %s\n", logDir)
		return nil
	}

	fmt.Println("Status: running")
	fmt.Printf("PID: %d\n", pid)
	fmt.Printf("Log directory: %s\n", logDir)
	fmt.Printf("Log file: %s\n", filepath.Join(logDir, "rbxsync-serve.log"))
	return nil
}

func stopServeDaemon(logDir string) (bool, error) {
	pid, err := daemon.GetRunningPID(logDir)
	if err != nil {
		return false, fmt.Errorf("failed to read PID file: %w", err)
	}
	if pid == 0 {
		return false, nil
	}

	fmt.Printf("Stopping background server (PID %d)...\n", pid)
	if err := daemon.StopProcess(pid); err != nil {
		return false, fmt.Errorf("failed to stop process: %w", err)
	}

	const shutdownTimeout = 30 * time.Second
	const pollInterval = 500 * time.Millisecond
	deadline := time.Now().Add(shutdownTimeout)

	for time.Now().Before(deadline) {
		if !daemon.IsProcessRunning(pid) {
			break
		}
		time.Sleep(pollInterval)
	}

	if daemon.IsProcessRunning(pid) {
		return false, fmt.Errorf("process did not stop within %v\nStill running? Try: kill -9 %d", shutdownTimeout, pid)
	}

	if err := daemon.RemovePIDFile(logDir); err != nil {
		return false, fmt.Errorf("failed to remove PID file: %w", err)
	}

	fmt.Println("Background server stopped")
	return true, nil
}

func startBackgroundServe(logDir string) error {
	pid, err := daemon.GetRunningPID(logDir)
	if err != nil {
		return fmt.Errorf("failed to check running status: %w", err)
	}
	if pid > 0 {
		return fmt.Errorf("server is already running (PID %d)", pid)
	}

	// Rebuild the args minus --background for the child.
	args := []string{"serve"}
	if serveLogDir != "" {
		args = append(args, "--log-dir", serveLogDir)
	}
	if serveHost != "" {
		args = append(args, "--host", serveHost)
	}
	if servePort != 0 {
		args = append(args, "--port", fmt.Sprintf("%d", servePort))
	}

	childPID, exitCh, err := daemon.SpawnBackground(logDir, args)
	if err != nil {
		return fmt.Errorf("failed to start background process: %w", err)
	}

	logFile := filepath.Join(logDir, "rbxsync-serve.log")

	// Poll for the ready file, bailing early if the child already exited.
	const startupTimeout = 30 * time.Second
	const pollInterval = 250 * time.Millisecond
	deadline := time.Now().Add(startupTimeout)

	for time.Now().Before(deadline) {
		if daemon.IsReady(logDir) {
			fmt.Printf("Background server started (PID %d)\n", childPID)
			fmt.Printf("Logs: %s\n", logFile)
			fmt.Printf("\nUse 'rbxsync serve --status' to check status\n")
			fmt.Printf("Use 'rbxsync stop' to stop the server\n")
			return nil
		}

		select {
		case <-exitCh:
			return fmt.Errorf("background process failed to start (check logs at %s)", logFile)
		default:
		}

		time.Sleep(pollInterval)
	}

	return fmt.Errorf("timeout waiting for server to become ready after %v (check logs at %s)", startupTimeout, logFile)
}
