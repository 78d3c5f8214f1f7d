// Package daemon manages the background lifecycle of the rbxsync server:
// PID file bookkeeping, process spawning, and stop signaling.
//
// The PID file contains a single line with the process ID as a decimal
// integer. PID file writes take a file lock so two `rbxsync serve`
// invocations cannot race each other into the background.
//
// Platform-specific behavior lives in daemon_unix.go and daemon_windows.go.
package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/rbxsync/rbxsync/internal/fileutil"
)

const (
	pidFileName   = "rbxsync-serve.pid"
	logFileName   = "rbxsync-serve.log"
	readyFileName = "rbxsync-serve.ready"
)

// GetDefaultLogDir returns the OS-specific default log directory.
//
// Platform-specific defaults:
//   - Linux:   $XDG_STATE_HOME/rbxsync/logs or ~/.local/state/rbxsync/logs
//   - macOS:   ~/Library/Logs/rbxsync
//   - Windows: %LOCALAPPDATA%\rbxsync\logs
//
// The directory may not exist yet; callers create it with os.MkdirAll.
func GetDefaultLogDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir, "Library", "Logs", "rbxsync"), nil
	case "windows":
		if base := os.Getenv("LOCALAPPDATA"); base != "" {
			return filepath.Join(base, "rbxsync", "logs"), nil
		}
		return filepath.Join(homeDir, "AppData", "Local", "rbxsync", "logs"), nil
	default: // Linux and other Unix-like systems
		if base := os.Getenv("XDG_STATE_HOME"); base != "" {
			return filepath.Join(base, "rbxsync", "logs"), nil
		}
		return filepath.Join(homeDir, ".local", "state", "rbxsync", "logs"), nil
	}
}

// WritePIDFile writes the current process ID to the PID file. The lock file
// is held for the lifetime of the process and released by the OS on exit,
// so a second server cannot start while the first is alive.
func WritePIDFile(logDir string) error {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	pidPath := filepath.Join(logDir, pidFileName)
	lockPath := pidPath + ".lock"

	lockFh, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}

	if err := fileutil.FlockExclusive(lockFh, true); err != nil {
		lockFh.Close()
		return fmt.Errorf("another rbxsync server is starting (lock held)")
	}

	// Write PID atomically using temp file + rename
	pid := os.Getpid()
	content := fmt.Sprintf("%d\n", pid)
	tmpPath := pidPath + ".tmp"

	if err := os.WriteFile(tmpPath, []byte(content), 0600); err != nil {
		lockFh.Close()
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	if err := os.Rename(tmpPath, pidPath); err != nil {
		os.Remove(tmpPath)
		lockFh.Close()
		return fmt.Errorf("failed to rename PID file: %w", err)
	}

	// Keep lockFh open and locked; the OS releases it when this process
	// exits.

	return nil
}

// ReadPIDFile reads the process ID from the PID file in logDir.
//
// Return values:
//   - (0, nil):     no PID file exists (server not running)
//   - (pid, nil):   PID file exists and contains a valid process ID
//   - (0, error):   PID file exists but is corrupt or unreadable
//
// This does not check whether the process is actually alive; use
// GetRunningPID for stale PID detection and cleanup.
func ReadPIDFile(logDir string) (int, error) {
	pidPath := filepath.Join(logDir, pidFileName)

	data, err := os.ReadFile(pidPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}

	pidStr := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %w", err)
	}

	return pid, nil
}

// RemovePIDFile removes the PID file and its associated lock file.
func RemovePIDFile(logDir string) error {
	pidPath := filepath.Join(logDir, pidFileName)
	lockPath := pidPath + ".lock"

	_ = os.Remove(lockPath)

	if err := os.Remove(pidPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// GetRunningPID returns the PID of the running server, or 0 if not running.
// Stale PID files (process gone) are cleaned up on the way.
func GetRunningPID(logDir string) (int, error) {
	pid, err := ReadPIDFile(logDir)
	if err != nil {
		return 0, err
	}

	if pid == 0 {
		return 0, nil
	}

	if !IsProcessRunning(pid) {
		_ = RemovePIDFile(logDir)
		return 0, nil
	}

	return pid, nil
}

// WriteReadyFile marks the server as fully initialized and listening.
// Callers waiting on a background start poll IsReady after spawning.
func WriteReadyFile(logDir string) error {
	readyPath := filepath.Join(logDir, readyFileName)
	content := fmt.Sprintf("ready\n%d\n", os.Getpid())
	if err := os.WriteFile(readyPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write ready file: %w", err)
	}
	return nil
}

// RemoveReadyFile removes the ready marker file.
func RemoveReadyFile(logDir string) error {
	readyPath := filepath.Join(logDir, readyFileName)
	if err := os.Remove(readyPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove ready file: %w", err)
	}
	return nil
}

// IsReady checks if the ready marker file exists.
func IsReady(logDir string) bool {
	readyPath := filepath.Join(logDir, readyFileName)
	_, err := os.Stat(readyPath)
	return err == nil
}

// IsProcessRunning checks if a process with the given PID is running.
// Platform-specific implementations are in daemon_unix.go and daemon_windows.go.

// SpawnBackground re-executes the current binary as a detached background
// process with stdout/stderr redirected to the server log file and
// RBXSYNC_BACKGROUND=1 in the environment.
//
// Args are the command-line arguments for the child, e.g. []string{"serve"}.
//
// Returns the child PID and an exit channel. The channel receives when the
// child terminates, so callers can detect early startup failures without
// relying on kill(0), which cannot distinguish zombies.
func SpawnBackground(logDir string, args []string) (int, <-chan struct{}, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return 0, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logPath := filepath.Join(logDir, logFileName)
	return spawnBackgroundWithLog(logDir, logPath, args)
}

// StopProcess sends a stop signal to the process with the given PID.
//
// On Unix this sends SIGINT to request graceful shutdown. On Windows it
// writes a sentinel stop file that the daemon polls for. Either way it
// returns immediately; callers poll IsProcessRunning to confirm exit.
//
// Platform-specific implementations are in daemon_unix.go and daemon_windows.go.

// StopChannel returns a channel closed when a stop signal is detected.
//
// On Unix the channel never fires (signals arrive via os/signal). On
// Windows it polls for the sentinel stop file written by StopProcess.
// Select on it alongside os/signal for graceful shutdown on all platforms.
//
// Platform-specific implementations are in daemon_unix.go and daemon_windows.go.

// spawnBackgroundWithLog spawns a detached child with a custom log file.
// Liveness detection is platform-specific: a pipe on Unix, polling on
// Windows.
func spawnBackgroundWithLog(logDir, logPath string, args []string) (int, <-chan struct{}, error) {
	executable, err := os.Executable()
	if err != nil {
		return 0, nil, fmt.Errorf("failed to get executable path: %w", err)
	}

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	liveness, err := newLivenessCheck()
	if err != nil {
		logFile.Close()
		return 0, nil, err
	}

	cmd := exec.Command(executable, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Stdin = nil
	cmd.Env = append(os.Environ(), "RBXSYNC_BACKGROUND=1")
	cmd.SysProcAttr = sysProcAttr()
	liveness.configureCmd(cmd)

	if err := cmd.Start(); err != nil {
		logFile.Close()
		liveness.cleanup()
		return 0, nil, fmt.Errorf("failed to start background process: %w", err)
	}

	logFile.Close()
	exitCh := liveness.start(cmd.Process.Pid)

	return cmd.Process.Pid, exitCh, nil
}
