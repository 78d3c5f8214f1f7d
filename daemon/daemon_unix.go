//go:build !windows
// +build !windows

package daemon

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
)

// IsProcessRunning reports whether a process with the given PID exists.
// Signal 0 checks for existence without delivering anything; permission
// errors count as not running for our purposes, since we could not stop
// such a process anyway.
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	return process.Signal(syscall.Signal(0)) == nil
}

// sysProcAttr detaches the spawned server from the CLI's process group so
// a Ctrl-C in the invoking terminal does not take the daemon down with it.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// livenessCheck detects daemon exit through an inherited pipe. The child
// holds the write end; the kernel closes it when the child exits, for any
// reason, which surfaces as EOF on our read end. Works even when the child
// is a zombie, where a PID existence check would still report it alive.
type livenessCheck struct {
	pr, pw *os.File
}

func newLivenessCheck() (*livenessCheck, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create liveness pipe: %w", err)
	}
	return &livenessCheck{pr: pr, pw: pw}, nil
}

func (l *livenessCheck) configureCmd(cmd *exec.Cmd) {
	cmd.ExtraFiles = []*os.File{l.pw}
}

// start hands monitoring to a goroutine and returns a channel closed when
// the child exits. The parent's write end is closed first so the pipe only
// unblocks on the child's side going away.
func (l *livenessCheck) start(_ int) <-chan struct{} {
	l.pw.Close()
	ch := make(chan struct{})
	go func() {
		buf := make([]byte, 1)
		if _, err := l.pr.Read(buf); err != nil && err != io.EOF {
			// Any unblocking of the read means the child is gone.
			_ = err
		}
		l.pr.Close()
		close(ch)
	}()
	return ch
}

func (l *livenessCheck) cleanup() {
	l.pr.Close()
	l.pw.Close()
}

// StopProcess asks the daemon to shut down by sending SIGINT, the same
// signal its foreground signal handler already listens for.
func StopProcess(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid PID: %d", pid)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}

	if err := process.Signal(os.Interrupt); err != nil {
		return fmt.Errorf("failed to send interrupt signal: %w", err)
	}

	return nil
}

// StopChannel never fires on Unix: interrupt delivery goes through
// os/signal in the serve loop, so there is no stop-file polling here.
func StopChannel() <-chan struct{} {
	return make(chan struct{})
}
