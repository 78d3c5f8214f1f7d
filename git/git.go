// Package git provides git helpers for project directories: status, log,
// commit, and init, backed by the git binary.
package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrNotARepository is returned when the project directory has no .git.
var ErrNotARepository = errors.New("not a git repository")

const commandTimeout = 10 * time.Second

// Status describes the working tree of a repository.
type Status struct {
	Branch         string        `json:"branch"`
	IsDirty        bool          `json:"isDirty"`
	StagedCount    int           `json:"stagedCount"`
	UnstagedCount  int           `json:"unstagedCount"`
	UntrackedCount int           `json:"untrackedCount"`
	Ahead          int           `json:"ahead"`
	Behind         int           `json:"behind"`
	ChangedFiles   []ChangedFile `json:"changedFiles"`
}

// ChangedFile is one entry of porcelain status output.
type ChangedFile struct {
	Path   string `json:"path"`
	Status string `json:"status"` // modified, added, deleted, renamed, untracked
}

// Commit is one entry of the commit log.
type Commit struct {
	Hash    string `json:"hash"`
	Message string `json:"message"`
	Author  string `json:"author"`
	Date    string `json:"date"`
}

// run executes git with the given args inside dir.
func run(dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("git %s failed: %s", args[0], strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("failed to run git (is git installed?): %w", err)
	}
	return string(out), nil
}

func requireRepository(dir string) error {
	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		return ErrNotARepository
	}
	return nil
}

// GetStatus reports the current branch, counts by change class, upstream
// ahead/behind, and the changed file list.
func GetStatus(projectDir string) (*Status, error) {
	if err := requireRepository(projectDir); err != nil {
		return nil, err
	}

	branchOut, err := run(projectDir, "branch", "--show-current")
	if err != nil {
		return nil, err
	}

	// -uall lists individual untracked files rather than directories.
	statusOut, err := run(projectDir, "status", "--porcelain", "-uall")
	if err != nil {
		return nil, err
	}

	status := &Status{Branch: strings.TrimSpace(branchOut)}
	for _, line := range strings.Split(statusOut, "\n") {
		if len(line) < 3 {
			continue
		}
		first, second := line[0], line[1]
		filePath := strings.TrimSpace(line[3:])

		// Renames are reported as "old -> new"; show the new name.
		if _, after, found := strings.Cut(filePath, " -> "); found {
			filePath = after
		}

		var fileStatus string
		switch {
		case strings.HasPrefix(line, "??"):
			status.UntrackedCount++
			fileStatus = "untracked"
		case first == 'A' || second == 'A':
			countChange(status, first == 'A')
			fileStatus = "added"
		case first == 'D' || second == 'D':
			countChange(status, first == 'D')
			fileStatus = "deleted"
		case first == 'R' || second == 'R':
			countChange(status, first == 'R')
			fileStatus = "renamed"
		case isChange(first) && isChange(second):
			// Staged with further working-tree edits on top.
			status.UnstagedCount++
			fileStatus = "modified"
		case isChange(first):
			status.StagedCount++
			fileStatus = "modified"
		case isChange(second):
			status.UnstagedCount++
			fileStatus = "modified"
		default:
			continue
		}

		status.ChangedFiles = append(status.ChangedFiles, ChangedFile{
			Path:   filePath,
			Status: fileStatus,
		})
	}

	// Ahead/behind only exists with an upstream; failure means zero.
	if revOut, err := run(projectDir, "rev-list", "--left-right", "--count", "HEAD...@{upstream}"); err == nil {
		parts := strings.Split(strings.TrimSpace(revOut), "\t")
		if len(parts) == 2 {
			status.Ahead, _ = strconv.Atoi(parts[0])
			status.Behind, _ = strconv.Atoi(parts[1])
		}
	}

	status.IsDirty = status.StagedCount > 0 || status.UnstagedCount > 0 || status.UntrackedCount > 0
	return status, nil
}

func isChange(c byte) bool {
	return c != ' ' && c != '?'
}

func countChange(status *Status, staged bool) {
	if staged {
		status.StagedCount++
	} else {
		status.UnstagedCount++
	}
}

// GetLog returns up to limit recent commits, newest first.
func GetLog(projectDir string, limit int) ([]Commit, error) {
	if err := requireRepository(projectDir); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}

	out, err := run(projectDir, "log", fmt.Sprintf("-%d", limit), "--pretty=format:%h|%s|%an|%ar")
	if err != nil {
		return nil, err
	}

	var commits []Commit
	for _, line := range strings.Split(out, "\n") {
		parts := strings.SplitN(line, "|", 4)
		if len(parts) < 4 {
			continue
		}
		commits = append(commits, Commit{
			Hash:    parts[0],
			Message: parts[1],
			Author:  parts[2],
			Date:    parts[3],
		})
	}
	return commits, nil
}

// DoCommit commits the working tree with the given message, optionally
// staging everything first.
func DoCommit(projectDir, message string, addAll bool) (string, error) {
	if err := requireRepository(projectDir); err != nil {
		return "", err
	}

	if addAll {
		if _, err := run(projectDir, "add", "-A"); err != nil {
			return "", err
		}
	}
	return run(projectDir, "commit", "-m", message)
}

// Init initializes a repository in projectDir.
func Init(projectDir string) (string, error) {
	return run(projectDir, "init")
}
