// Package watcher turns local file edits into outbound sync operations.
//
// Each watched project directory gets a recursive fsnotify watch on its src/
// tree. Raw filesystem events are debounced, classified into sync
// operations, and enqueued for the Studio plugin. The watcher never waits
// for the plugin to acknowledge.
package watcher

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	ignore "github.com/sabhiram/go-gitignore"
	"go.uber.org/zap"

	"github.com/rbxsync/rbxsync/logging"
)

// ChangeKind classifies a filesystem event.
type ChangeKind int

const (
	ChangeCreate ChangeKind = iota
	ChangeModify
	ChangeDelete
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeCreate:
		return "create"
	case ChangeModify:
		return "modify"
	case ChangeDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// FileChange is one debounced filesystem event within a watched project.
type FileChange struct {
	Path       string
	ProjectDir string
	Kind       ChangeKind
}

// Sink receives the sync operations the watcher emits. Satisfied by
// relay.Dispatcher.
type Sink interface {
	Enqueue(command string, payload json.RawMessage) uuid.UUID
}

// DefaultDebounce matches the polling cadence of the underlying watch
// mechanism in the reference deployment.
const DefaultDebounce = 500 * time.Millisecond

// Coordinator manages one watch per project directory. Starting a watch for
// an already-watched project is a no-op.
type Coordinator struct {
	mu      sync.RWMutex
	watched map[string]*projectWatch

	sink     Sink
	debounce time.Duration
	ignore   *ignore.GitIgnore
	log      *logging.Logger
}

// projectWatch owns the fsnotify watcher and debounce state for one
// project. Its run goroutine is the only consumer of the watcher channels.
type projectWatch struct {
	projectDir string
	srcDir     string
	fsw        *fsnotify.Watcher
	done       chan struct{}

	pendingMu sync.Mutex
	pending   map[string]FileChange
	timer     *time.Timer
}

// NewCoordinator creates a coordinator that hands classified operations to
// sink. ignoreGlobs are gitignore-style patterns matched against paths
// relative to the project's src directory.
func NewCoordinator(sink Sink, debounce time.Duration, ignoreGlobs []string, log *logging.Logger) *Coordinator {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Coordinator{
		watched:  make(map[string]*projectWatch),
		sink:     sink,
		debounce: debounce,
		ignore:   ignore.CompileIgnoreLines(ignoreGlobs...),
		log:      log,
	}
}

// Watching reports whether projectDir currently has an active watch.
func (c *Coordinator) Watching(projectDir string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.watched[projectDir]
	return ok
}

// Watched returns the currently watched project directories.
func (c *Coordinator) Watched() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	dirs := make([]string, 0, len(c.watched))
	for dir := range c.watched {
		dirs = append(dirs, dir)
	}
	return dirs
}

// Start watches projectDir's src tree. Duplicate starts are no-ops, and a
// missing src directory is a warning, not an error.
func (c *Coordinator) Start(projectDir string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.watched[projectDir]; ok {
		c.log.Debug("already watching", zap.String("project", projectDir))
		return nil
	}

	srcDir := filepath.Join(projectDir, "src")
	if info, err := os.Stat(srcDir); err != nil || !info.IsDir() {
		c.log.Warn("source directory does not exist, not watching",
			zap.String("dir", srcDir))
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	pw := &projectWatch{
		projectDir: projectDir,
		srcDir:     srcDir,
		fsw:        fsw,
		done:       make(chan struct{}),
		pending:    make(map[string]FileChange),
	}

	if err := pw.addRecursive(srcDir); err != nil {
		fsw.Close()
		return err
	}

	c.watched[projectDir] = pw
	go c.run(pw)

	c.log.Info("file watcher started", zap.String("dir", srcDir))
	return nil
}

// Stop tears down the watch for projectDir if one exists.
func (c *Coordinator) Stop(projectDir string) {
	c.mu.Lock()
	pw, ok := c.watched[projectDir]
	if ok {
		delete(c.watched, projectDir)
	}
	c.mu.Unlock()

	if ok {
		close(pw.done)
		pw.fsw.Close()

		// Cancel any pending debounce flush so a stopped project cannot
		// enqueue sync operations after this returns.
		pw.pendingMu.Lock()
		if pw.timer != nil {
			pw.timer.Stop()
		}
		pw.pending = make(map[string]FileChange)
		pw.pendingMu.Unlock()
	}
}

// Close stops every active watch.
func (c *Coordinator) Close() {
	for _, dir := range c.Watched() {
		c.Stop(dir)
	}
}

func (pw *projectWatch) addRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip inaccessible paths
		}
		if info.IsDir() {
			return pw.fsw.Add(path)
		}
		return nil
	})
}

// run drains fsnotify events for one project until Stop.
func (c *Coordinator) run(pw *projectWatch) {
	for {
		select {
		case <-pw.done:
			return
		case event, ok := <-pw.fsw.Events:
			if !ok {
				return
			}
			c.handleEvent(pw, event)
		case err, ok := <-pw.fsw.Errors:
			if !ok {
				return
			}
			c.log.Warn("watcher error",
				zap.String("project", pw.projectDir), zap.Error(err))
		}
	}
}

func (c *Coordinator) handleEvent(pw *projectWatch, event fsnotify.Event) {
	relPath, err := filepath.Rel(pw.srcDir, event.Name)
	if err != nil {
		return
	}
	if strings.HasPrefix(filepath.Base(relPath), ".") {
		return
	}
	if c.ignore.MatchesPath(relPath) {
		return
	}

	// New directories need to join the recursive watch; a directory
	// restored by an editor undo may already contain files.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := pw.addRecursive(event.Name); err != nil {
				c.log.Warn("failed to watch new directory",
					zap.String("dir", event.Name), zap.Error(err))
			}
			c.enqueueDirContents(pw, event.Name)
			return
		}
	}

	var kind ChangeKind
	switch {
	case event.Has(fsnotify.Create):
		kind = ChangeCreate
	case event.Has(fsnotify.Write):
		kind = ChangeModify
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// A rename surfaces on the old path; treat it like a deletion
		// and let the paired Create re-sync the new path.
		kind = ChangeDelete
	default:
		return
	}

	ext := strings.ToLower(filepath.Ext(event.Name))
	if ext != ".luau" && ext != ".rbxjson" {
		// Extensionless deletes are folder removals inside src.
		if kind != ChangeDelete || ext != "" || relPath == "." {
			return
		}
	}

	pw.debounceChange(FileChange{
		Path:       event.Name,
		ProjectDir: pw.projectDir,
		Kind:       kind,
	}, c.debounce, c.flush)
}

// enqueueDirContents emits Create changes for recognized files already
// inside a newly appeared directory.
func (c *Coordinator) enqueueDirContents(pw *projectWatch, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".luau" && ext != ".rbxjson" {
			continue
		}
		pw.debounceChange(FileChange{
			Path:       filepath.Join(dir, entry.Name()),
			ProjectDir: pw.projectDir,
			Kind:       ChangeCreate,
		}, c.debounce, c.flush)
	}
}

// debounceChange coalesces rapid events per path. Deletes win over
// create/modify arriving in the same window.
func (pw *projectWatch) debounceChange(change FileChange, window time.Duration, flush func(*projectWatch)) {
	pw.pendingMu.Lock()
	defer pw.pendingMu.Unlock()

	if existing, ok := pw.pending[change.Path]; !ok || existing.Kind != ChangeDelete {
		pw.pending[change.Path] = change
	}

	if pw.timer != nil {
		pw.timer.Stop()
	}
	pw.timer = time.AfterFunc(window, func() { flush(pw) })
}

// flush classifies the pending changes and enqueues the resulting sync
// operations, one request per operation, fire-and-forget.
func (c *Coordinator) flush(pw *projectWatch) {
	pw.pendingMu.Lock()
	changes := make([]FileChange, 0, len(pw.pending))
	for _, change := range pw.pending {
		changes = append(changes, change)
	}
	pw.pending = make(map[string]FileChange)
	pw.pendingMu.Unlock()

	for _, change := range changes {
		op, ok := c.Classify(change)
		if !ok {
			continue
		}
		payload, err := json.Marshal(op)
		if err != nil {
			continue
		}
		id := c.sink.Enqueue("sync", payload)
		c.log.Debug("sync operation queued",
			zap.String("id", id.String()),
			zap.String("type", op.Type),
			zap.String("path", op.Path))
	}
}
