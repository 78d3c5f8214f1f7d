// Package extract manages chunked bulk-extraction sessions.
//
// The Studio plugin streams an extracted instance tree to the server as many
// small chunks. The server holds at most one session at a time: a single
// slot that is either empty or active. Chunks are persisted to disk as they
// arrive so a crash cannot lose data the plugin believes was delivered, and
// accumulated in memory for export.
package extract

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/rbxsync/rbxsync/logging"
)

// DefaultBaseDir is where chunk files land when no project directory is
// supplied with the chunk.
const DefaultBaseDir = ".rbxsync"

// session is the Active arm of the slot. A nil *session is the Empty arm.
type session struct {
	id             string
	chunksReceived int
	totalChunks    int
	totalKnown     bool
	data           []json.RawMessage
	dir            string
}

// complete is a derived predicate, not a state: the session stays readable
// after completion and is only ever replaced, never closed.
func (s *session) complete() bool {
	return s.totalKnown && s.chunksReceived >= s.totalChunks
}

// Manager owns the process-wide extraction session slot.
type Manager struct {
	mu      sync.RWMutex
	active  *session
	baseDir string
	log     *logging.Logger
}

// NewManager creates a manager with an empty slot. Chunk directories for
// sessions without a project directory are created under baseDir.
func NewManager(baseDir string, log *logging.Logger) *Manager {
	if baseDir == "" {
		baseDir = DefaultBaseDir
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Manager{baseDir: baseDir, log: log}
}

// Status is a point-in-time snapshot of the slot.
type Status struct {
	Active         bool
	SessionID      string
	ChunksReceived int
	TotalChunks    int
	TotalKnown     bool
	Complete       bool
}

// Start replaces the slot with a fresh active session. Whatever was there
// before, partial or complete, is discarded.
func (m *Manager) Start(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = m.newSession(sessionID, "")
}

// chunkDir resolves where chunk files for a session are written. A project
// directory routes chunks straight into its src/ tree, which finalize later
// materializes; otherwise they land in a per-session scratch directory.
func (m *Manager) chunkDir(sessionID, projectDir string) string {
	if projectDir != "" {
		return filepath.Join(projectDir, "src")
	}
	return filepath.Join(m.baseDir, "extract_"+sessionID)
}

func (m *Manager) newSession(sessionID, projectDir string) *session {
	dir := m.chunkDir(sessionID, projectDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		m.log.Warn("failed to create chunk directory",
			zap.String("dir", dir), zap.Error(err))
	}
	return &session{id: sessionID, dir: dir}
}

// Ingest records one chunk. Transition rules, in order:
//
//   - Empty slot: auto-create a session with the chunk's ID. The plugin may
//     start streaming before the start acknowledgment is processed.
//   - ID mismatch: reset the slot to the new ID, discarding the old
//     session's data. This models a plugin that restarted mid-session.
//
// The claimed total is recorded last-writer-wins; the chunk index is
// informational only and chunks are stored in arrival order. The raw
// payload is written to disk before this returns, so the acknowledgment the
// caller sends implies durability; a disk failure is logged but does not
// fail the ingest.
func (m *Manager) Ingest(sessionID string, index, total int, data json.RawMessage, projectDir string) (received, claimedTotal int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		m.log.Info("auto-created extraction session", zap.String("session", sessionID))
		m.active = m.newSession(sessionID, projectDir)
	} else if m.active.id != sessionID {
		m.log.Info("extraction session replaced",
			zap.String("previous", m.active.id),
			zap.String("session", sessionID))
		m.active = m.newSession(sessionID, projectDir)
	}

	s := m.active
	s.totalChunks = total
	s.totalKnown = true
	s.chunksReceived++

	// The plugin sends the project directory with every chunk, not at start.
	// The first chunk that carries one re-routes the session out of its
	// scratch directory and into the project's src/ tree, where finalize
	// expects to find and clean up the chunk files.
	if dir := m.chunkDir(sessionID, projectDir); dir != s.dir {
		if err := os.MkdirAll(dir, 0755); err != nil {
			m.log.Warn("failed to create chunk directory",
				zap.String("dir", dir), zap.Error(err))
		} else {
			s.dir = dir
		}
	}

	chunkPath := filepath.Join(s.dir, fmt.Sprintf("chunk_%06d.json", s.chunksReceived))
	if err := os.WriteFile(chunkPath, data, 0644); err != nil {
		m.log.Warn("failed to persist chunk",
			zap.String("path", chunkPath), zap.Error(err))
	}

	s.data = append(s.data, data)

	m.log.Info("chunk received",
		zap.String("session", s.id),
		zap.Int("index", index),
		zap.Int("received", s.chunksReceived),
		zap.Int("total", total))

	return s.chunksReceived, total
}

// Status reports the slot's current state. An empty slot yields the zero
// Status with Active false.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.active == nil {
		return Status{}
	}
	s := m.active
	return Status{
		Active:         true,
		SessionID:      s.id,
		ChunksReceived: s.chunksReceived,
		TotalChunks:    s.totalChunks,
		TotalKnown:     s.totalKnown,
		Complete:       s.complete(),
	}
}

// flatten concatenates the instance arrays of all chunks in arrival order.
// Chunks that are not arrays are skipped.
func (s *session) flatten() []json.RawMessage {
	var all []json.RawMessage
	for _, chunk := range s.data {
		var instances []json.RawMessage
		if err := json.Unmarshal(chunk, &instances); err != nil {
			continue
		}
		all = append(all, instances...)
	}
	return all
}

// ErrNoSession is returned by Export and Finalize when the slot is empty.
var ErrNoSession = fmt.Errorf("no active extraction session")

// Export flattens all accumulated chunks into one document and writes it to
// destination. Completeness is not required: exporting an in-progress
// session yields a partial result, which is intentional.
func (m *Manager) Export(destination string) (instanceCount int, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.active == nil {
		return 0, ErrNoSession
	}

	instances := m.active.flatten()
	doc := map[string]any{
		"sessionId":     m.active.id,
		"instanceCount": len(instances),
		"instances":     instances,
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("failed to encode export: %w", err)
	}
	if err := os.WriteFile(destination, out, 0644); err != nil {
		return 0, fmt.Errorf("failed to write export: %w", err)
	}

	m.log.Info("export complete",
		zap.String("path", destination),
		zap.Int("instances", len(instances)))

	return len(instances), nil
}
