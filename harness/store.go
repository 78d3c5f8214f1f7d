package harness

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/rbxsync/rbxsync/internal/fileutil"
)

// HarnessDir is the harness location relative to a project directory.
const HarnessDir = ".rbxsync/harness"

// ErrNotInitialized is returned when harness operations run against a
// project without a harness.
var ErrNotInitialized = errors.New("harness not initialized")

// ErrFeatureNotFound is returned when a feature ID has no match.
var ErrFeatureNotFound = errors.New("feature not found")

// Store reads and writes harness state for one project directory.
type Store struct {
	dir string
}

// NewStore creates a store rooted at projectDir's harness directory.
func NewStore(projectDir string) *Store {
	return &Store{dir: filepath.Join(projectDir, filepath.FromSlash(HarnessDir))}
}

// Dir returns the harness directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) gamePath() string     { return filepath.Join(s.dir, "game.yaml") }
func (s *Store) featuresPath() string { return filepath.Join(s.dir, "features.yaml") }
func (s *Store) sessionsDir() string  { return filepath.Join(s.dir, "sessions") }
func (s *Store) sessionPath(id string) string {
	return filepath.Join(s.sessionsDir(), id+".yaml")
}

// Initialized reports whether the harness directory exists.
func (s *Store) Initialized() bool {
	info, err := os.Stat(s.dir)
	return err == nil && info.IsDir()
}

// writeYAML marshals v and writes it atomically via a temp file.
func writeYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := fileutil.EnsureParentDir(path); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return fileutil.ReplaceFileAtomically(tmp, path)
}

func readYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, v)
}

// Init creates the harness layout with a game definition and an initial
// feature set, usually from a genre template.
func (s *Store) Init(game GameDefinition, features []Feature) error {
	if err := os.MkdirAll(s.sessionsDir(), 0755); err != nil {
		return fmt.Errorf("failed to create harness directory: %w", err)
	}
	if game.CreatedAt == "" {
		game.CreatedAt = now()
	}
	if err := writeYAML(s.gamePath(), &game); err != nil {
		return err
	}
	return writeYAML(s.featuresPath(), &FeaturesFile{Features: features})
}

// Game loads the game definition.
func (s *Store) Game() (*GameDefinition, error) {
	if !s.Initialized() {
		return nil, ErrNotInitialized
	}
	var game GameDefinition
	if err := readYAML(s.gamePath(), &game); err != nil {
		return nil, err
	}
	return &game, nil
}

// Features loads the feature backlog.
func (s *Store) Features() ([]Feature, error) {
	if !s.Initialized() {
		return nil, ErrNotInitialized
	}
	var file FeaturesFile
	if err := readYAML(s.featuresPath(), &file); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return file.Features, nil
}

// AddFeature appends a feature to the backlog.
func (s *Store) AddFeature(feature Feature) error {
	features, err := s.Features()
	if err != nil {
		return err
	}
	return writeYAML(s.featuresPath(), &FeaturesFile{Features: append(features, feature)})
}

// UpdateFeature applies fn to the feature with the given ID and persists
// the result. The update timestamp is maintained here; a transition to
// done also stamps completion.
func (s *Store) UpdateFeature(id string, fn func(*Feature)) (*Feature, error) {
	features, err := s.Features()
	if err != nil {
		return nil, err
	}
	for i := range features {
		if features[i].ID != id && features[i].Name != id {
			continue
		}
		fn(&features[i])
		features[i].UpdatedAt = now()
		if features[i].Status == StatusDone && features[i].CompletedAt == "" {
			features[i].CompletedAt = now()
		}
		if err := writeYAML(s.featuresPath(), &FeaturesFile{Features: features}); err != nil {
			return nil, err
		}
		return &features[i], nil
	}
	return nil, ErrFeatureNotFound
}

// StartSession opens a new session log. initialGoals, when present, is
// recorded in the opening entry.
func (s *Store) StartSession(initialGoals string) (*SessionLog, error) {
	if !s.Initialized() {
		return nil, ErrNotInitialized
	}

	message := "Session started"
	if initialGoals != "" {
		message = "Session started. Goals: " + initialGoals
	}
	session := &SessionLog{
		ID:        uuid.NewString(),
		StartedAt: now(),
		Entries: []SessionLogEntry{{
			Timestamp: now(),
			EntryType: "start",
			Message:   message,
		}},
	}

	if err := writeYAML(s.sessionPath(session.ID), session); err != nil {
		return nil, err
	}
	return session, nil
}

// Session loads one session log by ID.
func (s *Store) Session(id string) (*SessionLog, error) {
	var session SessionLog
	if err := readYAML(s.sessionPath(id), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// EndSession closes a session with a summary and optional handoff notes.
func (s *Store) EndSession(id, summary string, handoffNotes []string) (*SessionLog, error) {
	session, err := s.Session(id)
	if err != nil {
		return nil, err
	}

	session.EndedAt = now()
	session.Summary = summary
	session.HandoffNotes = handoffNotes
	session.Entries = append(session.Entries, SessionLogEntry{
		Timestamp: now(),
		EntryType: "end",
		Message:   "Session ended",
	})

	if err := writeYAML(s.sessionPath(id), session); err != nil {
		return nil, err
	}
	return session, nil
}

// LogToSession appends an entry to an open session.
func (s *Store) LogToSession(id string, entry SessionLogEntry) error {
	session, err := s.Session(id)
	if err != nil {
		return err
	}
	if entry.Timestamp == "" {
		entry.Timestamp = now()
	}
	session.Entries = append(session.Entries, entry)
	return writeYAML(s.sessionPath(id), session)
}

// Sessions lists all recorded session logs.
func (s *Store) Sessions() ([]SessionLog, error) {
	entries, err := os.ReadDir(s.sessionsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var sessions []SessionLog
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}
		var session SessionLog
		if err := readYAML(filepath.Join(s.sessionsDir(), entry.Name()), &session); err != nil {
			continue
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// StatusSummary aggregates backlog and session state for reporting.
type StatusSummary struct {
	Game          GameDefinition        `json:"game"`
	TotalFeatures int                   `json:"totalFeatures"`
	ByStatus      map[FeatureStatus]int `json:"byStatus"`
	SessionCount  int                   `json:"sessionCount"`
	OpenSessions  int                   `json:"openSessions"`
}

// Status summarizes the harness for a project.
func (s *Store) Status() (*StatusSummary, error) {
	game, err := s.Game()
	if err != nil {
		return nil, err
	}
	features, err := s.Features()
	if err != nil {
		return nil, err
	}
	sessions, err := s.Sessions()
	if err != nil {
		return nil, err
	}

	summary := &StatusSummary{
		Game:          *game,
		TotalFeatures: len(features),
		ByStatus:      make(map[FeatureStatus]int),
		SessionCount:  len(sessions),
	}
	for _, feature := range features {
		summary.ByStatus[feature.Status]++
	}
	for _, session := range sessions {
		if session.EndedAt == "" {
			summary.OpenSessions++
		}
	}
	return summary, nil
}
