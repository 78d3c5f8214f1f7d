// Package harness tracks multi-session game development state: a game
// definition, a feature backlog, and per-session logs, all stored as YAML
// under <project>/.rbxsync/harness/.
package harness

import (
	"time"

	"github.com/google/uuid"
)

// FeatureStatus is the lifecycle state of a feature.
type FeatureStatus string

const (
	StatusPlanned    FeatureStatus = "planned"
	StatusInProgress FeatureStatus = "in_progress"
	StatusTesting    FeatureStatus = "testing"
	StatusDone       FeatureStatus = "done"
	StatusBlocked    FeatureStatus = "blocked"
)

// FeaturePriority orders the backlog.
type FeaturePriority string

const (
	PriorityCritical FeaturePriority = "critical"
	PriorityHigh     FeaturePriority = "high"
	PriorityMedium   FeaturePriority = "medium"
	PriorityLow      FeaturePriority = "low"
)

// GameDefinition describes the game being built.
type GameDefinition struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Genre       string `yaml:"genre,omitempty"`
	CreatedAt   string `yaml:"createdAt,omitempty"`
}

// Feature is one tracked unit of game functionality.
type Feature struct {
	ID                 string          `yaml:"id"`
	Name               string          `yaml:"name"`
	Description        string          `yaml:"description,omitempty"`
	Status             FeatureStatus   `yaml:"status"`
	Priority           FeaturePriority `yaml:"priority"`
	Dependencies       []string        `yaml:"dependencies,omitempty"`
	Tags               []string        `yaml:"tags,omitempty"`
	AcceptanceCriteria []string        `yaml:"acceptanceCriteria,omitempty"`
	Notes              []string        `yaml:"notes,omitempty"`
	AffectedFiles      []string        `yaml:"affectedFiles,omitempty"`
	SessionIDs         []string        `yaml:"sessionIds,omitempty"`
	Complexity         int             `yaml:"complexity,omitempty"`
	BlockedReason      string          `yaml:"blockedReason,omitempty"`
	CreatedAt          string          `yaml:"createdAt,omitempty"`
	UpdatedAt          string          `yaml:"updatedAt,omitempty"`
	CompletedAt        string          `yaml:"completedAt,omitempty"`
}

// FeaturesFile is the on-disk shape of features.yaml.
type FeaturesFile struct {
	Features []Feature `yaml:"features"`
}

// SessionLogEntry is one event inside a session log.
type SessionLogEntry struct {
	Timestamp string `yaml:"timestamp"`
	EntryType string `yaml:"entryType"` // start, feature_update, note, end
	Message   string `yaml:"message"`
	FeatureID string `yaml:"featureId,omitempty"`
}

// SessionLog records one development session.
type SessionLog struct {
	ID           string            `yaml:"id"`
	StartedAt    string            `yaml:"startedAt"`
	EndedAt      string            `yaml:"endedAt,omitempty"`
	Summary      string            `yaml:"summary,omitempty"`
	FeatureIDs   []string          `yaml:"featureIds,omitempty"`
	HandoffNotes []string          `yaml:"handoffNotes,omitempty"`
	Entries      []SessionLogEntry `yaml:"entries,omitempty"`
}

// NewFeature creates a feature with defaults filled in.
func NewFeature(name string) Feature {
	return Feature{
		ID:        uuid.NewString(),
		Name:      name,
		Status:    StatusPlanned,
		Priority:  PriorityMedium,
		CreatedAt: now(),
	}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
