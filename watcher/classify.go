package watcher

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/rbxsync/rbxsync/project"
)

// SyncOperation is one unit of work for the plugin's sync handler.
type SyncOperation struct {
	Type     string         `json:"type"` // create | update | delete
	Path     string         `json:"path"`
	Data     map[string]any `json:"data,omitempty"`
	IsFolder bool           `json:"isFolder,omitempty"`
}

// Suffixes stripped from filenames to obtain the logical instance path,
// in priority order: the specific script suffixes must win over the bare
// extension.
var instanceSuffixes = []string{".server.luau", ".client.luau", ".luau", ".rbxjson"}

// instancePath converts a path relative to src/ into a slash-delimited
// instance path with watch suffixes stripped. A _meta.rbxjson file stands
// for its parent folder.
func instancePath(relPath string) string {
	normalized := project.NormalizePath(relPath)
	if filepath.Base(relPath) == "_meta.rbxjson" {
		parent := filepath.Dir(relPath)
		if parent == "." {
			return ""
		}
		return project.NormalizePath(parent)
	}
	for _, suffix := range instanceSuffixes {
		if strings.HasSuffix(normalized, suffix) {
			return strings.TrimSuffix(normalized, suffix)
		}
	}
	return normalized
}

// scriptClass infers the instance class from the script filename suffix.
func scriptClass(filename string) string {
	switch {
	case strings.HasSuffix(filename, ".server.luau"):
		return "Script"
	case strings.HasSuffix(filename, ".client.luau"):
		return "LocalScript"
	default:
		return "ModuleScript"
	}
}

// Classify turns a file change into a sync operation. Events outside the
// project's src root are ignored; unreadable script files and malformed
// .rbxjson files are dropped with a warning.
func (c *Coordinator) Classify(change FileChange) (SyncOperation, bool) {
	srcDir := filepath.Join(change.ProjectDir, "src")
	relPath, err := filepath.Rel(srcDir, change.Path)
	if err != nil || strings.HasPrefix(relPath, "..") {
		return SyncOperation{}, false
	}

	instPath := instancePath(relPath)
	if instPath == "" {
		return SyncOperation{}, false
	}

	if change.Kind == ChangeDelete {
		return SyncOperation{
			Type:     "delete",
			Path:     instPath,
			IsFolder: filepath.Ext(change.Path) == "",
		}, true
	}

	// The underlying watch can report a deletion as a modify; trust the
	// filesystem over the event kind.
	if _, err := os.Stat(change.Path); err != nil {
		return SyncOperation{Type: "delete", Path: instPath}, true
	}

	opType := "update"
	if change.Kind == ChangeCreate {
		opType = "create"
	}

	filename := filepath.Base(change.Path)
	instanceName := instPath
	if idx := strings.LastIndex(instPath, "/"); idx >= 0 {
		instanceName = instPath[idx+1:]
	}

	switch {
	case strings.HasSuffix(filename, ".luau"):
		source, err := os.ReadFile(change.Path)
		if err != nil {
			c.log.Warn("failed to read script file",
				zap.String("path", change.Path), zap.Error(err))
			return SyncOperation{}, false
		}
		return SyncOperation{
			Type: opType,
			Path: instPath,
			Data: map[string]any{
				"className": scriptClass(filename),
				"name":      instanceName,
				"path":      instPath,
				"source":    string(source),
				"properties": map[string]any{
					"Source": map[string]any{
						"type":  "string",
						"value": string(source),
					},
				},
			},
		}, true

	case strings.HasSuffix(filename, ".rbxjson"):
		content, err := os.ReadFile(change.Path)
		if err != nil {
			c.log.Warn("failed to read instance file",
				zap.String("path", change.Path), zap.Error(err))
			return SyncOperation{}, false
		}
		var data map[string]any
		if err := json.Unmarshal(content, &data); err != nil {
			c.log.Warn("malformed instance file, skipping",
				zap.String("path", change.Path), zap.Error(err))
			return SyncOperation{}, false
		}
		// The file location, not the payload, decides where the
		// instance lives in the tree.
		data["path"] = instPath
		if _, ok := data["name"]; !ok {
			data["name"] = instanceName
		}
		return SyncOperation{Type: opType, Path: instPath, Data: data}, true

	default:
		return SyncOperation{}, false
	}
}
