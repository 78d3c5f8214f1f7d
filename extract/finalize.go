package extract

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// FinalizeResult summarizes what Finalize wrote.
type FinalizeResult struct {
	FilesWritten   int `json:"filesWritten"`
	ScriptsWritten int `json:"scriptsWritten"`
	TotalInstances int `json:"totalInstances"`
}

// scriptExtension maps a script class to its file suffix. Non-script
// classes return "".
func scriptExtension(className string) string {
	switch className {
	case "Script":
		return ".server.luau"
	case "LocalScript":
		return ".client.luau"
	case "ModuleScript":
		return ".luau"
	default:
		return ""
	}
}

// Finalize materializes the accumulated instances into the project's src/
// tree. Each instance becomes a .rbxjson metadata file; script instances
// additionally get their Source written to a .luau file and stripped from
// the metadata. Leftover chunk files in src/ are removed afterwards.
func (m *Manager) Finalize(projectDir string) (FinalizeResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.active == nil {
		return FinalizeResult{}, ErrNoSession
	}

	srcDir := filepath.Join(projectDir, "src")
	instances := m.active.flatten()
	result := FinalizeResult{TotalInstances: len(instances)}

	for _, raw := range instances {
		var inst map[string]any
		if err := json.Unmarshal(raw, &inst); err != nil {
			continue
		}

		instPath, _ := inst["path"].(string)
		if instPath == "" {
			continue
		}
		className, _ := inst["className"].(string)

		// Instance paths are dot-delimited (StarterGui.Menu.Timer);
		// the filesystem tree uses one directory per segment.
		fullPath := filepath.Join(srcDir, strings.ReplaceAll(instPath, ".", string(filepath.Separator)))
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			m.log.Warn("failed to create instance directory",
				zap.String("path", fullPath), zap.Error(err))
			continue
		}

		ext := scriptExtension(className)
		if ext != "" {
			if source, ok := instanceSource(inst); ok {
				if err := os.WriteFile(fullPath+ext, []byte(source), 0644); err == nil {
					result.ScriptsWritten++
				}
			}
			stripSource(inst)
		}

		meta, err := json.MarshalIndent(inst, "", "  ")
		if err != nil {
			continue
		}
		if err := os.WriteFile(fullPath+".rbxjson", meta, 0644); err == nil {
			result.FilesWritten++
		}
	}

	removeChunkFiles(srcDir)

	m.log.Info("finalize complete",
		zap.String("dir", srcDir),
		zap.Int("files", result.FilesWritten),
		zap.Int("scripts", result.ScriptsWritten))

	return result, nil
}

// instanceSource pulls properties.Source.value out of a decoded instance.
func instanceSource(inst map[string]any) (string, bool) {
	props, ok := inst["properties"].(map[string]any)
	if !ok {
		return "", false
	}
	source, ok := props["Source"].(map[string]any)
	if !ok {
		return "", false
	}
	value, ok := source["value"].(string)
	return value, ok
}

// stripSource removes the Source property so script bodies live only in
// their .luau files.
func stripSource(inst map[string]any) {
	if props, ok := inst["properties"].(map[string]any); ok {
		delete(props, "Source")
	}
}

// removeChunkFiles deletes chunk_*.json scratch files from dir.
func removeChunkFiles(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, "chunk_") && strings.HasSuffix(name, ".json") {
			_ = os.Remove(filepath.Join(dir, name))
		}
	}
}
