package project

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ReadTree walks a project's src/ directory and reconstructs the instance
// list: every .rbxjson file contributes one instance, and .luau sources are
// merged into the Source property of the instance whose path matches the
// file's dot-delimited location.
func ReadTree(projectDir string) ([]map[string]any, error) {
	srcDir := filepath.Join(projectDir, "src")
	if info, err := os.Stat(srcDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("source directory does not exist: %s", srcDir)
	}

	var instances []map[string]any
	scripts := make(map[string]string)

	err := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return nil
		}
		rel = NormalizePath(rel)

		switch {
		case strings.HasSuffix(rel, ".rbxjson"):
			data, err := os.ReadFile(path)
			if err != nil {
				return nil
			}
			var inst map[string]any
			if err := json.Unmarshal(data, &inst); err != nil {
				return nil
			}
			instances = append(instances, inst)
		case strings.HasSuffix(rel, ".luau"):
			data, err := os.ReadFile(path)
			if err != nil {
				return nil
			}
			scripts[scriptInstancePath(rel)] = string(data)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, inst := range instances {
		path, _ := inst["path"].(string)
		source, ok := scripts[path]
		if !ok {
			continue
		}
		props, ok := inst["properties"].(map[string]any)
		if !ok {
			props = make(map[string]any)
			inst["properties"] = props
		}
		props["Source"] = map[string]any{"type": "string", "value": source}
	}

	return instances, nil
}

// scriptInstancePath converts a src-relative script file path to its
// dot-delimited instance path, e.g.
// "ServerScriptService/Main.server.luau" -> "ServerScriptService.Main".
func scriptInstancePath(rel string) string {
	for _, suffix := range []string{".server.luau", ".client.luau", ".luau"} {
		if strings.HasSuffix(rel, suffix) {
			rel = strings.TrimSuffix(rel, suffix)
			break
		}
	}
	return strings.ReplaceAll(rel, "/", ".")
}
