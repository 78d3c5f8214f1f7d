package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RojoProject is a parsed Rojo *.project.json file.
type RojoProject struct {
	Name            string   `json:"name"`
	Tree            RojoTree `json:"tree"`
	GlobIgnorePaths []string `json:"globIgnorePaths,omitempty"`
	ServeAddress    string   `json:"serveAddress,omitempty"`
	ServePort       int      `json:"servePort,omitempty"`
}

// RojoTree is one node of the Rojo tree. Keys prefixed with "$" are node
// metadata; everything else is a child instance.
type RojoTree struct {
	ClassName  string
	Path       string
	Properties map[string]json.RawMessage
	Children   map[string]RojoTree
}

// UnmarshalJSON splits "$"-prefixed metadata keys from child nodes.
func (t *RojoTree) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	t.Children = make(map[string]RojoTree)
	for key, value := range raw {
		switch key {
		case "$className":
			if err := json.Unmarshal(value, &t.ClassName); err != nil {
				return err
			}
		case "$path":
			if err := json.Unmarshal(value, &t.Path); err != nil {
				return err
			}
		case "$properties":
			if err := json.Unmarshal(value, &t.Properties); err != nil {
				return err
			}
		default:
			if strings.HasPrefix(key, "$") {
				continue
			}
			var child RojoTree
			if err := json.Unmarshal(value, &child); err != nil {
				return err
			}
			t.Children[key] = child
		}
	}
	return nil
}

// ParseRojoProject reads and parses a Rojo project file.
func ParseRojoProject(path string) (*RojoProject, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read Rojo project file: %w", err)
	}
	var project RojoProject
	if err := json.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("failed to parse Rojo project file: %w", err)
	}
	return &project, nil
}

// FindRojoProject locates a project file in dir: default.project.json first,
// then any *.project.json.
func FindRojoProject(dir string) (string, error) {
	defaultPath := filepath.Join(dir, "default.project.json")
	if _, err := os.Stat(defaultPath); err == nil {
		return defaultPath, nil
	}

	entries, err := os.ReadDir(dir)
	if err == nil {
		for _, entry := range entries {
			if strings.HasSuffix(entry.Name(), ".project.json") {
				return filepath.Join(dir, entry.Name()), nil
			}
		}
	}

	return "", fmt.Errorf("no Rojo project file found in %s", dir)
}

// TreeMapping maps DataModel paths (e.g. "ServerScriptService") to
// filesystem paths (e.g. "src/server").
func (p *RojoProject) TreeMapping() map[string]string {
	mapping := make(map[string]string)
	walkRojoTree(&p.Tree, "", mapping)
	return mapping
}

func walkRojoTree(tree *RojoTree, dataModelPath string, mapping map[string]string) {
	if tree.Path != "" && dataModelPath != "" {
		mapping[dataModelPath] = strings.TrimPrefix(tree.Path, "./")
	}
	for name, child := range tree.Children {
		childPath := name
		if dataModelPath != "" {
			childPath = dataModelPath + "/" + name
		}
		walkRojoTree(&child, childPath, mapping)
	}
}

// SourceDir returns the base source directory of the project, derived from
// the paths of well-known services. Typically "src".
func (p *RojoProject) SourceDir() (string, bool) {
	for _, service := range []string{"ServerScriptService", "ReplicatedStorage", "StarterPlayer", "StarterGui"} {
		child, ok := p.Tree.Children[service]
		if !ok || child.Path == "" {
			continue
		}
		normalized := strings.TrimPrefix(child.Path, "./")
		if base, _, found := strings.Cut(normalized, "/"); found || base != "" {
			return base, true
		}
	}
	return "", false
}
