// Package plugin bundles Luau source files into a Roblox Studio plugin
// model (.rbxmx) and installs it into the platform plugins directory.
//
// The model uses the XML format rather than the binary one: Studio loads
// both, and XML needs no external serializer. The entry point file
// (init.server.luau) becomes the root Script named after the plugin; every
// other script in the source directory is attached as a child.
package plugin

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// BuildConfig controls one plugin build.
type BuildConfig struct {
	SourceDir  string
	OutputPath string
	PluginName string
}

// DefaultBuildConfig matches the repository layout the CLI scaffolds.
func DefaultBuildConfig() BuildConfig {
	return BuildConfig{
		SourceDir:  filepath.Join("plugin", "src"),
		OutputPath: filepath.Join("build", "RbxSync.rbxmx"),
		PluginName: "RbxSync",
	}
}

// ScriptFile is one Luau source file classified for the instance tree.
type ScriptFile struct {
	Name      string
	ClassName string
	Source    string
	IsEntry   bool
}

// parseScriptFile classifies a script by its filename suffix. The entry
// point init.server.luau becomes the plugin root.
func parseScriptFile(path string) (ScriptFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ScriptFile{}, fmt.Errorf("failed to read script: %w", err)
	}
	filename := filepath.Base(path)

	script := ScriptFile{Source: string(data)}
	switch {
	case filename == "init.server.luau" || filename == "init.server.lua":
		script.Name = "init"
		script.ClassName = "Script"
		script.IsEntry = true
	case strings.HasSuffix(filename, ".server.luau") || strings.HasSuffix(filename, ".server.lua"):
		script.Name = trimScriptSuffix(filename, ".server")
		script.ClassName = "Script"
	case strings.HasSuffix(filename, ".client.luau") || strings.HasSuffix(filename, ".client.lua"):
		script.Name = trimScriptSuffix(filename, ".client")
		script.ClassName = "LocalScript"
	default:
		script.Name = trimScriptSuffix(filename, "")
		script.ClassName = "ModuleScript"
	}
	return script, nil
}

func trimScriptSuffix(filename, kind string) string {
	filename = strings.TrimSuffix(filename, ".luau")
	filename = strings.TrimSuffix(filename, ".lua")
	return strings.TrimSuffix(filename, kind)
}

// collectScripts gathers the .luau/.lua files directly inside sourceDir.
func collectScripts(sourceDir string) ([]ScriptFile, error) {
	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read source directory: %w", err)
	}

	var scripts []ScriptFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".luau" && ext != ".lua" {
			continue
		}
		script, err := parseScriptFile(filepath.Join(sourceDir, entry.Name()))
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, script)
	}
	return scripts, nil
}

// Build assembles the plugin model file and returns its path.
func Build(cfg BuildConfig) (string, error) {
	scripts, err := collectScripts(cfg.SourceDir)
	if err != nil {
		return "", err
	}
	if len(scripts) == 0 {
		return "", fmt.Errorf("no .luau files found in %s", cfg.SourceDir)
	}

	var entry *ScriptFile
	for i := range scripts {
		if scripts[i].IsEntry {
			entry = &scripts[i]
			break
		}
	}
	if entry == nil {
		return "", fmt.Errorf("no entry point found, expected init.server.luau in %s", cfg.SourceDir)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.OutputPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(cfg.OutputPath)
	if err != nil {
		return "", fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	if err := writeModel(f, cfg.PluginName, entry, scripts); err != nil {
		return "", fmt.Errorf("failed to write model: %w", err)
	}
	return cfg.OutputPath, nil
}

// rbxmx serialization. The format is the Roblox XML model: a root <roblox>
// element wrapping nested <Item> instances, each with a Properties block.

type xmlModel struct {
	XMLName xml.Name `xml:"roblox"`
	Version string   `xml:"version,attr"`
	Item    xmlItem  `xml:"Item"`
}

type xmlItem struct {
	Class      string        `xml:"class,attr"`
	Referent   string        `xml:"referent,attr"`
	Properties xmlProperties `xml:"Properties"`
	Children   []xmlItem     `xml:"Item"`
}

type xmlProperties struct {
	Strings []xmlStringProp `xml:"string"`
	Sources []xmlSourceProp `xml:"ProtectedString"`
}

type xmlStringProp struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

type xmlSourceProp struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

func writeModel(w io.Writer, pluginName string, entry *ScriptFile, scripts []ScriptFile) error {
	root := xmlItem{
		Class:    entry.ClassName,
		Referent: "RBX0",
		Properties: xmlProperties{
			Strings: []xmlStringProp{{Name: "Name", Value: pluginName}},
			Sources: []xmlSourceProp{{Name: "Source", Value: entry.Source}},
		},
	}
	for i, script := range scripts {
		if script.IsEntry {
			continue
		}
		root.Children = append(root.Children, xmlItem{
			Class:    script.ClassName,
			Referent: fmt.Sprintf("RBX%d", i+1),
			Properties: xmlProperties{
				Strings: []xmlStringProp{{Name: "Name", Value: script.Name}},
				Sources: []xmlSourceProp{{Name: "Source", Value: script.Source}},
			},
		})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(xmlModel{Version: "4", Item: root}); err != nil {
		return err
	}
	return enc.Close()
}

// StudioPluginsDir resolves the local Studio plugins directory for the
// current platform. Linux has no native Studio; the conventional Wine
// location is used.
func StudioPluginsDir() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Documents", "Roblox", "Plugins"), nil
	case "windows":
		local := os.Getenv("LOCALAPPDATA")
		if local == "" {
			return "", fmt.Errorf("LOCALAPPDATA not set")
		}
		return filepath.Join(local, "Roblox", "Plugins"), nil
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".local", "share", "roblox", "plugins"), nil
	}
}

// Install copies a built model into the Studio plugins directory and
// returns the installed path.
func Install(modelPath, pluginName string) (string, error) {
	pluginsDir, err := StudioPluginsDir()
	if err != nil {
		return "", fmt.Errorf("could not determine plugins directory: %w", err)
	}
	return InstallTo(modelPath, pluginName, pluginsDir)
}

// InstallTo copies a built model into an explicit plugins directory.
func InstallTo(modelPath, pluginName, pluginsDir string) (string, error) {
	if err := os.MkdirAll(pluginsDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create plugins directory: %w", err)
	}

	src, err := os.Open(modelPath)
	if err != nil {
		return "", fmt.Errorf("failed to open model: %w", err)
	}
	defer src.Close()

	dest := filepath.Join(pluginsDir, pluginName+filepath.Ext(modelPath))
	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		return "", fmt.Errorf("failed to copy plugin: %w", err)
	}
	return dest, nil
}
