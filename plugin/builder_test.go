package plugin

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseScriptFile(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		filename  string
		wantName  string
		wantClass string
		wantEntry bool
	}{
		{"init.server.luau", "init", "Script", true},
		{"Watcher.server.luau", "Watcher", "Script", false},
		{"Overlay.client.luau", "Overlay", "LocalScript", false},
		{"Http.luau", "Http", "ModuleScript", false},
		{"Legacy.lua", "Legacy", "ModuleScript", false},
	}

	for _, tc := range cases {
		path := filepath.Join(dir, tc.filename)
		if err := os.WriteFile(path, []byte("return true"), 0644); err != nil {
			t.Fatal(err)
		}
		script, err := parseScriptFile(path)
		if err != nil {
			t.Fatalf("%s: %v", tc.filename, err)
		}
		if script.Name != tc.wantName || script.ClassName != tc.wantClass || script.IsEntry != tc.wantEntry {
			t.Errorf("%s: got %+v", tc.filename, script)
		}
	}
}

func TestBuildPlugin(t *testing.T) {
	srcDir := t.TempDir()
	files := map[string]string{
		"init.server.luau": `print("plugin ready")`,
		"Http.luau":        "return { poll = function() end }",
		"Sync.luau":        "return {}",
	}
	for name, source := range files {
		if err := os.WriteFile(filepath.Join(srcDir, name), []byte(source), 0644); err != nil {
			t.Fatal(err)
		}
	}

	out := filepath.Join(t.TempDir(), "build", "Test.rbxmx")
	path, err := Build(BuildConfig{
		SourceDir:  srcDir,
		OutputPath: out,
		PluginName: "TestPlugin",
	})
	if err != nil {
		t.Fatal(err)
	}
	if path != out {
		t.Errorf("path = %q, want %q", path, out)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	model := string(data)
	for _, want := range []string{
		`class="Script"`,
		`class="ModuleScript"`,
		">TestPlugin<",
		"plugin ready",
		`<roblox version="4">`,
	} {
		if !strings.Contains(model, want) {
			t.Errorf("model missing %q", want)
		}
	}
	// The entry script must not appear twice.
	if strings.Count(model, "plugin ready") != 1 {
		t.Error("entry source duplicated")
	}
}

func TestBuildRequiresEntryPoint(t *testing.T) {
	srcDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcDir, "Http.luau"), []byte("return {}"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Build(BuildConfig{
		SourceDir:  srcDir,
		OutputPath: filepath.Join(t.TempDir(), "out.rbxmx"),
		PluginName: "Test",
	})
	if err == nil || !strings.Contains(err.Error(), "entry point") {
		t.Errorf("err = %v, want entry point error", err)
	}
}

func TestBuildEmptySourceDir(t *testing.T) {
	_, err := Build(BuildConfig{
		SourceDir:  t.TempDir(),
		OutputPath: filepath.Join(t.TempDir(), "out.rbxmx"),
		PluginName: "Test",
	})
	if err == nil {
		t.Error("expected error for empty source directory")
	}
}

func TestInstallTo(t *testing.T) {
	srcDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcDir, "init.server.luau"), []byte("print(1)"), 0644); err != nil {
		t.Fatal(err)
	}
	built, err := Build(BuildConfig{
		SourceDir:  srcDir,
		OutputPath: filepath.Join(t.TempDir(), "Test.rbxmx"),
		PluginName: "Test",
	})
	if err != nil {
		t.Fatal(err)
	}

	pluginsDir := filepath.Join(t.TempDir(), "plugins")
	installed, err := InstallTo(built, "Test", pluginsDir)
	if err != nil {
		t.Fatal(err)
	}
	if installed != filepath.Join(pluginsDir, "Test.rbxmx") {
		t.Errorf("installed path = %q", installed)
	}
	if _, err := os.Stat(installed); err != nil {
		t.Errorf("installed file missing: %v", err)
	}
}
