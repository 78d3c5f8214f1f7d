package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Addr() != "127.0.0.1:44755" {
		t.Errorf("default addr = %q", cfg.Addr())
	}
	if cfg.PollTimeout() != 15*time.Second {
		t.Errorf("poll timeout = %v", cfg.PollTimeout())
	}
	if cfg.CommandTimeout() != 30*time.Second {
		t.Errorf("command timeout = %v", cfg.CommandTimeout())
	}
	if cfg.BatchTimeout() != 300*time.Second {
		t.Errorf("batch timeout = %v", cfg.BatchTimeout())
	}
	if cfg.Debounce() != 500*time.Millisecond {
		t.Errorf("debounce = %v", cfg.Debounce())
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	root := t.TempDir()

	cfg := DefaultConfig()
	cfg.Server.Port = 50000
	cfg.Watch.Ignore = []string{"*.generated.luau"}
	if err := cfg.Save(root); err != nil {
		t.Fatal(err)
	}

	if !Exists(root) {
		t.Fatal("config not detected after save")
	}

	loaded, err := Load(root)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 50000 {
		t.Errorf("port = %d", loaded.Server.Port)
	}
	if len(loaded.Watch.Ignore) != 1 || loaded.Watch.Ignore[0] != "*.generated.luau" {
		t.Errorf("ignore = %v", loaded.Watch.Ignore)
	}
}

func TestLoadFillsDefaultsForOmittedSections(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, ConfigDir), 0755); err != nil {
		t.Fatal(err)
	}
	partial := "version: 1\nserver:\n  port: 9000\n"
	if err := os.WriteFile(GetConfigPath(root), []byte(partial), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(root)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want the file's 9000", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("host = %q, want the default", cfg.Server.Host)
	}
	if cfg.Watch.DebounceMs != 500 {
		t.Errorf("debounce = %d, want the default", cfg.Watch.DebounceMs)
	}
}

func TestLoadOrDefaultWithoutConfig(t *testing.T) {
	cfg := LoadOrDefault(t.TempDir())
	if cfg.Server.Port != 44755 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
}
