package project

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// WallyManifest is a parsed wally.toml.
type WallyManifest struct {
	Package            WallyPackageInfo  `toml:"package"`
	Dependencies       map[string]string `toml:"dependencies"`
	ServerDependencies map[string]string `toml:"server-dependencies"`
	DevDependencies    map[string]string `toml:"dev-dependencies"`
}

// WallyPackageInfo is the [package] table of a wally.toml.
type WallyPackageInfo struct {
	Name        string   `toml:"name"`
	Version     string   `toml:"version"`
	Registry    string   `toml:"registry"`
	Realm       string   `toml:"realm"`
	Description string   `toml:"description,omitempty"`
	License     string   `toml:"license,omitempty"`
	Authors     []string `toml:"authors"`
}

// WallyLock is a parsed wally.lock.
type WallyLock struct {
	Registry string               `toml:"registry"`
	Packages []WallyLockedPackage `toml:"package"`
}

// WallyLockedPackage is one resolved package entry in wally.lock.
type WallyLockedPackage struct {
	Name         string   `toml:"name"`
	Version      string   `toml:"version"`
	Checksum     string   `toml:"checksum,omitempty"`
	Dependencies []string `toml:"dependencies"`
}

// LoadWallyManifest reads and parses a wally.toml file.
func LoadWallyManifest(path string) (*WallyManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read wally manifest: %w", err)
	}
	var manifest WallyManifest
	if err := toml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse wally manifest: %w", err)
	}
	if manifest.Package.Registry == "" {
		manifest.Package.Registry = "https://github.com/UpliftGames/wally-index"
	}
	if manifest.Package.Realm == "" {
		manifest.Package.Realm = "shared"
	}
	return &manifest, nil
}

// LoadWallyLock reads and parses a wally.lock file.
func LoadWallyLock(path string) (*WallyLock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read wally lock: %w", err)
	}
	var lock WallyLock
	if err := toml.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("failed to parse wally lock: %w", err)
	}
	return &lock, nil
}

// AllDependencies merges shared and server dependencies into one map.
func (m *WallyManifest) AllDependencies() map[string]string {
	all := make(map[string]string, len(m.Dependencies)+len(m.ServerDependencies))
	for name, version := range m.Dependencies {
		all[name] = version
	}
	for name, version := range m.ServerDependencies {
		all[name] = version
	}
	return all
}

// FindPackage looks up a locked package by name.
func (l *WallyLock) FindPackage(name string) (*WallyLockedPackage, bool) {
	for i := range l.Packages {
		if l.Packages[i].Name == name {
			return &l.Packages[i], true
		}
	}
	return nil, false
}

// FindWallyManifest returns the wally.toml path for a project directory if
// one exists.
func FindWallyManifest(projectDir string) (string, bool) {
	path := filepath.Join(projectDir, "wally.toml")
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

// FindWallyLock returns the wally.lock path for a project directory if one
// exists.
func FindWallyLock(projectDir string) (string, bool) {
	path := filepath.Join(projectDir, "wally.lock")
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

// IsPackagePath reports whether a path is inside a Wally Packages
// directory. Package-managed files are excluded from live sync.
func IsPackagePath(path string) bool {
	normalized := NormalizePath(path)
	for _, segment := range strings.Split(normalized, "/") {
		switch segment {
		case "Packages", "ServerPackages", "DevPackages":
			return true
		}
	}
	return false
}
