// Package project handles local project layout: Rojo project files, Wally
// package manifests, and cross-platform path conventions.
//
// Instance paths inside the content tree are always slash-delimited,
// regardless of the host path separator.
package project

import (
	"path/filepath"
	"strings"
	"unicode"
)

// NormalizePath converts a path to forward slashes.
func NormalizePath(path string) string {
	return strings.ReplaceAll(path, "\\", "/")
}

// PathToString converts a filesystem path to a normalized string.
func PathToString(path string) string {
	return NormalizePath(filepath.ToSlash(path))
}

// SanitizeFilename replaces characters that are invalid in Windows
// filenames with underscores.
func SanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', ':', '"', '|', '?', '*':
			return '_'
		}
		if unicode.IsControl(r) {
			return '_'
		}
		return r
	}, name)
}
