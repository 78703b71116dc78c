package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths fixes the filesystem locations every component works against.
// Constructed once at startup and passed down explicitly so tests can point
// components at temporary roots.
type Paths struct {
	// VoicesDir is the voice storage root shared with the make-audiobook
	// CLI, laid out as {VoicesDir}/{language}/{key}/{key}.onnx.
	VoicesDir string
	// CacheDir holds the catalog cache file.
	CacheDir string
	// SettingsPath is the JSON settings file location.
	SettingsPath string
}

// DefaultPaths resolves the standard per-user locations. The voices root
// must match what the make-audiobook CLI expects, and the cache and
// settings locations are shared with earlier releases so preferences and
// the catalog cache survive an upgrade.
func DefaultPaths() (Paths, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return Paths{}, fmt.Errorf("resolve user home: %w", err)
	}

	return Paths{
		VoicesDir:    filepath.Join(homeDir, ".local", "share", "piper", "voices"),
		CacheDir:     filepath.Join(homeDir, ".cache", "make-audiobook"),
		SettingsPath: filepath.Join(homeDir, ".config", "make-audiobook", "settings.json"),
	}, nil
}

// CatalogCachePath returns the cached catalog document location.
func (p Paths) CatalogCachePath() string {
	return filepath.Join(p.CacheDir, "voices_catalog.json")
}
