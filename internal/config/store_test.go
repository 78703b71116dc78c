package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"audiobook-studio/internal/domain"
)

// TestDefaultSettings verifies baseline defaults are present.
func TestDefaultSettings(t *testing.T) {
	cfg := DefaultSettings()
	if cfg.Speed != 1.0 {
		t.Fatalf("speed = %v, want 1.0", cfg.Speed)
	}
	if cfg.RandomVoice {
		t.Fatal("random voice should default off")
	}
}

// TestJSONStoreLoadMissingReturnsDefaults checks first-run behavior.
func TestJSONStoreLoadMissingReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "settings.json")
	store := NewJSONStore(path)

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Speed != 1.0 {
		t.Fatalf("speed = %v, want 1.0", got.Speed)
	}
}

// TestJSONStoreSaveAndLoadRoundTrip checks persisted settings fidelity.
func TestJSONStoreSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	store := NewJSONStore(path)
	want := domain.Settings{
		LastVoice:     "en_US-amy-medium",
		Speed:         1.3,
		RandomVoice:   true,
		RandomFilter:  "medium",
		LastDirectory: "/books",
	}

	if err := store.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != want {
		t.Fatalf("settings = %+v, want %+v", got, want)
	}
}

// TestJSONStoreMigratesLengthScale checks the legacy field is mapped to speed.
func TestJSONStoreMigratesLengthScale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	legacy := []byte(`{"last_voice": "en_US-amy-medium", "length_scale": 0.5}`)
	if err := os.WriteFile(path, legacy, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := NewJSONStore(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Speed != 2.0 {
		t.Fatalf("speed = %v, want 2.0 from length_scale 0.5", got.Speed)
	}
	if got.LastVoice != "en_US-amy-medium" {
		t.Fatalf("last voice = %q, want preserved value", got.LastVoice)
	}
}

// TestJSONStoreKeepsSpeedOverLegacyField checks speed wins when both exist.
func TestJSONStoreKeepsSpeedOverLegacyField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	data := []byte(`{"speed": 1.5, "length_scale": 0.5}`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := NewJSONStore(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Speed != 1.5 {
		t.Fatalf("speed = %v, want stored speed 1.5", got.Speed)
	}
}

// TestJSONStoreLoadInvalidJSON checks parse error handling.
func TestJSONStoreLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("{not-json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store := NewJSONStore(path)
	if _, err := store.Load(); err == nil {
		t.Fatal("expected json parse error")
	}
}

// TestDefaultPathsLayout verifies the voices root stays on the shared piper path.
func TestDefaultPathsLayout(t *testing.T) {
	t.Setenv("HOME", filepath.Join(t.TempDir(), "home"))

	paths, err := DefaultPaths()
	if err != nil {
		t.Fatalf("DefaultPaths() error = %v", err)
	}

	wantVoices := filepath.Join(".local", "share", "piper", "voices")
	if !filepath.IsAbs(paths.VoicesDir) || !strings.HasSuffix(paths.VoicesDir, wantVoices) {
		t.Fatalf("voices dir = %q, want suffix %q", paths.VoicesDir, wantVoices)
	}
	if filepath.Base(paths.CatalogCachePath()) != "voices_catalog.json" {
		t.Fatalf("cache file = %q, want voices_catalog.json", paths.CatalogCachePath())
	}
}
