package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"audiobook-studio/internal/domain"
)

// Store defines persistence operations for app settings.
type Store interface {
	Load() (domain.Settings, error)
	Save(domain.Settings) error
}

// JSONStore persists settings in a single JSON file on disk.
type JSONStore struct {
	path string
}

// NewJSONStore creates a JSON-backed settings store.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Load reads settings from disk or returns defaults when missing.
func (s *JSONStore) Load() (domain.Settings, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultSettings(), nil
		}

		return domain.Settings{}, err
	}

	var cfg domain.Settings
	if err := json.Unmarshal(data, &cfg); err != nil {
		return domain.Settings{}, err
	}

	return migrateLegacyFields(cfg, data), nil
}

// Save writes settings as indented JSON and creates parent directories.
func (s *JSONStore) Save(cfg domain.Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.path, data, 0o644)
}

// migrateLegacyFields maps the length_scale key written by earlier releases
// onto speed when the stored document predates the speed field. Documents
// carrying both keys keep their speed value untouched.
func migrateLegacyFields(cfg domain.Settings, data []byte) domain.Settings {
	var keys struct {
		Speed       *float64 `json:"speed"`
		LengthScale *float64 `json:"length_scale"`
	}
	if err := json.Unmarshal(data, &keys); err == nil {
		if keys.Speed == nil && keys.LengthScale != nil {
			cfg.Speed = domain.LengthScaleToSpeed(*keys.LengthScale)
		}
	}

	if cfg.Speed <= 0 {
		cfg.Speed = 1.0
	}
	return cfg
}
