package config

import "audiobook-studio/internal/domain"

// DefaultSettings returns baseline configuration for first launch.
func DefaultSettings() domain.Settings {
	return domain.Settings{
		Speed:        1.0,
		RandomVoice:  false,
		RandomFilter: "",
	}
}
