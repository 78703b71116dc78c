package domain

// Settings contains user preferences persisted between sessions. JSON keys
// stay snake_case for compatibility with settings files written by earlier
// releases.
type Settings struct {
	LastVoice      string  `json:"last_voice"`
	Speed          float64 `json:"speed"`
	RandomVoice    bool    `json:"random_voice"`
	RandomFilter   string  `json:"random_filter"`
	LastDirectory  string  `json:"last_directory"`
	WindowGeometry string  `json:"window_geometry"`
}
