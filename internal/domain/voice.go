package domain

import (
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/dustin/go-humanize"
)

// Quality identifies one Piper voice quality tier.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// Qualities returns the supported tiers ordered from smallest to largest model.
func Qualities() []Quality {
	return []Quality{QualityLow, QualityMedium, QualityHigh}
}

// ParseQuality normalizes raw quality text against the supported tiers.
func ParseQuality(raw string) (Quality, bool) {
	quality := Quality(strings.ToLower(strings.TrimSpace(raw)))
	switch quality {
	case QualityLow, QualityMedium, QualityHigh:
		return quality, true
	}
	return "", false
}

// Artifact extension tags recognized by the installer and catalog parser.
const (
	ModelExt  = ".onnx"
	ConfigExt = ".onnx.json"
)

// VoiceFile describes one downloadable voice artifact from catalog metadata.
type VoiceFile struct {
	SizeBytes int64  `json:"sizeBytes"`
	MD5       string `json:"md5,omitempty"`
}

// Voice is one installable Piper text-to-speech voice.
type Voice struct {
	Key       string               `json:"key"`
	Name      string               `json:"name"`
	Language  string               `json:"language"`
	Quality   Quality              `json:"quality"`
	Files     map[string]VoiceFile `json:"files,omitempty"`
	SizeBytes int64                `json:"sizeBytes"`
	Installed bool                 `json:"installed"`
}

// Dir returns the voice's storage directory under the voices root.
func (v Voice) Dir(voicesRoot string) string {
	return filepath.Join(voicesRoot, v.Language, v.Key)
}

// ModelPath returns the canonical .onnx location. The presence of this
// file is the sole definition of installed state.
func (v Voice) ModelPath(voicesRoot string) string {
	return filepath.Join(v.Dir(voicesRoot), v.Key+ModelExt)
}

// FileExtensions returns declared artifact extensions in sorted order so
// multi-file downloads always proceed model first, config second.
func (v Voice) FileExtensions() []string {
	exts := make([]string, 0, len(v.Files))
	for ext := range v.Files {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// SizeLabel renders the total download size for UI tables.
func (v Voice) SizeLabel() string {
	if v.SizeBytes <= 0 {
		return "unknown"
	}
	return humanize.Bytes(uint64(v.SizeBytes))
}

// SpeakerDisplayName formats a raw speaker identifier for display,
// uppercasing the first letter of every alphabetic run.
func SpeakerDisplayName(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	prevLetter := false
	for _, r := range raw {
		letter := unicode.IsLetter(r)
		switch {
		case letter && !prevLetter:
			b.WriteRune(unicode.ToUpper(r))
		case letter:
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
		prevLetter = letter
	}
	return b.String()
}
