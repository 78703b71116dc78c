package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"audiobook-studio/internal/domain"
)

// ErrVoiceNotFound reports a key with no catalog record.
var ErrVoiceNotFound = errors.New("voice not found in catalog")

// catalogDocument mirrors the remote voices.json layout: language code to
// speaker name to quality tier to descriptor.
type catalogDocument map[string]map[string]map[string]voiceDescriptor

type voiceDescriptor struct {
	Key   string              `json:"key"`
	Name  string              `json:"name"`
	Files map[string]fileInfo `json:"files"`
}

type fileInfo struct {
	SizeBytes int64  `json:"size_bytes"`
	MD5Digest string `json:"md5_digest"`
}

// Catalog is an ordered collection of voices with unique keys.
type Catalog struct {
	voices []domain.Voice
	byKey  map[string]int
}

// Parse builds a catalog from a raw catalog document. Nested maps are
// walked in sorted key order so a fixed document always yields the same
// record order, which also keeps duplicate-key resolution (last write
// wins) deterministic.
func Parse(data []byte) (*Catalog, error) {
	var doc catalogDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog document: %w", err)
	}

	c := &Catalog{byKey: map[string]int{}}
	for _, language := range slices.Sorted(maps.Keys(doc)) {
		speakers := doc[language]
		for _, speaker := range slices.Sorted(maps.Keys(speakers)) {
			tiers := speakers[speaker]
			for _, quality := range slices.Sorted(maps.Keys(tiers)) {
				c.add(buildVoice(language, speaker, quality, tiers[quality]))
			}
		}
	}
	return c, nil
}

// add appends a record, replacing any earlier record with the same key.
func (c *Catalog) add(voice domain.Voice) {
	if i, ok := c.byKey[voice.Key]; ok {
		c.voices[i] = voice
		return
	}
	c.byKey[voice.Key] = len(c.voices)
	c.voices = append(c.voices, voice)
}

// buildVoice flattens one leaf descriptor into a voice record. Missing
// descriptor fields fall back to values derived from the document position,
// and a missing files section yields a zero-size record rather than failing
// the parse.
func buildVoice(language, speaker, quality string, desc voiceDescriptor) domain.Voice {
	key := strings.TrimSpace(desc.Key)
	if key == "" {
		key = fmt.Sprintf("%s-%s-%s", language, speaker, quality)
	}
	name := strings.TrimSpace(desc.Name)
	if name == "" {
		name = domain.SpeakerDisplayName(speaker)
	}

	files := map[string]domain.VoiceFile{}
	for path, info := range desc.Files {
		ext, ok := normalizeExtension(path)
		if !ok {
			continue
		}
		files[ext] = domain.VoiceFile{SizeBytes: info.SizeBytes, MD5: info.MD5Digest}
	}

	var total int64
	for _, file := range files {
		total += file.SizeBytes
	}

	return domain.Voice{
		Key:       key,
		Name:      name,
		Language:  language,
		Quality:   domain.Quality(strings.ToLower(strings.TrimSpace(quality))),
		Files:     files,
		SizeBytes: total,
	}
}

// normalizeExtension maps a source file path onto one of the two meaningful
// artifact tags. The config suffix must be checked first because it ends in
// the model suffix.
func normalizeExtension(path string) (string, bool) {
	switch {
	case strings.HasSuffix(path, domain.ConfigExt):
		return domain.ConfigExt, true
	case strings.HasSuffix(path, domain.ModelExt):
		return domain.ModelExt, true
	}
	return "", false
}

// Len returns the number of catalog records.
func (c *Catalog) Len() int {
	return len(c.voices)
}

// Voices returns a copy of all records in catalog order.
func (c *Catalog) Voices() []domain.Voice {
	out := make([]domain.Voice, len(c.voices))
	copy(out, c.voices)
	return out
}

// GetByKey returns the record for one voice key.
func (c *Catalog) GetByKey(key string) (domain.Voice, bool) {
	i, ok := c.byKey[key]
	if !ok {
		return domain.Voice{}, false
	}
	return c.voices[i], true
}

// FilterQuery selects a catalog subset. Zero-valued criteria are
// unconstrained; Installed distinguishes unset from false via the pointer.
type FilterQuery struct {
	Language  string         `json:"language,omitempty"`
	Quality   domain.Quality `json:"quality,omitempty"`
	Installed *bool          `json:"installed,omitempty"`
	Search    string         `json:"search,omitempty"`
}

// Filter returns records matching every set criterion, in catalog order.
// A query nothing matches yields an empty list.
func (c *Catalog) Filter(q FilterQuery) []domain.Voice {
	search := strings.ToLower(strings.TrimSpace(q.Search))

	out := make([]domain.Voice, 0, len(c.voices))
	for _, voice := range c.voices {
		if q.Language != "" && voice.Language != q.Language {
			continue
		}
		if q.Quality != "" && voice.Quality != q.Quality {
			continue
		}
		if q.Installed != nil && voice.Installed != *q.Installed {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(voice.Name), search) {
			continue
		}
		out = append(out, voice)
	}
	return out
}

// Languages returns every language present, sorted and de-duplicated.
func (c *Catalog) Languages() []string {
	seen := map[string]struct{}{}
	for _, voice := range c.voices {
		seen[voice.Language] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen))
}

// QualityLevels returns every quality tier present, sorted and de-duplicated.
func (c *Catalog) QualityLevels() []string {
	seen := map[string]struct{}{}
	for _, voice := range c.voices {
		seen[string(voice.Quality)] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen))
}

// UpdateInstalledStatus recomputes the installed flag for every record by
// checking the canonical model path under the voices root. The filesystem
// is the only authority for install state; repeated calls are idempotent.
func (c *Catalog) UpdateInstalledStatus(voicesRoot string) {
	for i := range c.voices {
		info, err := os.Stat(c.voices[i].ModelPath(voicesRoot))
		c.voices[i].Installed = err == nil && !info.IsDir()
	}
}
