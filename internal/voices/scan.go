package voices

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"audiobook-studio/internal/domain"
)

// Uninstall removes the voice's directory and everything in it.
func (i *Installer) Uninstall(voice domain.Voice) error {
	if err := os.RemoveAll(voice.Dir(i.voicesRoot)); err != nil {
		return fmt.Errorf("remove voice directory: %w", err)
	}
	return nil
}

// ScanInstalled walks the voices root and returns a record for every voice
// directory holding its model file, sorted by key. The scan works without
// any catalog data, so metadata comes from the key itself.
func (i *Installer) ScanInstalled() ([]domain.Voice, error) {
	entries, err := os.ReadDir(i.voicesRoot)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []domain.Voice{}, nil
		}
		return nil, fmt.Errorf("read voices root: %w", err)
	}

	found := []domain.Voice{}
	for _, langEntry := range entries {
		if !langEntry.IsDir() {
			continue
		}
		langDir := filepath.Join(i.voicesRoot, langEntry.Name())
		voiceEntries, err := os.ReadDir(langDir)
		if err != nil {
			continue
		}
		for _, voiceEntry := range voiceEntries {
			if !voiceEntry.IsDir() {
				continue
			}
			if voice, ok := scanVoiceDir(langDir, langEntry.Name(), voiceEntry.Name()); ok {
				found = append(found, voice)
			}
		}
	}

	sort.Slice(found, func(a, b int) bool { return found[a].Key < found[b].Key })
	return found, nil
}

// scanVoiceDir builds a record from one on-disk voice directory. Directories
// without their model file are skipped; a half-finished download leaves only
// a .tmp file, which never counts as installed.
func scanVoiceDir(langDir, language, key string) (domain.Voice, bool) {
	info, err := os.Stat(filepath.Join(langDir, key, key+domain.ModelExt))
	if err != nil || info.IsDir() {
		return domain.Voice{}, false
	}

	voice := domain.Voice{
		Key:       key,
		Name:      key,
		Language:  language,
		SizeBytes: info.Size(),
		Installed: true,
	}
	if parts := strings.Split(key, "-"); len(parts) >= 2 {
		voice.Name = domain.SpeakerDisplayName(parts[1])
		if len(parts) >= 3 {
			voice.Quality = domain.Quality(strings.ToLower(parts[len(parts)-1]))
		}
	}
	return voice, true
}
