package voices

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"audiobook-studio/internal/config"
	"audiobook-studio/internal/domain"
)

// DefaultBaseURL is the root under which voice artifacts are published.
const DefaultBaseURL = "https://huggingface.co/rhasspy/piper-voices/resolve/main"

// defaultChunkSize is the streaming copy granularity. Progress reporting and
// cancellation are both observed at this boundary.
const defaultChunkSize = 64 * 1024

const userAgent = "audiobook-studio"

// IntegrityError reports a checksum mismatch for one downloaded file.
type IntegrityError struct {
	File     string
	Expected string
	Actual   string
}

// Error formats the mismatch for logs and UI.
func (e *IntegrityError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: expected %s, got %s", e.File, e.Expected, e.Actual)
}

// Installer downloads voice artifacts into the shared voices root. One
// installer handles one voice at a time; callers run concurrent installs of
// different voices as separate calls, which never conflict because each
// voice writes only inside its own language/key subtree.
type Installer struct {
	baseURL    string
	voicesRoot string
	client     *http.Client
	chunkSize  int
}

// NewInstaller creates an installer writing under the configured voices
// root. The client carries no overall timeout since voice models run to
// hundreds of megabytes; cancellation comes from the caller's context.
func NewInstaller(paths config.Paths) *Installer {
	return &Installer{
		baseURL:    DefaultBaseURL,
		voicesRoot: paths.VoicesDir,
		client:     &http.Client{},
		chunkSize:  defaultChunkSize,
	}
}

// NewInstallerForTests creates an installer with injectable endpoint, root,
// client, and chunk size.
func NewInstallerForTests(baseURL, voicesRoot string, client *http.Client, chunkSize int) *Installer {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &Installer{
		baseURL:    baseURL,
		voicesRoot: voicesRoot,
		client:     client,
		chunkSize:  chunkSize,
	}
}

// Install downloads every declared artifact for the voice. Progress covers
// the whole voice: bytes are accumulated across files and reported as a
// percentage after each chunk, capped at 99 until everything is installed,
// then exactly 100 once. The rename at the end of each file is the only
// moment a download becomes visible under its final name.
func (i *Installer) Install(ctx context.Context, voice domain.Voice, onProgress func(percent int)) error {
	if err := os.MkdirAll(voice.Dir(i.voicesRoot), 0o755); err != nil {
		return fmt.Errorf("create voice directory: %w", err)
	}

	var written int64
	for _, ext := range voice.FileExtensions() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := i.installFile(ctx, voice, ext, &written, onProgress); err != nil {
			return err
		}
	}

	emitProgress(onProgress, 100)
	return nil
}

// installFile streams one artifact to a temp file, verifies its digest, and
// renames it into place.
func (i *Installer) installFile(ctx context.Context, voice domain.Voice, ext string, written *int64, onProgress func(percent int)) error {
	fileName := voice.Key + ext
	finalPath := filepath.Join(voice.Dir(i.voicesRoot), fileName)
	tmpPath := finalPath + ".tmp"

	url := fmt.Sprintf("%s/%s/%s/%s", i.baseURL, voice.Language, voice.Key, fileName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build download request for %s: %w", fileName, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := i.client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", fileName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: unexpected status %s", fileName, resp.Status)
	}

	out, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", fileName, err)
	}

	copyErr := i.copyChunks(ctx, out, resp.Body, voice.SizeBytes, written, onProgress)
	closeErr := out.Close()
	if copyErr != nil {
		if ctx.Err() != nil {
			// cancelled mid-stream: the partial temp file is deleted
			_ = os.Remove(tmpPath)
			return ctx.Err()
		}
		return fmt.Errorf("download %s: %w", fileName, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close temp file for %s: %w", fileName, closeErr)
	}

	// An absent declared digest skips verification for this file only.
	if declared := voice.Files[ext].MD5; declared != "" {
		if err := verifyChecksum(tmpPath, fileName, declared); err != nil {
			// the temp file stays in place; nothing is installed
			return err
		}
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("install %s: %w", fileName, err)
	}
	return nil
}

// copyChunks streams src to dst in fixed-size chunks, adding to the
// voice-wide byte counter and emitting progress after every chunk. The
// context is checked once per chunk, which bounds cancellation latency.
func (i *Installer) copyChunks(ctx context.Context, dst io.Writer, src io.Reader, totalSize int64, written *int64, onProgress func(percent int)) error {
	buf := make([]byte, i.chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return fmt.Errorf("write chunk: %w", err)
			}
			*written += int64(n)
			emitProgress(onProgress, progressPercent(*written, totalSize))
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("read chunk: %w", readErr)
		}
	}
}

// progressPercent caps at 99 so 100 is only ever emitted once the whole
// voice is installed.
func progressPercent(written, total int64) int {
	if total <= 0 {
		return 99
	}
	percent := int(written * 100 / total)
	if percent > 99 {
		percent = 99
	}
	if percent < 0 {
		percent = 0
	}
	return percent
}

// verifyChecksum compares the streamed file's MD5 against the declared
// digest from the catalog.
func verifyChecksum(path, fileName, expected string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s for verification: %w", fileName, err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("hash %s: %w", fileName, err)
	}

	actual := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(actual, expected) {
		return &IntegrityError{File: fileName, Expected: expected, Actual: actual}
	}
	return nil
}

// emitProgress forwards progress when a callback is configured.
func emitProgress(cb func(percent int), percent int) {
	if cb != nil {
		cb(percent)
	}
}
