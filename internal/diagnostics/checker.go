package diagnostics

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/disk"

	"audiobook-studio/internal/domain"
)

// Free-space thresholds for the voices volume. A single high-quality voice
// needs roughly 120 MB, so the floor leaves room for several installs plus
// conversion scratch space.
const (
	minFreeBytes uint64 = 1 << 30
	lowFreeBytes uint64 = 4 << 30
)

// Checker validates external tools and required filesystem paths.
type Checker struct {
	lookPath   func(string) (string, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
	diskUsage  func(string) (*disk.UsageStat, error)
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
		diskUsage:  disk.Usage,
	}
}

// Run executes all startup checks and returns a combined report. The voices
// directory check runs before the disk check so a fresh install has the
// directory in place when free space is measured.
func (c *Checker) Run(voicesDir string) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkTool("make-audiobook", "Install the converter with pipx install make-audiobook and make sure it is on PATH."),
		c.checkTool("piper", "Install piper-tts so the converter can synthesize speech."),
		c.checkTool("ffmpeg", "Install ffmpeg; the converter uses it to encode m4b audiobooks."),
		c.checkTool("pandoc", "Install pandoc; the converter uses it to extract text from epub and docx books."),
		c.checkVoicesDir(voicesDir),
		c.checkDiskSpace(voicesDir),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkTool verifies a required CLI executable is on PATH.
func (c *Checker) checkTool(name, hint string) domain.DiagnosticItem {
	path, err := c.lookPath(name)
	if err != nil {
		return domain.DiagnosticItem{
			ID:      "tool_" + name,
			Name:    name,
			Status:  domain.DiagnosticStatusFail,
			Message: fmt.Sprintf("Tool not found in PATH: %s", name),
			Hint:    hint,
		}
	}

	return domain.DiagnosticItem{
		ID:      "tool_" + name,
		Name:    name,
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}
}

// checkVoicesDir validates the voices directory exists and is writable.
func (c *Checker) checkVoicesDir(voicesDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "voices_dir",
		Name: "Voices directory",
	}

	if strings.TrimSpace(voicesDir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Voices directory is empty."
		item.Hint = "Set a directory where downloaded voices can be stored."
		return item
	}

	if err := c.mkdirAll(voicesDir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create voices directory: %s", voicesDir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(voicesDir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Voices directory is not writable: %s", voicesDir)
		item.Hint = "Voice downloads need write access to this directory."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", voicesDir)
	return item
}

// checkDiskSpace measures free space on the volume holding the voices
// directory. Running out mid-download leaves partial artifacts, so low
// space warns before it fails.
func (c *Checker) checkDiskSpace(voicesDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "disk_space",
		Name: "Disk space",
	}

	usage, err := c.diskUsage(voicesDir)
	if err != nil {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = fmt.Sprintf("Cannot determine free disk space for %s", voicesDir)
		return item
	}

	free := humanize.IBytes(usage.Free)
	switch {
	case usage.Free < minFreeBytes:
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Only %s free on the voices volume.", free)
		item.Hint = "Free up at least 1 GiB before installing voices or converting books."
	case usage.Free < lowFreeBytes:
		item.Status = domain.DiagnosticStatusWarn
		item.Message = fmt.Sprintf("Low disk space: %s free on the voices volume.", free)
	default:
		item.Status = domain.DiagnosticStatusPass
		item.Message = fmt.Sprintf("%s free on the voices volume.", free)
	}
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
	diskUsage func(string) (*disk.UsageStat, error),
) *Checker {
	return &Checker{
		lookPath:   lookPath,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
		diskUsage:  diskUsage,
	}
}
