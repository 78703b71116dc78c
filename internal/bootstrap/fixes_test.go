package bootstrap

import (
	"os"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"testing"

	"audiobook-studio/internal/config"
	"audiobook-studio/internal/diagnostics"
)

// TestEnsureCommonBinDirsOnPATHPrepends ensures missing tool directories are
// added ahead of the existing PATH.
func TestEnsureCommonBinDirsOnPATHPrepends(t *testing.T) {
	home := t.TempDir()
	t.Setenv("PATH", "/usr/bin")

	if err := ensureCommonBinDirsOnPATH(home); err != nil {
		t.Fatalf("ensure PATH: %v", err)
	}

	entries := filepath.SplitList(os.Getenv("PATH"))
	localBin := filepath.Join(home, ".local", "bin")
	if entries[0] != localBin {
		t.Fatalf("first PATH entry = %s, want %s", entries[0], localBin)
	}
	if entries[len(entries)-1] != "/usr/bin" {
		t.Fatalf("last PATH entry = %s, want /usr/bin", entries[len(entries)-1])
	}
	if _, err := os.Stat(localBin); err != nil {
		t.Fatalf("stat local bin: %v", err)
	}
}

// TestEnsureCommonBinDirsOnPATHIsIdempotent ensures directories already on
// PATH are not duplicated.
func TestEnsureCommonBinDirsOnPATHIsIdempotent(t *testing.T) {
	home := t.TempDir()
	t.Setenv("PATH", "/usr/bin")

	if err := ensureCommonBinDirsOnPATH(home); err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	first := os.Getenv("PATH")
	if err := ensureCommonBinDirsOnPATH(home); err != nil {
		t.Fatalf("second ensure: %v", err)
	}

	if got := os.Getenv("PATH"); got != first {
		t.Fatalf("PATH after second ensure = %s, want %s", got, first)
	}
}

// TestSystemPackageOptionsForCurrentOS ensures the matrix names at least
// one manager and carries the package name in every command.
func TestSystemPackageOptionsForCurrentOS(t *testing.T) {
	options := systemPackageOptions("pandoc")
	if len(options) == 0 {
		t.Fatalf("no install options for %s", goruntime.GOOS)
	}

	for _, option := range options {
		if option.manager == "" {
			t.Fatal("option without manager name")
		}
		last := option.commands[len(option.commands)-1]
		joined := strings.ToLower(strings.Join(last, " "))
		if !strings.Contains(joined, "pandoc") {
			t.Fatalf("install command %v does not reference the package", last)
		}
	}
}

// TestWingetIDMapsKnownPackages validates winget identifier mapping.
func TestWingetIDMapsKnownPackages(t *testing.T) {
	if got := wingetID("ffmpeg"); got != "Gyan.FFmpeg" {
		t.Fatalf("wingetID(ffmpeg) = %s, want Gyan.FFmpeg", got)
	}
	if got := wingetID("pandoc"); got != "JohnMacFarlane.Pandoc" {
		t.Fatalf("wingetID(pandoc) = %s, want JohnMacFarlane.Pandoc", got)
	}
	if got := wingetID("unknown"); got != "unknown" {
		t.Fatalf("wingetID(unknown) = %s, want unknown", got)
	}
}

// TestInstallOrFixDiagnosticRejectsUnknownID ensures unsupported items
// error without running anything.
func TestInstallOrFixDiagnosticRejectsUnknownID(t *testing.T) {
	app := &App{checker: diagnostics.NewChecker()}

	if _, err := app.InstallOrFixDiagnostic("disk_space"); err == nil {
		t.Fatal("expected error for unfixable item")
	}
	if _, err := app.InstallOrFixDiagnostic("  "); err == nil {
		t.Fatal("expected error for empty item id")
	}
}

// TestInstallOrFixDiagnosticCreatesVoicesDir ensures the voices_dir fix
// builds the directory tree and refreshes the report.
func TestInstallOrFixDiagnosticCreatesVoicesDir(t *testing.T) {
	voicesDir := filepath.Join(t.TempDir(), "share", "piper", "voices")
	app := &App{
		Paths:   config.Paths{VoicesDir: voicesDir},
		checker: diagnostics.NewChecker(),
	}

	report, err := app.InstallOrFixDiagnostic("voices_dir")
	if err != nil {
		t.Fatalf("fix voices dir: %v", err)
	}

	if _, err := os.Stat(voicesDir); err != nil {
		t.Fatalf("stat voices dir: %v", err)
	}
	if len(report.Items) == 0 {
		t.Fatal("expected refreshed report items")
	}
}

// TestRequireToolsOnPathListsMissing validates the combined error message.
func TestRequireToolsOnPathListsMissing(t *testing.T) {
	err := requireToolsOnPath("definitely-not-a-tool-123", "also-not-here-456")
	if err == nil {
		t.Fatal("expected error for missing tools")
	}
	if !strings.Contains(err.Error(), "definitely-not-a-tool-123") {
		t.Fatalf("error %q does not list the missing tool", err)
	}
}

// TestFormatCommand validates command rendering for error messages.
func TestFormatCommand(t *testing.T) {
	got := formatCommand("pipx", []string{"install", "piper-tts"})
	if got != "pipx install piper-tts" {
		t.Fatalf("formatCommand = %q, want %q", got, "pipx install piper-tts")
	}
}
