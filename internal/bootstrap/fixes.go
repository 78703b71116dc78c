package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"time"

	"audiobook-studio/internal/domain"
)

const installCommandTimeout = 45 * time.Minute

type installOption struct {
	manager  string
	commands [][]string
}

// InstallOrFixDiagnostic applies a remediation for one failed diagnostic
// item and returns the refreshed report. Disk space has no automated fix.
func (a *App) InstallOrFixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.DiagnosticReport{}, fmt.Errorf("diagnostic item id is required")
	}

	var fixErr error
	switch id {
	case "tool_make-audiobook":
		fixErr = installConverter()
	case "tool_piper":
		fixErr = installPiper()
	case "tool_ffmpeg":
		fixErr = installSystemTool("ffmpeg", "ffmpeg")
	case "tool_pandoc":
		fixErr = installSystemTool("pandoc", "pandoc")
	case "voices_dir":
		fixErr = a.fixVoicesDir()
	default:
		return domain.DiagnosticReport{}, fmt.Errorf("unsupported diagnostic item id: %s", id)
	}

	report := a.RefreshDiagnostics()
	return report, fixErr
}

// fixVoicesDir creates the voices directory tree.
func (a *App) fixVoicesDir() error {
	if err := os.MkdirAll(a.Paths.VoicesDir, 0o755); err != nil {
		return fmt.Errorf("create voices directory: %w", err)
	}
	return nil
}

// installConverter installs the make-audiobook CLI with a Python package
// installer. pipx is preferred because it links the script into
// ~/.local/bin, which the app puts on PATH at startup.
func installConverter() error {
	options := []installOption{
		{manager: "pipx", commands: [][]string{{"pipx", "install", "make-audiobook"}}},
		{manager: "pip3", commands: [][]string{{"pip3", "install", "--user", "make-audiobook"}}},
	}

	if err := runFirstSuccessfulInstall(options); err != nil {
		return fmt.Errorf("install make-audiobook: %w", err)
	}
	if err := requireToolsOnPath("make-audiobook"); err != nil {
		return fmt.Errorf("verify make-audiobook on PATH: %w", err)
	}
	return nil
}

// installPiper installs the piper synthesizer from its Python distribution.
func installPiper() error {
	options := []installOption{
		{manager: "pipx", commands: [][]string{{"pipx", "install", "piper-tts"}}},
		{manager: "pip3", commands: [][]string{{"pip3", "install", "--user", "piper-tts"}}},
	}

	if err := runFirstSuccessfulInstall(options); err != nil {
		return fmt.Errorf("install piper: %w", err)
	}
	if err := requireToolsOnPath("piper"); err != nil {
		return fmt.Errorf("verify piper on PATH: %w", err)
	}
	return nil
}

// installSystemTool installs one package through the platform package
// manager and verifies the named binary afterwards.
func installSystemTool(pkg, binary string) error {
	if err := runFirstSuccessfulInstall(systemPackageOptions(pkg)); err != nil {
		return fmt.Errorf("install %s: %w", pkg, err)
	}
	if err := requireToolsOnPath(binary); err != nil {
		return fmt.Errorf("verify %s on PATH: %w", binary, err)
	}
	return nil
}

// systemPackageOptions builds the per-OS package manager command matrix for
// one package that carries the same name in every repository.
func systemPackageOptions(pkg string) []installOption {
	switch goruntime.GOOS {
	case "windows":
		return []installOption{
			{
				manager: "winget",
				commands: [][]string{
					{"winget", "install", "--id", wingetID(pkg), "--exact", "--accept-source-agreements", "--accept-package-agreements"},
				},
			},
			{
				manager:  "choco",
				commands: [][]string{{"choco", "install", pkg, "-y"}},
			},
			{
				manager:  "scoop",
				commands: [][]string{{"scoop", "install", pkg}},
			},
		}
	case "darwin":
		return []installOption{
			{
				manager:  "brew",
				commands: [][]string{{"brew", "install", pkg}},
			},
		}
	default:
		return []installOption{
			{
				manager: "apt-get",
				commands: [][]string{
					{"apt-get", "update"},
					{"apt-get", "install", "-y", pkg},
				},
			},
			{
				manager:  "dnf",
				commands: [][]string{{"dnf", "install", "-y", pkg}},
			},
			{
				manager:  "pacman",
				commands: [][]string{{"pacman", "-Sy", "--noconfirm", pkg}},
			},
			{
				manager:  "zypper",
				commands: [][]string{{"zypper", "install", "-y", pkg}},
			},
			{
				manager:  "brew",
				commands: [][]string{{"brew", "install", pkg}},
			},
		}
	}
}

// wingetID maps a package name to its winget identifier.
func wingetID(pkg string) string {
	switch pkg {
	case "ffmpeg":
		return "Gyan.FFmpeg"
	case "pandoc":
		return "JohnMacFarlane.Pandoc"
	default:
		return pkg
	}
}

// commonBinDirs lists locations where pipx and Homebrew place executables.
func commonBinDirs(homeDir string) []string {
	dirs := []string{filepath.Join(homeDir, ".local", "bin"), "/usr/local/bin"}
	if goruntime.GOOS == "darwin" {
		dirs = append(dirs, "/opt/homebrew/bin")
	}
	return dirs
}

// ensureCommonBinDirsOnPATH prepends well-known tool directories missing
// from PATH and creates the user-local bin directory. Desktop launchers
// often start with a minimal PATH that misses pipx and Homebrew installs.
func ensureCommonBinDirsOnPATH(homeDir string) error {
	localBin := filepath.Join(homeDir, ".local", "bin")
	if err := os.MkdirAll(localBin, 0o755); err != nil {
		return err
	}

	current := os.Getenv("PATH")
	existing := make(map[string]bool)
	for _, entry := range filepath.SplitList(current) {
		existing[filepath.Clean(entry)] = true
	}

	var missing []string
	for _, dir := range commonBinDirs(homeDir) {
		if !existing[filepath.Clean(dir)] {
			missing = append(missing, dir)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	entries := missing
	if current != "" {
		entries = append(missing, current)
	}
	return os.Setenv("PATH", strings.Join(entries, string(os.PathListSeparator)))
}

// runFirstSuccessfulInstall tries each available package manager in order
// until one completes every command.
func runFirstSuccessfulInstall(options []installOption) error {
	if len(options) == 0 {
		return fmt.Errorf("no install commands configured for OS %s", goruntime.GOOS)
	}

	errorsByManager := make([]string, 0, len(options))
	atLeastOneManager := false

	for _, option := range options {
		if !commandAvailable(option.manager) {
			continue
		}
		atLeastOneManager = true
		if err := runInstallCommands(option.commands); err == nil {
			return nil
		} else {
			errorsByManager = append(errorsByManager, fmt.Sprintf("%s: %v", option.manager, err))
		}
	}

	if !atLeastOneManager {
		return fmt.Errorf("no supported package manager found for %s", goruntime.GOOS)
	}
	return errors.New(strings.Join(errorsByManager, " | "))
}

func runInstallCommands(commands [][]string) error {
	for _, command := range commands {
		if err := runCommandWithPossibleElevation(command); err != nil {
			return err
		}
	}
	return nil
}

// runCommandWithPossibleElevation retries system package managers through
// pkexec or passwordless sudo when the plain invocation fails.
func runCommandWithPossibleElevation(command []string) error {
	if len(command) == 0 {
		return fmt.Errorf("empty command")
	}

	candidates := [][]string{command}
	if goruntime.GOOS == "linux" && requiresElevation(command[0]) {
		if commandAvailable("pkexec") {
			candidates = append(candidates, append([]string{"pkexec"}, command...))
		}
		if commandAvailable("sudo") {
			candidates = append(candidates, append([]string{"sudo", "-n"}, command...))
		}
	}

	attemptErrors := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		if err := runCommand(candidate[0], candidate[1:]...); err == nil {
			return nil
		} else {
			attemptErrors = append(attemptErrors, err.Error())
		}
	}

	return errors.New(strings.Join(attemptErrors, " | "))
}

// runCommand executes one install command with a generous timeout and folds
// trimmed output into the error on failure.
func runCommand(name string, args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), installCommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out after %s", formatCommand(name, args), installCommandTimeout)
	}

	trimmed := strings.TrimSpace(string(output))
	if len(trimmed) > 500 {
		trimmed = trimmed[:500] + "..."
	}
	if trimmed == "" {
		return fmt.Errorf("%s failed: %w", formatCommand(name, args), err)
	}
	return fmt.Errorf("%s failed: %w (%s)", formatCommand(name, args), err, trimmed)
}

func formatCommand(name string, args []string) string {
	parts := append([]string{name}, args...)
	return strings.Join(parts, " ")
}

func requiresElevation(manager string) bool {
	switch manager {
	case "apt-get", "dnf", "pacman", "zypper":
		return true
	default:
		return false
	}
}

func commandAvailable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func requireToolsOnPath(names ...string) error {
	missing := make([]string, 0, len(names))
	for _, name := range names {
		if _, err := exec.LookPath(name); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing tools on PATH: %s", strings.Join(missing, ", "))
	}
	return nil
}
