package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"audiobook-studio/internal/catalog"
	"audiobook-studio/internal/config"
	"audiobook-studio/internal/convert"
	"audiobook-studio/internal/diagnostics"
	"audiobook-studio/internal/domain"
	"audiobook-studio/internal/jobs"
	"audiobook-studio/internal/voices"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

var bookDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Books",
		Pattern:     bookDialogPattern(),
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

// bookDialogPattern derives the dialog filter from the supported input formats.
func bookDialogPattern() string {
	patterns := make([]string, len(domain.SupportedExtensions))
	for i, ext := range domain.SupportedExtensions {
		patterns[i] = "*" + ext
	}
	return strings.Join(patterns, ";")
}

// App wires settings, the voice catalog, installs, conversions, and UI
// runtime callbacks.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Paths       config.Paths
	Provider    catalogProvider
	Installer   voiceInstaller
	Jobs        *jobs.Manager
	Diagnostics domain.DiagnosticReport
	assets      fs.FS
	checker     *diagnostics.Checker
	newRunner   runnerFactory

	mu             sync.Mutex
	catalog        *catalog.Catalog
	runner         *convert.Runner
	activeInstalls map[string]context.CancelFunc
	events         *jobs.EventBus
	runtimeCtx     context.Context
}

// catalogProvider isolates catalog fetching behind an interface.
type catalogProvider interface {
	Fetch(ctx context.Context, forceRefresh bool) (*catalog.Catalog, error)
}

// voiceInstaller isolates voice downloads and the installed-voice scan.
type voiceInstaller interface {
	Install(ctx context.Context, voice domain.Voice, onProgress func(percent int)) error
	Uninstall(voice domain.Voice) error
	ScanInstalled() ([]domain.Voice, error)
}

// runnerFactory builds a process supervisor for one job.
type runnerFactory func(job *domain.ConversionJob) *convert.Runner

// ConversionRequest is the UI payload that starts a conversion.
type ConversionRequest struct {
	Files        []string       `json:"files"`
	VoiceKey     string         `json:"voiceKey"`
	RandomVoice  bool           `json:"randomVoice"`
	RandomFilter domain.Quality `json:"randomFilter"`
	Speed        float64        `json:"speed"`
	Author       string         `json:"author"`
	Title        string         `json:"title"`
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}
	if err := ensureCommonBinDirsOnPATH(homeDir); err != nil {
		return nil, fmt.Errorf("prepare tool path: %w", err)
	}

	paths, err := config.DefaultPaths()
	if err != nil {
		return nil, fmt.Errorf("resolve application paths: %w", err)
	}

	store := config.NewJSONStore(paths.SettingsPath)
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	checker := diagnostics.NewChecker()
	report := checker.Run(paths.VoicesDir)

	return &App{
		Settings:       settings,
		Store:          store,
		Paths:          paths,
		Provider:       catalog.NewProvider(paths),
		Installer:      voices.NewInstaller(paths),
		Jobs:           jobs.NewManager(),
		Diagnostics:    report,
		assets:         assets,
		checker:        checker,
		newRunner:      convert.NewRunner,
		activeInstalls: make(map[string]context.CancelFunc),
		events:         jobs.NewEventBus(1000),
	}, nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Audiobook Studio",
		Width:       1100,
		Height:      760,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown: func(ctx context.Context) {
			a.mu.Lock()
			defer a.mu.Unlock()
			a.runtimeCtx = nil
		},
		Bind: []interface{}{a},
	})
}

// Startup stores the Wails runtime context for push events and kicks off
// the initial catalog load.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	a.runtimeCtx = ctx
	a.mu.Unlock()

	a.RefreshCatalog(false)
}

// RefreshCatalog loads the voice catalog in the background, from the disk
// cache when it is fresh or from the network otherwise. Completion or
// failure is announced with an event; the UI then pulls the list through
// ListVoices.
func (a *App) RefreshCatalog(forceRefresh bool) {
	go func() {
		loaded, err := a.Provider.Fetch(context.Background(), forceRefresh)
		if err != nil {
			a.publishEvent(jobs.Event{
				Type:    jobs.EventTypeError,
				Message: fmt.Sprintf("refresh catalog: %v", err),
			})
			return
		}
		loaded.UpdateInstalledStatus(a.Paths.VoicesDir)

		a.mu.Lock()
		a.catalog = loaded
		a.mu.Unlock()

		a.publishEvent(jobs.Event{
			Type:    jobs.EventTypeCatalog,
			Message: fmt.Sprintf("Catalog loaded: %d voices", loaded.Len()),
		})
	}()
}

// ListVoices returns the catalog filtered by the query, with installed
// flags reconciled against the voices directory. Nil until the first
// catalog load finishes.
func (a *App) ListVoices(query catalog.FilterQuery) []domain.Voice {
	loaded := a.currentCatalog()
	if loaded == nil {
		return nil
	}
	loaded.UpdateInstalledStatus(a.Paths.VoicesDir)
	return loaded.Filter(query)
}

// CatalogLanguages returns the sorted distinct language codes on offer.
func (a *App) CatalogLanguages() []string {
	loaded := a.currentCatalog()
	if loaded == nil {
		return nil
	}
	return loaded.Languages()
}

// CatalogQualities returns the sorted distinct quality tiers on offer.
func (a *App) CatalogQualities() []string {
	loaded := a.currentCatalog()
	if loaded == nil {
		return nil
	}
	return loaded.QualityLevels()
}

// InstallVoice downloads a voice's artifacts in the background, publishing
// voice events for progress and completion. One install per key at a time.
func (a *App) InstallVoice(key string) error {
	loaded := a.currentCatalog()
	if loaded == nil {
		return fmt.Errorf("catalog is not loaded yet")
	}
	voice, ok := loaded.GetByKey(key)
	if !ok {
		return fmt.Errorf("%w: %s", catalog.ErrVoiceNotFound, key)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	if _, running := a.activeInstalls[voice.Key]; running {
		a.mu.Unlock()
		cancel()
		return fmt.Errorf("voice %s is already being installed", voice.Key)
	}
	a.activeInstalls[voice.Key] = cancel
	a.mu.Unlock()

	go a.runInstall(ctx, voice)
	return nil
}

// runInstall performs one voice download and maps its outcome to events.
func (a *App) runInstall(ctx context.Context, voice domain.Voice) {
	defer a.clearInstall(voice.Key)

	err := a.Installer.Install(ctx, voice, func(percent int) {
		a.publishEvent(jobs.Event{
			Type:     jobs.EventTypeVoice,
			VoiceKey: voice.Key,
			Percent:  percent,
			Message:  "Downloading " + voice.Key,
		})
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			a.publishEvent(jobs.Event{
				Type:     jobs.EventTypeVoice,
				VoiceKey: voice.Key,
				Message:  "Install cancelled: " + voice.Key,
			})
			return
		}
		a.publishEvent(jobs.Event{
			Type:     jobs.EventTypeError,
			VoiceKey: voice.Key,
			Message:  fmt.Sprintf("install %s: %v", voice.Key, err),
		})
		return
	}

	a.publishEvent(jobs.Event{
		Type:     jobs.EventTypeVoice,
		VoiceKey: voice.Key,
		Percent:  100,
		Message:  "Installed " + voice.Key,
	})
}

// clearInstall releases the per-key install slot.
func (a *App) clearInstall(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.activeInstalls, key)
}

// CancelInstall stops an in-flight voice download.
func (a *App) CancelInstall(key string) error {
	a.mu.Lock()
	cancel, ok := a.activeInstalls[key]
	a.mu.Unlock()

	if !ok {
		return fmt.Errorf("no running install for %s", key)
	}
	cancel()
	return nil
}

// UninstallVoice removes an installed voice's directory.
func (a *App) UninstallVoice(key string) error {
	voice, err := a.resolveVoice(key)
	if err != nil {
		return err
	}
	if err := a.Installer.Uninstall(voice); err != nil {
		return fmt.Errorf("uninstall %s: %w", key, err)
	}

	a.publishEvent(jobs.Event{
		Type:     jobs.EventTypeVoice,
		VoiceKey: key,
		Message:  "Uninstalled " + key,
	})
	return nil
}

// resolveVoice finds a voice by key in the loaded catalog, falling back to
// the installed-voices scan when the catalog is absent or offline.
func (a *App) resolveVoice(key string) (domain.Voice, error) {
	if loaded := a.currentCatalog(); loaded != nil {
		if voice, ok := loaded.GetByKey(key); ok {
			return voice, nil
		}
	}

	installed, err := a.Installer.ScanInstalled()
	if err != nil {
		return domain.Voice{}, fmt.Errorf("scan installed voices: %w", err)
	}
	for _, voice := range installed {
		if voice.Key == key {
			return voice, nil
		}
	}
	return domain.Voice{}, fmt.Errorf("%w: %s", catalog.ErrVoiceNotFound, key)
}

// InstalledVoices lists voices found on disk, independent of the catalog.
func (a *App) InstalledVoices() ([]domain.Voice, error) {
	return a.Installer.ScanInstalled()
}

// OpenVoicesFolder reveals the voices directory in the file manager.
func (a *App) OpenVoicesFolder() error {
	if err := os.MkdirAll(a.Paths.VoicesDir, 0o755); err != nil {
		return fmt.Errorf("create voices directory: %w", err)
	}
	return openInFileManager(a.Paths.VoicesDir)
}

// OpenOutputFolder reveals the folder holding a finished audiobook, or the
// last used directory when no path is given.
func (a *App) OpenOutputFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		a.mu.Lock()
		target = a.Settings.LastDirectory
		a.mu.Unlock()
	}
	if target == "" {
		return fmt.Errorf("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// PickInputFiles opens a native multi-file dialog for book selection,
// starting in the last used directory.
func (a *App) PickInputFiles() ([]string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	lastDir := a.Settings.LastDirectory
	a.mu.Unlock()

	return wailsruntime.OpenMultipleFilesDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:            "Select books",
		DefaultDirectory: lastDir,
		Filters:          bookDialogFilter,
	})
}

// StartConversion validates the request, claims the single conversion slot,
// and launches the converter process. Progress and logs stream as events.
func (a *App) StartConversion(req ConversionRequest) (domain.ConversionJob, error) {
	if len(req.Files) == 0 {
		return domain.ConversionJob{}, fmt.Errorf("no input files selected")
	}
	for _, file := range req.Files {
		if !domain.IsSupportedFile(file) {
			return domain.ConversionJob{}, fmt.Errorf("unsupported file type: %s", filepath.Base(file))
		}
	}

	speed := req.Speed
	if speed <= 0 {
		speed = 1.0
	}

	job := domain.NewConversionJob(req.Files, domain.ConversionOptions{
		VoiceKey:     strings.TrimSpace(req.VoiceKey),
		RandomVoice:  req.RandomVoice,
		RandomFilter: req.RandomFilter,
		LengthScale:  domain.SpeedToLengthScale(speed),
		Author:       strings.TrimSpace(req.Author),
		Title:        strings.TrimSpace(req.Title),
	})

	if err := a.Jobs.Begin(job.ID); err != nil {
		return domain.ConversionJob{}, err
	}

	runner := a.newRunner(job)
	runner.OnProgress = func(file string, percent int) {
		a.publishEvent(jobs.Event{
			JobID:   job.ID,
			Type:    jobs.EventTypeProgress,
			File:    file,
			Percent: percent,
		})
	}
	runner.OnLog = func(line string) {
		a.publishEvent(jobs.Event{
			JobID:   job.ID,
			Type:    jobs.EventTypeLog,
			Message: line,
		})
	}
	runner.OnFinished = func(file string, ok bool) {
		a.finishConversion(runner)
	}

	a.mu.Lock()
	a.runner = runner
	a.mu.Unlock()

	a.persistLastUsed(req, speed)

	if err := runner.Start(); err != nil {
		a.Jobs.Finish(job.ID)
		a.publishEvent(jobs.Event{
			JobID:   job.ID,
			Type:    jobs.EventTypeError,
			Status:  domain.JobStatusFailed,
			Message: err.Error(),
		})
		return domain.ConversionJob{}, err
	}

	a.publishStatus(job.ID, domain.JobStatusInProgress, "Conversion started")
	return runner.Snapshot(), nil
}

// finishConversion releases the job slot and announces the outcome. The
// runner stays referenced so CurrentJob keeps reporting the finished job.
func (a *App) finishConversion(runner *convert.Runner) {
	snap := runner.Snapshot()
	a.Jobs.Finish(snap.ID)

	switch snap.Status {
	case domain.JobStatusCompleted:
		a.publishStatus(snap.ID, snap.Status, "Conversion completed")
		a.publishEvent(jobs.Event{
			JobID:   snap.ID,
			Type:    jobs.EventTypeResult,
			Status:  snap.Status,
			Message: "Audiobooks written",
			Outputs: snap.OutputFiles,
		})
	case domain.JobStatusCancelled:
		a.publishStatus(snap.ID, snap.Status, "Conversion cancelled")
	default:
		a.publishStatus(snap.ID, snap.Status, "Conversion failed")
		a.publishEvent(jobs.Event{
			JobID:   snap.ID,
			Type:    jobs.EventTypeError,
			Status:  snap.Status,
			Message: snap.ErrorMessage,
		})
	}
}

// persistLastUsed saves the conversion's voice and speed as defaults for
// the next session. A persistence failure only logs an event.
func (a *App) persistLastUsed(req ConversionRequest, speed float64) {
	a.mu.Lock()
	settings := a.Settings
	a.mu.Unlock()

	settings.LastVoice = strings.TrimSpace(req.VoiceKey)
	settings.Speed = speed
	settings.RandomVoice = req.RandomVoice
	settings.RandomFilter = string(req.RandomFilter)
	if len(req.Files) > 0 {
		settings.LastDirectory = filepath.Dir(req.Files[0])
	}

	if err := a.Store.Save(settings); err != nil {
		a.publishEvent(jobs.Event{
			Type:    jobs.EventTypeError,
			Message: fmt.Sprintf("save settings: %v", err),
		})
		return
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()
}

// CancelConversion asks the running converter to stop. The job is marked
// cancelled once the process exits; the status event follows then.
func (a *App) CancelConversion() error {
	a.mu.Lock()
	runner := a.runner
	a.mu.Unlock()

	if runner == nil || !a.Jobs.IsRunning() {
		return jobs.ErrNoRunningJob
	}

	runner.Cancel()
	a.publishEvent(jobs.Event{
		JobID:   runner.JobID(),
		Type:    jobs.EventTypeStatus,
		Status:  runner.Snapshot().Status,
		Message: "Cancellation requested",
	})
	return nil
}

// CurrentJob returns the running or most recent job. The zero job means
// nothing has run yet.
func (a *App) CurrentJob() domain.ConversionJob {
	a.mu.Lock()
	runner := a.runner
	a.mu.Unlock()

	if runner == nil {
		return domain.ConversionJob{}
	}
	return runner.Snapshot()
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.events.Since(sinceSeq)
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, then refreshes diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := normalizeSettings(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = normalized
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(a.Paths.VoicesDir)
	}
	a.mu.Unlock()

	return normalized, nil
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	return a.Diagnostics
}

// RefreshDiagnostics reruns dependency and filesystem checks.
func (a *App) RefreshDiagnostics() domain.DiagnosticReport {
	report := a.checker.Run(a.Paths.VoicesDir)

	a.mu.Lock()
	a.Diagnostics = report
	a.mu.Unlock()

	return report
}

// currentCatalog returns the last loaded catalog, or nil before the first
// successful load.
func (a *App) currentCatalog() *catalog.Catalog {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.catalog
}

// publishStatus sends a normalized status event.
func (a *App) publishStatus(jobID string, status domain.JobStatus, message string) {
	a.publishEvent(jobs.Event{
		JobID:   jobID,
		Type:    jobs.EventTypeStatus,
		Status:  status,
		Message: message,
	})
}

// publishEvent stores event history and emits runtime push notifications.
func (a *App) publishEvent(event jobs.Event) {
	published := a.events.Publish(event)

	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, "app:event", published)
	}
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// normalizeSettings trims user inputs and keeps speed in a sane range.
func normalizeSettings(settings domain.Settings) domain.Settings {
	settings.LastVoice = strings.TrimSpace(settings.LastVoice)
	settings.RandomFilter = strings.TrimSpace(settings.RandomFilter)
	settings.LastDirectory = strings.TrimSpace(settings.LastDirectory)
	settings.WindowGeometry = strings.TrimSpace(settings.WindowGeometry)
	if settings.Speed <= 0 {
		settings.Speed = 1.0
	}
	if settings.Speed > 10 {
		settings.Speed = 10
	}
	return settings
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
