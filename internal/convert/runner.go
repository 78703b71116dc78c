package convert

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"audiobook-studio/internal/domain"
)

// DefaultScriptName is the converter executable resolved from PATH.
const DefaultScriptName = "make-audiobook"

// voiceKeyEnv carries the selected voice to the converter. Voice selection
// deliberately stays off the command line; arguments carry only random-mode
// flags, the length scale, and the input paths.
const voiceKeyEnv = "PIPER_VOICE"

// killGracePeriod is how long a cancelled process gets to exit after the
// interrupt before it is killed.
const killGracePeriod = 2 * time.Second

var (
	// byteProgressRe matches pv-style transfer lines such as
	// "1.5MiB 0:00:05 [300KiB/s]".
	byteProgressRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(B|KiB|MiB|GiB)`)
	// processingFileRe matches the converter's per-file banner.
	processingFileRe = regexp.MustCompile(`Processing file (\d+) of (\d+)`)
)

// progressUpdate is one (file, percent) notification derived from output.
type progressUpdate struct {
	file    string
	percent int
}

// Runner supervises one external conversion process for one job. Callbacks
// are set before Start and invoked from the runner's own goroutines.
type Runner struct {
	// OnProgress receives per-file estimates and overall progress after
	// file switches.
	OnProgress func(file string, percent int)
	// OnLog receives every non-blank output line in arrival order.
	OnLog func(line string)
	// OnFinished fires once with the last active file and overall success.
	OnFinished func(file string, ok bool)

	job        *domain.ConversionJob
	scriptPath string

	mu              sync.Mutex
	cmd             *exec.Cmd
	cancelRequested bool
	currentFile     string
	fileEstimate    int
	outputsRecorded int

	scanners sync.WaitGroup
	done     chan struct{}
}

// NewRunner creates a runner for the job using the converter from PATH.
func NewRunner(job *domain.ConversionJob) *Runner {
	return NewRunnerWithScript(job, DefaultScriptName)
}

// NewRunnerWithScript creates a runner invoking an explicit converter path.
func NewRunnerWithScript(job *domain.ConversionJob, scriptPath string) *Runner {
	return &Runner{
		job:        job,
		scriptPath: scriptPath,
		done:       make(chan struct{}),
	}
}

// BuildArgs builds the converter argument list from a job: the random-voice
// flag (carrying the quality filter when set), the length scale when it
// differs from neutral 1.0, then every input path in order.
func BuildArgs(job *domain.ConversionJob) []string {
	var args []string

	if job.RandomVoice {
		if job.RandomFilter != "" {
			args = append(args, fmt.Sprintf("--random=%s", job.RandomFilter))
		} else {
			args = append(args, "--random")
		}
	}

	if job.LengthScale != 1.0 {
		args = append(args, fmt.Sprintf("--length_scale=%g", job.LengthScale))
	}

	return append(args, job.Files...)
}

// Start launches the conversion process and begins streaming its output.
// On a successful start the job moves to in_progress with the first file
// active; a start failure marks the job failed.
func (r *Runner) Start() error {
	r.mu.Lock()
	if r.cmd != nil {
		r.mu.Unlock()
		return fmt.Errorf("runner already started")
	}
	r.mu.Unlock()

	cmd := exec.Command(r.scriptPath, BuildArgs(r.job)...)
	if !r.job.RandomVoice && r.job.VoiceKey != "" {
		cmd.Env = append(os.Environ(), voiceKeyEnv+"="+r.job.VoiceKey)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		r.failStart(fmt.Sprintf("open stdout pipe: %v", err))
		return fmt.Errorf("open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		r.failStart(fmt.Sprintf("open stderr pipe: %v", err))
		return fmt.Errorf("open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		r.failStart(fmt.Sprintf("start converter: %v", err))
		return fmt.Errorf("start %s: %w", r.scriptPath, err)
	}

	r.mu.Lock()
	r.cmd = cmd
	r.job.MarkRunning()
	if len(r.job.Files) > 0 {
		r.currentFile = r.job.Files[0]
		r.job.CurrentFileIndex = 0
	}
	r.mu.Unlock()

	r.scanners.Add(2)
	go r.scanStream(stdout)
	go r.scanStream(stderr)
	go r.supervise()

	return nil
}

// failStart records a failure for a process that never ran.
func (r *Runner) failStart(message string) {
	r.mu.Lock()
	r.job.MarkFailed(message)
	r.mu.Unlock()
	close(r.done)
}

// Wait blocks until the job reaches a terminal status and all output has
// been forwarded.
func (r *Runner) Wait() {
	<-r.done
}

// Cancel requests termination of the running process. The job is only
// marked cancelled once the process actually exits, so any output produced
// in between still reaches the log. Cancellation wins over the eventual
// exit code.
func (r *Runner) Cancel() {
	r.mu.Lock()
	already := r.cancelRequested
	r.cancelRequested = true
	cmd := r.cmd
	r.mu.Unlock()

	if already || cmd == nil || cmd.Process == nil {
		return
	}

	process := cmd.Process
	_ = process.Signal(os.Interrupt)

	go func() {
		select {
		case <-r.done:
		case <-time.After(killGracePeriod):
			_ = process.Kill()
		}
	}()
}

// Snapshot returns a copy of the job state safe for concurrent UI reads.
func (r *Runner) Snapshot() domain.ConversionJob {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := *r.job
	snap.Files = append([]string(nil), r.job.Files...)
	snap.LogMessages = append([]string(nil), r.job.LogMessages...)
	snap.OutputFiles = append([]string(nil), r.job.OutputFiles...)
	return snap
}

// JobID returns the supervised job's identifier.
func (r *Runner) JobID() string {
	return r.job.ID
}

// scanStream forwards each non-blank line of one output stream. Stdout and
// stderr receive identical handling.
func (r *Runner) scanStream(stream io.Reader) {
	defer r.scanners.Done()

	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		r.handleLine(line)
	}
}

// handleLine appends the line to the job log, forwards it, and derives
// progress notifications. Every line is forwarded whether or not a
// pattern matches.
func (r *Runner) handleLine(line string) {
	r.mu.Lock()
	r.job.AddLog(line)
	updates := r.parseProgressLocked(line)
	r.mu.Unlock()

	emitLog(r.OnLog, line)
	for _, update := range updates {
		emitProgress(r.OnProgress, update.file, update.percent)
	}
}

// parseProgressLocked scans one line for the two progress patterns. A byte
// transfer line nudges the current file's estimate by a fixed increment,
// capped at 95 since the parse approximates progress without byte
// accounting. A processing-file banner switches the active file, resets the
// per-file estimate, and recomputes overall progress. Caller holds r.mu.
func (r *Runner) parseProgressLocked(line string) []progressUpdate {
	var updates []progressUpdate

	if byteProgressRe.MatchString(line) {
		r.fileEstimate += 5
		if r.fileEstimate > 95 {
			r.fileEstimate = 95
		}
		if r.currentFile != "" {
			updates = append(updates, progressUpdate{file: r.currentFile, percent: r.fileEstimate})
		}
	}

	if m := processingFileRe.FindStringSubmatch(line); m != nil {
		index, _ := strconv.Atoi(m[1])
		total, _ := strconv.Atoi(m[2])
		if index >= 1 && index <= len(r.job.Files) && total > 0 {
			r.recordOutputsLocked(index - 1)
			r.currentFile = r.job.Files[index-1]
			r.job.CurrentFileIndex = index - 1
			r.fileEstimate = 0

			overall := (index - 1) * 100 / total
			if overall > r.job.Progress {
				r.job.Progress = overall
			}
			updates = append(updates, progressUpdate{file: r.currentFile, percent: overall})
		}
	}

	return updates
}

// recordOutputsLocked appends the derived audiobook path for every input
// that has finished converting, in input order. Caller holds r.mu.
func (r *Runner) recordOutputsLocked(completed int) {
	for r.outputsRecorded < completed && r.outputsRecorded < len(r.job.Files) {
		r.job.AddOutput(outputPathFor(r.job.Files[r.outputsRecorded]))
		r.outputsRecorded++
	}
}

// outputPathFor maps an input document to the audiobook the converter
// writes beside it.
func outputPathFor(input string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + ".m4b"
}

// supervise drains both streams, reaps the process, and applies the
// terminal status.
func (r *Runner) supervise() {
	r.scanners.Wait()

	exitCode := 0
	if err := r.cmd.Wait(); err != nil {
		exitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
	}

	r.finish(exitCode)
}

// finish applies the terminal status for the given exit code. A requested
// cancellation wins over the exit code; a clean exit completes the job and
// records the remaining outputs.
func (r *Runner) finish(exitCode int) {
	r.mu.Lock()
	switch {
	case r.cancelRequested:
		r.job.MarkCancelled()
	case exitCode == 0:
		r.recordOutputsLocked(len(r.job.Files))
		r.job.MarkCompleted()
	default:
		r.job.MarkFailed(fmt.Sprintf("process exited with code %d", exitCode))
	}
	file := r.currentFile
	ok := r.job.Status == domain.JobStatusCompleted
	r.mu.Unlock()

	emitFinished(r.OnFinished, file, ok)
	close(r.done)
}

// emitProgress forwards a progress update when a callback is configured.
func emitProgress(cb func(file string, percent int), file string, percent int) {
	if cb != nil {
		cb(file, percent)
	}
}

// emitLog forwards an output line when a callback is configured.
func emitLog(cb func(line string), line string) {
	if cb != nil {
		cb(line)
	}
}

// emitFinished forwards the terminal notification when a callback is
// configured.
func emitFinished(cb func(file string, ok bool), file string, ok bool) {
	if cb != nil {
		cb(file, ok)
	}
}
