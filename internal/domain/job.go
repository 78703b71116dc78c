package domain

import (
	"math"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// SupportedExtensions lists the document types the converter accepts.
var SupportedExtensions = []string{".txt", ".epub", ".docx", ".md", ".html", ".pdf"}

// IsSupportedFile reports whether the path has a supported document extension.
func IsSupportedFile(path string) bool {
	return slices.Contains(SupportedExtensions, strings.ToLower(filepath.Ext(path)))
}

// JobStatus tracks the lifecycle of a single conversion job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether the status can never change again.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// ConversionOptions carries per-job synthesis parameters.
type ConversionOptions struct {
	VoiceKey     string  `json:"voiceKey"`
	RandomVoice  bool    `json:"randomVoice"`
	RandomFilter Quality `json:"randomFilter,omitempty"`
	LengthScale  float64 `json:"lengthScale"`
	Author       string  `json:"author,omitempty"`
	Title        string  `json:"title,omitempty"`
}

// ConversionJob tracks one batch document-to-audiobook run.
type ConversionJob struct {
	ID               string    `json:"id"`
	Files            []string  `json:"files"`
	VoiceKey         string    `json:"voiceKey,omitempty"`
	RandomVoice      bool      `json:"randomVoice"`
	RandomFilter     Quality   `json:"randomFilter,omitempty"`
	LengthScale      float64   `json:"lengthScale"`
	Author           string    `json:"author,omitempty"`
	Title            string    `json:"title,omitempty"`
	Status           JobStatus `json:"status"`
	Progress         int       `json:"progress"`
	CurrentFileIndex int       `json:"currentFileIndex"`
	LogMessages      []string  `json:"logMessages,omitempty"`
	ErrorMessage     string    `json:"errorMessage,omitempty"`
	OutputFiles      []string  `json:"outputFiles,omitempty"`
}

// NewConversionJob builds a pending job for the given input files.
func NewConversionJob(files []string, opts ConversionOptions) *ConversionJob {
	scale := opts.LengthScale
	if scale <= 0 {
		scale = 1.0
	}
	return &ConversionJob{
		ID:               uuid.NewString(),
		Files:            append([]string(nil), files...),
		VoiceKey:         strings.TrimSpace(opts.VoiceKey),
		RandomVoice:      opts.RandomVoice,
		RandomFilter:     opts.RandomFilter,
		LengthScale:      scale,
		Author:           strings.TrimSpace(opts.Author),
		Title:            strings.TrimSpace(opts.Title),
		Status:           JobStatusPending,
		CurrentFileIndex: -1,
	}
}

// MarkRunning moves a pending job into in_progress.
func (j *ConversionJob) MarkRunning() {
	if j.Status == JobStatusPending {
		j.Status = JobStatusInProgress
	}
}

// MarkCompleted finishes a running job. Terminal states are absorbing, so a
// late success never overrides an earlier cancellation or failure.
func (j *ConversionJob) MarkCompleted() {
	if j.Status.IsTerminal() {
		return
	}
	j.Status = JobStatusCompleted
	j.Progress = 100
}

// MarkFailed records a failure message unless the job already ended.
func (j *ConversionJob) MarkFailed(message string) {
	if j.Status.IsTerminal() {
		return
	}
	j.Status = JobStatusFailed
	j.ErrorMessage = message
}

// MarkCancelled ends the job as cancelled unless it already ended. A process
// exit observed after cancellation keeps the cancelled status.
func (j *ConversionJob) MarkCancelled() {
	if j.Status.IsTerminal() {
		return
	}
	j.Status = JobStatusCancelled
}

// CurrentFile returns the input file currently being converted.
func (j *ConversionJob) CurrentFile() (string, bool) {
	if j.CurrentFileIndex < 0 || j.CurrentFileIndex >= len(j.Files) {
		return "", false
	}
	return j.Files[j.CurrentFileIndex], true
}

// FileCount returns the number of queued input files.
func (j *ConversionJob) FileCount() int {
	return len(j.Files)
}

// AddLog appends one line of process output to the job history.
func (j *ConversionJob) AddLog(line string) {
	j.LogMessages = append(j.LogMessages, line)
}

// AddOutput records one produced audiobook artifact.
func (j *ConversionJob) AddOutput(path string) {
	j.OutputFiles = append(j.OutputFiles, path)
}

// Speed converts the job's length scale to the user-facing speed multiplier.
func (j *ConversionJob) Speed() float64 {
	return LengthScaleToSpeed(j.LengthScale)
}

// SpeedToLengthScale converts a speed multiplier to the synthesis length
// scale, rounded to three decimals. Speed 2.0 maps to scale 0.5.
func SpeedToLengthScale(speed float64) float64 {
	if speed <= 0 {
		return 1.0
	}
	return math.Round(1000/speed) / 1000
}

// LengthScaleToSpeed converts a synthesis length scale back to the speed
// multiplier, rounded to one decimal. Scale 0.5 maps to speed 2.0.
func LengthScaleToSpeed(scale float64) float64 {
	if scale <= 0 {
		return 1.0
	}
	return math.Round(10/scale) / 10
}
