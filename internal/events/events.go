// Package events defines the typed pipeline event stream shared by all
// workers and drained by the caller.
package events

import "time"

// Outcome is the terminal result of a job.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// Event is a tagged pipeline event. Concrete variants are the *Event types
// in this package; consumers dispatch with a type switch.
type Event interface {
	eventKind() string
}

// Progress reports per-file completion percent in [0, 100]. For a given
// JobID the percent values are monotonically non-decreasing.
type Progress struct {
	JobID    string
	BaseName string
	Percent  int
}

// Status is a short human-readable description of what a worker is doing.
type Status struct {
	JobID    string
	BaseName string
	Text     string
}

// TimerTick is emitted once per wall-clock second while a job runs.
type TimerTick struct {
	JobID    string
	BaseName string
	Elapsed  string // MM:SS
}

// DownloadStarted announces a first-use model download.
type DownloadStarted struct {
	ModelName string
}

// DownloadProgress reports model download advancement at >= 1 Hz.
type DownloadProgress struct {
	Percent      float64
	DownloadedMB float64
	TotalMB      float64
	SpeedMBps    float64
}

// DownloadCompleted signals a successful model download.
type DownloadCompleted struct {
	ModelName string
}

// DownloadError signals a failed model download.
type DownloadError struct {
	Msg string
}

// JobFinished is the single terminal event for a job. Exactly one is
// emitted per admitted job.
type JobFinished struct {
	JobID     string
	InputPath string
	Outcome   Outcome
	Detail    string
	Duration  time.Duration
}

func (Progress) eventKind() string          { return "progress" }
func (Status) eventKind() string            { return "status" }
func (TimerTick) eventKind() string         { return "timer_tick" }
func (DownloadStarted) eventKind() string   { return "download_started" }
func (DownloadProgress) eventKind() string  { return "download_progress" }
func (DownloadCompleted) eventKind() string { return "download_completed" }
func (DownloadError) eventKind() string     { return "download_error" }
func (JobFinished) eventKind() string       { return "job_finished" }
