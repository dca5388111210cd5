package models

import (
	"time"

	"gorm.io/gorm"
)

// JobStatus represents the current status of a processing job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting in the scheduler queue.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently executing.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusSkipped indicates the job finished without producing output
	// (for example, the bilingual subtitles were empty).
	JobStatusSkipped JobStatus = "skipped"
)

// IsTerminal reports whether the status is a terminal state.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusSkipped:
		return true
	default:
		return false
	}
}

// Valid reports whether the status is a known value.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed, JobStatusSkipped:
		return true
	default:
		return false
	}
}

// JobHistory stores one record per finished processing job. Records are
// written on the terminal event only; in-flight state lives in memory.
type JobHistory struct {
	BaseModel

	// JobID is the runtime identifier assigned at submission.
	JobID ULID `gorm:"type:varchar(26);not null;index" json:"job_id"`

	// InputPath is the source video file.
	InputPath string `gorm:"size:1024;not null" json:"input_path"`

	// OutputPath is the produced video, empty for failed or skipped jobs.
	OutputPath string `gorm:"size:1024" json:"output_path,omitempty"`

	// Engine is the translation provider used ("llm" or "free").
	Engine string `gorm:"size:20;not null" json:"engine"`

	// Status is the terminal status of the job.
	Status JobStatus `gorm:"not null;size:20;index" json:"status"`

	// Detail is a short human-readable outcome description.
	Detail string `gorm:"size:4096" json:"detail,omitempty"`

	// StartedAt is when the worker began executing.
	StartedAt *Time `gorm:"index" json:"started_at,omitempty"`

	// CompletedAt is when the job reached its terminal state.
	CompletedAt *Time `gorm:"index" json:"completed_at,omitempty"`

	// DurationMs is the execution duration in milliseconds.
	DurationMs int64 `json:"duration_ms,omitempty"`
}

// TableName returns the table name for JobHistory.
func (JobHistory) TableName() string {
	return "job_history"
}

// Validate performs basic validation on the history record.
func (h *JobHistory) Validate() error {
	if h.InputPath == "" {
		return ErrInputPathRequired
	}
	if h.Engine == "" {
		return ErrEngineRequired
	}
	if !h.Status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the record and generates a ULID.
func (h *JobHistory) BeforeCreate(tx *gorm.DB) error {
	if err := h.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return h.Validate()
}

// NewJobHistory builds a history record from a finished job.
func NewJobHistory(jobID ULID, inputPath, outputPath, engine string, status JobStatus, detail string, startedAt, completedAt time.Time) *JobHistory {
	started := startedAt
	completed := completedAt
	return &JobHistory{
		JobID:       jobID,
		InputPath:   inputPath,
		OutputPath:  outputPath,
		Engine:      engine,
		Status:      status,
		Detail:      detail,
		StartedAt:   &started,
		CompletedAt: &completed,
		DurationMs:  completedAt.Sub(startedAt).Milliseconds(),
	}
}
