// Package repository provides data access for persisted subarr entities.
package repository

import (
	"context"

	"github.com/jmylchreest/subarr/internal/models"
)

// JobHistoryRepository persists terminal job outcomes.
type JobHistoryRepository interface {
	// Create stores a history record for a finished job.
	Create(ctx context.Context, record *models.JobHistory) error

	// GetByJobID returns the history record for a runtime job ID, or nil
	// if none exists.
	GetByJobID(ctx context.Context, jobID models.ULID) (*models.JobHistory, error)

	// List returns the most recent records, newest first.
	List(ctx context.Context, limit int) ([]*models.JobHistory, error)

	// ListByStatus returns the most recent records with the given terminal
	// status, newest first.
	ListByStatus(ctx context.Context, status models.JobStatus, limit int) ([]*models.JobHistory, error)

	// DeleteOlderThan removes records completed more than the given number
	// of days ago and returns how many were removed.
	DeleteOlderThan(ctx context.Context, days int) (int64, error)
}
