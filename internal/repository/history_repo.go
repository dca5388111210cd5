package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jmylchreest/subarr/internal/models"
)

// historyRepo implements JobHistoryRepository using GORM.
type historyRepo struct {
	db *gorm.DB
}

// NewJobHistoryRepository creates a new JobHistoryRepository.
func NewJobHistoryRepository(db *gorm.DB) JobHistoryRepository {
	return &historyRepo{db: db}
}

// Create stores a history record for a finished job.
func (r *historyRepo) Create(ctx context.Context, record *models.JobHistory) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("creating job history: %w", err)
	}
	return nil
}

// GetByJobID returns the history record for a runtime job ID, or nil if none exists.
func (r *historyRepo) GetByJobID(ctx context.Context, jobID models.ULID) (*models.JobHistory, error) {
	var record models.JobHistory
	if err := r.db.WithContext(ctx).Where("job_id = ?", jobID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting job history by job ID: %w", err)
	}
	return &record, nil
}

// List returns the most recent records, newest first.
func (r *historyRepo) List(ctx context.Context, limit int) ([]*models.JobHistory, error) {
	var records []*models.JobHistory
	q := r.db.WithContext(ctx).Order("completed_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("listing job history: %w", err)
	}
	return records, nil
}

// ListByStatus returns the most recent records with the given terminal status.
func (r *historyRepo) ListByStatus(ctx context.Context, status models.JobStatus, limit int) ([]*models.JobHistory, error) {
	var records []*models.JobHistory
	q := r.db.WithContext(ctx).Where("status = ?", status).Order("completed_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("listing job history by status: %w", err)
	}
	return records, nil
}

// DeleteOlderThan removes records completed more than the given number of days ago.
func (r *historyRepo) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	result := r.db.WithContext(ctx).
		Where("completed_at < ?", cutoff).
		Delete(&models.JobHistory{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting old job history: %w", result.Error)
	}
	return result.RowsAffected, nil
}
