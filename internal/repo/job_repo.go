// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the generic job-table operations used
// by the claim/execute/finalize worker. T is any model embedding
// domain.JobState.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-live-presence/internal/domain"
)

// CreateJob inserts a job row.
func CreateJob[T any](ctx context.Context, db *gorm.DB, job *T) error {
	return db.WithContext(ctx).Create(job).Error
}

// SelectNewJobs returns up to limit NEW rows, oldest first.
func SelectNewJobs[T any](ctx context.Context, db *gorm.DB, limit int) ([]T, error) {
	var out []T
	err := db.WithContext(ctx).
		Where("job_status_name = ?", domain.JobStatusNew).
		Order("created_at asc, id asc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ClaimJob moves a row from NEW to IN_PROGRESS and increments its retry
// count in a single conditional UPDATE. It reports false when the row was no
// longer NEW (claimed by another worker, or finalized).
func ClaimJob[T any](ctx context.Context, db *gorm.DB, id string) (bool, error) {
	res := db.WithContext(ctx).
		Model(new(T)).
		Where("id = ? AND job_status_name = ?", id, domain.JobStatusNew).
		Updates(map[string]any{
			"job_status_name": domain.JobStatusInProgress,
			"retries_count":   gorm.Expr("retries_count + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// GetJob fetches a job row by id.
func GetJob[T any](ctx context.Context, db *gorm.DB, id string) (*T, error) {
	var out T
	if err := db.WithContext(ctx).Where("id = ?", id).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

// FinalizeJob moves an IN_PROGRESS row to a terminal status with a message
// and optional result columns. Terminal rows are never reopened: a row that
// is not IN_PROGRESS yields ErrNotFound.
func FinalizeJob[T any](ctx context.Context, db *gorm.DB, id string, status domain.JobStatus, message string, result map[string]any) error {
	updates := map[string]any{
		"job_status_name": status,
		"message":         message,
	}
	for k, v := range result {
		updates[k] = v
	}
	res := db.WithContext(ctx).
		Model(new(T)).
		Where("id = ? AND job_status_name = ?", id, domain.JobStatusInProgress).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountJobs returns the number of rows in T's table.
func CountJobs[T any](ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(new(T)).Count(&total).Error
	return total, err
}

// ListJobsPage returns a page of jobs, most recent first.
func ListJobsPage[T any](ctx context.Context, db *gorm.DB, offset, limit int) ([]T, error) {
	var out []T
	err := db.WithContext(ctx).
		Order("created_at desc, id desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
