package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-adp-api/internal/models"
)

// ReportRepository persists async progress report jobs.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create inserts a queued report job.
func (r *ReportRepository) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = models.ReportStatusQueued
	}
	const query = `INSERT INTO report_jobs (id, course_id, requested_by, format, status, error, result, created_at, updated_at, finished_at)
        VALUES (:id, :course_id, :requested_by, :format, :status, :error, :result, :created_at, :updated_at, :finished_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create report job: %w", err)
	}
	return nil
}

// FindByID returns a report job.
func (r *ReportRepository) FindByID(ctx context.Context, id string) (*models.ReportJob, error) {
	const query = `SELECT id, course_id, requested_by, format, status, error, result, created_at, updated_at, finished_at FROM report_jobs WHERE id = $1`
	var job models.ReportJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// SetProcessing marks a job as picked up by a worker.
func (r *ReportRepository) SetProcessing(ctx context.Context, id string) error {
	const query = `UPDATE report_jobs SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.ReportStatusProcessing, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark report processing: %w", err)
	}
	return nil
}

// SetResult stores the rendered artifact and marks the job done.
func (r *ReportRepository) SetResult(ctx context.Context, id string, result []byte) error {
	now := time.Now().UTC()
	const query = `UPDATE report_jobs SET status = $2, result = $3, updated_at = $4, finished_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.ReportStatusDone, result, now); err != nil {
		return fmt.Errorf("store report result: %w", err)
	}
	return nil
}

// SetFailed records a terminal failure message for the job.
func (r *ReportRepository) SetFailed(ctx context.Context, id string, message string) error {
	now := time.Now().UTC()
	const query = `UPDATE report_jobs SET status = $2, error = $3, updated_at = $4, finished_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.ReportStatusFailed, message, now); err != nil {
		return fmt.Errorf("mark report failed: %w", err)
	}
	return nil
}

// DeleteFinishedBefore purges reports whose results have expired.
func (r *ReportRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM report_jobs WHERE finished_at IS NOT NULL AND finished_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge report jobs: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge report jobs rows: %w", err)
	}
	return affected, nil
}
