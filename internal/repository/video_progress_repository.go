package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-adp-api/internal/models"
)

// VideoProgressRepository handles per-user watch state and the aggregate
// queries behind course completion.
type VideoProgressRepository struct {
	db *sqlx.DB
}

// NewVideoProgressRepository constructs the repository.
func NewVideoProgressRepository(db *sqlx.DB) *VideoProgressRepository {
	return &VideoProgressRepository{db: db}
}

// Upsert writes the watch state keyed by (user_id, video_id), overwriting
// watched_seconds and is_completed and refreshing last_watched_at.
func (r *VideoProgressRepository) Upsert(ctx context.Context, progress *models.VideoProgress) error {
	if progress.ID == "" {
		progress.ID = uuid.NewString()
	}
	if progress.LastWatchedAt.IsZero() {
		progress.LastWatchedAt = time.Now().UTC()
	}
	const query = `INSERT INTO video_progress (id, user_id, video_id, watched_seconds, is_completed, last_watched_at)
        VALUES (:id, :user_id, :video_id, :watched_seconds, :is_completed, :last_watched_at)
        ON CONFLICT (user_id, video_id) DO UPDATE
        SET watched_seconds = EXCLUDED.watched_seconds,
            is_completed = EXCLUDED.is_completed,
            last_watched_at = EXCLUDED.last_watched_at`
	if _, err := r.db.NamedExecContext(ctx, query, progress); err != nil {
		return fmt.Errorf("upsert video progress: %w", err)
	}
	return nil
}

// FindByUserAndVideo returns the stored watch state for the pair.
func (r *VideoProgressRepository) FindByUserAndVideo(ctx context.Context, userID, videoID string) (*models.VideoProgress, error) {
	const query = `SELECT id, user_id, video_id, watched_seconds, is_completed, last_watched_at FROM video_progress WHERE user_id = $1 AND video_id = $2`
	var progress models.VideoProgress
	if err := r.db.GetContext(ctx, &progress, query, userID, videoID); err != nil {
		return nil, err
	}
	return &progress, nil
}

// ListByUserAndModule returns a user's watch rows for one module's videos.
func (r *VideoProgressRepository) ListByUserAndModule(ctx context.Context, userID, moduleID string) ([]models.VideoProgress, error) {
	const query = `SELECT p.id, p.user_id, p.video_id, p.watched_seconds, p.is_completed, p.last_watched_at
        FROM video_progress p
        JOIN module_videos v ON v.id = p.video_id
        WHERE p.user_id = $1 AND v.module_id = $2
        ORDER BY v.position`
	var rows []models.VideoProgress
	if err := r.db.SelectContext(ctx, &rows, query, userID, moduleID); err != nil {
		return nil, fmt.Errorf("list module progress: %w", err)
	}
	return rows, nil
}

// CountPublishedModules returns the number of modules counted toward a
// course's completion.
func (r *VideoProgressRepository) CountPublishedModules(ctx context.Context, courseID string) (int, error) {
	const query = `SELECT COUNT(*) FROM course_modules WHERE course_id = $1 AND published = TRUE`
	var count int
	if err := r.db.GetContext(ctx, &count, query, courseID); err != nil {
		return 0, fmt.Errorf("count published modules: %w", err)
	}
	return count, nil
}

// CountCompletedModules returns how many of a course's published modules the
// user has completed. A module counts when it has at least one published
// video and none of its published videos lacks a completed watch row.
func (r *VideoProgressRepository) CountCompletedModules(ctx context.Context, userID, courseID string) (int, error) {
	const query = `SELECT COUNT(*) FROM course_modules m
        WHERE m.course_id = $1 AND m.published = TRUE
        AND EXISTS (
            SELECT 1 FROM module_videos v
            WHERE v.module_id = m.id AND v.published = TRUE)
        AND NOT EXISTS (
            SELECT 1 FROM module_videos v
            LEFT JOIN video_progress p ON p.video_id = v.id AND p.user_id = $2
            WHERE v.module_id = m.id AND v.published = TRUE
            AND (p.is_completed IS NOT TRUE))`
	var count int
	if err := r.db.GetContext(ctx, &count, query, courseID, userID); err != nil {
		return 0, fmt.Errorf("count completed modules: %w", err)
	}
	return count, nil
}
