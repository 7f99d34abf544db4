package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-adp-api/internal/models"
	"github.com/noah-isme/lms-adp-api/internal/ordering"
)

const (
	videoTable     = "module_videos"
	videoParentCol = "module_id"
)

// VideoRepository handles persistence of module videos, mirroring the
// ordered-set operations of ModuleRepository over the module scope.
type VideoRepository struct {
	db *sqlx.DB
}

// NewVideoRepository constructs the repository.
func NewVideoRepository(db *sqlx.DB) *VideoRepository {
	return &VideoRepository{db: db}
}

// ListByModule returns the videos of a module in position order.
func (r *VideoRepository) ListByModule(ctx context.Context, moduleID string) ([]models.Video, error) {
	const query = `SELECT id, module_id, title, url, duration_seconds, position, published, created_at, updated_at
        FROM module_videos WHERE module_id = $1 ORDER BY position`
	var videos []models.Video
	if err := r.db.SelectContext(ctx, &videos, query, moduleID); err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	return videos, nil
}

// FindByID returns a video by its ID.
func (r *VideoRepository) FindByID(ctx context.Context, id string) (*models.Video, error) {
	const query = `SELECT id, module_id, title, url, duration_seconds, position, published, created_at, updated_at FROM module_videos WHERE id = $1`
	var video models.Video
	if err := r.db.GetContext(ctx, &video, query, id); err != nil {
		return nil, err
	}
	return &video, nil
}

// InsertAt creates a video inside one transaction. desired == 0 appends.
func (r *VideoRepository) InsertAt(ctx context.Context, video *models.Video, desired int) (err error) {
	if video.ID == "" {
		video.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	video.CreatedAt = now
	video.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert video: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	items, err := lockScope(ctx, tx, videoTable, videoParentCol, video.ModuleID)
	if err != nil {
		return err
	}

	if desired == 0 {
		video.Position = ordering.NextPosition(items)
	} else {
		pos, shift, planErr := ordering.PlanInsert(items, desired)
		if planErr != nil {
			return planErr
		}
		if err = applyShift(ctx, tx, videoTable, videoParentCol, video.ModuleID, shift); err != nil {
			return err
		}
		video.Position = pos
	}

	const insert = `INSERT INTO module_videos (id, module_id, title, url, duration_seconds, position, published, created_at, updated_at)
        VALUES (:id, :module_id, :title, :url, :duration_seconds, :position, :published, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insert, video); err != nil {
		return translateTxError(err, "insert video")
	}

	if err = tx.Commit(); err != nil {
		return translateTxError(err, "commit insert video")
	}
	return nil
}

// Move relocates a video within its module.
func (r *VideoRepository) Move(ctx context.Context, id string, newPosition int) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin move video: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var moduleID string
	if err = tx.GetContext(ctx, &moduleID, `SELECT module_id FROM module_videos WHERE id = $1 FOR UPDATE`, id); err != nil {
		return err
	}

	items, err := lockScope(ctx, tx, videoTable, videoParentCol, moduleID)
	if err != nil {
		return err
	}

	shift, err := ordering.PlanMove(items, id, newPosition)
	if err != nil {
		return err
	}
	if shift.Empty() {
		return tx.Commit()
	}
	if err = applyShift(ctx, tx, videoTable, videoParentCol, moduleID, shift); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE module_videos SET position = $2, updated_at = $3 WHERE id = $1`, id, newPosition, time.Now().UTC()); err != nil {
		return translateTxError(err, "move video")
	}

	if err = tx.Commit(); err != nil {
		return translateTxError(err, "commit move video")
	}
	return nil
}

// Remove deletes a video and compacts its siblings in one transaction. The
// student watch rows referencing the video are removed with it.
func (r *VideoRepository) Remove(ctx context.Context, id string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin remove video: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var moduleID string
	if err = tx.GetContext(ctx, &moduleID, `SELECT module_id FROM module_videos WHERE id = $1 FOR UPDATE`, id); err != nil {
		return err
	}

	items, err := lockScope(ctx, tx, videoTable, videoParentCol, moduleID)
	if err != nil {
		return err
	}

	shift, err := ordering.PlanRemove(items, id)
	if err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM video_progress WHERE video_id = $1`, id); err != nil {
		return translateTxError(err, "delete video progress")
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM module_videos WHERE id = $1`, id); err != nil {
		return translateTxError(err, "delete video")
	}
	if err = applyShift(ctx, tx, videoTable, videoParentCol, moduleID, shift); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return translateTxError(err, "commit remove video")
	}
	return nil
}

// Reorder applies a full permutation of the module's video positions.
func (r *VideoRepository) Reorder(ctx context.Context, moduleID string, want map[string]int) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reorder videos: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	items, err := lockScope(ctx, tx, videoTable, videoParentCol, moduleID)
	if err != nil {
		return err
	}

	updates, err := ordering.PlanReorder(items, want)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, u := range updates {
		if _, err = tx.ExecContext(ctx, `UPDATE module_videos SET position = $2, updated_at = $3 WHERE id = $1`, u.ID, u.Position, now); err != nil {
			return translateTxError(err, "reorder videos")
		}
	}

	if err = tx.Commit(); err != nil {
		return translateTxError(err, "commit reorder videos")
	}
	return nil
}

// Update persists metadata changes (title, url, duration, publish flag).
func (r *VideoRepository) Update(ctx context.Context, video *models.Video) error {
	video.UpdatedAt = time.Now().UTC()
	const query = `UPDATE module_videos SET title = :title, url = :url, duration_seconds = :duration_seconds, published = :published, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, video); err != nil {
		return fmt.Errorf("update video: %w", err)
	}
	return nil
}

// BulkSetPublished flips the publish flag for a set of a module's videos.
// The module scope is locked and every supplied id verified against it
// before the update runs, so an id from another module rejects the whole
// batch without touching any row.
func (r *VideoRepository) BulkSetPublished(ctx context.Context, moduleID string, videoIDs []string, published bool) (affected int64, err error) {
	if len(videoIDs) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin bulk publish: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	items, err := lockScope(ctx, tx, videoTable, videoParentCol, moduleID)
	if err != nil {
		return 0, err
	}
	inScope := make(map[string]struct{}, len(items))
	for _, it := range items {
		inScope[it.ID] = struct{}{}
	}
	for _, id := range videoIDs {
		if _, ok := inScope[id]; !ok {
			return 0, fmt.Errorf("%w: %s", ordering.ErrUnknownItem, id)
		}
	}

	placeholders := make([]string, len(videoIDs))
	args := []interface{}{published, time.Now().UTC()}
	for i, id := range videoIDs {
		placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
		args = append(args, id)
	}
	query := fmt.Sprintf(`UPDATE module_videos SET published = $1, updated_at = $2 WHERE id IN (%s)`, strings.Join(placeholders, ","))
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, translateTxError(err, "bulk set published")
	}
	affected, err = res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bulk set published rows: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, translateTxError(err, "commit bulk publish")
	}
	return affected, nil
}
