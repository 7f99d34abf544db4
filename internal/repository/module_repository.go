package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-adp-api/internal/models"
	"github.com/noah-isme/lms-adp-api/internal/ordering"
)

const (
	moduleTable     = "course_modules"
	moduleParentCol = "course_id"
)

// ModuleRepository handles persistence of course modules, including the
// transactional ordered-set operations over the course scope.
type ModuleRepository struct {
	db *sqlx.DB
}

// NewModuleRepository constructs the repository.
func NewModuleRepository(db *sqlx.DB) *ModuleRepository {
	return &ModuleRepository{db: db}
}

// ListByCourse returns the modules of a course in position order.
func (r *ModuleRepository) ListByCourse(ctx context.Context, courseID string) ([]models.ModuleDetail, error) {
	const query = `SELECT m.id, m.course_id, m.title, m.description, m.position, m.published, m.created_at, m.updated_at,
        COUNT(v.id) AS video_count
        FROM course_modules m
        LEFT JOIN module_videos v ON v.module_id = m.id
        WHERE m.course_id = $1
        GROUP BY m.id
        ORDER BY m.position`
	var modules []models.ModuleDetail
	if err := r.db.SelectContext(ctx, &modules, query, courseID); err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	return modules, nil
}

// FindByID returns a module by its ID.
func (r *ModuleRepository) FindByID(ctx context.Context, id string) (*models.Module, error) {
	const query = `SELECT id, course_id, title, description, position, published, created_at, updated_at FROM course_modules WHERE id = $1`
	var module models.Module
	if err := r.db.GetContext(ctx, &module, query, id); err != nil {
		return nil, err
	}
	return &module, nil
}

// InsertAt creates a module inside one transaction. desired == 0 appends;
// any other value is planned against the locked scope, shifting siblings
// right before the insert so the scope stays dense.
func (r *ModuleRepository) InsertAt(ctx context.Context, module *models.Module, desired int) (err error) {
	if module.ID == "" {
		module.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	module.CreatedAt = now
	module.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert module: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	items, err := lockScope(ctx, tx, moduleTable, moduleParentCol, module.CourseID)
	if err != nil {
		return err
	}

	if desired == 0 {
		module.Position = ordering.NextPosition(items)
	} else {
		pos, shift, planErr := ordering.PlanInsert(items, desired)
		if planErr != nil {
			return planErr
		}
		if err = applyShift(ctx, tx, moduleTable, moduleParentCol, module.CourseID, shift); err != nil {
			return err
		}
		module.Position = pos
	}

	const insert = `INSERT INTO course_modules (id, course_id, title, description, position, published, created_at, updated_at)
        VALUES (:id, :course_id, :title, :description, :position, :published, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insert, module); err != nil {
		return translateTxError(err, "insert module")
	}

	if err = tx.Commit(); err != nil {
		return translateTxError(err, "commit insert module")
	}
	return nil
}

// Move relocates a module within its course, shifting the displaced range
// of siblings in the same transaction.
func (r *ModuleRepository) Move(ctx context.Context, id string, newPosition int) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin move module: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var courseID string
	if err = tx.GetContext(ctx, &courseID, `SELECT course_id FROM course_modules WHERE id = $1 FOR UPDATE`, id); err != nil {
		return err
	}

	items, err := lockScope(ctx, tx, moduleTable, moduleParentCol, courseID)
	if err != nil {
		return err
	}

	shift, err := ordering.PlanMove(items, id, newPosition)
	if err != nil {
		return err
	}
	if shift.Empty() {
		// Already at the requested position.
		return tx.Commit()
	}
	if err = applyShift(ctx, tx, moduleTable, moduleParentCol, courseID, shift); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE course_modules SET position = $2, updated_at = $3 WHERE id = $1`, id, newPosition, time.Now().UTC()); err != nil {
		return translateTxError(err, "move module")
	}

	if err = tx.Commit(); err != nil {
		return translateTxError(err, "commit move module")
	}
	return nil
}

// Remove deletes a module together with its videos and compacts the
// remaining sibling positions, all in one transaction.
func (r *ModuleRepository) Remove(ctx context.Context, id string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin remove module: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var courseID string
	if err = tx.GetContext(ctx, &courseID, `SELECT course_id FROM course_modules WHERE id = $1 FOR UPDATE`, id); err != nil {
		return err
	}

	items, err := lockScope(ctx, tx, moduleTable, moduleParentCol, courseID)
	if err != nil {
		return err
	}

	shift, err := ordering.PlanRemove(items, id)
	if err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM module_videos WHERE module_id = $1`, id); err != nil {
		return translateTxError(err, "delete module videos")
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM course_modules WHERE id = $1`, id); err != nil {
		return translateTxError(err, "delete module")
	}
	if err = applyShift(ctx, tx, moduleTable, moduleParentCol, courseID, shift); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return translateTxError(err, "commit remove module")
	}
	return nil
}

// Reorder applies a full permutation of the course's module positions. The
// permutation is validated against the locked scope; a mismatched id set
// writes nothing.
func (r *ModuleRepository) Reorder(ctx context.Context, courseID string, want map[string]int) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reorder modules: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	items, err := lockScope(ctx, tx, moduleTable, moduleParentCol, courseID)
	if err != nil {
		return err
	}

	updates, err := ordering.PlanReorder(items, want)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, u := range updates {
		if _, err = tx.ExecContext(ctx, `UPDATE course_modules SET position = $2, updated_at = $3 WHERE id = $1`, u.ID, u.Position, now); err != nil {
			return translateTxError(err, "reorder modules")
		}
	}

	if err = tx.Commit(); err != nil {
		return translateTxError(err, "commit reorder modules")
	}
	return nil
}

// Update persists title, description, and publish flag changes.
func (r *ModuleRepository) Update(ctx context.Context, module *models.Module) error {
	module.UpdatedAt = time.Now().UTC()
	const query = `UPDATE course_modules SET title = :title, description = :description, published = :published, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, module); err != nil {
		return fmt.Errorf("update module: %w", err)
	}
	return nil
}
