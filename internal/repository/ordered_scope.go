package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/lms-adp-api/internal/ordering"
	appErrors "github.com/noah-isme/lms-adp-api/pkg/errors"
)

// lockScope reads the (id, position) tuples of one parent scope and locks
// the rows for the remainder of the transaction. Every ordered-set mutation
// starts here so that concurrent mutations on the same scope serialize on
// the row locks instead of computing shifts against stale snapshots.
func lockScope(ctx context.Context, tx *sqlx.Tx, table, parentColumn, parentID string) ([]ordering.Item, error) {
	query := fmt.Sprintf(`SELECT id, position FROM %s WHERE %s = $1 ORDER BY position FOR UPDATE`, table, parentColumn)
	rows, err := tx.QueryxContext(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("lock %s scope: %w", table, err)
	}
	defer rows.Close()

	var items []ordering.Item
	for rows.Next() {
		var it ordering.Item
		if err := rows.Scan(&it.ID, &it.Position); err != nil {
			return nil, fmt.Errorf("scan %s scope: %w", table, err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s scope: %w", table, err)
	}
	return items, nil
}

// applyShift executes one planned range shift as a single UPDATE.
func applyShift(ctx context.Context, tx *sqlx.Tx, table, parentColumn, parentID string, shift ordering.Shift) error {
	if shift.Empty() {
		return nil
	}
	query := fmt.Sprintf(`UPDATE %s SET position = position + $2 WHERE %s = $1 AND position BETWEEN $3 AND $4`, table, parentColumn)
	if _, err := tx.ExecContext(ctx, query, parentID, shift.Delta, shift.From, shift.To); err != nil {
		return fmt.Errorf("shift %s positions: %w", table, err)
	}
	return nil
}

// translateTxError maps Postgres serialization and deadlock failures onto
// ErrConflict so callers can safely re-read and retry; the losing
// transaction has been rolled back whole, leaving the invariant intact.
func translateTxError(err error, msg string) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01":
			return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "concurrent modification of the same scope")
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}
