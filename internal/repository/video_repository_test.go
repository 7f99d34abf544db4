package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-adp-api/internal/ordering"
)

func expectVideoScopeLock(mock sqlmock.Sqlmock, moduleID string, positions map[string]int) {
	rows := sqlmock.NewRows([]string{"id", "position"})
	ordered := make([]string, len(positions))
	for id, pos := range positions {
		ordered[pos-1] = id
	}
	for pos, id := range ordered {
		rows.AddRow(id, pos+1)
	}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, position FROM module_videos WHERE module_id = $1 ORDER BY position FOR UPDATE")).
		WithArgs(moduleID).
		WillReturnRows(rows)
}

func TestVideoRepositoryBulkSetPublished(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewVideoRepository(db)

	mock.ExpectBegin()
	expectVideoScopeLock(mock, "m1", map[string]int{"v1": 1, "v2": 2})
	mock.ExpectExec(regexp.QuoteMeta("UPDATE module_videos SET published = $1, updated_at = $2 WHERE id IN ($3,$4)")).
		WithArgs(true, sqlmock.AnyArg(), "v1", "v2").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	affected, err := repo.BulkSetPublished(context.Background(), "m1", []string{"v1", "v2"}, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVideoRepositoryBulkSetPublishedForeignIDRollsBack(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewVideoRepository(db)

	mock.ExpectBegin()
	expectVideoScopeLock(mock, "m1", map[string]int{"v1": 1})
	// No UPDATE expected: the foreign id rejects the batch before any write.
	mock.ExpectRollback()

	_, err := repo.BulkSetPublished(context.Background(), "m1", []string{"v1", "other"}, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ordering.ErrUnknownItem))
	assert.NoError(t, mock.ExpectationsWereMet())
}
