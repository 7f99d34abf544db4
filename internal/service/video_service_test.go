package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-adp-api/internal/models"
	"github.com/noah-isme/lms-adp-api/internal/ordering"
	appErrors "github.com/noah-isme/lms-adp-api/pkg/errors"
)

type mockVideoRepo struct {
	videos map[string]models.Video
}

func (m *mockVideoRepo) byModule(moduleID string) []models.Video {
	var list []models.Video
	for _, v := range m.videos {
		if v.ModuleID == moduleID {
			list = append(list, v)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Position < list[j].Position })
	return list
}

func (m *mockVideoRepo) items(moduleID string) []ordering.Item {
	siblings := m.byModule(moduleID)
	items := make([]ordering.Item, len(siblings))
	for i, s := range siblings {
		items[i] = ordering.Item{ID: s.ID, Position: s.Position}
	}
	return items
}

func (m *mockVideoRepo) ListByModule(ctx context.Context, moduleID string) ([]models.Video, error) {
	return m.byModule(moduleID), nil
}

func (m *mockVideoRepo) FindByID(ctx context.Context, id string) (*models.Video, error) {
	if v, ok := m.videos[id]; ok {
		return &v, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockVideoRepo) InsertAt(ctx context.Context, video *models.Video, desired int) error {
	if m.videos == nil {
		m.videos = make(map[string]models.Video)
	}
	items := m.items(video.ModuleID)
	if desired == 0 {
		video.Position = ordering.NextPosition(items)
	} else {
		pos, shift, err := ordering.PlanInsert(items, desired)
		if err != nil {
			return err
		}
		video.Position = pos
		m.applyShift(video.ModuleID, shift)
	}
	m.videos[video.ID] = *video
	return nil
}

func (m *mockVideoRepo) Move(ctx context.Context, id string, newPosition int) error {
	v, ok := m.videos[id]
	if !ok {
		return sql.ErrNoRows
	}
	shift, err := ordering.PlanMove(m.items(v.ModuleID), id, newPosition)
	if err != nil {
		return err
	}
	m.applyShift(v.ModuleID, shift)
	v = m.videos[id]
	v.Position = newPosition
	m.videos[id] = v
	return nil
}

func (m *mockVideoRepo) Remove(ctx context.Context, id string) error {
	v, ok := m.videos[id]
	if !ok {
		return sql.ErrNoRows
	}
	shift, err := ordering.PlanRemove(m.items(v.ModuleID), id)
	if err != nil {
		return err
	}
	delete(m.videos, id)
	m.applyShift(v.ModuleID, shift)
	return nil
}

func (m *mockVideoRepo) Reorder(ctx context.Context, moduleID string, want map[string]int) error {
	updates, err := ordering.PlanReorder(m.items(moduleID), want)
	if err != nil {
		return err
	}
	for _, u := range updates {
		v := m.videos[u.ID]
		v.Position = u.Position
		m.videos[u.ID] = v
	}
	return nil
}

func (m *mockVideoRepo) Update(ctx context.Context, video *models.Video) error {
	m.videos[video.ID] = *video
	return nil
}

func (m *mockVideoRepo) BulkSetPublished(ctx context.Context, moduleID string, videoIDs []string, published bool) (int64, error) {
	for _, id := range videoIDs {
		v, ok := m.videos[id]
		if !ok || v.ModuleID != moduleID {
			return 0, fmt.Errorf("%w: %s", ordering.ErrUnknownItem, id)
		}
	}
	for _, id := range videoIDs {
		v := m.videos[id]
		v.Published = published
		m.videos[id] = v
	}
	return int64(len(videoIDs)), nil
}

func (m *mockVideoRepo) applyShift(moduleID string, shift ordering.Shift) {
	if shift.Empty() {
		return
	}
	for id, v := range m.videos {
		if v.ModuleID != moduleID {
			continue
		}
		if v.Position >= shift.From && v.Position <= shift.To {
			v.Position += shift.Delta
			m.videos[id] = v
		}
	}
}

func newVideoFixture(t *testing.T, titles ...string) (*VideoService, *mockVideoRepo, *mockInvalidator, string, string, []string) {
	t.Helper()
	courseID := uuid.NewString()
	moduleID := uuid.NewString()
	repo := &mockVideoRepo{videos: make(map[string]models.Video)}
	modules := &mockModuleReader{modules: map[string]*models.Module{
		moduleID: {ID: moduleID, CourseID: courseID, Published: true},
	}}
	cache := &mockInvalidator{}
	svc := NewVideoService(repo, modules, cache, validator.New(), zap.NewNop())

	ids := make([]string, len(titles))
	for i, title := range titles {
		video, err := svc.Create(context.Background(), CreateVideoRequest{
			ModuleID: moduleID,
			Title:    title,
			URL:      "https://videos.example.com/" + uuid.NewString(),
		})
		require.NoError(t, err)
		ids[i] = video.ID
	}
	return svc, repo, cache, courseID, moduleID, ids
}

func TestVideoCreateAppendsDense(t *testing.T) {
	_, repo, _, _, moduleID, ids := newVideoFixture(t, "One", "Two", "Three")

	list := repo.byModule(moduleID)
	require.Len(t, list, 3)
	for i, v := range list {
		assert.Equal(t, i+1, v.Position)
		assert.Equal(t, ids[i], v.ID)
	}
}

func TestVideoCreateRejectsExplicitZeroPosition(t *testing.T) {
	svc, repo, _, _, moduleID, _ := newVideoFixture(t, "One")

	_, err := svc.Create(context.Background(), CreateVideoRequest{
		ModuleID: moduleID,
		Title:    "Zero",
		URL:      "https://videos.example.com/zero",
		Position: intPtr(0),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Len(t, repo.byModule(moduleID), 1)
}

func TestVideoCreateInsertsAtPosition(t *testing.T) {
	svc, repo, _, _, moduleID, ids := newVideoFixture(t, "One", "Two")

	video, err := svc.Create(context.Background(), CreateVideoRequest{
		ModuleID: moduleID,
		Title:    "Between",
		URL:      "https://videos.example.com/between",
		Position: intPtr(2),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, video.Position)

	list := repo.byModule(moduleID)
	require.Len(t, list, 3)
	assert.Equal(t, ids[0], list[0].ID)
	assert.Equal(t, video.ID, list[1].ID)
	assert.Equal(t, ids[1], list[2].ID)
}

func TestVideoCreateRejectsBadURL(t *testing.T) {
	svc, _, _, _, moduleID, _ := newVideoFixture(t)

	_, err := svc.Create(context.Background(), CreateVideoRequest{ModuleID: moduleID, Title: "Bad", URL: "not-a-url"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestVideoMoveToFront(t *testing.T) {
	svc, repo, _, _, moduleID, ids := newVideoFixture(t, "One", "Two", "Three")

	moved, err := svc.Move(context.Background(), ids[2], 1)
	require.NoError(t, err)
	assert.Equal(t, 1, moved.Position)

	list := repo.byModule(moduleID)
	assert.Equal(t, []string{ids[2], ids[0], ids[1]}, []string{list[0].ID, list[1].ID, list[2].ID})
}

func TestVideoDeleteCompactsAndInvalidatesCourse(t *testing.T) {
	svc, repo, cache, courseID, moduleID, ids := newVideoFixture(t, "One", "Two", "Three")
	cache.courses = nil

	require.NoError(t, svc.Delete(context.Background(), ids[0]))

	list := repo.byModule(moduleID)
	require.Len(t, list, 2)
	assert.Equal(t, 1, list[0].Position)
	assert.Equal(t, 2, list[1].Position)
	assert.Contains(t, cache.courses, courseID)
}

func TestVideoReorderRejectsForeignVideo(t *testing.T) {
	svc, _, _, _, moduleID, ids := newVideoFixture(t, "One", "Two")

	_, err := svc.Reorder(context.Background(), moduleID, ReorderVideosRequest{VideoIDs: []string{ids[0], uuid.NewString()}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrScopeMismatch.Code, appErrors.FromError(err).Code)
}

func TestVideoBulkPublish(t *testing.T) {
	svc, repo, _, _, moduleID, ids := newVideoFixture(t, "One", "Two")

	affected, err := svc.BulkPublish(context.Background(), moduleID, BulkPublishRequest{VideoIDs: ids, Published: true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)
	for _, id := range ids {
		assert.True(t, repo.videos[id].Published)
	}
}

func TestVideoBulkPublishScopeMismatch(t *testing.T) {
	svc, repo, _, _, moduleID, ids := newVideoFixture(t, "One")

	_, err := svc.BulkPublish(context.Background(), moduleID, BulkPublishRequest{VideoIDs: []string{ids[0], uuid.NewString()}, Published: true})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrScopeMismatch.Code, appErrors.FromError(err).Code)
	// The whole batch is rejected: the id that does belong to the module
	// must not have been published.
	assert.False(t, repo.videos[ids[0]].Published)
}
