package service

import (
	"context"
	"database/sql"
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

// mockModuleRepo keeps modules in memory and reproduces the dense
// position maintenance the SQL layer performs.
type mockModuleRepo struct {
	modules map[string]models.Module
	moveErr error
}

func (m *mockModuleRepo) byCourse(courseID string) []models.Module {
	var list []models.Module
	for _, mod := range m.modules {
		if mod.CourseID == courseID {
			list = append(list, mod)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Position < list[j].Position })
	return list
}

func (m *mockModuleRepo) ListByCourse(ctx context.Context, courseID string) ([]models.ModuleDetail, error) {
	var list []models.ModuleDetail
	for _, mod := range m.byCourse(courseID) {
		list = append(list, models.ModuleDetail{Module: mod})
	}
	return list, nil
}

func (m *mockModuleRepo) FindByID(ctx context.Context, id string) (*models.Module, error) {
	if mod, ok := m.modules[id]; ok {
		return &mod, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockModuleRepo) InsertAt(ctx context.Context, module *models.Module, desired int) error {
	if m.modules == nil {
		m.modules = make(map[string]models.Module)
	}
	siblings := m.byCourse(module.CourseID)
	items := make([]ordering.Item, len(siblings))
	for i, s := range siblings {
		items[i] = ordering.Item{ID: s.ID, Position: s.Position}
	}
	if desired == 0 {
		module.Position = ordering.NextPosition(items)
	} else {
		pos, shift, err := ordering.PlanInsert(items, desired)
		if err != nil {
			return err
		}
		module.Position = pos
		m.applyShift(module.CourseID, shift)
	}
	m.modules[module.ID] = *module
	return nil
}

func (m *mockModuleRepo) Move(ctx context.Context, id string, newPosition int) error {
	if m.moveErr != nil {
		return m.moveErr
	}
	mod, ok := m.modules[id]
	if !ok {
		return sql.ErrNoRows
	}
	siblings := m.byCourse(mod.CourseID)
	items := make([]ordering.Item, len(siblings))
	for i, s := range siblings {
		items[i] = ordering.Item{ID: s.ID, Position: s.Position}
	}
	shift, err := ordering.PlanMove(items, id, newPosition)
	if err != nil {
		return err
	}
	m.applyShift(mod.CourseID, shift)
	mod = m.modules[id]
	mod.Position = newPosition
	m.modules[id] = mod
	return nil
}

func (m *mockModuleRepo) Remove(ctx context.Context, id string) error {
	mod, ok := m.modules[id]
	if !ok {
		return sql.ErrNoRows
	}
	siblings := m.byCourse(mod.CourseID)
	items := make([]ordering.Item, len(siblings))
	for i, s := range siblings {
		items[i] = ordering.Item{ID: s.ID, Position: s.Position}
	}
	shift, err := ordering.PlanRemove(items, id)
	if err != nil {
		return err
	}
	delete(m.modules, id)
	m.applyShift(mod.CourseID, shift)
	return nil
}

func (m *mockModuleRepo) Reorder(ctx context.Context, courseID string, want map[string]int) error {
	siblings := m.byCourse(courseID)
	items := make([]ordering.Item, len(siblings))
	for i, s := range siblings {
		items[i] = ordering.Item{ID: s.ID, Position: s.Position}
	}
	updates, err := ordering.PlanReorder(items, want)
	if err != nil {
		return err
	}
	for _, u := range updates {
		mod := m.modules[u.ID]
		mod.Position = u.Position
		m.modules[u.ID] = mod
	}
	return nil
}

func (m *mockModuleRepo) Update(ctx context.Context, module *models.Module) error {
	m.modules[module.ID] = *module
	return nil
}

func (m *mockModuleRepo) applyShift(courseID string, shift ordering.Shift) {
	if shift.Empty() {
		return
	}
	for id, mod := range m.modules {
		if mod.CourseID != courseID {
			continue
		}
		if mod.Position >= shift.From && mod.Position <= shift.To {
			mod.Position += shift.Delta
			m.modules[id] = mod
		}
	}
}

type mockCourseReader struct {
	courses map[string]*models.Course
}

func (m *mockCourseReader) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

type mockInvalidator struct {
	courses []string
}

func (m *mockInvalidator) InvalidateCourse(ctx context.Context, courseID string) error {
	m.courses = append(m.courses, courseID)
	return nil
}

func newModuleFixture(t *testing.T, titles ...string) (*ModuleService, *mockModuleRepo, *mockInvalidator, string, []string) {
	t.Helper()
	courseID := uuid.NewString()
	repo := &mockModuleRepo{modules: make(map[string]models.Module)}
	courses := &mockCourseReader{courses: map[string]*models.Course{courseID: {ID: courseID, Published: true}}}
	cache := &mockInvalidator{}
	svc := NewModuleService(repo, courses, cache, validator.New(), zap.NewNop())

	ids := make([]string, len(titles))
	for i, title := range titles {
		mod, err := svc.Create(context.Background(), CreateModuleRequest{CourseID: courseID, Title: title})
		require.NoError(t, err)
		ids[i] = mod.ID
	}
	return svc, repo, cache, courseID, ids
}

func coursePositions(repo *mockModuleRepo, courseID string) map[string]int {
	got := make(map[string]int)
	for _, mod := range repo.byCourse(courseID) {
		got[mod.ID] = mod.Position
	}
	return got
}

func intPtr(v int) *int { return &v }

func TestModuleCreateAppendsWhenPositionOmitted(t *testing.T) {
	_, repo, _, courseID, ids := newModuleFixture(t, "Intro", "Basics", "Advanced")

	positions := coursePositions(repo, courseID)
	assert.Equal(t, 1, positions[ids[0]])
	assert.Equal(t, 2, positions[ids[1]])
	assert.Equal(t, 3, positions[ids[2]])
}

func TestModuleCreateAtPositionShiftsSiblings(t *testing.T) {
	svc, repo, _, courseID, ids := newModuleFixture(t, "Intro", "Basics")

	mod, err := svc.Create(context.Background(), CreateModuleRequest{CourseID: courseID, Title: "Setup", Position: intPtr(2)})
	require.NoError(t, err)
	assert.Equal(t, 2, mod.Position)

	positions := coursePositions(repo, courseID)
	assert.Equal(t, 1, positions[ids[0]])
	assert.Equal(t, 3, positions[ids[1]])
}

func TestModuleCreateRejectsExplicitZeroPosition(t *testing.T) {
	svc, repo, _, courseID, _ := newModuleFixture(t, "Intro")

	// Zero is only an append when the field is absent. Sending it
	// explicitly is an input error, not an append.
	_, err := svc.Create(context.Background(), CreateModuleRequest{CourseID: courseID, Title: "Setup", Position: intPtr(0)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Len(t, repo.byCourse(courseID), 1)
}

func TestModuleCreateUnknownCourse(t *testing.T) {
	svc, _, _, _, _ := newModuleFixture(t)

	_, err := svc.Create(context.Background(), CreateModuleRequest{CourseID: uuid.NewString(), Title: "Orphan"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestModuleMoveOutOfRangeIsValidationError(t *testing.T) {
	svc, _, _, _, ids := newModuleFixture(t, "Intro", "Basics")

	_, err := svc.Move(context.Background(), ids[0], 5)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Move(context.Background(), ids[0], 0)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestModuleMoveRelocatesAndStaysDense(t *testing.T) {
	svc, repo, _, courseID, ids := newModuleFixture(t, "A", "B", "C", "D")

	moved, err := svc.Move(context.Background(), ids[0], 3)
	require.NoError(t, err)
	assert.Equal(t, 3, moved.Position)

	positions := coursePositions(repo, courseID)
	assert.Equal(t, map[string]int{ids[1]: 1, ids[2]: 2, ids[0]: 3, ids[3]: 4}, positions)
}

func TestModuleMoveConflictSurfacesAsConflict(t *testing.T) {
	svc, repo, _, _, ids := newModuleFixture(t, "A", "B")
	repo.moveErr = appErrors.Clone(appErrors.ErrConflict, "conflicting concurrent modification")

	_, err := svc.Move(context.Background(), ids[0], 2)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestModuleDeleteCompactsAndInvalidatesCache(t *testing.T) {
	svc, repo, cache, courseID, ids := newModuleFixture(t, "A", "B", "C")
	cache.courses = nil

	require.NoError(t, svc.Delete(context.Background(), ids[1]))

	positions := coursePositions(repo, courseID)
	assert.Equal(t, map[string]int{ids[0]: 1, ids[2]: 2}, positions)
	assert.Contains(t, cache.courses, courseID)
}

func TestModuleReorderAppliesFullPermutation(t *testing.T) {
	svc, repo, _, courseID, ids := newModuleFixture(t, "A", "B", "C")

	result, err := svc.Reorder(context.Background(), courseID, ReorderModulesRequest{ModuleIDs: []string{ids[2], ids[0], ids[1]}})
	require.NoError(t, err)
	require.Len(t, result, 3)
	assert.Equal(t, ids[2], result[0].ID)
	assert.Equal(t, ids[0], result[1].ID)
	assert.Equal(t, ids[1], result[2].ID)

	positions := coursePositions(repo, courseID)
	assert.Equal(t, map[string]int{ids[2]: 1, ids[0]: 2, ids[1]: 3}, positions)
}

func TestModuleReorderRejectsPartialList(t *testing.T) {
	svc, _, _, courseID, ids := newModuleFixture(t, "A", "B", "C")

	_, err := svc.Reorder(context.Background(), courseID, ReorderModulesRequest{ModuleIDs: []string{ids[0], ids[1]}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrScopeMismatch.Code, appErrors.FromError(err).Code)
}

func TestModuleReorderRejectsForeignID(t *testing.T) {
	svc, _, _, courseID, ids := newModuleFixture(t, "A", "B")

	_, err := svc.Reorder(context.Background(), courseID, ReorderModulesRequest{ModuleIDs: []string{ids[0], uuid.NewString()}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrScopeMismatch.Code, appErrors.FromError(err).Code)
}

func TestModuleReorderRejectsDuplicateID(t *testing.T) {
	svc, _, _, courseID, ids := newModuleFixture(t, "A", "B")

	_, err := svc.Reorder(context.Background(), courseID, ReorderModulesRequest{ModuleIDs: []string{ids[0], ids[0]}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestModuleUpdateDoesNotTouchPosition(t *testing.T) {
	svc, repo, _, courseID, ids := newModuleFixture(t, "A", "B")

	updated, err := svc.Update(context.Background(), ids[0], UpdateModuleRequest{Title: "Renamed", Published: true})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, 1, coursePositions(repo, courseID)[ids[0]])
}
