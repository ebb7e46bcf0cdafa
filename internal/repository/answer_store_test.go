package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screenflow/internal/logger"
	"screenflow/internal/model"
)

// flakyStore wraps a memory store and fails every call while down is set
type flakyStore struct {
	*MemoryAnswerRepo
	down bool
}

var errDown = errors.New("connection refused")

func (s *flakyStore) GetExisting(ctx context.Context, rs, q string) (*model.Answer, error) {
	if s.down {
		return nil, unavailable("get", errDown)
	}
	return s.MemoryAnswerRepo.GetExisting(ctx, rs, q)
}

func (s *flakyStore) Upsert(ctx context.Context, rs, q string, v model.AnswerValue) (*model.Answer, error) {
	if s.down {
		return nil, unavailable("upsert", errDown)
	}
	return s.MemoryAnswerRepo.Upsert(ctx, rs, q, v)
}

func (s *flakyStore) Delete(ctx context.Context, rs, q string) error {
	if s.down {
		return unavailable("delete", errDown)
	}
	return s.MemoryAnswerRepo.Delete(ctx, rs, q)
}

func (s *flakyStore) ScreenVersion(ctx context.Context, rs, screen string) (int64, error) {
	if s.down {
		return 0, unavailable("version", errDown)
	}
	return s.MemoryAnswerRepo.ScreenVersion(ctx, rs, screen)
}

func (s *flakyStore) BumpScreenVersion(ctx context.Context, rs, screen string) (int64, error) {
	if s.down {
		return 0, unavailable("bump", errDown)
	}
	return s.MemoryAnswerRepo.BumpScreenVersion(ctx, rs, screen)
}

func TestMemoryAnswerRepo_UpsertReplacesRow(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAnswerRepo()

	a, err := repo.GetExisting(ctx, "rs", "q")
	require.NoError(t, err)
	assert.Nil(t, a)

	first, err := repo.Upsert(ctx, "rs", "q", model.BoolValue(true))
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Version)

	second, err := repo.Upsert(ctx, "rs", "q", model.NumberValue(3))
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Version)
	assert.Nil(t, second.Bool)
	require.NotNil(t, second.Number)
	assert.Equal(t, 3.0, *second.Number)

	require.NoError(t, repo.Delete(ctx, "rs", "q"))
	a, err = repo.GetExisting(ctx, "rs", "q")
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestMemoryAnswerRepo_ScreenVersions(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAnswerRepo()

	v, err := repo.ScreenVersion(ctx, "rs", "profile")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)

	v, _ = repo.BumpScreenVersion(ctx, "rs", "profile")
	assert.Equal(t, int64(1), v)
	v, _ = repo.BumpScreenVersion(ctx, "rs", "profile")
	assert.Equal(t, int64(2), v)

	other, _ := repo.ScreenVersion(ctx, "rs", "other")
	assert.Equal(t, int64(0), other)
}

func TestFallbackStore_DegradesOnPrimaryFailure(t *testing.T) {
	ctx := context.Background()
	primary := &flakyStore{MemoryAnswerRepo: NewMemoryAnswerRepo()}
	store := NewAnswerStore(PolicyFallback, primary, NewMemoryAnswerRepo(), logger.Nop())

	_, err := store.Upsert(ctx, "rs", "q1", model.BoolValue(true))
	require.NoError(t, err)
	v, err := store.BumpScreenVersion(ctx, "rs", "s")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	primary.down = true

	// reads of rows written before the outage fall back to volatile, which never saw them
	a, err := store.GetExisting(ctx, "rs", "q1")
	require.NoError(t, err)
	assert.Nil(t, a)

	written, err := store.Upsert(ctx, "rs", "q2", model.BoolValue(false))
	require.NoError(t, err)
	require.NotNil(t, written)

	a, err = store.GetExisting(ctx, "rs", "q2")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.False(t, *a.Bool)

	// the version keeps moving forward during the outage
	v, err = store.ScreenVersion(ctx, "rs", "s")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
	v, err = store.BumpScreenVersion(ctx, "rs", "s")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	primary.down = false

	// outage rows stay readable after recovery
	a, err = store.GetExisting(ctx, "rs", "q2")
	require.NoError(t, err)
	require.NotNil(t, a)

	v, err = store.ScreenVersion(ctx, "rs", "s")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
	v, err = store.BumpScreenVersion(ctx, "rs", "s")
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
}

func TestFallbackStore_PrimaryWriteClearsShadowRow(t *testing.T) {
	ctx := context.Background()
	primary := &flakyStore{MemoryAnswerRepo: NewMemoryAnswerRepo(), down: true}
	volatile := NewMemoryAnswerRepo()
	store := NewAnswerStore(PolicyFallback, primary, volatile, logger.Nop())

	_, err := store.Upsert(ctx, "rs", "q", model.BoolValue(true))
	require.NoError(t, err)

	primary.down = false
	_, err = store.Upsert(ctx, "rs", "q", model.BoolValue(false))
	require.NoError(t, err)

	shadow, _ := volatile.GetExisting(ctx, "rs", "q")
	assert.Nil(t, shadow)

	a, err := store.GetExisting(ctx, "rs", "q")
	require.NoError(t, err)
	assert.False(t, *a.Bool)
}

func TestFallbackStore_OutageUpdateSurvivesRecovery(t *testing.T) {
	ctx := context.Background()
	primary := &flakyStore{MemoryAnswerRepo: NewMemoryAnswerRepo()}
	store := NewAnswerStore(PolicyFallback, primary, NewMemoryAnswerRepo(), logger.Nop())

	_, err := store.Upsert(ctx, "rs", "q", model.BoolValue(true))
	require.NoError(t, err)

	primary.down = true
	_, err = store.Upsert(ctx, "rs", "q", model.BoolValue(false))
	require.NoError(t, err)
	primary.down = false

	a, err := store.GetExisting(ctx, "rs", "q")
	require.NoError(t, err)
	require.NotNil(t, a)
	require.NotNil(t, a.Bool)
	assert.False(t, *a.Bool)

	// primary still holds the stale row until the key is written again
	stale, _ := primary.MemoryAnswerRepo.GetExisting(ctx, "rs", "q")
	require.NotNil(t, stale)
	assert.True(t, *stale.Bool)
}

func TestFallbackStore_OutageDeleteHidesPrimaryRow(t *testing.T) {
	ctx := context.Background()
	primary := &flakyStore{MemoryAnswerRepo: NewMemoryAnswerRepo()}
	store := NewAnswerStore(PolicyFallback, primary, NewMemoryAnswerRepo(), logger.Nop())

	_, err := store.Upsert(ctx, "rs", "q", model.BoolValue(true))
	require.NoError(t, err)

	primary.down = true
	require.NoError(t, store.Delete(ctx, "rs", "q"))
	a, err := store.GetExisting(ctx, "rs", "q")
	require.NoError(t, err)
	assert.Nil(t, a)

	primary.down = false
	a, err = store.GetExisting(ctx, "rs", "q")
	require.NoError(t, err)
	assert.Nil(t, a)

	// a primary write lifts the tombstone
	_, err = store.Upsert(ctx, "rs", "q", model.BoolValue(false))
	require.NoError(t, err)
	a, err = store.GetExisting(ctx, "rs", "q")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.False(t, *a.Bool)
}

func TestFallbackStore_OutageUpsertOverridesTombstone(t *testing.T) {
	ctx := context.Background()
	primary := &flakyStore{MemoryAnswerRepo: NewMemoryAnswerRepo()}
	store := NewAnswerStore(PolicyFallback, primary, NewMemoryAnswerRepo(), logger.Nop())

	_, err := store.Upsert(ctx, "rs", "q", model.NumberValue(1))
	require.NoError(t, err)

	primary.down = true
	require.NoError(t, store.Delete(ctx, "rs", "q"))
	_, err = store.Upsert(ctx, "rs", "q", model.NumberValue(2))
	require.NoError(t, err)
	primary.down = false

	a, err := store.GetExisting(ctx, "rs", "q")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, 2.0, *a.Number)
}

func TestPrimaryPolicy_SurfacesFailures(t *testing.T) {
	ctx := context.Background()
	primary := &flakyStore{MemoryAnswerRepo: NewMemoryAnswerRepo(), down: true}
	store := NewAnswerStore(PolicyPrimary, primary, NewMemoryAnswerRepo(), logger.Nop())

	_, err := store.Upsert(ctx, "rs", "q", model.BoolValue(true))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestParseStorePolicy(t *testing.T) {
	p, err := ParseStorePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyFallback, p)

	p, err = ParseStorePolicy(" Volatile ")
	require.NoError(t, err)
	assert.Equal(t, PolicyVolatile, p)

	_, err = ParseStorePolicy("sqlite")
	assert.Error(t, err)
}

func TestMemoryQuestionRepo_OrdersByPosition(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryQuestionRepo([]model.Question{
		{ID: "q2", ScreenKey: "s", Position: 2, Kind: model.AnswerKindNumber},
		{ID: "q1", ScreenKey: "s", Position: 1, Kind: model.AnswerKindBoolean},
		{ID: "q3", ScreenKey: "s", Position: 3, Kind: model.AnswerKindBoolean, ParentID: "q1", VisibleIfValues: []string{"true"}},
		{ID: "x", ScreenKey: "other", Position: 1, Kind: model.AnswerKindLongText},
	})

	qs, err := repo.ListQuestionsForScreen(ctx, "s")
	require.NoError(t, err)
	require.Len(t, qs, 3)
	assert.Equal(t, "q1", qs[0].ID)
	assert.Equal(t, "q2", qs[1].ID)
	assert.Equal(t, "q3", qs[2].ID)

	rules, err := repo.GetVisibilityRulesForScreen(ctx, "s")
	require.NoError(t, err)
	assert.True(t, rules["q1"].Unconditional())
	assert.Equal(t, "q1", rules["q3"].ParentID)

	screen, _ := repo.GetScreenKeyFor(ctx, "x")
	assert.Equal(t, "other", screen)
	kind, _ := repo.GetAnswerKindFor(ctx, "q2")
	assert.Equal(t, model.AnswerKindNumber, kind)

	missing, err := repo.GetQuestion(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	// moving a question to another screen
	require.NoError(t, repo.Upsert(ctx, &model.Question{ID: "q2", ScreenKey: "other", Position: 0}))
	qs, _ = repo.ListQuestionsForScreen(ctx, "s")
	assert.Len(t, qs, 2)
	qs, _ = repo.ListQuestionsForScreen(ctx, "other")
	require.Len(t, qs, 2)
	assert.Equal(t, "q2", qs[0].ID)
}
