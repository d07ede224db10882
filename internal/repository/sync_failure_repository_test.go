package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/indicator-api/internal/domain"
	"github.com/straye-as/indicator-api/internal/repository"
	"github.com/straye-as/indicator-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFailure(submissionID uuid.UUID, kind domain.SyncFailureKind, block int) *domain.SyncFailure {
	return &domain.SyncFailure{
		SubmissionID:  submissionID,
		DirectorateID: "social-assistance",
		Unit:          "north",
		Year:          2024,
		Month:         3,
		SpreadsheetID: "book",
		SheetName:     "North",
		BlockIndex:    block,
		Kind:          kind,
		Message:       "write failed",
	}
}

func TestSyncFailureRepository_CreateDefaults(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewSyncFailureRepository(db)

	f := newFailure(uuid.New(), domain.SyncFailureTransient, 0)
	require.NoError(t, repo.Create(context.Background(), f))

	stored, err := repo.GetByID(context.Background(), f.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 1, stored.Attempts)
	assert.False(t, stored.LastAttemptAt.IsZero())
	assert.Nil(t, stored.ResolvedAt)
}

func TestSyncFailureRepository_ListUnresolved(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	repo := repository.NewSyncFailureRepository(db)

	transient := newFailure(uuid.New(), domain.SyncFailureTransient, 0)
	transient.LastAttemptAt = time.Now().Add(-time.Hour)
	exhausted := newFailure(uuid.New(), domain.SyncFailureTransient, 0)
	exhausted.Attempts = 5
	auth := newFailure(uuid.New(), domain.SyncFailureAuth, 0)
	for _, f := range []*domain.SyncFailure{transient, exhausted, auth} {
		require.NoError(t, repo.Create(ctx, f))
	}

	open, err := repo.ListUnresolved(ctx, domain.SyncFailureTransient, 5, 10)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, transient.ID, open[0].ID)

	all, err := repo.ListUnresolved(ctx, domain.SyncFailureTransient, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	authOnly, err := repo.ListUnresolved(ctx, domain.SyncFailureAuth, 0, 0)
	require.NoError(t, err)
	assert.Len(t, authOnly, 1)
}

func TestSyncFailureRepository_MarkResolved(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	repo := repository.NewSyncFailureRepository(db)

	submissionID := uuid.New()
	first := newFailure(submissionID, domain.SyncFailureTransient, 1)
	second := newFailure(submissionID, domain.SyncFailureTransient, 1)
	otherBlock := newFailure(submissionID, domain.SyncFailureTransient, 0)
	for _, f := range []*domain.SyncFailure{first, second, otherBlock} {
		require.NoError(t, repo.Create(ctx, f))
	}

	require.NoError(t, repo.MarkResolved(ctx, first))

	open, err := repo.ListUnresolved(ctx, domain.SyncFailureTransient, 0, 0)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, otherBlock.ID, open[0].ID)
}

func TestSyncFailureRepository_RecordAttempt(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	repo := repository.NewSyncFailureRepository(db)

	f := newFailure(uuid.New(), domain.SyncFailureTransient, 0)
	require.NoError(t, repo.Create(ctx, f))

	require.NoError(t, repo.RecordAttempt(ctx, f.ID, domain.SyncFailureConfig, "tab missing"))

	stored, err := repo.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Attempts)
	assert.Equal(t, domain.SyncFailureConfig, stored.Kind)
	assert.Equal(t, "tab missing", stored.Message)
}

func TestSyncFailureRepository_RecordOpen(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	repo := repository.NewSyncFailureRepository(db)
	submissionID := uuid.New()

	first := newFailure(submissionID, domain.SyncFailureTransient, 0)
	created, err := repo.RecordOpen(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)
	require.NoError(t, repo.RecordAttempt(ctx, first.ID, domain.SyncFailureTransient, "redrive failed"))

	t.Run("same block updates the open row", func(t *testing.T) {
		again := newFailure(submissionID, domain.SyncFailureConfig, 0)
		again.Message = "tab missing"
		created, err := repo.RecordOpen(ctx, again)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, again.ID)
		assert.Equal(t, 1, again.Attempts)
		assert.Equal(t, domain.SyncFailureConfig, again.Kind)
		assert.Equal(t, "tab missing", again.Message)
	})

	t.Run("other block gets its own row", func(t *testing.T) {
		other := newFailure(submissionID, domain.SyncFailureTransient, 1)
		created, err := repo.RecordOpen(ctx, other)
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotEqual(t, first.ID, other.ID)
	})

	t.Run("resolved rows are not reopened", func(t *testing.T) {
		require.NoError(t, repo.MarkResolved(ctx, first))
		fresh := newFailure(submissionID, domain.SyncFailureTransient, 0)
		created, err := repo.RecordOpen(ctx, fresh)
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotEqual(t, first.ID, fresh.ID)
	})

	_, total, err := repo.List(ctx, 1, 10, repository.SyncFailureFilters{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestSyncFailureRepository_List(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	repo := repository.NewSyncFailureRepository(db)

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, newFailure(uuid.New(), domain.SyncFailureTransient, 0)))
	}
	resolved := newFailure(uuid.New(), domain.SyncFailureConfig, 0)
	require.NoError(t, repo.Create(ctx, resolved))
	require.NoError(t, repo.MarkResolved(ctx, resolved))

	page, total, err := repo.List(ctx, 1, 2, repository.SyncFailureFilters{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, page, 2)

	_, total, err = repo.List(ctx, 1, 10, repository.SyncFailureFilters{IncludeResolved: true})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)

	configOnly, total, err := repo.List(ctx, 1, 10, repository.SyncFailureFilters{Kind: domain.SyncFailureConfig, IncludeResolved: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, resolved.ID, configOnly[0].ID)
}
