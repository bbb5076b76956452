package repositories

import (
	"context"
	"entryready/internal/apperrors"
	. "entryready/internal/models"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersonalInfoRepository_DefaultInvariant(t *testing.T) {
	db := newTestDB(t)
	repo := NewPersonalInfoRepository(db)
	ctx := context.Background()

	home := &PersonalInfo{UserID: "user-1", Email: "home@example.com"}
	work := &PersonalInfo{UserID: "user-1", Email: "work@example.com"}
	require.NoError(t, repo.Create(ctx, home))
	require.NoError(t, repo.Create(ctx, work))

	assert.True(t, home.IsDefault)
	assert.False(t, work.IsDefault)

	require.NoError(t, repo.SetDefault(ctx, "user-1", work.ID))
	assert.Equal(t, int64(1), countFlagged(t, db, "personal_info", "is_default", "user-1"))

	current, err := repo.GetDefault(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, work.ID, current.ID)

	explicit := &PersonalInfo{UserID: "user-1", Email: "new@example.com", IsDefault: true}
	require.NoError(t, repo.Create(ctx, explicit))
	assert.Equal(t, int64(1), countFlagged(t, db, "personal_info", "is_default", "user-1"))

	current, err = repo.GetDefault(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, explicit.ID, current.ID)
}

func TestPersonalInfoRepository_DeleteDefaultPromotes(t *testing.T) {
	db := newTestDB(t)
	repo := NewPersonalInfoRepository(db)
	ctx := context.Background()

	first := &PersonalInfo{UserID: "user-1"}
	second := &PersonalInfo{UserID: "user-1"}
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	require.NoError(t, repo.Delete(ctx, "user-1", first.ID))

	current, err := repo.GetDefault(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, current.ID)

	require.NoError(t, repo.Delete(ctx, "user-1", second.ID))
	_, err = repo.GetDefault(ctx, "user-1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPersonalInfoRepository_SetDefaultRejectsForeignRow(t *testing.T) {
	db := newTestDB(t)
	repo := NewPersonalInfoRepository(db)
	ctx := context.Background()

	mine := &PersonalInfo{UserID: "user-1"}
	theirs := &PersonalInfo{UserID: "user-2"}
	require.NoError(t, repo.Create(ctx, mine))
	require.NoError(t, repo.Create(ctx, theirs))

	err := repo.SetDefault(ctx, "user-1", theirs.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	current, err := repo.GetDefault(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, mine.ID, current.ID)
}

func TestPersonalInfoRepository_DeleteRefusedWhileEntryActive(t *testing.T) {
	db := newTestDB(t)
	repo := NewPersonalInfoRepository(db)
	entries := NewEntryInfoRepository(db)
	ctx := context.Background()

	info := &PersonalInfo{UserID: "user-1"}
	require.NoError(t, repo.Create(ctx, info))

	entry := createEntry(t, db, "user-1")
	entry.PersonalInfoID = &info.ID
	require.NoError(t, entries.CreateOrUpdate(ctx, entry))

	assert.ErrorIs(t, repo.Delete(ctx, "user-1", info.ID), apperrors.ErrValidation)
	_, err := repo.GetByID(ctx, info.ID)
	require.NoError(t, err)

	require.NoError(t, entries.TransitionStatus(ctx, entry, EntryStatusExpired))
	require.NoError(t, repo.Delete(ctx, "user-1", info.ID))
}
