package repositories

import (
	"context"
	"entryready/config"
	"entryready/internal/database"
	. "entryready/internal/models"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) database.DB {
	t.Helper()

	db, err := database.New(config.Config{DatabaseDbPath: filepath.Join(t.TempDir(), "entryready.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Migrate()
	require.NoError(t, err)

	return db
}

func createPassport(t *testing.T, repo PassportRepository, userID, nationality string) *Passport {
	t.Helper()

	passport := &Passport{UserID: userID, Nationality: nationality, PassportNumber: "E1234567"}
	require.NoError(t, repo.Create(context.Background(), passport))
	return passport
}

func createEntry(t *testing.T, db database.DB, userID string) *EntryInfo {
	t.Helper()

	passport := createPassport(t, NewPassportRepository(db), userID, "CHN")
	entry := &EntryInfo{UserID: userID, PassportID: passport.ID, Destination: "TH"}
	require.NoError(t, NewEntryInfoRepository(db).CreateOrUpdate(context.Background(), entry))
	return entry
}

func countFlagged(t *testing.T, db database.DB, table, column, userID string) int64 {
	t.Helper()

	var count int64
	err := db.SQL.Table(table).
		Where("user_id = ? AND "+column+" = ? AND deleted_at IS NULL", userID, true).
		Count(&count).Error
	require.NoError(t, err)
	return count
}
