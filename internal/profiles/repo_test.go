package profiles

import (
	"context"
	"fmt"
	"testing"

	"github.com/angelmondragon/surfacemarket-backend/pkg/db/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupProfilesTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec(`
CREATE TABLE profiles (
  id TEXT PRIMARY KEY,
  handle TEXT NOT NULL UNIQUE,
  company_name TEXT NOT NULL,
  city TEXT,
  country_code TEXT,
  vat_id TEXT,
  payout_account_id TEXT,
  rating_sum INTEGER NOT NULL DEFAULT 0,
  rating_count INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`).Error)
	return db
}

func seedProfile(t *testing.T, db *gorm.DB, handle string) models.Profile {
	t.Helper()
	city := "Stuttgart"
	profile := models.Profile{ID: uuid.New(), Handle: handle, CompanyName: handle + " GmbH", City: &city}
	require.NoError(t, db.Create(&profile).Error)
	return profile
}

func TestRepositoryApplyRatingAccumulates(t *testing.T) {
	db := setupProfilesTestDB(t)
	repo := NewRepository(db)
	profile := seedProfile(t, db, "galvano")
	ctx := context.Background()

	require.NoError(t, repo.ApplyRating(ctx, profile.ID, 5))
	require.NoError(t, repo.ApplyRating(ctx, profile.ID, 4))

	got, err := repo.FindByID(ctx, profile.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, got.RatingSum)
	assert.Equal(t, 2, got.RatingCount)
	assert.Equal(t, Rating{Average: "4.5", Count: 2}, RatingOf(got))
}

func TestRepositoryApplyRatingMissingProfile(t *testing.T) {
	repo := NewRepository(setupProfilesTestDB(t))
	err := repo.ApplyRating(context.Background(), uuid.New(), 3)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryFindByIDs(t *testing.T) {
	db := setupProfilesTestDB(t)
	repo := NewRepository(db)
	a := seedProfile(t, db, "alpha")
	b := seedProfile(t, db, "beta")

	got, err := repo.FindByIDs(context.Background(), []uuid.UUID{a.ID, b.ID, uuid.New()})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "beta", got[b.ID].Handle)

	empty, err := repo.FindByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSnapshotCopiesBusinessFields(t *testing.T) {
	city := "Ulm"
	snap := Snapshot(&models.Profile{Handle: "h", CompanyName: "H AG", City: &city})
	assert.Equal(t, "h", snap.Handle)
	assert.Equal(t, "H AG", snap.CompanyName)
	assert.Equal(t, &city, snap.City)
	assert.Equal(t, Rating{Average: "0.0"}, RatingOf(nil))
}
