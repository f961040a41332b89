package reviews

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/angelmondragon/surfacemarket-backend/pkg/db"
	"github.com/angelmondragon/surfacemarket-backend/pkg/db/models"
	"github.com/angelmondragon/surfacemarket-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupReviewsTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:reviews_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.Exec(`
CREATE TABLE order_reviews (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  role TEXT NOT NULL,
  author_id TEXT NOT NULL,
  reviewee_id TEXT NOT NULL,
  stars INTEGER NOT NULL,
  comment TEXT NOT NULL,
  created_at DATETIME,
  UNIQUE (order_id, role)
);`).Error)
	return conn
}

func TestRepositoryCreateEnforcesOneReviewPerRole(t *testing.T) {
	repo := NewRepository(setupReviewsTestDB(t))
	ctx := context.Background()
	orderID := uuid.New()
	at := time.Date(2026, time.March, 9, 8, 0, 0, 0, time.UTC)

	first := &models.OrderReview{ID: uuid.New(), OrderID: orderID, Role: enums.ReviewRoleBuyerToVendor, AuthorID: uuid.New(), RevieweeID: uuid.New(), Stars: 5, Comment: "top", CreatedAt: at}
	require.NoError(t, repo.Create(ctx, first))

	other := &models.OrderReview{ID: uuid.New(), OrderID: orderID, Role: enums.ReviewRoleVendorToBuyer, AuthorID: first.RevieweeID, RevieweeID: first.AuthorID, Stars: 4, Comment: "gut", CreatedAt: at.Add(time.Minute)}
	require.NoError(t, repo.Create(ctx, other))

	dup := *first
	dup.ID = uuid.New()
	err := repo.Create(ctx, &dup)
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err, ""))

	rows, err := repo.ListByOrder(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, enums.ReviewRoleBuyerToVendor, rows[0].Role)
	assert.Equal(t, enums.ReviewRoleVendorToBuyer, rows[1].Role)
}
