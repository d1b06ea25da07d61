package listings

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sproutswap/sproutswap-backend/pkg/db/models"
	"github.com/sproutswap/sproutswap-backend/pkg/enums"
)

func setupListingsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS listings (
  id TEXT PRIMARY KEY,
  seller_id TEXT NOT NULL,
  title TEXT NOT NULL,
  strain TEXT,
  quantity INTEGER NOT NULL DEFAULT 0,
  price_type TEXT NOT NULL DEFAULT 'fixed',
  price TEXT NOT NULL DEFAULT '0',
  offer_min_price TEXT,
  accepts_offers INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'draft',
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func seedListing(t *testing.T, db *gorm.DB, quantity int) *models.Listing {
	t.Helper()
	listing := &models.Listing{
		ID:        uuid.New(),
		SellerID:  uuid.New(),
		Title:     "Northern Lights clone",
		Quantity:  quantity,
		PriceType: enums.PriceTypeOffer,
		Status:    enums.ListingStatusActive,
	}
	require.NoError(t, db.Create(listing).Error)
	return listing
}

func TestGetByIDMissingReturnsNil(t *testing.T) {
	db := setupListingsTestDB(t)
	repo := NewRepository(db)

	listing, err := repo.GetByID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, listing)
}

func TestDecrementStock(t *testing.T) {
	db := setupListingsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	listing := seedListing(t, db, 5)

	ok, err := repo.DecrementStock(ctx, listing.ID, 3)
	require.NoError(t, err)
	assert.True(t, ok)

	updated, err := repo.GetByID(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Quantity)
	assert.Equal(t, enums.ListingStatusActive, updated.Status)
}

func TestDecrementStockInsufficient(t *testing.T) {
	db := setupListingsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	listing := seedListing(t, db, 1)

	ok, err := repo.DecrementStock(ctx, listing.ID, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	untouched, err := repo.GetByID(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, untouched.Quantity)
}

func TestDecrementStockMarksSoldAtZero(t *testing.T) {
	db := setupListingsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	listing := seedListing(t, db, 2)

	ok, err := repo.DecrementStock(ctx, listing.ID, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	sold, err := repo.GetByID(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, sold.Quantity)
	assert.Equal(t, enums.ListingStatusSold, sold.Status)
}
