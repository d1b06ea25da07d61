package listings

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sproutswap/sproutswap-backend/pkg/db/models"
	"github.com/sproutswap/sproutswap-backend/pkg/enums"
)

// Repository exposes the listing reads and the stock mutation settlement
// performs. Listing CRUD itself lives in another service.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	DecrementStock(ctx context.Context, id uuid.UUID, quantity int) (bool, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a listings repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	var listing models.Listing
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&listing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

// DecrementStock atomically takes quantity units off the listing. The
// conditional WHERE makes concurrent purchases race safely: the loser sees
// rows affected zero and reports insufficient stock. A listing drained to
// zero flips to sold in the same statement sequence.
func (r *repositoryImpl) DecrementStock(ctx context.Context, id uuid.UUID, quantity int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ? AND quantity >= ?", id, quantity).
		UpdateColumn("quantity", gorm.Expr("quantity - ?", quantity))
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	err := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ? AND quantity = 0 AND status = ?", id, enums.ListingStatusActive).
		UpdateColumn("status", enums.ListingStatusSold).Error
	if err != nil {
		return false, err
	}
	return true, nil
}
