package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sproutswap/sproutswap-backend/pkg/db/models"
	"github.com/sproutswap/sproutswap-backend/pkg/enums"
	"github.com/sproutswap/sproutswap-backend/pkg/pagination"
)

// Repository exposes persistence helpers for transactions. Status changes
// are conditional UPDATEs guarded on the current status.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, transaction *models.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	GetByProviderOrderID(ctx context.Context, providerOrderID string) (*models.Transaction, error)
	FindPendingForOffer(ctx context.Context, offerID, buyerID uuid.UUID) (*models.Transaction, error)
	AttachProviderOrder(ctx context.Context, id uuid.UUID, providerOrderID string, now time.Time) (bool, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, captureID string, now time.Time) (bool, error)
	MarkCancelled(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	MarkRefunded(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, page pagination.Params) ([]models.Transaction, int64, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID, page pagination.Params) ([]models.Transaction, int64, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a transactions repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, transaction *models.Transaction) error {
	return r.db.WithContext(ctx).Create(transaction).Error
}

func (r *repositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var transaction models.Transaction
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&transaction).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &transaction, nil
}

func (r *repositoryImpl) GetByProviderOrderID(ctx context.Context, providerOrderID string) (*models.Transaction, error) {
	var transaction models.Transaction
	err := r.db.WithContext(ctx).Where("provider_order_id = ?", providerOrderID).First(&transaction).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &transaction, nil
}

func (r *repositoryImpl) FindPendingForOffer(ctx context.Context, offerID, buyerID uuid.UUID) (*models.Transaction, error) {
	var transaction models.Transaction
	err := r.db.WithContext(ctx).
		Where("offer_id = ? AND buyer_id = ? AND status = ?", offerID, buyerID, enums.TransactionStatusPending).
		Order("created_at DESC").
		First(&transaction).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &transaction, nil
}

func (r *repositoryImpl) AttachProviderOrder(ctx context.Context, id uuid.UUID, providerOrderID string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, enums.TransactionStatusPending).
		UpdateColumns(map[string]any{
			"provider_order_id": providerOrderID,
			"updated_at":        now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) MarkCompleted(ctx context.Context, id uuid.UUID, captureID string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, enums.TransactionStatusPending).
		UpdateColumns(map[string]any{
			"status":              enums.TransactionStatusCompleted,
			"provider_capture_id": captureID,
			"completed_at":        now,
			"updated_at":          now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) MarkCancelled(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, enums.TransactionStatusPending).
		UpdateColumns(map[string]any{
			"status":     enums.TransactionStatusCancelled,
			"updated_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) MarkRefunded(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, enums.TransactionStatusCompleted).
		UpdateColumns(map[string]any{
			"status":     enums.TransactionStatusRefunded,
			"updated_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) ListByBuyer(ctx context.Context, buyerID uuid.UUID, page pagination.Params) ([]models.Transaction, int64, error) {
	return r.list(ctx, "buyer_id = ?", buyerID, page)
}

func (r *repositoryImpl) ListBySeller(ctx context.Context, sellerID uuid.UUID, page pagination.Params) ([]models.Transaction, int64, error) {
	return r.list(ctx, "seller_id = ?", sellerID, page)
}

func (r *repositoryImpl) list(ctx context.Context, cond string, id uuid.UUID, page pagination.Params) ([]models.Transaction, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Transaction{}).Where(cond, id)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var transactions []models.Transaction
	err := query.Order("created_at DESC, id DESC").
		Offset(page.Offset()).
		Limit(page.Limit()).
		Find(&transactions).Error
	if err != nil {
		return nil, 0, err
	}
	return transactions, total, nil
}
