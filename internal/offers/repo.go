package offers

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/sproutswap/sproutswap-backend/pkg/db/models"
	"github.com/sproutswap/sproutswap-backend/pkg/enums"
	"github.com/sproutswap/sproutswap-backend/pkg/pagination"
)

// Repository exposes persistence helpers for offers. Every state change is
// a conditional UPDATE guarded on the current status, so racing writers
// never double-apply a transition.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, offer *models.Offer) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Offer, error)
	ExistsOpen(ctx context.Context, listingID, buyerID uuid.UUID) (bool, error)
	Transition(ctx context.Context, id uuid.UUID, from, to enums.OfferStatus, now time.Time) (bool, error)
	SetCounter(ctx context.Context, id uuid.UUID, amount decimal.Decimal, now time.Time) (bool, error)
	MarkExpired(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.Offer, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, filter ListFilter) ([]models.Offer, int64, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID, filter ListFilter) ([]models.Offer, int64, error)
	ListPendingActions(ctx context.Context, userID uuid.UUID) (PendingActions, error)
}

// ListFilter narrows and paginates offer list reads.
type ListFilter struct {
	Status *enums.OfferStatus
	Page   pagination.Params
}

// PendingActions carries the open offers awaiting a response from the user:
// pending offers on their listings and countered offers they made.
type PendingActions struct {
	Seller      []models.Offer `json:"seller"`
	Buyer       []models.Offer `json:"buyer"`
	SellerCount int64          `json:"sellerCount"`
	BuyerCount  int64          `json:"buyerCount"`
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns an offers repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, offer *models.Offer) error {
	return r.db.WithContext(ctx).Create(offer).Error
}

func (r *repositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	var offer models.Offer
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&offer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

func (r *repositoryImpl) ExistsOpen(ctx context.Context, listingID, buyerID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Offer{}).
		Where("listing_id = ? AND buyer_id = ? AND status IN ?", listingID, buyerID,
			[]enums.OfferStatus{enums.OfferStatusPending, enums.OfferStatusCountered}).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repositoryImpl) Transition(ctx context.Context, id uuid.UUID, from, to enums.OfferStatus, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Offer{}).
		Where("id = ? AND status = ?", id, from).
		UpdateColumns(map[string]any{
			"status": to,
			// responded_at records the first response; a counter already set it.
			"responded_at": gorm.Expr("COALESCE(responded_at, ?)", now),
			"updated_at":   now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) SetCounter(ctx context.Context, id uuid.UUID, amount decimal.Decimal, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Offer{}).
		Where("id = ? AND status = ?", id, enums.OfferStatusPending).
		UpdateColumns(map[string]any{
			"status":         enums.OfferStatusCountered,
			"counter_amount": amount,
			"responded_at":   now,
			"updated_at":     now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) MarkExpired(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Offer{}).
		Where("id = ? AND status IN ? AND expires_at <= ?", id,
			[]enums.OfferStatus{enums.OfferStatusPending, enums.OfferStatusCountered}, now).
		UpdateColumns(map[string]any{
			"status":     enums.OfferStatusExpired,
			"updated_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ExpireDue flips every past-deadline open offer to expired in one statement.
func (r *repositoryImpl) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Offer{}).
		Where("status IN ? AND expires_at <= ?",
			[]enums.OfferStatus{enums.OfferStatusPending, enums.OfferStatusCountered}, now).
		UpdateColumns(map[string]any{
			"status":     enums.OfferStatusExpired,
			"updated_at": now,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ListDue returns open offers whose deadline has passed, oldest first.
func (r *repositoryImpl) ListDue(ctx context.Context, now time.Time, limit int) ([]models.Offer, error) {
	var offers []models.Offer
	err := r.db.WithContext(ctx).
		Where("status IN ? AND expires_at <= ?",
			[]enums.OfferStatus{enums.OfferStatusPending, enums.OfferStatusCountered}, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&offers).Error
	if err != nil {
		return nil, err
	}
	return offers, nil
}

func (r *repositoryImpl) ListByBuyer(ctx context.Context, buyerID uuid.UUID, filter ListFilter) ([]models.Offer, int64, error) {
	return r.list(ctx, "buyer_id = ?", buyerID, filter)
}

func (r *repositoryImpl) ListBySeller(ctx context.Context, sellerID uuid.UUID, filter ListFilter) ([]models.Offer, int64, error) {
	return r.list(ctx, "seller_id = ?", sellerID, filter)
}

func (r *repositoryImpl) list(ctx context.Context, cond string, id uuid.UUID, filter ListFilter) ([]models.Offer, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Offer{}).Where(cond, id)
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var offers []models.Offer
	err := query.Order("created_at DESC, id DESC").
		Offset(filter.Page.Offset()).
		Limit(filter.Page.Limit()).
		Find(&offers).Error
	if err != nil {
		return nil, 0, err
	}
	return offers, total, nil
}

func (r *repositoryImpl) ListPendingActions(ctx context.Context, userID uuid.UUID) (PendingActions, error) {
	var actions PendingActions
	err := r.db.WithContext(ctx).
		Where("seller_id = ? AND status = ?", userID, enums.OfferStatusPending).
		Order("created_at DESC, id DESC").
		Find(&actions.Seller).Error
	if err != nil {
		return PendingActions{}, err
	}
	err = r.db.WithContext(ctx).
		Where("buyer_id = ? AND status = ?", userID, enums.OfferStatusCountered).
		Order("created_at DESC, id DESC").
		Find(&actions.Buyer).Error
	if err != nil {
		return PendingActions{}, err
	}
	actions.SellerCount = int64(len(actions.Seller))
	actions.BuyerCount = int64(len(actions.Buyer))
	return actions, nil
}
