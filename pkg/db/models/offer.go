package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sproutswap/sproutswap-backend/pkg/enums"
)

// Offer is a buyer's price proposal on a listing.
type Offer struct {
	ID            uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ListingID     uuid.UUID         `gorm:"column:listing_id;type:uuid;not null;index"`
	BuyerID       uuid.UUID         `gorm:"column:buyer_id;type:uuid;not null;index"`
	SellerID      uuid.UUID         `gorm:"column:seller_id;type:uuid;not null;index"`
	OfferAmount   decimal.Decimal   `gorm:"column:offer_amount;type:numeric(10,2);not null"`
	CounterAmount *decimal.Decimal  `gorm:"column:counter_amount;type:numeric(10,2)"`
	Message       *string           `gorm:"type:text"`
	Status        enums.OfferStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	ExpiresAt     time.Time         `gorm:"column:expires_at;not null"`
	RespondedAt   *time.Time        `gorm:"column:responded_at"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// EffectiveAmount is the unit price a settled deal uses: the seller's
// counter when one exists, otherwise the buyer's offer.
func (o Offer) EffectiveAmount() decimal.Decimal {
	if o.CounterAmount != nil {
		return *o.CounterAmount
	}
	return o.OfferAmount
}

// IsExpiredAt reports whether the offer deadline has passed.
func (o Offer) IsExpiredAt(now time.Time) bool {
	return !o.ExpiresAt.After(now)
}
