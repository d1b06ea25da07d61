package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sproutswap/sproutswap-backend/pkg/enums"
)

// Transaction records a settlement attempt with its pinned fee breakdown.
type Transaction struct {
	ID                uuid.UUID               `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ListingID         uuid.UUID               `gorm:"column:listing_id;type:uuid;not null;index"`
	OfferID           *uuid.UUID              `gorm:"column:offer_id;type:uuid;index"`
	BuyerID           uuid.UUID               `gorm:"column:buyer_id;type:uuid;not null;index"`
	SellerID          uuid.UUID               `gorm:"column:seller_id;type:uuid;not null;index"`
	Quantity          int                     `gorm:"column:quantity;not null"`
	UnitPrice         decimal.Decimal         `gorm:"column:unit_price;type:numeric(10,2);not null"`
	Subtotal          decimal.Decimal         `gorm:"column:subtotal;type:numeric(10,2);not null"`
	PlatformFee       decimal.Decimal         `gorm:"column:platform_fee;type:numeric(10,2);not null"`
	ProcessorFee      decimal.Decimal         `gorm:"column:processor_fee;type:numeric(10,2);not null"`
	TotalAmount       decimal.Decimal         `gorm:"column:total_amount;type:numeric(10,2);not null"`
	SellerAmount      decimal.Decimal         `gorm:"column:seller_amount;type:numeric(10,2);not null"`
	PaymentMethod     enums.PaymentMethod     `gorm:"column:payment_method;type:text;not null"`
	ProviderOrderID   *string                 `gorm:"column:provider_order_id;type:text;uniqueIndex"`
	ProviderCaptureID *string                 `gorm:"column:provider_capture_id;type:text"`
	Status            enums.TransactionStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	CompletedAt       *time.Time              `gorm:"column:completed_at"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
