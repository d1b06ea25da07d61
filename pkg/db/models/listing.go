package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sproutswap/sproutswap-backend/pkg/enums"
)

// Listing is the sellable item surface the negotiation engine touches.
// Listing CRUD lives in another service; this model covers reads and the
// stock mutation settlement performs.
type Listing struct {
	ID            uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID      uuid.UUID           `gorm:"column:seller_id;type:uuid;not null"`
	Title         string              `gorm:"type:text;not null"`
	Strain        *string             `gorm:"type:text"`
	Quantity      int                 `gorm:"column:quantity;not null;default:0"`
	PriceType     enums.PriceType     `gorm:"column:price_type;type:text;not null;default:'fixed'"`
	Price         decimal.Decimal     `gorm:"column:price;type:numeric(10,2);not null;default:0"`
	OfferMinPrice *decimal.Decimal    `gorm:"column:offer_min_price;type:numeric(10,2)"`
	AcceptsOffers bool                `gorm:"column:accepts_offers;not null;default:false"`
	Status        enums.ListingStatus `gorm:"column:status;type:text;not null;default:'draft'"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// AllowsOffers reports whether buyers may open a negotiation on the listing.
func (l Listing) AllowsOffers() bool {
	return l.AcceptsOffers || l.PriceType == enums.PriceTypeOffer
}
