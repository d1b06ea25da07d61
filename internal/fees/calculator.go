package fees

import (
	"github.com/shopspring/decimal"

	"github.com/sproutswap/sproutswap-backend/pkg/enums"
	pkgerrors "github.com/sproutswap/sproutswap-backend/pkg/errors"
)

var oneHundred = decimal.NewFromInt(100)

// Snapshot pins the fee configuration a single settlement is computed with.
type Snapshot struct {
	PlatformFeeFixed decimal.Decimal `json:"platformFeeFixed"`
	PayPalFeePercent decimal.Decimal `json:"paypalFeePercent"`
	PayPalFeeFixed   decimal.Decimal `json:"paypalFeeFixed"`
}

// Validate rejects snapshots with negative components.
func (s Snapshot) Validate() error {
	if s.PlatformFeeFixed.IsNegative() || s.PayPalFeePercent.IsNegative() || s.PayPalFeeFixed.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "fee snapshot values must be non-negative")
	}
	return nil
}

// Breakdown is the full money split for one settlement.
type Breakdown struct {
	Subtotal     decimal.Decimal `json:"subtotal"`
	PlatformFee  decimal.Decimal `json:"platformFee"`
	ProcessorFee decimal.Decimal `json:"processorFee"`
	Total        decimal.Decimal `json:"total"`
	SellerAmount decimal.Decimal `json:"sellerAmount"`
}

// Compute derives the fee breakdown for a sale. It is pure: configuration
// comes in through the snapshot and is never read from elsewhere.
//
// Processor fees apply to paypal only; cash settlements carry none. Every
// derived amount is rounded half-up to two decimal places.
func Compute(unitPrice decimal.Decimal, quantity int, method enums.PaymentMethod, snapshot Snapshot) (Breakdown, error) {
	if !unitPrice.IsPositive() {
		return Breakdown{}, pkgerrors.New(pkgerrors.CodeValidation, "unit price must be positive")
	}
	if quantity < 1 {
		return Breakdown{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	if !method.IsValid() {
		return Breakdown{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment method")
	}
	if err := snapshot.Validate(); err != nil {
		return Breakdown{}, err
	}

	qty := decimal.NewFromInt(int64(quantity))
	subtotal := unitPrice.Mul(qty).Round(2)
	platformFee := snapshot.PlatformFeeFixed.Mul(qty).Round(2)

	processorFee := decimal.Zero
	if method == enums.PaymentMethodPayPal {
		rate := snapshot.PayPalFeePercent.Div(oneHundred)
		processorFee = subtotal.Mul(rate).Add(snapshot.PayPalFeeFixed).Round(2)
	}

	total := subtotal.Add(platformFee).Add(processorFee)
	sellerAmount := subtotal.Sub(platformFee).Sub(processorFee)

	return Breakdown{
		Subtotal:     subtotal,
		PlatformFee:  platformFee,
		ProcessorFee: processorFee,
		Total:        total,
		SellerAmount: sellerAmount,
	}, nil
}
