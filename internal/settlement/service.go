package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/sproutswap/sproutswap-backend/internal/fees"
	"github.com/sproutswap/sproutswap-backend/internal/listings"
	"github.com/sproutswap/sproutswap-backend/internal/notifications"
	"github.com/sproutswap/sproutswap-backend/internal/settings"
	"github.com/sproutswap/sproutswap-backend/pkg/db"
	"github.com/sproutswap/sproutswap-backend/pkg/db/models"
	"github.com/sproutswap/sproutswap-backend/pkg/enums"
	pkgerrors "github.com/sproutswap/sproutswap-backend/pkg/errors"
	"github.com/sproutswap/sproutswap-backend/pkg/logger"
	"github.com/sproutswap/sproutswap-backend/pkg/pagination"
	"github.com/sproutswap/sproutswap-backend/pkg/paypal"
)

// OfferReader lets settlement validate offer-backed purchases without
// depending on the offers package.
type OfferReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Offer, error)
}

// Provider is the slice of the payment client settlement depends on.
type Provider interface {
	CreateOrder(ctx context.Context, amount string, referenceID string) (*paypal.Order, error)
	RefundCapture(ctx context.Context, captureID string, amount string) (*paypal.Refund, error)
}

// Service orchestrates the settlement lifecycle of a purchase.
type Service interface {
	Initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error)
	Finalize(ctx context.Context, providerOrderID, captureID string) (*models.Transaction, error)
	Cancel(ctx context.Context, transactionID, buyerID uuid.UUID) (*models.Transaction, error)
	Refund(ctx context.Context, transactionID uuid.UUID) (*models.Transaction, error)
	GetByID(ctx context.Context, transactionID, actorID uuid.UUID) (*models.Transaction, error)
	ListPurchases(ctx context.Context, buyerID uuid.UUID, page pagination.Params) (*pagination.PageResult[models.Transaction], error)
	ListSales(ctx context.Context, sellerID uuid.UUID, page pagination.Params) (*pagination.PageResult[models.Transaction], error)
}

// InitiateInput opens a settlement for one listing purchase.
type InitiateInput struct {
	BuyerID   uuid.UUID
	ListingID uuid.UUID
	OfferID   *uuid.UUID
	Quantity  int
	UnitPrice decimal.Decimal
	Method    enums.PaymentMethod
}

// InitiateResult carries the persisted transaction and, for provider-backed
// settlements, the buyer approval link.
type InitiateResult struct {
	Transaction *models.Transaction `json:"transaction"`
	ApproveURL  string              `json:"approveUrl,omitempty"`
}

// Params wires the settlement service dependencies.
type Params struct {
	DB            *db.Client
	Repo          Repository
	Listings      listings.Repository
	Settings      settings.Service
	Notifications notifications.Service
	Provider      Provider
	Offers        OfferReader
	Logger        *logger.Logger
}

type service struct {
	db            *db.Client
	repo          Repository
	listings      listings.Repository
	settings      settings.Service
	notifications notifications.Service
	provider      Provider
	offers        OfferReader
	log           *logger.Logger
	now           func() time.Time
}

// NewService validates dependencies and returns the settlement service.
func NewService(params Params) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "db client required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transactions repository required")
	}
	if params.Listings == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "listings repository required")
	}
	if params.Settings == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "settings service required")
	}
	if params.Notifications == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &service{
		db:            params.DB,
		repo:          params.Repo,
		listings:      params.Listings,
		settings:      params.Settings,
		notifications: params.Notifications,
		provider:      params.Provider,
		offers:        params.Offers,
		log:           params.Logger,
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

// Initiate validates the purchase, pins a fee snapshot, persists the pending
// transaction and, for paypal, opens the provider order. A provider failure
// keeps the pending row so a retry can attach a fresh provider order to it.
func (s *service) Initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity required")
	}
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment method")
	}

	if input.OfferID != nil && s.offers != nil {
		offer, err := s.offers.GetByID(ctx, *input.OfferID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load offer")
		}
		if offer == nil {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "offer not found")
		}
		if offer.BuyerID != input.BuyerID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "offer belongs to another buyer")
		}
		if offer.Status != enums.OfferStatusAccepted {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "offer is not accepted")
		}
		input.ListingID = offer.ListingID
		input.Quantity = 1
		input.UnitPrice = offer.EffectiveAmount()
	}
	if input.Quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	listing, err := s.listings.GetByID(ctx, input.ListingID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listing")
	}
	if listing == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
	}
	if listing.Status != enums.ListingStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "listing is not active")
	}
	if listing.SellerID == input.BuyerID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot buy your own listing")
	}
	if listing.Quantity < input.Quantity {
		return nil, pkgerrors.New(pkgerrors.CodeOutOfStock, "not enough stock available")
	}

	unitPrice := input.UnitPrice
	if unitPrice.IsZero() {
		unitPrice = listing.Price
	}

	snapshot := s.settings.FeeSnapshot(ctx)
	breakdown, err := fees.Compute(unitPrice, input.Quantity, input.Method, snapshot)
	if err != nil {
		return nil, err
	}

	transaction := s.transactionForOffer(ctx, input)
	if transaction == nil {
		transaction = &models.Transaction{
			ListingID:     input.ListingID,
			OfferID:       input.OfferID,
			BuyerID:       input.BuyerID,
			SellerID:      listing.SellerID,
			Quantity:      input.Quantity,
			UnitPrice:     unitPrice,
			Subtotal:      breakdown.Subtotal,
			PlatformFee:   breakdown.PlatformFee,
			ProcessorFee:  breakdown.ProcessorFee,
			TotalAmount:   breakdown.Total,
			SellerAmount:  breakdown.SellerAmount,
			PaymentMethod: input.Method,
			Status:        enums.TransactionStatusPending,
		}
		if err := s.repo.Create(ctx, transaction); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist transaction")
		}
	}

	ctx = s.log.WithTransactionID(ctx, transaction.ID.String())

	if input.Method != enums.PaymentMethodPayPal {
		s.log.Info(ctx, "cash settlement initiated")
		return &InitiateResult{Transaction: transaction}, nil
	}

	if s.provider == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment provider not configured")
	}

	// Charge the persisted breakdown, not the current snapshot: a reused row
	// keeps the bill from the attempt that created it even if fees changed
	// since.
	order, err := s.provider.CreateOrder(ctx, transaction.TotalAmount.StringFixed(2), transaction.ID.String())
	if err != nil {
		s.log.Error(ctx, "provider order creation failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "create provider order")
	}

	now := s.now()
	updated, err := s.repo.AttachProviderOrder(ctx, transaction.ID, order.ID, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attach provider order")
	}
	if !updated {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "transaction is no longer pending")
	}
	transaction.ProviderOrderID = &order.ID

	s.log.Info(s.log.WithField(ctx, "provider_order_id", order.ID), "provider order created")
	return &InitiateResult{Transaction: transaction, ApproveURL: order.ApproveURL()}, nil
}

// transactionForOffer reuses the pending row from an earlier provider
// failure on the same offer instead of opening a duplicate settlement.
func (s *service) transactionForOffer(ctx context.Context, input InitiateInput) *models.Transaction {
	if input.OfferID == nil {
		return nil
	}
	existing, err := s.repo.FindPendingForOffer(ctx, *input.OfferID, input.BuyerID)
	if err != nil {
		s.log.Warn(s.log.WithField(ctx, "error", err.Error()), "pending transaction lookup failed")
		return nil
	}
	return existing
}

// Finalize completes the settlement identified by the provider order id. It
// is idempotent: replays of a finished capture succeed without side effects.
func (s *service) Finalize(ctx context.Context, providerOrderID, captureID string) (*models.Transaction, error) {
	if providerOrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider order id required")
	}

	transaction, err := s.repo.GetByProviderOrderID(ctx, providerOrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	if transaction == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no transaction for provider order")
	}

	ctx = s.log.WithTransactionID(ctx, transaction.ID.String())

	switch transaction.Status {
	case enums.TransactionStatusCompleted:
		if transaction.ProviderCaptureID != nil && *transaction.ProviderCaptureID == captureID {
			s.log.Info(ctx, "duplicate finalize for completed transaction")
			return transaction, nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyFinalized, "transaction already completed with a different capture")
	case enums.TransactionStatusCancelled, enums.TransactionStatusRefunded:
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyFinalized, "transaction already finalized")
	}

	now := s.now()
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		updated, err := s.repo.WithTx(tx).MarkCompleted(ctx, transaction.ID, captureID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete transaction")
		}
		if !updated {
			return pkgerrors.New(pkgerrors.CodeAlreadyFinalized, "transaction already finalized")
		}

		ok, err := s.listings.WithTx(tx).DecrementStock(ctx, transaction.ListingID, transaction.Quantity)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeOutOfStock, "stock sold out before capture completed")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	transaction.Status = enums.TransactionStatusCompleted
	transaction.ProviderCaptureID = &captureID
	transaction.CompletedAt = &now

	s.log.Info(ctx, "transaction completed")
	s.notifications.Dispatch(ctx, notifications.DispatchInput{
		UserID:  transaction.SellerID,
		Type:    enums.NotificationTypeSaleCompleted,
		Title:   "Sale completed",
		Message: "Payment of " + transaction.TotalAmount.StringFixed(2) + " was captured for your listing.",
	})
	s.notifications.Dispatch(ctx, notifications.DispatchInput{
		UserID:  transaction.BuyerID,
		Type:    enums.NotificationTypePurchaseCompleted,
		Title:   "Purchase completed",
		Message: "Your payment of " + transaction.TotalAmount.StringFixed(2) + " was captured.",
	})
	return transaction, nil
}

// Cancel aborts a pending settlement. Stock was never taken, so nothing is
// restored.
func (s *service) Cancel(ctx context.Context, transactionID, buyerID uuid.UUID) (*models.Transaction, error) {
	transaction, err := s.repo.GetByID(ctx, transactionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	if transaction == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}
	if transaction.BuyerID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer may cancel")
	}

	updated, err := s.repo.MarkCancelled(ctx, transactionID, s.now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel transaction")
	}
	if !updated {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only pending transactions can be cancelled")
	}

	transaction.Status = enums.TransactionStatusCancelled
	s.log.Info(s.log.WithField(ctx, "transaction_id", transactionID.String()), "transaction cancelled")
	return transaction, nil
}

// Refund returns the full captured amount to the buyer. Stock is not
// restored; the goods are assumed gone.
func (s *service) Refund(ctx context.Context, transactionID uuid.UUID) (*models.Transaction, error) {
	transaction, err := s.repo.GetByID(ctx, transactionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	if transaction == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}
	if transaction.Status != enums.TransactionStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only completed transactions can be refunded")
	}

	if transaction.PaymentMethod == enums.PaymentMethodPayPal {
		if s.provider == nil {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment provider not configured")
		}
		if transaction.ProviderCaptureID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "transaction has no capture to refund")
		}
		if _, err := s.provider.RefundCapture(ctx, *transaction.ProviderCaptureID, ""); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "provider refund")
		}
	}

	updated, err := s.repo.MarkRefunded(ctx, transactionID, s.now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark refunded")
	}
	if !updated {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "transaction is no longer completed")
	}

	transaction.Status = enums.TransactionStatusRefunded
	s.log.Info(s.log.WithField(ctx, "transaction_id", transactionID.String()), "transaction refunded")
	s.notifications.Dispatch(ctx, notifications.DispatchInput{
		UserID:  transaction.BuyerID,
		Type:    enums.NotificationTypeRefundIssued,
		Title:   "Refund issued",
		Message: "Your payment of " + transaction.TotalAmount.StringFixed(2) + " was refunded.",
	})
	return transaction, nil
}

// GetByID returns a transaction visible to one of its two parties.
func (s *service) GetByID(ctx context.Context, transactionID, actorID uuid.UUID) (*models.Transaction, error) {
	transaction, err := s.repo.GetByID(ctx, transactionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	if transaction == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}
	if transaction.BuyerID != actorID && transaction.SellerID != actorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not a party to this transaction")
	}
	return transaction, nil
}

func (s *service) ListPurchases(ctx context.Context, buyerID uuid.UUID, page pagination.Params) (*pagination.PageResult[models.Transaction], error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity required")
	}
	rows, total, err := s.repo.ListByBuyer(ctx, buyerID, page)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list purchases")
	}
	result := pagination.NewPageResult(rows, page, total)
	return &result, nil
}

func (s *service) ListSales(ctx context.Context, sellerID uuid.UUID, page pagination.Params) (*pagination.PageResult[models.Transaction], error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "seller identity required")
	}
	rows, total, err := s.repo.ListBySeller(ctx, sellerID, page)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list sales")
	}
	result := pagination.NewPageResult(rows, page, total)
	return &result, nil
}
