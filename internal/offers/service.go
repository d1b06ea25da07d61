package offers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sproutswap/sproutswap-backend/internal/listings"
	"github.com/sproutswap/sproutswap-backend/internal/notifications"
	"github.com/sproutswap/sproutswap-backend/internal/settings"
	"github.com/sproutswap/sproutswap-backend/internal/settlement"
	"github.com/sproutswap/sproutswap-backend/pkg/db/models"
	"github.com/sproutswap/sproutswap-backend/pkg/enums"
	pkgerrors "github.com/sproutswap/sproutswap-backend/pkg/errors"
	"github.com/sproutswap/sproutswap-backend/pkg/logger"
	"github.com/sproutswap/sproutswap-backend/pkg/pagination"
)

// Service drives the offer negotiation state machine.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Offer, error)
	Accept(ctx context.Context, input RespondInput) (*AcceptResult, error)
	Reject(ctx context.Context, input RespondInput) (*models.Offer, error)
	Counter(ctx context.Context, input CounterInput) (*models.Offer, error)
	RespondToCounter(ctx context.Context, input CounterResponseInput) (*AcceptResult, error)
	GetByID(ctx context.Context, offerID, actorID uuid.UUID) (*models.Offer, error)
	ListMine(ctx context.Context, buyerID uuid.UUID, filter ListFilter) (*pagination.PageResult[models.Offer], error)
	ListIncoming(ctx context.Context, sellerID uuid.UUID, filter ListFilter) (*pagination.PageResult[models.Offer], error)
	PendingActions(ctx context.Context, userID uuid.UUID) (*PendingActions, error)
}

// CreateInput opens a negotiation on a listing.
type CreateInput struct {
	BuyerID   uuid.UUID
	ListingID uuid.UUID
	Amount    decimal.Decimal
	Message   *string
}

// RespondInput identifies an offer and the actor answering it.
type RespondInput struct {
	OfferID uuid.UUID
	ActorID uuid.UUID
	Method  enums.PaymentMethod
}

// CounterInput carries the seller's counter proposal.
type CounterInput struct {
	OfferID uuid.UUID
	ActorID uuid.UUID
	Amount  decimal.Decimal
}

// CounterResponseInput is the buyer's answer to a counter.
type CounterResponseInput struct {
	OfferID uuid.UUID
	ActorID uuid.UUID
	Accept  bool
	Method  enums.PaymentMethod
}

// AcceptResult pairs the transitioned offer with the settlement it opened.
type AcceptResult struct {
	Offer      *models.Offer              `json:"offer"`
	Settlement *settlement.InitiateResult `json:"settlement,omitempty"`
}

// Params wires the offers service dependencies.
type Params struct {
	Repo          Repository
	Listings      listings.Repository
	Settings      settings.Service
	Settlement    settlement.Service
	Notifications notifications.Service
	Logger        *logger.Logger
}

type service struct {
	repo          Repository
	listings      listings.Repository
	settings      settings.Service
	settlement    settlement.Service
	notifications notifications.Service
	log           *logger.Logger
	now           func() time.Time
}

// NewService validates dependencies and returns the offers service.
func NewService(params Params) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "offers repository required")
	}
	if params.Listings == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "listings repository required")
	}
	if params.Settings == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "settings service required")
	}
	if params.Settlement == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "settlement service required")
	}
	if params.Notifications == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &service{
		repo:          params.Repo,
		listings:      params.Listings,
		settings:      params.Settings,
		settlement:    params.Settlement,
		notifications: params.Notifications,
		log:           params.Logger,
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

// Create opens a pending offer on an active listing.
func (s *service) Create(ctx context.Context, input CreateInput) (*models.Offer, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "offer amount must be positive")
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
	if !listing.AllowsOffers() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "listing does not accept offers")
	}
	if listing.SellerID == input.BuyerID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot make an offer on your own listing")
	}
	if listing.Quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeOutOfStock, "listing is out of stock")
	}
	if listing.OfferMinPrice != nil && input.Amount.LessThan(*listing.OfferMinPrice) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "offer is below the listing minimum")
	}

	open, err := s.repo.ExistsOpen(ctx, input.ListingID, input.BuyerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check open offers")
	}
	if open {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "you already have an open offer on this listing")
	}

	days := s.settings.OfferExpirationDays(ctx)
	now := s.now()
	offer := &models.Offer{
		ListingID:   input.ListingID,
		BuyerID:     input.BuyerID,
		SellerID:    listing.SellerID,
		OfferAmount: input.Amount.Round(2),
		Message:     input.Message,
		Status:      enums.OfferStatusPending,
		ExpiresAt:   now.AddDate(0, 0, days),
	}
	if err := s.repo.Create(ctx, offer); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist offer")
	}

	s.log.Info(s.log.WithOfferID(ctx, offer.ID.String()), "offer created")
	s.notifications.Dispatch(ctx, notifications.DispatchInput{
		UserID:  listing.SellerID,
		Type:    enums.NotificationTypeOfferReceived,
		Title:   "New offer received",
		Message: "You received an offer of " + offer.OfferAmount.StringFixed(2) + " on " + listing.Title + ".",
	})
	return offer, nil
}

// Accept transitions a pending offer to accepted and opens the settlement
// at the buyer's offered price.
func (s *service) Accept(ctx context.Context, input RespondInput) (*AcceptResult, error) {
	offer, err := s.loadForResponse(ctx, input.OfferID, input.ActorID, actorSeller, enums.OfferStatusPending)
	if err != nil {
		return nil, err
	}

	now := s.now()
	updated, err := s.repo.Transition(ctx, offer.ID, enums.OfferStatusPending, enums.OfferStatusAccepted, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "accept offer")
	}
	if !updated {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "offer was already answered")
	}
	offer.Status = enums.OfferStatusAccepted
	offer.RespondedAt = &now

	return s.settleAccepted(ctx, offer, input.Method)
}

// Reject transitions a pending offer to rejected.
func (s *service) Reject(ctx context.Context, input RespondInput) (*models.Offer, error) {
	offer, err := s.loadForResponse(ctx, input.OfferID, input.ActorID, actorSeller, enums.OfferStatusPending)
	if err != nil {
		return nil, err
	}

	now := s.now()
	updated, err := s.repo.Transition(ctx, offer.ID, enums.OfferStatusPending, enums.OfferStatusRejected, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject offer")
	}
	if !updated {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "offer was already answered")
	}
	offer.Status = enums.OfferStatusRejected
	offer.RespondedAt = &now

	s.log.Info(s.log.WithOfferID(ctx, offer.ID.String()), "offer rejected")
	s.notifications.Dispatch(ctx, notifications.DispatchInput{
		UserID:  offer.BuyerID,
		Type:    enums.NotificationTypeOfferRejected,
		Title:   "Offer declined",
		Message: "Your offer of " + offer.OfferAmount.StringFixed(2) + " was declined.",
	})
	return offer, nil
}

// Counter answers a pending offer with a higher price from the seller.
func (s *service) Counter(ctx context.Context, input CounterInput) (*models.Offer, error) {
	offer, err := s.loadForResponse(ctx, input.OfferID, input.ActorID, actorSeller, enums.OfferStatusPending)
	if err != nil {
		return nil, err
	}

	amount := input.Amount.Round(2)
	if !amount.GreaterThan(offer.OfferAmount) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "counter must exceed the buyer's offer")
	}

	now := s.now()
	updated, err := s.repo.SetCounter(ctx, offer.ID, amount, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "counter offer")
	}
	if !updated {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "offer was already answered")
	}
	offer.Status = enums.OfferStatusCountered
	offer.CounterAmount = &amount
	offer.RespondedAt = &now

	s.log.Info(s.log.WithOfferID(ctx, offer.ID.String()), "offer countered")
	s.notifications.Dispatch(ctx, notifications.DispatchInput{
		UserID:  offer.BuyerID,
		Type:    enums.NotificationTypeOfferCountered,
		Title:   "Counter offer received",
		Message: "The seller countered with " + amount.StringFixed(2) + ".",
	})
	return offer, nil
}

// RespondToCounter lets the buyer accept or decline the seller's counter.
// Accepting settles at the counter amount.
func (s *service) RespondToCounter(ctx context.Context, input CounterResponseInput) (*AcceptResult, error) {
	offer, err := s.loadForResponse(ctx, input.OfferID, input.ActorID, actorBuyer, enums.OfferStatusCountered)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !input.Accept {
		updated, err := s.repo.Transition(ctx, offer.ID, enums.OfferStatusCountered, enums.OfferStatusRejected, now)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decline counter")
		}
		if !updated {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "counter was already answered")
		}
		offer.Status = enums.OfferStatusRejected
		offer.RespondedAt = &now

		s.notifications.Dispatch(ctx, notifications.DispatchInput{
			UserID:  offer.SellerID,
			Type:    enums.NotificationTypeOfferRejected,
			Title:   "Counter declined",
			Message: "The buyer declined your counter of " + offer.EffectiveAmount().StringFixed(2) + ".",
		})
		return &AcceptResult{Offer: offer}, nil
	}

	updated, err := s.repo.Transition(ctx, offer.ID, enums.OfferStatusCountered, enums.OfferStatusAccepted, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "accept counter")
	}
	if !updated {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "counter was already answered")
	}
	offer.Status = enums.OfferStatusAccepted
	offer.RespondedAt = &now

	return s.settleAccepted(ctx, offer, input.Method)
}

// GetByID returns an offer visible to one of its two parties.
func (s *service) GetByID(ctx context.Context, offerID, actorID uuid.UUID) (*models.Offer, error) {
	offer, err := s.repo.GetByID(ctx, offerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load offer")
	}
	if offer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "offer not found")
	}
	if offer.BuyerID != actorID && offer.SellerID != actorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not a party to this offer")
	}
	return offer, nil
}

// ListMine returns the buyer's offers, newest first, expiring stale rows on
// the way.
func (s *service) ListMine(ctx context.Context, buyerID uuid.UUID, filter ListFilter) (*pagination.PageResult[models.Offer], error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity required")
	}
	s.expireDue(ctx)
	rows, total, err := s.repo.ListByBuyer(ctx, buyerID, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list offers")
	}
	page := pagination.NewPageResult(rows, filter.Page, total)
	return &page, nil
}

// ListIncoming returns the seller's received offers, newest first.
func (s *service) ListIncoming(ctx context.Context, sellerID uuid.UUID, filter ListFilter) (*pagination.PageResult[models.Offer], error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "seller identity required")
	}
	s.expireDue(ctx)
	rows, total, err := s.repo.ListBySeller(ctx, sellerID, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list offers")
	}
	page := pagination.NewPageResult(rows, filter.Page, total)
	return &page, nil
}

// PendingActions reports the offers waiting on the user from either side.
func (s *service) PendingActions(ctx context.Context, userID uuid.UUID) (*PendingActions, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity required")
	}
	s.expireDue(ctx)
	actions, err := s.repo.ListPendingActions(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending offers")
	}
	return &actions, nil
}

type actorRole int

const (
	actorSeller actorRole = iota
	actorBuyer
)

// loadForResponse fetches the offer, checks the acting party, expires it
// lazily when its deadline has passed and verifies the expected status.
func (s *service) loadForResponse(ctx context.Context, offerID, actorID uuid.UUID, role actorRole, want enums.OfferStatus) (*models.Offer, error) {
	if actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "identity required")
	}

	offer, err := s.repo.GetByID(ctx, offerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load offer")
	}
	if offer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "offer not found")
	}

	switch role {
	case actorSeller:
		if offer.SellerID != actorID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the seller may respond to this offer")
		}
	case actorBuyer:
		if offer.BuyerID != actorID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer may respond to this counter")
		}
	}

	now := s.now()
	if !offer.Status.IsTerminal() && offer.IsExpiredAt(now) {
		if _, err := s.repo.MarkExpired(ctx, offer.ID, now); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire offer")
		}
		return nil, pkgerrors.New(pkgerrors.CodeExpired, "offer has expired")
	}
	if offer.Status != want {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "offer is not awaiting this response")
	}
	return offer, nil
}

// settleAccepted opens the settlement for an accepted offer at its
// effective price. Quantity is always one unit per negotiation.
func (s *service) settleAccepted(ctx context.Context, offer *models.Offer, method enums.PaymentMethod) (*AcceptResult, error) {
	if !method.IsValid() {
		method = enums.PaymentMethodPayPal
	}
	offerID := offer.ID
	result, err := s.settlement.Initiate(ctx, settlement.InitiateInput{
		BuyerID:   offer.BuyerID,
		ListingID: offer.ListingID,
		OfferID:   &offerID,
		Quantity:  1,
		UnitPrice: offer.EffectiveAmount(),
		Method:    method,
	})
	if err != nil {
		// the acceptance stands; settlement can be retried against the
		// same offer
		s.log.Error(s.log.WithOfferID(ctx, offer.ID.String()), "settlement initiation failed", err)
		return nil, err
	}

	s.log.Info(s.log.WithOfferID(ctx, offer.ID.String()), "offer accepted")
	s.notifications.Dispatch(ctx, notifications.DispatchInput{
		UserID:  offer.BuyerID,
		Type:    enums.NotificationTypeOfferAccepted,
		Title:   "Offer accepted",
		Message: "Your offer was accepted at " + offer.EffectiveAmount().StringFixed(2) + ". Complete the payment to finish the purchase.",
	})
	return &AcceptResult{Offer: offer, Settlement: result}, nil
}

func (s *service) expireDue(ctx context.Context) {
	count, err := s.repo.ExpireDue(ctx, s.now())
	if err != nil {
		s.log.Warn(s.log.WithField(ctx, "error", err.Error()), "bulk offer expiry failed")
		return
	}
	if count > 0 {
		s.log.Info(s.log.WithField(ctx, "expired", count), "expired stale offers")
	}
}
