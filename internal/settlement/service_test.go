package settlement

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sproutswap/sproutswap-backend/internal/fees"
	"github.com/sproutswap/sproutswap-backend/internal/listings"
	"github.com/sproutswap/sproutswap-backend/internal/notifications"
	"github.com/sproutswap/sproutswap-backend/pkg/db"
	"github.com/sproutswap/sproutswap-backend/pkg/db/models"
	"github.com/sproutswap/sproutswap-backend/pkg/enums"
	pkgerrors "github.com/sproutswap/sproutswap-backend/pkg/errors"
	"github.com/sproutswap/sproutswap-backend/pkg/logger"
	"github.com/sproutswap/sproutswap-backend/pkg/pagination"
	"github.com/sproutswap/sproutswap-backend/pkg/paypal"
)

type fakeTxRepo struct {
	rows map[uuid.UUID]*models.Transaction
}

func newFakeTxRepo(rows ...*models.Transaction) *fakeTxRepo {
	repo := &fakeTxRepo{rows: map[uuid.UUID]*models.Transaction{}}
	for _, row := range rows {
		repo.rows[row.ID] = row
	}
	return repo
}

func (f *fakeTxRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeTxRepo) Create(ctx context.Context, transaction *models.Transaction) error {
	transaction.ID = uuid.New()
	f.rows[transaction.ID] = transaction
	return nil
}

func (f *fakeTxRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	clone := *row
	return &clone, nil
}

func (f *fakeTxRepo) GetByProviderOrderID(ctx context.Context, providerOrderID string) (*models.Transaction, error) {
	for _, row := range f.rows {
		if row.ProviderOrderID != nil && *row.ProviderOrderID == providerOrderID {
			clone := *row
			return &clone, nil
		}
	}
	return nil, nil
}

func (f *fakeTxRepo) FindPendingForOffer(ctx context.Context, offerID, buyerID uuid.UUID) (*models.Transaction, error) {
	for _, row := range f.rows {
		if row.OfferID != nil && *row.OfferID == offerID && row.BuyerID == buyerID && row.Status == enums.TransactionStatusPending {
			return row, nil
		}
	}
	return nil, nil
}

func (f *fakeTxRepo) AttachProviderOrder(ctx context.Context, id uuid.UUID, providerOrderID string, now time.Time) (bool, error) {
	row, ok := f.rows[id]
	if !ok || row.Status != enums.TransactionStatusPending {
		return false, nil
	}
	row.ProviderOrderID = &providerOrderID
	return true, nil
}

func (f *fakeTxRepo) MarkCompleted(ctx context.Context, id uuid.UUID, captureID string, now time.Time) (bool, error) {
	row, ok := f.rows[id]
	if !ok || row.Status != enums.TransactionStatusPending {
		return false, nil
	}
	row.Status = enums.TransactionStatusCompleted
	row.ProviderCaptureID = &captureID
	row.CompletedAt = &now
	return true, nil
}

func (f *fakeTxRepo) MarkCancelled(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	row, ok := f.rows[id]
	if !ok || row.Status != enums.TransactionStatusPending {
		return false, nil
	}
	row.Status = enums.TransactionStatusCancelled
	return true, nil
}

func (f *fakeTxRepo) MarkRefunded(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	row, ok := f.rows[id]
	if !ok || row.Status != enums.TransactionStatusCompleted {
		return false, nil
	}
	row.Status = enums.TransactionStatusRefunded
	return true, nil
}

func (f *fakeTxRepo) ListByBuyer(ctx context.Context, buyerID uuid.UUID, page pagination.Params) ([]models.Transaction, int64, error) {
	var rows []models.Transaction
	for _, row := range f.rows {
		if row.BuyerID == buyerID {
			rows = append(rows, *row)
		}
	}
	return rows, int64(len(rows)), nil
}

func (f *fakeTxRepo) ListBySeller(ctx context.Context, sellerID uuid.UUID, page pagination.Params) ([]models.Transaction, int64, error) {
	var rows []models.Transaction
	for _, row := range f.rows {
		if row.SellerID == sellerID {
			rows = append(rows, *row)
		}
	}
	return rows, int64(len(rows)), nil
}

type fakeListings struct {
	listing *models.Listing
}

func (f *fakeListings) WithTx(tx *gorm.DB) listings.Repository { return f }

func (f *fakeListings) GetByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	if f.listing == nil || f.listing.ID != id {
		return nil, nil
	}
	clone := *f.listing
	return &clone, nil
}

func (f *fakeListings) DecrementStock(ctx context.Context, id uuid.UUID, quantity int) (bool, error) {
	if f.listing == nil || f.listing.ID != id || f.listing.Quantity < quantity {
		return false, nil
	}
	f.listing.Quantity -= quantity
	return true, nil
}

type fakeSettings struct {
	platformFixed decimal.Decimal
}

func (f *fakeSettings) FeeSnapshot(ctx context.Context) fees.Snapshot {
	platformFixed := f.platformFixed
	if platformFixed.IsZero() {
		platformFixed = decimal.RequireFromString("0.42")
	}
	return fees.Snapshot{
		PlatformFeeFixed: platformFixed,
		PayPalFeePercent: decimal.RequireFromString("2.49"),
		PayPalFeeFixed:   decimal.RequireFromString("0.49"),
	}
}

func (f *fakeSettings) OfferExpirationDays(ctx context.Context) int { return 7 }

func (f *fakeSettings) GetPublic(ctx context.Context, key string) (*models.SystemSetting, error) {
	return nil, nil
}

func (f *fakeSettings) List(ctx context.Context) ([]models.SystemSetting, error) { return nil, nil }

func (f *fakeSettings) Update(ctx context.Context, key, value string) (*models.SystemSetting, error) {
	return nil, nil
}

type fakeNotifier struct {
	sent []notifications.DispatchInput
}

func (f *fakeNotifier) Dispatch(ctx context.Context, input notifications.DispatchInput) {
	f.sent = append(f.sent, input)
}

func (f *fakeNotifier) List(ctx context.Context, params notifications.ListParams) (*pagination.PageResult[models.Notification], error) {
	return nil, nil
}

func (f *fakeNotifier) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	return nil
}

func (f *fakeNotifier) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return 0, nil
}

type fakeProvider struct {
	orders    int
	amounts   []string
	refunds   int
	createErr error
	refundErr error
}

func (f *fakeProvider) CreateOrder(ctx context.Context, amount string, referenceID string) (*paypal.Order, error) {
	f.orders++
	f.amounts = append(f.amounts, amount)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &paypal.Order{
		ID:     "PP-" + referenceID,
		Status: "CREATED",
		Links:  []paypal.Link{{Href: "https://paypal.test/approve", Rel: "approve", Method: "GET"}},
	}, nil
}

func (f *fakeProvider) RefundCapture(ctx context.Context, captureID string, amount string) (*paypal.Refund, error) {
	f.refunds++
	if f.refundErr != nil {
		return nil, f.refundErr
	}
	return &paypal.Refund{ID: "RF-1", Status: "COMPLETED"}, nil
}

type fakeOfferReader struct {
	offer *models.Offer
}

func (f *fakeOfferReader) GetByID(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	if f.offer == nil || f.offer.ID != id {
		return nil, nil
	}
	clone := *f.offer
	return &clone, nil
}

type settlementEnv struct {
	svc      Service
	repo     *fakeTxRepo
	listings *fakeListings
	settings *fakeSettings
	provider *fakeProvider
	notifier *fakeNotifier
	offers   *fakeOfferReader
}

func newSettlementEnv(t *testing.T, repo *fakeTxRepo, listing *models.Listing) *settlementEnv {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}

	env := &settlementEnv{
		repo:     repo,
		listings: &fakeListings{listing: listing},
		settings: &fakeSettings{},
		provider: &fakeProvider{},
		notifier: &fakeNotifier{},
		offers:   &fakeOfferReader{},
	}
	svc, err := NewService(Params{
		DB:            db.NewWithConn(conn),
		Repo:          repo,
		Listings:      env.listings,
		Settings:      env.settings,
		Notifications: env.notifier,
		Provider:      env.provider,
		Offers:        env.offers,
		Logger:        logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	env.svc = svc
	return env
}

func sellableListing() *models.Listing {
	return &models.Listing{
		ID:        uuid.New(),
		SellerID:  uuid.New(),
		Title:     "Sour Diesel cutting",
		Quantity:  5,
		PriceType: enums.PriceTypeFixed,
		Price:     decimal.RequireFromString("10.00"),
		Status:    enums.ListingStatusActive,
	}
}

func TestInitiatePayPal(t *testing.T) {
	listing := sellableListing()
	env := newSettlementEnv(t, newFakeTxRepo(), listing)

	result, err := env.svc.Initiate(context.Background(), InitiateInput{
		BuyerID:   uuid.New(),
		ListingID: listing.ID,
		Quantity:  2,
		Method:    enums.PaymentMethodPayPal,
	})
	if err != nil {
		t.Fatalf("Initiate failed: %v", err)
	}

	transaction := result.Transaction
	if transaction.Status != enums.TransactionStatusPending {
		t.Fatalf("expected pending, got %s", transaction.Status)
	}
	if got := transaction.Subtotal.StringFixed(2); got != "20.00" {
		t.Fatalf("expected subtotal 20.00, got %s", got)
	}
	if got := transaction.PlatformFee.StringFixed(2); got != "0.84" {
		t.Fatalf("expected platform fee 0.84, got %s", got)
	}
	if got := transaction.ProcessorFee.StringFixed(2); got != "0.99" {
		t.Fatalf("expected processor fee 0.99, got %s", got)
	}
	if got := transaction.TotalAmount.StringFixed(2); got != "21.83" {
		t.Fatalf("expected total 21.83, got %s", got)
	}
	if got := transaction.SellerAmount.StringFixed(2); got != "18.17" {
		t.Fatalf("expected seller amount 18.17, got %s", got)
	}
	if transaction.ProviderOrderID == nil {
		t.Fatalf("expected provider order attached")
	}
	if result.ApproveURL != "https://paypal.test/approve" {
		t.Fatalf("expected approval link, got %q", result.ApproveURL)
	}
	if env.listings.listing.Quantity != 5 {
		t.Fatalf("stock must not be taken before capture")
	}
}

func TestInitiateCashSkipsProvider(t *testing.T) {
	listing := sellableListing()
	env := newSettlementEnv(t, newFakeTxRepo(), listing)

	result, err := env.svc.Initiate(context.Background(), InitiateInput{
		BuyerID:   uuid.New(),
		ListingID: listing.ID,
		Quantity:  1,
		Method:    enums.PaymentMethodCash,
	})
	if err != nil {
		t.Fatalf("Initiate failed: %v", err)
	}
	if result.ApproveURL != "" {
		t.Fatalf("cash settlements have no approval link")
	}
	if result.Transaction.ProcessorFee.StringFixed(2) != "0.00" {
		t.Fatalf("cash settlements carry no processor fee, got %s", result.Transaction.ProcessorFee)
	}
	if env.provider.orders != 0 {
		t.Fatalf("provider must not be called for cash")
	}
}

func TestInitiateGuards(t *testing.T) {
	t.Run("listing missing", func(t *testing.T) {
		env := newSettlementEnv(t, newFakeTxRepo(), nil)
		_, err := env.svc.Initiate(context.Background(), InitiateInput{
			BuyerID: uuid.New(), ListingID: uuid.New(), Quantity: 1, Method: enums.PaymentMethodPayPal,
		})
		if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})

	t.Run("own listing", func(t *testing.T) {
		listing := sellableListing()
		env := newSettlementEnv(t, newFakeTxRepo(), listing)
		_, err := env.svc.Initiate(context.Background(), InitiateInput{
			BuyerID: listing.SellerID, ListingID: listing.ID, Quantity: 1, Method: enums.PaymentMethodPayPal,
		})
		if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("not enough stock", func(t *testing.T) {
		listing := sellableListing()
		env := newSettlementEnv(t, newFakeTxRepo(), listing)
		_, err := env.svc.Initiate(context.Background(), InitiateInput{
			BuyerID: uuid.New(), ListingID: listing.ID, Quantity: 6, Method: enums.PaymentMethodPayPal,
		})
		if !pkgerrors.HasCode(err, pkgerrors.CodeOutOfStock) {
			t.Fatalf("expected out of stock, got %v", err)
		}
	})
}

func TestInitiateProviderFailureKeepsPendingRow(t *testing.T) {
	listing := sellableListing()
	repo := newFakeTxRepo()
	env := newSettlementEnv(t, repo, listing)
	env.provider.createErr = errors.New("gateway timeout")

	offerID := uuid.New()
	buyerID := uuid.New()
	env.offers.offer = &models.Offer{
		ID:          offerID,
		ListingID:   listing.ID,
		BuyerID:     buyerID,
		SellerID:    listing.SellerID,
		OfferAmount: decimal.RequireFromString("10.00"),
		Status:      enums.OfferStatusAccepted,
	}

	_, err := env.svc.Initiate(context.Background(), InitiateInput{
		BuyerID: buyerID,
		OfferID: &offerID,
		Method:  enums.PaymentMethodPayPal,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if len(repo.rows) != 1 {
		t.Fatalf("pending row must survive the provider failure")
	}

	// The retry reuses the pending row instead of opening a second one.
	env.provider.createErr = nil
	result, err := env.svc.Initiate(context.Background(), InitiateInput{
		BuyerID: buyerID,
		OfferID: &offerID,
		Method:  enums.PaymentMethodPayPal,
	})
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if len(repo.rows) != 1 {
		t.Fatalf("expected the retry to reuse the pending transaction, have %d rows", len(repo.rows))
	}
	if result.Transaction.ProviderOrderID == nil {
		t.Fatalf("expected a fresh provider order on retry")
	}
}

func TestInitiateRetryChargesStoredTotal(t *testing.T) {
	listing := sellableListing()
	repo := newFakeTxRepo()
	env := newSettlementEnv(t, repo, listing)
	env.provider.createErr = errors.New("gateway timeout")

	offerID := uuid.New()
	buyerID := uuid.New()
	env.offers.offer = &models.Offer{
		ID:          offerID,
		ListingID:   listing.ID,
		BuyerID:     buyerID,
		SellerID:    listing.SellerID,
		OfferAmount: decimal.RequireFromString("10.00"),
		Status:      enums.OfferStatusAccepted,
	}

	input := InitiateInput{
		BuyerID: buyerID,
		OfferID: &offerID,
		Method:  enums.PaymentMethodPayPal,
	}
	if _, err := env.svc.Initiate(context.Background(), input); !pkgerrors.HasCode(err, pkgerrors.CodeProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}

	// The platform fee changes before the retry. The reused row keeps its
	// original breakdown, so the provider must be charged that total and not
	// a freshly computed one.
	env.settings.platformFixed = decimal.RequireFromString("2.00")
	env.provider.createErr = nil

	result, err := env.svc.Initiate(context.Background(), input)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}

	want := result.Transaction.TotalAmount.StringFixed(2)
	charged := env.provider.amounts[len(env.provider.amounts)-1]
	if charged != want {
		t.Fatalf("provider charged %s but the stored total is %s", charged, want)
	}
	if want != "11.16" {
		t.Fatalf("expected the original breakdown total 11.16, got %s", want)
	}
}

func TestInitiateOfferMustBeAccepted(t *testing.T) {
	listing := sellableListing()
	env := newSettlementEnv(t, newFakeTxRepo(), listing)

	offerID := uuid.New()
	buyerID := uuid.New()
	env.offers.offer = &models.Offer{
		ID:          offerID,
		ListingID:   listing.ID,
		BuyerID:     buyerID,
		SellerID:    listing.SellerID,
		OfferAmount: decimal.RequireFromString("10.00"),
		Status:      enums.OfferStatusPending,
	}

	_, err := env.svc.Initiate(context.Background(), InitiateInput{
		BuyerID: buyerID,
		OfferID: &offerID,
		Method:  enums.PaymentMethodPayPal,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}

	_, err = env.svc.Initiate(context.Background(), InitiateInput{
		BuyerID: uuid.New(),
		OfferID: &offerID,
		Method:  enums.PaymentMethodPayPal,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden for another buyer, got %v", err)
	}
}

func pendingPayPalTransaction(listing *models.Listing, orderID string) *models.Transaction {
	amount := decimal.RequireFromString("10.00")
	return &models.Transaction{
		ID:              uuid.New(),
		ListingID:       listing.ID,
		BuyerID:         uuid.New(),
		SellerID:        listing.SellerID,
		Quantity:        1,
		UnitPrice:       amount,
		Subtotal:        amount,
		PlatformFee:     decimal.RequireFromString("0.42"),
		ProcessorFee:    decimal.RequireFromString("0.74"),
		TotalAmount:     decimal.RequireFromString("11.16"),
		SellerAmount:    decimal.RequireFromString("8.84"),
		PaymentMethod:   enums.PaymentMethodPayPal,
		ProviderOrderID: &orderID,
		Status:          enums.TransactionStatusPending,
	}
}

func TestFinalize(t *testing.T) {
	listing := sellableListing()
	transaction := pendingPayPalTransaction(listing, "PP-77")
	env := newSettlementEnv(t, newFakeTxRepo(transaction), listing)

	finished, err := env.svc.Finalize(context.Background(), "PP-77", "CAP-1")
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if finished.Status != enums.TransactionStatusCompleted {
		t.Fatalf("expected completed, got %s", finished.Status)
	}
	if env.listings.listing.Quantity != 4 {
		t.Fatalf("expected stock decrement, have %d", env.listings.listing.Quantity)
	}
	if len(env.notifier.sent) != 2 {
		t.Fatalf("expected both parties notified, got %d", len(env.notifier.sent))
	}
}

func TestFinalizeIsIdempotent(t *testing.T) {
	listing := sellableListing()
	transaction := pendingPayPalTransaction(listing, "PP-78")
	env := newSettlementEnv(t, newFakeTxRepo(transaction), listing)

	if _, err := env.svc.Finalize(context.Background(), "PP-78", "CAP-1"); err != nil {
		t.Fatalf("first finalize failed: %v", err)
	}

	replayed, err := env.svc.Finalize(context.Background(), "PP-78", "CAP-1")
	if err != nil {
		t.Fatalf("replay must succeed: %v", err)
	}
	if replayed.Status != enums.TransactionStatusCompleted {
		t.Fatalf("expected completed, got %s", replayed.Status)
	}
	if env.listings.listing.Quantity != 4 {
		t.Fatalf("replay must not take stock twice, have %d", env.listings.listing.Quantity)
	}

	_, err = env.svc.Finalize(context.Background(), "PP-78", "CAP-2")
	if !pkgerrors.HasCode(err, pkgerrors.CodeAlreadyFinalized) {
		t.Fatalf("expected already finalized for a different capture, got %v", err)
	}
}

func TestFinalizeUnknownOrder(t *testing.T) {
	env := newSettlementEnv(t, newFakeTxRepo(), sellableListing())

	_, err := env.svc.Finalize(context.Background(), "PP-missing", "CAP-1")
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestFinalizeOutOfStockRollsBack(t *testing.T) {
	listing := sellableListing()
	listing.Quantity = 0
	transaction := pendingPayPalTransaction(listing, "PP-79")
	repo := newFakeTxRepo(transaction)
	env := newSettlementEnv(t, repo, listing)

	_, err := env.svc.Finalize(context.Background(), "PP-79", "CAP-1")
	if !pkgerrors.HasCode(err, pkgerrors.CodeOutOfStock) {
		t.Fatalf("expected out of stock, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	listing := sellableListing()
	transaction := pendingPayPalTransaction(listing, "PP-80")
	env := newSettlementEnv(t, newFakeTxRepo(transaction), listing)

	_, err := env.svc.Cancel(context.Background(), transaction.ID, uuid.New())
	if !pkgerrors.HasCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden for non-buyer, got %v", err)
	}

	cancelled, err := env.svc.Cancel(context.Background(), transaction.ID, transaction.BuyerID)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if cancelled.Status != enums.TransactionStatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	if env.listings.listing.Quantity != 5 {
		t.Fatalf("cancel must not touch stock")
	}

	_, err = env.svc.Cancel(context.Background(), transaction.ID, transaction.BuyerID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict on second cancel, got %v", err)
	}
}

func TestRefund(t *testing.T) {
	listing := sellableListing()
	captureID := "CAP-9"
	transaction := pendingPayPalTransaction(listing, "PP-81")
	transaction.Status = enums.TransactionStatusCompleted
	transaction.ProviderCaptureID = &captureID
	env := newSettlementEnv(t, newFakeTxRepo(transaction), listing)

	refunded, err := env.svc.Refund(context.Background(), transaction.ID)
	if err != nil {
		t.Fatalf("Refund failed: %v", err)
	}
	if refunded.Status != enums.TransactionStatusRefunded {
		t.Fatalf("expected refunded, got %s", refunded.Status)
	}
	if env.provider.refunds != 1 {
		t.Fatalf("expected one provider refund, got %d", env.provider.refunds)
	}
	if env.listings.listing.Quantity != 5 {
		t.Fatalf("refund must not restore stock")
	}
	if len(env.notifier.sent) != 1 || env.notifier.sent[0].Type != enums.NotificationTypeRefundIssued {
		t.Fatalf("expected refund notification, got %+v", env.notifier.sent)
	}

	_, err = env.svc.Refund(context.Background(), transaction.ID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict on double refund, got %v", err)
	}
}

func TestRefundProviderFailureKeepsCompleted(t *testing.T) {
	listing := sellableListing()
	captureID := "CAP-10"
	transaction := pendingPayPalTransaction(listing, "PP-82")
	transaction.Status = enums.TransactionStatusCompleted
	transaction.ProviderCaptureID = &captureID
	repo := newFakeTxRepo(transaction)
	env := newSettlementEnv(t, repo, listing)
	env.provider.refundErr = errors.New("gateway timeout")

	_, err := env.svc.Refund(context.Background(), transaction.ID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if repo.rows[transaction.ID].Status != enums.TransactionStatusCompleted {
		t.Fatalf("refund failure must leave the row completed")
	}
}

func TestGetByIDScopesToParties(t *testing.T) {
	listing := sellableListing()
	transaction := pendingPayPalTransaction(listing, "PP-83")
	env := newSettlementEnv(t, newFakeTxRepo(transaction), listing)

	if _, err := env.svc.GetByID(context.Background(), transaction.ID, transaction.BuyerID); err != nil {
		t.Fatalf("buyer must see the transaction: %v", err)
	}
	if _, err := env.svc.GetByID(context.Background(), transaction.ID, transaction.SellerID); err != nil {
		t.Fatalf("seller must see the transaction: %v", err)
	}
	if _, err := env.svc.GetByID(context.Background(), transaction.ID, uuid.New()); !pkgerrors.HasCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden for outsiders, got %v", err)
	}
}
