package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/sproutswap/sproutswap-backend/internal/notifications"
	"github.com/sproutswap/sproutswap-backend/pkg/db/models"
	"github.com/sproutswap/sproutswap-backend/pkg/enums"
	"github.com/sproutswap/sproutswap-backend/pkg/logger"
)

const defaultExpiryBatchSize = 200

// dueOfferStore is the slice of the offers repository the expiry job uses.
type dueOfferStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.Offer, error)
	MarkExpired(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
}

// OfferExpiryJobParams configure the offer expiry sweep.
type OfferExpiryJobParams struct {
	Logger        *logger.Logger
	Offers        dueOfferStore
	Notifications notifications.Service
	BatchSize     int
}

// NewOfferExpiryJob builds the job that closes offers past their deadline.
func NewOfferExpiryJob(params OfferExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Offers == nil {
		return nil, fmt.Errorf("offers store required")
	}
	if params.Notifications == nil {
		return nil, fmt.Errorf("notifications service required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultExpiryBatchSize
	}
	return &offerExpiryJob{
		logg:          params.Logger,
		offers:        params.Offers,
		notifications: params.Notifications,
		batchSize:     batchSize,
		now:           time.Now,
	}, nil
}

type offerExpiryJob struct {
	logg          *logger.Logger
	offers        dueOfferStore
	notifications notifications.Service
	batchSize     int
	now           func() time.Time
}

func (j *offerExpiryJob) Name() string { return "offer-expiry" }

// Run expires due offers in batches. Each row is flipped with a guarded
// update, so a buyer accepting in the same instant wins the race.
func (j *offerExpiryJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	expired := 0
	var errs []error

	for {
		batch, err := j.offers.ListDue(ctx, now, j.batchSize)
		if err != nil {
			errs = append(errs, fmt.Errorf("list due offers: %w", err))
			break
		}
		if len(batch) == 0 {
			break
		}

		for _, offer := range batch {
			ok, err := j.offers.MarkExpired(ctx, offer.ID, now)
			if err != nil {
				errs = append(errs, fmt.Errorf("expire offer %s: %w", offer.ID, err))
				continue
			}
			if !ok {
				continue
			}
			expired++
			j.notifications.Dispatch(ctx, notifications.DispatchInput{
				UserID:  offer.BuyerID,
				Type:    enums.NotificationTypeOfferExpired,
				Title:   "Offer expired",
				Message: "Your offer of " + offer.OfferAmount.StringFixed(2) + " expired without a response.",
			})
		}

		if len(batch) < j.batchSize {
			break
		}
	}

	if expired > 0 {
		j.logg.Info(j.logg.WithField(ctx, "expired", expired), "offer expiry sweep done")
	}
	return multierr.Combine(errs...)
}
