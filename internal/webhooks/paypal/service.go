package paypalwebhook

import (
	"context"
	"encoding/json"

	"github.com/sproutswap/sproutswap-backend/pkg/db/models"
	pkgerrors "github.com/sproutswap/sproutswap-backend/pkg/errors"
	"github.com/sproutswap/sproutswap-backend/pkg/logger"
)

// EventTypeCaptureCompleted is the only delivery the platform acts on.
const EventTypeCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"

// Event is the envelope PayPal posts to the webhook endpoint.
type Event struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Resource  json.RawMessage `json:"resource"`
}

// captureResource is the slice of the capture payload the platform reads.
type captureResource struct {
	ID                string `json:"id"`
	SupplementaryData struct {
		RelatedIDs struct {
			OrderID string `json:"order_id"`
		} `json:"related_ids"`
	} `json:"supplementary_data"`
}

type settlementFinalizer interface {
	Finalize(ctx context.Context, providerOrderID, captureID string) (*models.Transaction, error)
}

type ServiceParams struct {
	Settlement settlementFinalizer
	Logger     *logger.Logger
}

type Service struct {
	settlement settlementFinalizer
	logg       *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Settlement == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "settlement service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &Service{
		settlement: params.Settlement,
		logg:       params.Logger,
	}, nil
}

// HandleEvent finalizes the settlement a completed capture belongs to.
// Deliveries for event types the platform does not consume are accepted
// and dropped, replays of an already-settled capture succeed silently.
func (s *Service) HandleEvent(ctx context.Context, event *Event) error {
	if event == nil || event.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "paypal event required")
	}

	if event.EventType != EventTypeCaptureCompleted {
		s.logg.Info(s.logg.WithField(ctx, "event_type", event.EventType), "ignoring paypal event")
		return nil
	}

	var capture captureResource
	if err := json.Unmarshal(event.Resource, &capture); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode capture resource")
	}
	orderID := capture.SupplementaryData.RelatedIDs.OrderID
	if orderID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "capture resource has no order id")
	}

	transaction, err := s.settlement.Finalize(ctx, orderID, capture.ID)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeAlreadyFinalized) {
			s.logg.Info(s.logg.WithField(ctx, "provider_order_id", orderID), "capture already settled")
			return nil
		}
		return err
	}

	s.logg.Info(s.logg.WithTransactionID(ctx, transaction.ID.String()), "capture settled via webhook")
	return nil
}
