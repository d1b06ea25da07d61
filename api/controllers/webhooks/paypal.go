package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sproutswap/sproutswap-backend/api/responses"
	paypalwebhook "github.com/sproutswap/sproutswap-backend/internal/webhooks/paypal"
	pkgerrors "github.com/sproutswap/sproutswap-backend/pkg/errors"
	"github.com/sproutswap/sproutswap-backend/pkg/logger"
	"github.com/sproutswap/sproutswap-backend/pkg/paypal"
)

type PayPalWebhookService interface {
	HandleEvent(ctx context.Context, event *paypalwebhook.Event) error
}

type paypalWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type signatureVerifier interface {
	VerifyWebhookSignature(ctx context.Context, input paypal.VerifySignatureInput) (bool, error)
}

// PayPalWebhook handles payment capture events from PayPal.
func PayPalWebhook(svc PayPalWebhookService, client signatureVerifier, guard paypalWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "paypal client unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		verified, err := client.VerifyWebhookSignature(ctx, paypal.VerifySignatureInput{
			AuthAlgo:         r.Header.Get("Paypal-Auth-Algo"),
			CertURL:          r.Header.Get("Paypal-Cert-Url"),
			TransmissionID:   r.Header.Get("Paypal-Transmission-Id"),
			TransmissionSig:  r.Header.Get("Paypal-Transmission-Sig"),
			TransmissionTime: r.Header.Get("Paypal-Transmission-Time"),
			RawBody:          payload,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "verify signature"))
			return
		}
		if !verified {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "paypal signature rejected"))
			return
		}

		var event paypalwebhook.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event"))
			return
		}

		alreadyProcessed, err := guard.CheckAndMark(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			responses.WriteSuccess(w, nil)
			return
		}

		if err := svc.HandleEvent(ctx, &event); err != nil {
			_ = guard.Delete(ctx, event.ID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, fmt.Sprintf("paypal event %s processed", event.ID))
		}
		responses.WriteSuccess(w, nil)
	}
}
