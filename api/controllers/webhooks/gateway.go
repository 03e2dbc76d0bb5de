package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/vendorpay-backend/api/responses"
	"github.com/angelmondragon/vendorpay-backend/internal/gateway"
	"github.com/angelmondragon/vendorpay-backend/internal/gateway/wiretransfer"
	pkgerrors "github.com/angelmondragon/vendorpay-backend/pkg/errors"
	"github.com/angelmondragon/vendorpay-backend/pkg/logger"
)

const maxWebhookBodyBytes = 1 << 20

// EventHandler applies a verified gateway notification to payout state.
type EventHandler interface {
	HandleGatewayEvent(ctx context.Context, event *gateway.WebhookEvent) error
}

// GatewayWebhook verifies the provider signature, normalizes the event, and
// hands it to the payout orchestrator. Duplicate deliveries are absorbed
// downstream, so the provider always sees a 2xx on redelivery.
func GatewayWebhook(handler EventHandler, adapter gateway.Adapter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if handler == nil || adapter == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "gateway webhook unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unable to read webhook payload"))
			return
		}

		signature := r.Header.Get(wiretransfer.SignatureHeader())
		if signature == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing webhook signature"))
			return
		}

		event, err := adapter.VerifyWebhook(payload, signature)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"provider":    event.Provider,
				"event_id":    event.EventID,
				"event_kind":  string(event.Kind),
				"transfer_id": event.TransferID,
			})
			logg.Info(ctx, "gateway webhook received")
		}

		if err := handler.HandleGatewayEvent(ctx, event); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "accepted"})
	}
}
