package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/streamcart-live/streamcart-backend/api/responses"
	stripewebhook "github.com/streamcart-live/streamcart-backend/internal/webhooks/stripe"
	pkgerrors "github.com/streamcart-live/streamcart-backend/pkg/errors"
	"github.com/streamcart-live/streamcart-backend/pkg/logger"
	"github.com/streamcart-live/streamcart-backend/pkg/metrics"
)

// Stripe retries deliveries for days; cap the payload defensively.
const maxWebhookPayload = 1 << 20

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) (stripewebhook.Outcome, error)
}

type stripeClient interface {
	SigningSecret() string
}

// StripeWebhook verifies and routes payment pipeline events. The contract
// with Stripe: 2xx acknowledges, 4xx rejects malformed deliveries for good,
// 5xx asks for a retry. Duplicates and unroutable events acknowledge.
func StripeWebhook(svc StripeWebhookService, client stripeClient, webhookMetrics *metrics.WebhookMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe client unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookPayload))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}

		// The dispatcher only reads fields that are stable across Stripe API
		// versions, so a version drift must not reject the delivery.
		event, err := webhook.ConstructEventWithOptions(payload, sigHeader, client.SigningSecret(), webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook signature"))
			return
		}

		eventType := string(event.Type)
		if webhookMetrics != nil {
			webhookMetrics.IncReceived(eventType)
		}

		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"event_id":   event.ID,
				"event_type": eventType,
			})
		}

		outcome, err := svc.HandleEvent(ctx, &event)
		if err != nil {
			if webhookMetrics != nil {
				webhookMetrics.IncFailed(eventType)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if webhookMetrics != nil {
			switch outcome {
			case stripewebhook.OutcomeDuplicate:
				webhookMetrics.IncDuplicate(eventType)
			default:
				webhookMetrics.IncProcessed(eventType)
			}
		}

		if logg != nil {
			logg.Info(logg.WithField(ctx, "outcome", string(outcome)), "stripe event acknowledged")
		}
		responses.WriteSuccess(w, map[string]any{
			"received": true,
			"event_id": event.ID,
		})
	}
}
