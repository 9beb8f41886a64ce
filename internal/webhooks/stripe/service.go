package stripewebhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/streamcart-live/streamcart-backend/internal/connect"
	"github.com/streamcart-live/streamcart-backend/internal/payments"
	pkgerrors "github.com/streamcart-live/streamcart-backend/pkg/errors"
	"github.com/streamcart-live/streamcart-backend/pkg/logger"
)

// Outcome is the dispatcher's verdict on one delivery.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeIgnored   Outcome = "ignored"
)

type paymentHandler interface {
	HandlePaymentSucceeded(ctx context.Context, params payments.EventParams) (payments.Outcome, error)
	HandlePaymentFailed(ctx context.Context, params payments.EventParams) (payments.Outcome, error)
	HandlePaymentCanceled(ctx context.Context, params payments.EventParams) (payments.Outcome, error)
}

type connectHandler interface {
	HandleAccountUpdated(ctx context.Context, params connect.AccountEventParams) (connect.Outcome, error)
	HandleCapabilityUpdated(ctx context.Context, params connect.CapabilityEventParams) (connect.Outcome, error)
	HandleDeauthorized(ctx context.Context, params connect.DeauthorizedParams) (connect.Outcome, error)
}

// ServiceParams configure the webhook dispatcher.
type ServiceParams struct {
	Logger   *logger.Logger
	Payments paymentHandler
	Connect  connectHandler
	Guard    *IdempotencyGuard
}

// Service routes verified Stripe events to the pipeline handlers. The
// optional Redis guard short-circuits replays before they reach the database;
// the database claims remain the source of truth, so losing the guard only
// costs a wasted transaction.
type Service struct {
	logg     *logger.Logger
	payments paymentHandler
	connect  connectHandler
	guard    *IdempotencyGuard
}

// NewService wires the webhook dispatcher.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments handler required")
	}
	if params.Connect == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "connect handler required")
	}
	return &Service{
		logg:     params.Logger,
		payments: params.Payments,
		connect:  params.Connect,
		guard:    params.Guard,
	}, nil
}

// HandleEvent dispatches one verified event. Unrecognized event types are
// acknowledged untouched so new subscriptions in the Stripe dashboard never
// break delivery.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) (Outcome, error) {
	if event == nil || event.ID == "" {
		return OutcomeSkipped, pkgerrors.New(pkgerrors.CodeValidation, "stripe event required")
	}

	if s.guard != nil {
		seen, err := s.guard.CheckAndMark(ctx, event.ID)
		if err != nil {
			// Redis being down must not stall the pipeline.
			s.logg.Warn(s.logg.WithField(ctx, "event_id", event.ID), "idempotency guard unavailable")
		} else if seen {
			return OutcomeDuplicate, nil
		}
	}

	outcome, err := s.dispatch(ctx, event)
	if err != nil && s.guard != nil {
		// Release the fast-path mark so the provider retry reaches the
		// handlers again.
		if delErr := s.guard.Delete(ctx, event.ID); delErr != nil {
			s.logg.Warn(s.logg.WithField(ctx, "event_id", event.ID), "release idempotency mark failed")
		}
	}
	return outcome, err
}

func (s *Service) dispatch(ctx context.Context, event *stripe.Event) (Outcome, error) {
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		params, err := paymentParams(event)
		if err != nil {
			return OutcomeSkipped, err
		}
		return mapOutcome(s.payments.HandlePaymentSucceeded(ctx, params))
	case stripe.EventTypePaymentIntentPaymentFailed:
		params, err := paymentParams(event)
		if err != nil {
			return OutcomeSkipped, err
		}
		return mapOutcome(s.payments.HandlePaymentFailed(ctx, params))
	case stripe.EventTypePaymentIntentCanceled:
		params, err := paymentParams(event)
		if err != nil {
			return OutcomeSkipped, err
		}
		return mapOutcome(s.payments.HandlePaymentCanceled(ctx, params))
	case stripe.EventTypeAccountUpdated:
		var account stripe.Account
		if err := json.Unmarshal(event.Data.Raw, &account); err != nil {
			return OutcomeSkipped, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode account event")
		}
		accountID := account.ID
		if accountID == "" {
			accountID = event.Account
		}
		outcome, err := s.connect.HandleAccountUpdated(ctx, connect.AccountEventParams{
			EventID:        event.ID,
			AccountID:      accountID,
			ChargesEnabled: account.ChargesEnabled,
			PayoutsEnabled: account.PayoutsEnabled,
		})
		return s.connectOutcome(ctx, event.ID, outcome, err)
	case stripe.EventTypeCapabilityUpdated:
		var capability stripe.Capability
		if err := json.Unmarshal(event.Data.Raw, &capability); err != nil {
			return OutcomeSkipped, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode capability event")
		}
		accountID := event.Account
		if capability.Account != nil && capability.Account.ID != "" {
			accountID = capability.Account.ID
		}
		outcome, err := s.connect.HandleCapabilityUpdated(ctx, connect.CapabilityEventParams{
			EventID:    event.ID,
			AccountID:  accountID,
			Capability: string(capability.ID),
			Active:     capability.Status == stripe.CapabilityStatusActive,
		})
		return s.connectOutcome(ctx, event.ID, outcome, err)
	case stripe.EventTypeAccountApplicationDeauthorized:
		outcome, err := s.connect.HandleDeauthorized(ctx, connect.DeauthorizedParams{
			EventID:   event.ID,
			AccountID: event.Account,
		})
		return s.connectOutcome(ctx, event.ID, outcome, err)
	default:
		return OutcomeIgnored, nil
	}
}

// connectOutcome absorbs connect sync failures. The connected flag is a
// denormalized convenience field; a failed sync must not make the provider
// retry the whole event.
func (s *Service) connectOutcome(ctx context.Context, eventID string, outcome connect.Outcome, err error) (Outcome, error) {
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "event_id", eventID), "connect status sync failed", err)
		return OutcomeSkipped, nil
	}
	return Outcome(outcome), nil
}

func paymentParams(event *stripe.Event) (payments.EventParams, error) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return payments.EventParams{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
	}
	params := payments.EventParams{
		EventID:         event.ID,
		PaymentIntentID: intent.ID,
	}
	if event.Created > 0 {
		params.OccurredAt = time.Unix(event.Created, 0).UTC()
	}
	if intent.LastPaymentError != nil {
		params.FailureReason = failureReason(intent.LastPaymentError)
	}
	return params, nil
}

func failureReason(stripeErr *stripe.Error) string {
	if stripeErr.DeclineCode != "" {
		return string(stripeErr.DeclineCode)
	}
	if stripeErr.Code != "" {
		return string(stripeErr.Code)
	}
	if stripeErr.Msg != "" {
		return stripeErr.Msg
	}
	return "payment failed"
}

func mapOutcome[T ~string](outcome T, err error) (Outcome, error) {
	if err != nil {
		return OutcomeProcessed, err
	}
	return Outcome(outcome), nil
}
