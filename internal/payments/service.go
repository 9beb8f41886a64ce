package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/streamcart-live/streamcart-backend/internal/intents"
	"github.com/streamcart-live/streamcart-backend/internal/notifications"
	"github.com/streamcart-live/streamcart-backend/internal/orders"
	"github.com/streamcart-live/streamcart-backend/pkg/db"
	"github.com/streamcart-live/streamcart-backend/pkg/db/models"
	"github.com/streamcart-live/streamcart-backend/pkg/enums"
	pkgerrors "github.com/streamcart-live/streamcart-backend/pkg/errors"
	"github.com/streamcart-live/streamcart-backend/pkg/logger"
)

// Outcome summarizes what a handler did with an event, so the webhook layer
// can count processed, duplicate and skipped deliveries separately. All three
// acknowledge the event; only errors ask the provider to retry.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeSkipped   Outcome = "skipped"
)

// errDuplicateEvent aborts the transaction when the claim loses; nothing in
// the transaction is worth keeping at that point.
var errDuplicateEvent = errors.New("event already consumed")

// EventParams carry the payment fields a handler needs, already unpacked from
// the provider payload.
type EventParams struct {
	EventID         string
	PaymentIntentID string
	FailureReason   string
	OccurredAt      time.Time
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type orderStore interface {
	Create(ctx context.Context, order *models.Order) error
	FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Order, error)
	ClaimAndMarkPaid(ctx context.Context, orderID uuid.UUID, eventID string, paidAt time.Time) (int64, error)
	ClaimAndRecordFailure(ctx context.Context, orderID uuid.UUID, eventID, reason string) (int64, error)
	ClaimAndCancel(ctx context.Context, orderID uuid.UUID, eventID string) (int64, error)
}

type intentStore interface {
	FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.CheckoutIntent, error)
	Convert(ctx context.Context, intentID, orderID uuid.UUID) (int64, error)
	Cancel(ctx context.Context, intentID uuid.UUID) (int64, error)
}

type batchAttacher interface {
	AttachPaidOrder(ctx context.Context, tx *gorm.DB, order *models.Order) (uuid.UUID, error)
}

type notifier interface {
	EmitPaymentConfirmed(ctx context.Context, params notifications.PaymentConfirmedParams) error
}

type showCounter interface {
	IncrementSalesCount(ctx context.Context, showID uuid.UUID, delta int) error
}

type orderStoreFactory func(tx *gorm.DB) orderStore

type intentStoreFactory func(tx *gorm.DB) intentStore

func defaultOrderStore(tx *gorm.DB) orderStore {
	return orders.NewRepository(tx)
}

func defaultIntentStore(tx *gorm.DB) intentStore {
	return intents.NewRepository(tx)
}

// ServiceParams configure the payment pipeline service.
type ServiceParams struct {
	Logger             *logger.Logger
	TransactionRunner  txRunner
	Batches            batchAttacher
	Notifier           notifier
	Shows              showCounter
	OrderStoreFactory  orderStoreFactory
	IntentStoreFactory intentStoreFactory
}

// Service turns verified payment events into order state transitions. Every
// transition runs inside one transaction with the event-id claim, so a replay
// or a concurrent delivery can never apply the same event twice.
type Service struct {
	logg        *logger.Logger
	txRunner    txRunner
	batches     batchAttacher
	notifier    notifier
	shows       showCounter
	orderStore  orderStoreFactory
	intentStore intentStoreFactory
}

// NewService wires payment pipeline dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Batches == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "batch service required")
	}
	ordersFactory := params.OrderStoreFactory
	if ordersFactory == nil {
		ordersFactory = defaultOrderStore
	}
	intentsFactory := params.IntentStoreFactory
	if intentsFactory == nil {
		intentsFactory = defaultIntentStore
	}
	return &Service{
		logg:        params.Logger,
		txRunner:    params.TransactionRunner,
		batches:     params.Batches,
		notifier:    params.Notifier,
		shows:       params.Shows,
		orderStore:  ordersFactory,
		intentStore: intentsFactory,
	}, nil
}

// HandlePaymentSucceeded marks the order paid, attaches it to its open pickup
// batch and recomputes the batch totals, all in one transaction. When no
// order exists yet, the linked checkout intent is converted into one first.
// Post-commit side effects (buyer notification, show sales counter) are best
// effort and never fail the event.
func (s *Service) HandlePaymentSucceeded(ctx context.Context, params EventParams) (Outcome, error) {
	if err := params.validate(); err != nil {
		return OutcomeSkipped, err
	}
	paidAt := params.OccurredAt
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}

	var (
		paidOrder *models.Order
		batchID   uuid.UUID
		outcome   = OutcomeProcessed
	)
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		orderRepo := s.orderStore(tx)
		order, err := s.resolveOrder(ctx, tx, orderRepo, params)
		if err != nil {
			return err
		}
		if order == nil {
			outcome = OutcomeSkipped
			return errDuplicateEvent
		}

		rows, err := orderRepo.ClaimAndMarkPaid(ctx, order.ID, params.EventID, paidAt)
		if err != nil {
			if db.IsUniqueViolation(err, orders.StripeEventConstraint) {
				outcome = OutcomeDuplicate
				return errDuplicateEvent
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim payment event")
		}
		if rows == 0 {
			outcome = OutcomeDuplicate
			return errDuplicateEvent
		}

		order.Status = enums.OrderStatusPaid
		order.PaidAt = &paidAt
		batchID, err = s.batches.AttachPaidOrder(ctx, tx, order)
		if err != nil {
			return err
		}
		order.BatchID = &batchID
		paidOrder = order
		return nil
	})
	if err != nil {
		if errors.Is(err, errDuplicateEvent) {
			logCtx := s.logg.WithField(ctx, "event_id", params.EventID)
			if outcome == OutcomeSkipped {
				s.logg.Info(logCtx, "payment event matched no order or checkout intent")
			} else {
				s.logg.Info(logCtx, "payment event already applied")
			}
			return outcome, nil
		}
		return OutcomeProcessed, err
	}

	s.afterPaymentCommitted(ctx, paidOrder, batchID)
	return OutcomeProcessed, nil
}

// resolveOrder finds the order for the payment intent, creating it from the
// checkout intent when checkout never materialized an order. A nil order with
// nil error means nothing on our side references the payment intent.
func (s *Service) resolveOrder(ctx context.Context, tx *gorm.DB, orderRepo orderStore, params EventParams) (*models.Order, error) {
	order, err := orderRepo.FindByPaymentIntentID(ctx, params.PaymentIntentID)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find order by payment intent")
	}

	intentRepo := s.intentStore(tx)
	intent, err := intentRepo.FindByPaymentIntentID(ctx, params.PaymentIntentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logg.Warn(s.logg.WithField(ctx, "payment_intent_id", params.PaymentIntentID),
				"payment event references no order or checkout intent")
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find checkout intent")
	}

	created := orderFromIntent(intent, params.PaymentIntentID)
	if err := orderRepo.Create(ctx, created); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order from checkout intent")
	}
	rows, err := intentRepo.Convert(ctx, intent.ID, created.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "convert checkout intent")
	}
	if rows == 0 {
		// The intent converted under a concurrent delivery; that delivery
		// owns the order, this transaction rolls its copy back.
		return nil, nil
	}
	return created, nil
}

// HandlePaymentFailed records the failure reason while keeping the order
// pending, so the buyer can retry payment on the same order.
func (s *Service) HandlePaymentFailed(ctx context.Context, params EventParams) (Outcome, error) {
	if err := params.validate(); err != nil {
		return OutcomeSkipped, err
	}
	reason := params.FailureReason
	if reason == "" {
		reason = "payment failed"
	}

	outcome := OutcomeProcessed
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		orderRepo := s.orderStore(tx)
		order, err := orderRepo.FindByPaymentIntentID(ctx, params.PaymentIntentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				outcome = OutcomeSkipped
				return errDuplicateEvent
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find order by payment intent")
		}

		rows, err := orderRepo.ClaimAndRecordFailure(ctx, order.ID, params.EventID, reason)
		if err != nil {
			if db.IsUniqueViolation(err, orders.StripeEventConstraint) {
				outcome = OutcomeDuplicate
				return errDuplicateEvent
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment failure")
		}
		if rows == 0 {
			outcome = OutcomeDuplicate
			return errDuplicateEvent
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errDuplicateEvent) {
			return outcome, nil
		}
		return OutcomeProcessed, err
	}
	return OutcomeProcessed, nil
}

// HandlePaymentCanceled cancels the pending order for the payment intent, or
// when no order exists yet, cancels the unconverted checkout intent.
func (s *Service) HandlePaymentCanceled(ctx context.Context, params EventParams) (Outcome, error) {
	if err := params.validate(); err != nil {
		return OutcomeSkipped, err
	}

	outcome := OutcomeProcessed
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		orderRepo := s.orderStore(tx)
		intentRepo := s.intentStore(tx)

		order, err := orderRepo.FindByPaymentIntentID(ctx, params.PaymentIntentID)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find order by payment intent")
			}
			order = nil
		}

		if order == nil {
			intent, err := intentRepo.FindByPaymentIntentID(ctx, params.PaymentIntentID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					outcome = OutcomeSkipped
					return errDuplicateEvent
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find checkout intent")
			}
			rows, err := intentRepo.Cancel(ctx, intent.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel checkout intent")
			}
			if rows == 0 {
				outcome = OutcomeDuplicate
				return errDuplicateEvent
			}
			return nil
		}

		rows, err := orderRepo.ClaimAndCancel(ctx, order.ID, params.EventID)
		if err != nil {
			if db.IsUniqueViolation(err, orders.StripeEventConstraint) {
				outcome = OutcomeDuplicate
				return errDuplicateEvent
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		if rows == 0 {
			outcome = OutcomeDuplicate
			return errDuplicateEvent
		}

		// The cancellation owns the intent too when one is still linked.
		intent, err := intentRepo.FindByPaymentIntentID(ctx, params.PaymentIntentID)
		if err == nil {
			if _, err := intentRepo.Cancel(ctx, intent.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel checkout intent")
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find checkout intent")
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errDuplicateEvent) {
			return outcome, nil
		}
		return OutcomeProcessed, err
	}
	return OutcomeProcessed, nil
}

func (s *Service) afterPaymentCommitted(ctx context.Context, order *models.Order, batchID uuid.UUID) {
	if order == nil {
		return
	}
	scoped := s.logg.WithFields(ctx, map[string]any{
		"order_id": order.ID,
		"batch_id": batchID,
	})

	if s.notifier != nil {
		err := s.notifier.EmitPaymentConfirmed(ctx, notifications.PaymentConfirmedParams{
			Order:   order,
			BatchID: batchID,
		})
		if err != nil {
			s.logg.Error(scoped, "emit payment confirmed notification failed", err)
		}
	}

	if s.shows != nil && order.ShowID != nil {
		if err := s.shows.IncrementSalesCount(ctx, *order.ShowID, order.Quantity); err != nil {
			s.logg.Error(scoped, "increment show sales count failed", err)
		}
	}
}

func (p EventParams) validate() error {
	if p.EventID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	if p.PaymentIntentID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id required")
	}
	return nil
}

func orderFromIntent(intent *models.CheckoutIntent, paymentIntentID string) *models.Order {
	now := time.Now().UTC()
	pi := paymentIntentID
	return &models.Order{
		ID:                    uuid.New(),
		BuyerID:               intent.BuyerID,
		SellerID:              intent.SellerID,
		SellerEntityID:        intent.SellerEntityID,
		ProductID:             intent.ProductID,
		ShowID:                intent.ShowID,
		Quantity:              intent.Quantity,
		Price:                 intent.Price,
		DeliveryFee:           intent.DeliveryFee,
		Status:                enums.OrderStatusPending,
		StripePaymentIntentID: &pi,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}
