package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/streamcart-live/streamcart-backend/internal/intents"
	"github.com/streamcart-live/streamcart-backend/internal/orders"
	"github.com/streamcart-live/streamcart-backend/pkg/db/models"
	"github.com/streamcart-live/streamcart-backend/pkg/logger"
)

const defaultOrderExpiryHours = 24

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type pendingOrderReader interface {
	FindPendingBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error)
}

type expiryOrderStore interface {
	CancelPending(ctx context.Context, orderID uuid.UUID) (int64, error)
}

type expiryIntentStore interface {
	FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.CheckoutIntent, error)
	Cancel(ctx context.Context, intentID uuid.UUID) (int64, error)
}

type expiryOrderStoreFactory func(tx *gorm.DB) expiryOrderStore

type expiryIntentStoreFactory func(tx *gorm.DB) expiryIntentStore

func defaultExpiryOrderStore(tx *gorm.DB) expiryOrderStore {
	return orders.NewRepository(tx)
}

func defaultExpiryIntentStore(tx *gorm.DB) expiryIntentStore {
	return intents.NewRepository(tx)
}

// OrderExpiryJobParams configure the pending order expiry job.
type OrderExpiryJobParams struct {
	Logger             *logger.Logger
	DB                 txRunner
	PendingReader      pendingOrderReader
	ExpiryHours        int
	OrderStoreFactory  expiryOrderStoreFactory
	IntentStoreFactory expiryIntentStoreFactory
}

// NewOrderExpiryJob builds the job that cancels orders whose payment never
// arrived. Each order is handled in its own transaction: a payment landing
// mid-sweep wins, because the cancel is guarded on pending status.
func NewOrderExpiryJob(params OrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.PendingReader == nil {
		return nil, fmt.Errorf("pending orders reader required")
	}
	expiryHours := params.ExpiryHours
	if expiryHours <= 0 {
		expiryHours = defaultOrderExpiryHours
	}
	orderStore := params.OrderStoreFactory
	if orderStore == nil {
		orderStore = defaultExpiryOrderStore
	}
	intentStore := params.IntentStoreFactory
	if intentStore == nil {
		intentStore = defaultExpiryIntentStore
	}
	return &orderExpiryJob{
		logg:          params.Logger,
		db:            params.DB,
		pendingReader: params.PendingReader,
		expiryHours:   expiryHours,
		orderStore:    orderStore,
		intentStore:   intentStore,
		now:           time.Now,
	}, nil
}

type orderExpiryJob struct {
	logg          *logger.Logger
	db            txRunner
	pendingReader pendingOrderReader
	expiryHours   int
	orderStore    expiryOrderStoreFactory
	intentStore   expiryIntentStoreFactory
	now           func() time.Time
}

func (j *orderExpiryJob) Name() string { return "order-expiry" }

func (j *orderExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.expiryHours) * time.Hour)
	stale, err := j.pendingReader.FindPendingBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("query stale pending orders: %w", err)
	}

	var errs []error
	expired := 0
	for _, order := range stale {
		if err := j.expireOrder(ctx, order); err != nil {
			errs = append(errs, fmt.Errorf("expire order %s: %w", order.ID, err))
			continue
		}
		expired++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"scanned": len(stale),
		"expired": expired,
	})
	j.logg.Info(logCtx, "order expiry sweep complete")
	return multierr.Combine(errs...)
}

func (j *orderExpiryJob) expireOrder(ctx context.Context, order models.Order) error {
	return j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.orderStore(tx).CancelPending(ctx, order.ID)
		if err != nil {
			return err
		}
		if rows == 0 {
			// The payment landed between the scan and this transaction.
			return nil
		}
		if order.StripePaymentIntentID == nil {
			return nil
		}

		intentRepo := j.intentStore(tx)
		intent, err := intentRepo.FindByPaymentIntentID(ctx, *order.StripePaymentIntentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if _, err := intentRepo.Cancel(ctx, intent.ID); err != nil {
			return err
		}
		return nil
	})
}
