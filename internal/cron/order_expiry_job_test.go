package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/streamcart-live/streamcart-backend/pkg/db/models"
	"github.com/streamcart-live/streamcart-backend/pkg/logger"
)

type expiryFakeTxRunner struct{}

func (expiryFakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakePendingReader struct {
	orders []models.Order
	err    error
}

func (f *fakePendingReader) FindPendingBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.orders, nil
}

type fakeExpiryOrderStore struct {
	cancelRows int64
	cancelErr  error
	cancelled  []uuid.UUID
}

func (f *fakeExpiryOrderStore) CancelPending(ctx context.Context, orderID uuid.UUID) (int64, error) {
	if f.cancelErr != nil {
		return 0, f.cancelErr
	}
	f.cancelled = append(f.cancelled, orderID)
	return f.cancelRows, nil
}

type fakeExpiryIntentStore struct {
	intent    *models.CheckoutIntent
	cancelled []uuid.UUID
}

func (f *fakeExpiryIntentStore) FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.CheckoutIntent, error) {
	if f.intent == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return f.intent, nil
}

func (f *fakeExpiryIntentStore) Cancel(ctx context.Context, intentID uuid.UUID) (int64, error) {
	f.cancelled = append(f.cancelled, intentID)
	return 1, nil
}

func newExpiryJob(t *testing.T, reader *fakePendingReader, orderStore *fakeExpiryOrderStore, intentStore *fakeExpiryIntentStore) *orderExpiryJob {
	t.Helper()
	jobIface, err := NewOrderExpiryJob(OrderExpiryJobParams{
		Logger:             logger.New(logger.Options{ServiceName: "test"}),
		DB:                 expiryFakeTxRunner{},
		PendingReader:      reader,
		ExpiryHours:        24,
		OrderStoreFactory:  func(tx *gorm.DB) expiryOrderStore { return orderStore },
		IntentStoreFactory: func(tx *gorm.DB) expiryIntentStore { return intentStore },
	})
	if err != nil {
		t.Fatalf("NewOrderExpiryJob: %v", err)
	}
	job, ok := jobIface.(*orderExpiryJob)
	if !ok {
		t.Fatalf("expected orderExpiryJob, got %T", jobIface)
	}
	return job
}

func staleOrder(paymentIntentID string) models.Order {
	order := models.Order{ID: uuid.New()}
	if paymentIntentID != "" {
		order.StripePaymentIntentID = &paymentIntentID
	}
	return order
}

func TestOrderExpiryJobCancelsStaleOrders(t *testing.T) {
	intent := &models.CheckoutIntent{ID: uuid.New()}
	reader := &fakePendingReader{orders: []models.Order{staleOrder("pi_stale")}}
	orderStore := &fakeExpiryOrderStore{cancelRows: 1}
	intentStore := &fakeExpiryIntentStore{intent: intent}
	job := newExpiryJob(t, reader, orderStore, intentStore)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(orderStore.cancelled) != 1 {
		t.Fatalf("expected one order cancelled, got %d", len(orderStore.cancelled))
	}
	if len(intentStore.cancelled) != 1 || intentStore.cancelled[0] != intent.ID {
		t.Fatalf("expected linked intent cancelled, got %v", intentStore.cancelled)
	}
}

func TestOrderExpiryJobSkipsOrdersPaidMidSweep(t *testing.T) {
	reader := &fakePendingReader{orders: []models.Order{staleOrder("pi_racy")}}
	orderStore := &fakeExpiryOrderStore{cancelRows: 0}
	intentStore := &fakeExpiryIntentStore{intent: &models.CheckoutIntent{ID: uuid.New()}}
	job := newExpiryJob(t, reader, orderStore, intentStore)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(intentStore.cancelled) != 0 {
		t.Fatal("a paid order must keep its intent untouched")
	}
}

func TestOrderExpiryJobContinuesPastFailures(t *testing.T) {
	reader := &fakePendingReader{orders: []models.Order{staleOrder(""), staleOrder("")}}
	orderStore := &fakeExpiryOrderStore{cancelErr: errors.New("deadlock")}
	job := newExpiryJob(t, reader, orderStore, &fakeExpiryIntentStore{})

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected combined error")
	}
}

func TestOrderExpiryJobWithoutLinkedIntent(t *testing.T) {
	reader := &fakePendingReader{orders: []models.Order{staleOrder("pi_orphan")}}
	orderStore := &fakeExpiryOrderStore{cancelRows: 1}
	intentStore := &fakeExpiryIntentStore{}
	job := newExpiryJob(t, reader, orderStore, intentStore)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(intentStore.cancelled) != 0 {
		t.Fatal("no intent to cancel")
	}
}
