package payments

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/streamcart-live/streamcart-backend/internal/notifications"
	"github.com/streamcart-live/streamcart-backend/pkg/db/models"
	"github.com/streamcart-live/streamcart-backend/pkg/enums"
	"github.com/streamcart-live/streamcart-backend/pkg/logger"
)

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubOrderStore struct {
	order     *models.Order
	findErr   error
	created   []*models.Order
	claimRows int64
	claimErr  error
	claims    []string
	failures  []string
	cancels   []string
}

func (s *stubOrderStore) Create(ctx context.Context, order *models.Order) error {
	s.created = append(s.created, order)
	return nil
}

func (s *stubOrderStore) FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Order, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	if s.order == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.order, nil
}

func (s *stubOrderStore) ClaimAndMarkPaid(ctx context.Context, orderID uuid.UUID, eventID string, paidAt time.Time) (int64, error) {
	if s.claimErr != nil {
		return 0, s.claimErr
	}
	s.claims = append(s.claims, eventID)
	return s.claimRows, nil
}

func (s *stubOrderStore) ClaimAndRecordFailure(ctx context.Context, orderID uuid.UUID, eventID, reason string) (int64, error) {
	if s.claimErr != nil {
		return 0, s.claimErr
	}
	s.failures = append(s.failures, reason)
	return s.claimRows, nil
}

func (s *stubOrderStore) ClaimAndCancel(ctx context.Context, orderID uuid.UUID, eventID string) (int64, error) {
	if s.claimErr != nil {
		return 0, s.claimErr
	}
	s.cancels = append(s.cancels, eventID)
	return s.claimRows, nil
}

type stubIntentStore struct {
	intent      *models.CheckoutIntent
	convertRows int64
	converted   []uuid.UUID
	cancelRows  int64
	cancelled   []uuid.UUID
}

func (s *stubIntentStore) FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.CheckoutIntent, error) {
	if s.intent == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.intent, nil
}

func (s *stubIntentStore) Convert(ctx context.Context, intentID, orderID uuid.UUID) (int64, error) {
	s.converted = append(s.converted, orderID)
	return s.convertRows, nil
}

func (s *stubIntentStore) Cancel(ctx context.Context, intentID uuid.UUID) (int64, error) {
	s.cancelled = append(s.cancelled, intentID)
	return s.cancelRows, nil
}

type stubAttacher struct {
	batchID uuid.UUID
	err     error
	orders  []*models.Order
}

func (s *stubAttacher) AttachPaidOrder(ctx context.Context, tx *gorm.DB, order *models.Order) (uuid.UUID, error) {
	if s.err != nil {
		return uuid.Nil, s.err
	}
	s.orders = append(s.orders, order)
	return s.batchID, nil
}

type stubNotifier struct {
	params []notifications.PaymentConfirmedParams
	err    error
}

func (s *stubNotifier) EmitPaymentConfirmed(ctx context.Context, params notifications.PaymentConfirmedParams) error {
	if s.err != nil {
		return s.err
	}
	s.params = append(s.params, params)
	return nil
}

type stubShowCounter struct {
	deltas map[uuid.UUID]int
	err    error
}

func (s *stubShowCounter) IncrementSalesCount(ctx context.Context, showID uuid.UUID, delta int) error {
	if s.err != nil {
		return s.err
	}
	if s.deltas == nil {
		s.deltas = map[uuid.UUID]int{}
	}
	s.deltas[showID] += delta
	return nil
}

type serviceFixture struct {
	service  *Service
	orders   *stubOrderStore
	intents  *stubIntentStore
	attacher *stubAttacher
	notifier *stubNotifier
	shows    *stubShowCounter
}

func newServiceFixture(t *testing.T, orderStub *stubOrderStore, intentStub *stubIntentStore) *serviceFixture {
	t.Helper()
	fixture := &serviceFixture{
		orders:   orderStub,
		intents:  intentStub,
		attacher: &stubAttacher{batchID: uuid.New()},
		notifier: &stubNotifier{},
		shows:    &stubShowCounter{},
	}
	service, err := NewService(ServiceParams{
		Logger:             logger.New(logger.Options{ServiceName: "test"}),
		TransactionRunner:  stubTxRunner{},
		Batches:            fixture.attacher,
		Notifier:           fixture.notifier,
		Shows:              fixture.shows,
		OrderStoreFactory:  func(tx *gorm.DB) orderStore { return fixture.orders },
		IntentStoreFactory: func(tx *gorm.DB) intentStore { return fixture.intents },
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	fixture.service = service
	return fixture
}

func pendingOrder(showID *uuid.UUID) *models.Order {
	pi := "pi_123"
	return &models.Order{
		ID:                    uuid.New(),
		BuyerID:               uuid.New(),
		SellerID:              uuid.New(),
		ProductID:             uuid.New(),
		ShowID:                showID,
		Quantity:              2,
		Price:                 decimal.NewFromFloat(19.99),
		Status:                enums.OrderStatusPending,
		StripePaymentIntentID: &pi,
	}
}

func succeededParams() EventParams {
	return EventParams{
		EventID:         "evt_1",
		PaymentIntentID: "pi_123",
		OccurredAt:      time.Now().UTC(),
	}
}

func TestHandlePaymentSucceeded(t *testing.T) {
	showID := uuid.New()
	fixture := newServiceFixture(t, &stubOrderStore{order: pendingOrder(&showID), claimRows: 1}, &stubIntentStore{})

	outcome, err := fixture.service.HandlePaymentSucceeded(context.Background(), succeededParams())
	if err != nil {
		t.Fatalf("HandlePaymentSucceeded: %v", err)
	}
	if outcome != OutcomeProcessed {
		t.Fatalf("expected processed, got %s", outcome)
	}
	if len(fixture.attacher.orders) != 1 {
		t.Fatalf("expected one batch attach, got %d", len(fixture.attacher.orders))
	}
	if len(fixture.notifier.params) != 1 {
		t.Fatalf("expected one notification, got %d", len(fixture.notifier.params))
	}
	if fixture.notifier.params[0].BatchID != fixture.attacher.batchID {
		t.Fatal("notification should carry the resolved batch id")
	}
	if fixture.shows.deltas[showID] != 2 {
		t.Fatalf("expected sales count bumped by quantity, got %d", fixture.shows.deltas[showID])
	}
}

func TestHandlePaymentSucceededDuplicate(t *testing.T) {
	fixture := newServiceFixture(t, &stubOrderStore{order: pendingOrder(nil), claimRows: 0}, &stubIntentStore{})

	outcome, err := fixture.service.HandlePaymentSucceeded(context.Background(), succeededParams())
	if err != nil {
		t.Fatalf("HandlePaymentSucceeded: %v", err)
	}
	if outcome != OutcomeDuplicate {
		t.Fatalf("expected duplicate, got %s", outcome)
	}
	if len(fixture.attacher.orders) != 0 {
		t.Fatal("duplicate must not touch batches")
	}
	if len(fixture.notifier.params) != 0 {
		t.Fatal("duplicate must not notify")
	}
}

func TestHandlePaymentSucceededConvertsIntent(t *testing.T) {
	intent := &models.CheckoutIntent{
		ID:        uuid.New(),
		BuyerID:   uuid.New(),
		SellerID:  uuid.New(),
		ProductID: uuid.New(),
		Quantity:  1,
		Price:     decimal.NewFromFloat(10),
		Status:    enums.IntentStatusLocked,
	}
	orderStub := &stubOrderStore{claimRows: 1}
	fixture := newServiceFixture(t, orderStub, &stubIntentStore{intent: intent, convertRows: 1})

	outcome, err := fixture.service.HandlePaymentSucceeded(context.Background(), succeededParams())
	if err != nil {
		t.Fatalf("HandlePaymentSucceeded: %v", err)
	}
	if outcome != OutcomeProcessed {
		t.Fatalf("expected processed, got %s", outcome)
	}
	if len(orderStub.created) != 1 {
		t.Fatalf("expected order created from intent, got %d", len(orderStub.created))
	}
	created := orderStub.created[0]
	if created.BuyerID != intent.BuyerID || created.ProductID != intent.ProductID {
		t.Fatal("created order must inherit the intent fields")
	}
	if created.StripePaymentIntentID == nil || *created.StripePaymentIntentID != "pi_123" {
		t.Fatal("created order must record the payment intent id")
	}
	if len(fixture.intents.converted) != 1 || fixture.intents.converted[0] != created.ID {
		t.Fatal("intent must convert to the created order")
	}
}

func TestHandlePaymentSucceededIntentAlreadyConverted(t *testing.T) {
	intent := &models.CheckoutIntent{ID: uuid.New(), Status: enums.IntentStatusConverted}
	fixture := newServiceFixture(t, &stubOrderStore{}, &stubIntentStore{intent: intent, convertRows: 0})

	outcome, err := fixture.service.HandlePaymentSucceeded(context.Background(), succeededParams())
	if err != nil {
		t.Fatalf("HandlePaymentSucceeded: %v", err)
	}
	if outcome != OutcomeSkipped {
		t.Fatalf("expected skipped, got %s", outcome)
	}
	if len(fixture.notifier.params) != 0 {
		t.Fatal("lost conversion race must not notify")
	}
}

func TestHandlePaymentSucceededUnknownPaymentIntent(t *testing.T) {
	fixture := newServiceFixture(t, &stubOrderStore{}, &stubIntentStore{})

	outcome, err := fixture.service.HandlePaymentSucceeded(context.Background(), succeededParams())
	if err != nil {
		t.Fatalf("HandlePaymentSucceeded: %v", err)
	}
	if outcome != OutcomeSkipped {
		t.Fatalf("expected skipped, got %s", outcome)
	}
}

func TestHandlePaymentSucceededLogsDistinguishSkippedFromDuplicate(t *testing.T) {
	tests := []struct {
		name    string
		orders  *stubOrderStore
		want    string
		exclude string
	}{
		{
			name:    "unknown payment intent",
			orders:  &stubOrderStore{},
			want:    "payment event matched no order or checkout intent",
			exclude: "payment event already applied",
		},
		{
			name:    "claim lost",
			orders:  &stubOrderStore{order: pendingOrder(nil), claimRows: 0},
			want:    "payment event already applied",
			exclude: "payment event matched no order or checkout intent",
		},
	}

	for _, tt := range tests {
		buf := &bytes.Buffer{}
		service, err := NewService(ServiceParams{
			Logger:             logger.New(logger.Options{ServiceName: "test", Output: buf}),
			TransactionRunner:  stubTxRunner{},
			Batches:            &stubAttacher{batchID: uuid.New()},
			Notifier:           &stubNotifier{},
			Shows:              &stubShowCounter{},
			OrderStoreFactory:  func(tx *gorm.DB) orderStore { return tt.orders },
			IntentStoreFactory: func(tx *gorm.DB) intentStore { return &stubIntentStore{} },
		})
		if err != nil {
			t.Fatalf("%s: NewService: %v", tt.name, err)
		}

		if _, err := service.HandlePaymentSucceeded(context.Background(), succeededParams()); err != nil {
			t.Fatalf("%s: HandlePaymentSucceeded: %v", tt.name, err)
		}
		if !strings.Contains(buf.String(), tt.want) {
			t.Fatalf("%s: expected log %q, got %s", tt.name, tt.want, buf.String())
		}
		if strings.Contains(buf.String(), tt.exclude) {
			t.Fatalf("%s: unexpected log %q in %s", tt.name, tt.exclude, buf.String())
		}
	}
}

func TestHandlePaymentSucceededAttachFailurePropagates(t *testing.T) {
	fixture := newServiceFixture(t, &stubOrderStore{order: pendingOrder(nil), claimRows: 1}, &stubIntentStore{})
	fixture.attacher.err = errors.New("batch attach failed")

	_, err := fixture.service.HandlePaymentSucceeded(context.Background(), succeededParams())
	if err == nil {
		t.Fatal("expected attach failure to surface for the provider retry")
	}
	if len(fixture.notifier.params) != 0 {
		t.Fatal("failed transaction must not notify")
	}
}

func TestHandlePaymentSucceededNotifierFailureAbsorbed(t *testing.T) {
	fixture := newServiceFixture(t, &stubOrderStore{order: pendingOrder(nil), claimRows: 1}, &stubIntentStore{})
	fixture.notifier.err = errors.New("notification insert failed")

	outcome, err := fixture.service.HandlePaymentSucceeded(context.Background(), succeededParams())
	if err != nil {
		t.Fatalf("notifier failure must stay best effort: %v", err)
	}
	if outcome != OutcomeProcessed {
		t.Fatalf("expected processed, got %s", outcome)
	}
}

func TestHandlePaymentFailed(t *testing.T) {
	orderStub := &stubOrderStore{order: pendingOrder(nil), claimRows: 1}
	fixture := newServiceFixture(t, orderStub, &stubIntentStore{})

	params := succeededParams()
	params.FailureReason = "card_declined"
	outcome, err := fixture.service.HandlePaymentFailed(context.Background(), params)
	if err != nil {
		t.Fatalf("HandlePaymentFailed: %v", err)
	}
	if outcome != OutcomeProcessed {
		t.Fatalf("expected processed, got %s", outcome)
	}
	if len(orderStub.failures) != 1 || orderStub.failures[0] != "card_declined" {
		t.Fatalf("expected failure reason recorded, got %v", orderStub.failures)
	}
}

func TestHandlePaymentFailedWithoutOrder(t *testing.T) {
	fixture := newServiceFixture(t, &stubOrderStore{}, &stubIntentStore{})

	outcome, err := fixture.service.HandlePaymentFailed(context.Background(), succeededParams())
	if err != nil {
		t.Fatalf("HandlePaymentFailed: %v", err)
	}
	if outcome != OutcomeSkipped {
		t.Fatalf("expected skipped, got %s", outcome)
	}
}

func TestHandlePaymentCanceledCancelsOrderAndIntent(t *testing.T) {
	orderStub := &stubOrderStore{order: pendingOrder(nil), claimRows: 1}
	intentStub := &stubIntentStore{
		intent:     &models.CheckoutIntent{ID: uuid.New(), Status: enums.IntentStatusLocked},
		cancelRows: 1,
	}
	fixture := newServiceFixture(t, orderStub, intentStub)

	outcome, err := fixture.service.HandlePaymentCanceled(context.Background(), succeededParams())
	if err != nil {
		t.Fatalf("HandlePaymentCanceled: %v", err)
	}
	if outcome != OutcomeProcessed {
		t.Fatalf("expected processed, got %s", outcome)
	}
	if len(orderStub.cancels) != 1 {
		t.Fatal("expected order cancel claim")
	}
	if len(intentStub.cancelled) != 1 {
		t.Fatal("expected linked intent cancelled")
	}
}

func TestHandlePaymentCanceledIntentOnly(t *testing.T) {
	intentStub := &stubIntentStore{
		intent:     &models.CheckoutIntent{ID: uuid.New(), Status: enums.IntentStatusIntent},
		cancelRows: 1,
	}
	fixture := newServiceFixture(t, &stubOrderStore{}, intentStub)

	outcome, err := fixture.service.HandlePaymentCanceled(context.Background(), succeededParams())
	if err != nil {
		t.Fatalf("HandlePaymentCanceled: %v", err)
	}
	if outcome != OutcomeProcessed {
		t.Fatalf("expected processed, got %s", outcome)
	}
	if len(intentStub.cancelled) != 1 {
		t.Fatal("expected intent cancelled")
	}
}

func TestHandlePaymentCanceledNothingToCancel(t *testing.T) {
	fixture := newServiceFixture(t, &stubOrderStore{}, &stubIntentStore{})

	outcome, err := fixture.service.HandlePaymentCanceled(context.Background(), succeededParams())
	if err != nil {
		t.Fatalf("HandlePaymentCanceled: %v", err)
	}
	if outcome != OutcomeSkipped {
		t.Fatalf("expected skipped, got %s", outcome)
	}
}

func TestEventParamsValidation(t *testing.T) {
	fixture := newServiceFixture(t, &stubOrderStore{}, &stubIntentStore{})

	if _, err := fixture.service.HandlePaymentSucceeded(context.Background(), EventParams{PaymentIntentID: "pi_1"}); err == nil {
		t.Fatal("expected missing event id to fail")
	}
	if _, err := fixture.service.HandlePaymentFailed(context.Background(), EventParams{EventID: "evt_1"}); err == nil {
		t.Fatal("expected missing payment intent id to fail")
	}
}
