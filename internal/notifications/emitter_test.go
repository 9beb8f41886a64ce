package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/streamcart-live/streamcart-backend/pkg/db/models"
	"github.com/streamcart-live/streamcart-backend/pkg/enums"
	"github.com/streamcart-live/streamcart-backend/pkg/logger"
	"github.com/streamcart-live/streamcart-backend/pkg/pagination"
)

func TestEmitPaymentConfirmedOnce(t *testing.T) {
	repo := &fakeNotificationStore{}
	sellers := &fakeSellerReader{seller: &models.Seller{DisplayName: "Retro Sneakers"}}
	emitter := newTestEmitter(t, repo, sellers)

	order := testOrder()
	batchID := uuid.New()

	err := emitter.EmitPaymentConfirmed(context.Background(), PaymentConfirmedParams{Order: order, BatchID: batchID})
	if err != nil {
		t.Fatalf("EmitPaymentConfirmed: %v", err)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected one notification, got %d", len(repo.created))
	}

	created := repo.created[0]
	if created.RecipientID != order.BuyerID {
		t.Fatalf("expected recipient %s, got %s", order.BuyerID, created.RecipientID)
	}
	if created.Type != enums.NotificationTypePaymentConfirmed {
		t.Fatalf("unexpected type %s", created.Type)
	}
	if got, _ := created.Metadata.String("event"); got != "payment_confirmed" {
		t.Fatalf("unexpected event metadata %q", got)
	}
	if got, _ := created.Metadata.String("order_id"); got != order.ID.String() {
		t.Fatalf("unexpected order metadata %q", got)
	}
	if got, _ := created.Metadata.String("batch_id"); got != batchID.String() {
		t.Fatalf("unexpected batch metadata %q", got)
	}
	if got, _ := created.Metadata.String("seller_name"); got != "Retro Sneakers" {
		t.Fatalf("unexpected seller name %q", got)
	}

	// A replayed emit finds the dedup row and writes nothing.
	if err := emitter.EmitPaymentConfirmed(context.Background(), PaymentConfirmedParams{Order: order, BatchID: batchID}); err != nil {
		t.Fatalf("replayed emit: %v", err)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected dedup to suppress the second notification, got %d", len(repo.created))
	}
}

func TestEmitPaymentConfirmedWithoutSellerLookup(t *testing.T) {
	repo := &fakeNotificationStore{}
	sellers := &fakeSellerReader{err: gorm.ErrRecordNotFound}
	emitter := newTestEmitter(t, repo, sellers)

	if err := emitter.EmitPaymentConfirmed(context.Background(), PaymentConfirmedParams{Order: testOrder()}); err != nil {
		t.Fatalf("EmitPaymentConfirmed: %v", err)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected one notification, got %d", len(repo.created))
	}
	if _, ok := repo.created[0].Metadata.String("seller_name"); ok {
		t.Fatal("expected no seller name when lookup misses")
	}
}

func TestEmitPaymentConfirmedResolvesLegacySellerName(t *testing.T) {
	repo := &fakeNotificationStore{}
	sellers := &fakeSellerReader{seller: &models.Seller{DisplayName: "Vintage Finds"}}
	emitter := newTestEmitter(t, repo, sellers)

	// Orders created before seller entities existed carry only the user id.
	if err := emitter.EmitPaymentConfirmed(context.Background(), PaymentConfirmedParams{Order: testOrder()}); err != nil {
		t.Fatalf("EmitPaymentConfirmed: %v", err)
	}
	if got, _ := repo.created[0].Metadata.String("seller_name"); got != "Vintage Finds" {
		t.Fatalf("expected legacy lookup to resolve the name, got %q", got)
	}
	if sellers.byUserID != 1 || sellers.byID != 0 {
		t.Fatalf("expected one user-id lookup and no entity lookup, got %d/%d", sellers.byUserID, sellers.byID)
	}
}

func TestEmitPaymentConfirmedPrefersSellerEntity(t *testing.T) {
	repo := &fakeNotificationStore{}
	sellers := &fakeSellerReader{seller: &models.Seller{DisplayName: "Retro Sneakers"}}
	emitter := newTestEmitter(t, repo, sellers)

	order := testOrder()
	entityID := uuid.New()
	order.SellerEntityID = &entityID

	if err := emitter.EmitPaymentConfirmed(context.Background(), PaymentConfirmedParams{Order: order}); err != nil {
		t.Fatalf("EmitPaymentConfirmed: %v", err)
	}
	if sellers.byID != 1 || sellers.byUserID != 0 {
		t.Fatalf("expected the entity lookup only, got %d/%d", sellers.byID, sellers.byUserID)
	}
}

func TestEmitPaymentConfirmedPropagatesStoreErrors(t *testing.T) {
	repo := &fakeNotificationStore{createErr: errors.New("insert failed")}
	emitter := newTestEmitter(t, repo, nil)

	if err := emitter.EmitPaymentConfirmed(context.Background(), PaymentConfirmedParams{Order: testOrder()}); err == nil {
		t.Fatal("expected error")
	}
}

func newTestEmitter(t *testing.T, repo Repository, sellers sellerReader) *Emitter {
	t.Helper()
	emitter, err := NewEmitter(repo, sellers, logger.New(logger.Options{ServiceName: "test"}))
	if err != nil {
		t.Fatalf("NewEmitter: %v", err)
	}
	return emitter
}

func testOrder() *models.Order {
	return &models.Order{
		ID:       uuid.New(),
		BuyerID:  uuid.New(),
		SellerID: uuid.New(),
	}
}

type fakeSellerReader struct {
	seller   *models.Seller
	err      error
	byID     int
	byUserID int
}

func (f *fakeSellerReader) FindByID(ctx context.Context, id uuid.UUID) (*models.Seller, error) {
	f.byID++
	if f.err != nil {
		return nil, f.err
	}
	return f.seller, nil
}

func (f *fakeSellerReader) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Seller, error) {
	f.byUserID++
	if f.err != nil {
		return nil, f.err
	}
	return f.seller, nil
}

type fakeNotificationStore struct {
	created   []*models.Notification
	createErr error
}

func (f *fakeNotificationStore) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeNotificationStore) Create(ctx context.Context, notification *models.Notification) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, notification)
	return nil
}

func (f *fakeNotificationStore) ExistsOrderEvent(ctx context.Context, orderID uuid.UUID, event string) (bool, error) {
	for _, n := range f.created {
		gotOrder, _ := n.Metadata.String("order_id")
		gotEvent, _ := n.Metadata.String("event")
		if gotOrder == orderID.String() && gotEvent == event {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeNotificationStore) List(ctx context.Context, params listNotificationsParams) ([]models.Notification, *pagination.Cursor, error) {
	return nil, nil, nil
}

func (f *fakeNotificationStore) MarkRead(ctx context.Context, recipientID, notificationID uuid.UUID, now time.Time) (notificationMarkResult, error) {
	return notificationMarkResult{}, nil
}

func (f *fakeNotificationStore) MarkAllRead(ctx context.Context, recipientID uuid.UUID, now time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeNotificationStore) DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	return 0, nil
}
