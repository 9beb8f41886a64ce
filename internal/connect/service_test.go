package connect

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/streamcart-live/streamcart-backend/pkg/db/models"
	"github.com/streamcart-live/streamcart-backend/pkg/logger"
)

type stubSellerStore struct {
	seller       *models.Seller
	connectRows  int64
	connected    []uuid.UUID
	deauthRows   int64
	deauthorized []string
}

func (s *stubSellerStore) FindByStripeAccountID(ctx context.Context, accountID string) (*models.Seller, error) {
	if s.seller == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.seller, nil
}

func (s *stubSellerStore) MarkConnected(ctx context.Context, sellerID uuid.UUID, now time.Time) (int64, error) {
	s.connected = append(s.connected, sellerID)
	return s.connectRows, nil
}

func (s *stubSellerStore) MarkDeauthorized(ctx context.Context, accountID string, now time.Time) (int64, error) {
	s.deauthorized = append(s.deauthorized, accountID)
	return s.deauthRows, nil
}

func newConnectService(t *testing.T, store *stubSellerStore) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Logger:  logger.New(logger.Options{ServiceName: "test"}),
		Sellers: store,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return service
}

func TestHandleAccountUpdatedConnects(t *testing.T) {
	store := &stubSellerStore{seller: &models.Seller{ID: uuid.New()}, connectRows: 1}
	service := newConnectService(t, store)

	outcome, err := service.HandleAccountUpdated(context.Background(), AccountEventParams{
		EventID:        "evt_1",
		AccountID:      "acct_1",
		ChargesEnabled: true,
		PayoutsEnabled: true,
	})
	if err != nil {
		t.Fatalf("HandleAccountUpdated: %v", err)
	}
	if outcome != OutcomeProcessed {
		t.Fatalf("expected processed, got %s", outcome)
	}
	if len(store.connected) != 1 {
		t.Fatalf("expected one connect write, got %d", len(store.connected))
	}
}

func TestHandleAccountUpdatedIgnoresPartialEnablement(t *testing.T) {
	store := &stubSellerStore{seller: &models.Seller{ID: uuid.New()}, connectRows: 1}
	service := newConnectService(t, store)

	outcome, err := service.HandleAccountUpdated(context.Background(), AccountEventParams{
		EventID:        "evt_1",
		AccountID:      "acct_1",
		ChargesEnabled: true,
		PayoutsEnabled: false,
	})
	if err != nil {
		t.Fatalf("HandleAccountUpdated: %v", err)
	}
	if outcome != OutcomeSkipped {
		t.Fatalf("expected skipped, got %s", outcome)
	}
	if len(store.connected) != 0 {
		t.Fatal("partial enablement must not write")
	}
}

func TestHandleAccountUpdatedUnknownAccount(t *testing.T) {
	service := newConnectService(t, &stubSellerStore{})

	outcome, err := service.HandleAccountUpdated(context.Background(), AccountEventParams{
		EventID:        "evt_1",
		AccountID:      "acct_missing",
		ChargesEnabled: true,
		PayoutsEnabled: true,
	})
	if err != nil {
		t.Fatalf("HandleAccountUpdated: %v", err)
	}
	if outcome != OutcomeSkipped {
		t.Fatalf("expected skipped, got %s", outcome)
	}
}

func TestHandleAccountUpdatedAfterDeauthorization(t *testing.T) {
	// The repository guard reports zero rows once the latch is set.
	store := &stubSellerStore{seller: &models.Seller{ID: uuid.New()}, connectRows: 0}
	service := newConnectService(t, store)

	outcome, err := service.HandleAccountUpdated(context.Background(), AccountEventParams{
		EventID:        "evt_1",
		AccountID:      "acct_1",
		ChargesEnabled: true,
		PayoutsEnabled: true,
	})
	if err != nil {
		t.Fatalf("HandleAccountUpdated: %v", err)
	}
	if outcome != OutcomeDuplicate {
		t.Fatalf("expected duplicate, got %s", outcome)
	}
}

func TestHandleCapabilityUpdated(t *testing.T) {
	cases := []struct {
		name       string
		capability string
		active     bool
		want       Outcome
		writes     int
	}{
		{"active card payments", "card_payments", true, OutcomeProcessed, 1},
		{"active transfers", "transfers", true, OutcomeProcessed, 1},
		{"inactive capability", "card_payments", false, OutcomeSkipped, 0},
		{"unrelated capability", "tax_reporting_us_1099_k", true, OutcomeSkipped, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &stubSellerStore{seller: &models.Seller{ID: uuid.New()}, connectRows: 1}
			service := newConnectService(t, store)

			outcome, err := service.HandleCapabilityUpdated(context.Background(), CapabilityEventParams{
				EventID:    "evt_1",
				AccountID:  "acct_1",
				Capability: tc.capability,
				Active:     tc.active,
			})
			if err != nil {
				t.Fatalf("HandleCapabilityUpdated: %v", err)
			}
			if outcome != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, outcome)
			}
			if len(store.connected) != tc.writes {
				t.Fatalf("expected %d connect writes, got %d", tc.writes, len(store.connected))
			}
		})
	}
}

func TestHandleDeauthorized(t *testing.T) {
	store := &stubSellerStore{deauthRows: 1}
	service := newConnectService(t, store)

	outcome, err := service.HandleDeauthorized(context.Background(), DeauthorizedParams{EventID: "evt_1", AccountID: "acct_1"})
	if err != nil {
		t.Fatalf("HandleDeauthorized: %v", err)
	}
	if outcome != OutcomeProcessed {
		t.Fatalf("expected processed, got %s", outcome)
	}
	if len(store.deauthorized) != 1 || store.deauthorized[0] != "acct_1" {
		t.Fatalf("expected deauthorization for acct_1, got %v", store.deauthorized)
	}

	// Replays match the latch guard and report zero rows.
	store.deauthRows = 0
	outcome, err = service.HandleDeauthorized(context.Background(), DeauthorizedParams{EventID: "evt_1", AccountID: "acct_1"})
	if err != nil {
		t.Fatalf("HandleDeauthorized replay: %v", err)
	}
	if outcome != OutcomeDuplicate {
		t.Fatalf("expected duplicate, got %s", outcome)
	}
}
