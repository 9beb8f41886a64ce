package intents

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/streamcart-live/streamcart-backend/pkg/db/models"
	"github.com/streamcart-live/streamcart-backend/pkg/enums"
)

func setupIntentsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	table := `
CREATE TABLE IF NOT EXISTS checkout_intents (
  id TEXT PRIMARY KEY,
  status TEXT NOT NULL DEFAULT 'intent',
  buyer_id TEXT NOT NULL,
  seller_id TEXT NOT NULL,
  seller_entity_id TEXT,
  show_id TEXT,
  product_id TEXT NOT NULL,
  quantity INTEGER NOT NULL DEFAULT 1,
  price NUMERIC NOT NULL,
  delivery_fee NUMERIC NOT NULL DEFAULT 0,
  stripe_payment_intent_id TEXT,
  order_id TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(table).Error)
	return db
}

func newIntent(t *testing.T, db *gorm.DB, status enums.IntentStatus) *models.CheckoutIntent {
	t.Helper()

	paymentIntentID := "pi_" + uuid.NewString()
	intent := &models.CheckoutIntent{
		ID:                    uuid.New(),
		Status:                status,
		BuyerID:               uuid.New(),
		SellerID:              uuid.New(),
		ProductID:             uuid.New(),
		Quantity:              1,
		Price:                 decimal.NewFromFloat(40.00),
		StripePaymentIntentID: &paymentIntentID,
		CreatedAt:             time.Now().UTC(),
		UpdatedAt:             time.Now().UTC(),
	}
	require.NoError(t, db.Create(intent).Error)
	return intent
}

func TestConvertGuardedByStatus(t *testing.T) {
	db := setupIntentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	intent := newIntent(t, db, enums.IntentStatusLocked)
	orderID := uuid.New()

	rows, err := repo.Convert(ctx, intent.ID, orderID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	stored, err := repo.FindByID(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.IntentStatusConverted, stored.Status)
	require.NotNil(t, stored.OrderID)
	assert.Equal(t, orderID, *stored.OrderID)

	// Converted is terminal; a second conversion or a cancel changes nothing.
	rows, err = repo.Convert(ctx, intent.ID, uuid.New())
	require.NoError(t, err)
	assert.Zero(t, rows)

	rows, err = repo.Cancel(ctx, intent.ID)
	require.NoError(t, err)
	assert.Zero(t, rows)

	stored, err = repo.FindByID(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.IntentStatusConverted, stored.Status)
	assert.Equal(t, orderID, *stored.OrderID)
}

func TestCancelOnlyConvertibleIntents(t *testing.T) {
	db := setupIntentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	open := newIntent(t, db, enums.IntentStatusIntent)
	rows, err := repo.Cancel(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	stored, err := repo.FindByID(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.IntentStatusCancelled, stored.Status)

	rows, err = repo.Cancel(ctx, open.ID)
	require.NoError(t, err)
	assert.Zero(t, rows)
}

func TestFindByPaymentIntentID(t *testing.T) {
	db := setupIntentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	intent := newIntent(t, db, enums.IntentStatusIntent)

	stored, err := repo.FindByPaymentIntentID(ctx, *intent.StripePaymentIntentID)
	require.NoError(t, err)
	assert.Equal(t, intent.ID, stored.ID)

	_, err = repo.FindByPaymentIntentID(ctx, "pi_missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
