package batches

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/streamcart-live/streamcart-backend/internal/orders"
	"github.com/streamcart-live/streamcart-backend/pkg/db"
	"github.com/streamcart-live/streamcart-backend/pkg/db/models"
	"github.com/streamcart-live/streamcart-backend/pkg/enums"
	pkgerrors "github.com/streamcart-live/streamcart-backend/pkg/errors"
	"github.com/streamcart-live/streamcart-backend/pkg/logger"
	"github.com/streamcart-live/streamcart-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type batchOrderStore interface {
	AttachToBatch(ctx context.Context, orderID, batchID uuid.UUID) (int64, error)
	MarkPickedUpByBatch(ctx context.Context, batchID uuid.UUID) (int64, error)
}

type orderStoreFactory func(tx *gorm.DB) batchOrderStore

func defaultOrderStore(tx *gorm.DB) batchOrderStore {
	return orders.NewRepository(tx)
}

// ServiceParams configure the batch service.
type ServiceParams struct {
	Logger            *logger.Logger
	Repo              Repository
	TransactionRunner txRunner
	OrderStoreFactory orderStoreFactory
}

// Service owns the open-batch lifecycle: resolve, attach, recompute, pick up.
type Service struct {
	logg       *logger.Logger
	repo       Repository
	txRunner   txRunner
	orderStore orderStoreFactory
	now        func() time.Time
}

// NewService wires batch dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "batches repository required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	orderStore := params.OrderStoreFactory
	if orderStore == nil {
		orderStore = defaultOrderStore
	}
	return &Service{
		logg:       params.Logger,
		repo:       params.Repo,
		txRunner:   params.TransactionRunner,
		orderStore: orderStore,
		now:        time.Now,
	}, nil
}

// AttachPaidOrder places a freshly paid order into the single open batch for
// its (buyer, seller, show) key, creating the batch when none exists, and
// recomputes the batch totals. It must run inside the payment transaction so
// a failed attach rolls the payment transition back for the provider retry.
func (s *Service) AttachPaidOrder(ctx context.Context, tx *gorm.DB, order *models.Order) (uuid.UUID, error) {
	if order == nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeInternal, "order required")
	}
	repo := s.repo.WithTx(tx)

	batch, err := s.resolveOpen(ctx, repo, order)
	if err != nil {
		return uuid.Nil, err
	}

	target := batch.ID
	rows, err := s.orderStore(tx).AttachToBatch(ctx, order.ID, batch.ID)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attach order to batch")
	}
	if rows == 0 && order.BatchID != nil {
		// Already attached by an earlier event; recompute the original batch.
		target = *order.BatchID
	}

	if batch.Status == enums.BatchStatusActive && target == batch.ID {
		if _, err := repo.Promote(ctx, batch.ID); err != nil {
			return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "promote batch")
		}
	}

	if err := s.Recompute(ctx, tx, target); err != nil {
		return uuid.Nil, err
	}
	return target, nil
}

func (s *Service) resolveOpen(ctx context.Context, repo Repository, order *models.Order) (*models.PickupBatch, error) {
	buyerID := order.BuyerID
	sellerID := order.SellerKey()

	batch, err := repo.FindOpen(ctx, buyerID, sellerID, order.ShowID)
	if err == nil {
		return batch, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find open batch")
	}

	now := s.now().UTC()
	number := newBatchNumber(buyerID, order.ShowID, now)
	code, err := newCompletionCode()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate completion code")
	}

	created := &models.PickupBatch{
		ID:             uuid.New(),
		BatchNumber:    number,
		CompletionCode: code,
		BuyerID:        buyerID,
		SellerID:       sellerID,
		ShowID:         order.ShowID,
		Status:         enums.BatchStatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := repo.Create(ctx, created); err != nil {
		if db.IsUniqueViolation(err, OpenBatchConstraint) {
			// Lost the find-or-create race; the winner's row is committed.
			winner, findErr := repo.FindOpen(ctx, buyerID, sellerID, order.ShowID)
			if findErr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "reread open batch after race")
			}
			return winner, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create batch")
	}
	return created, nil
}

// Recompute rebuilds the batch totals from the attached orders. Totals are
// never incremented in place; the full recompute keeps replays harmless.
func (s *Service) Recompute(ctx context.Context, tx *gorm.DB, batchID uuid.UUID) error {
	repo := s.repo.WithTx(tx)
	items, amount, err := repo.AggregateTotals(ctx, batchID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate batch totals")
	}
	if err := repo.UpdateTotals(ctx, batchID, items, amount); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update batch totals")
	}
	return nil
}

// CompletePickup closes a pending batch at the counter after verifying the
// buyer's completion code, and moves every collectible member order along.
func (s *Service) CompletePickup(ctx context.Context, batchID uuid.UUID, code string) (*models.PickupBatch, error) {
	if batchID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "batch id required")
	}
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "completion code required")
	}

	var completed *models.PickupBatch
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		batch, err := repo.FindByID(ctx, batchID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "batch not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load batch")
		}
		if batch.Status != enums.BatchStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "batch is not awaiting pickup")
		}
		if subtle.ConstantTimeCompare([]byte(batch.CompletionCode), []byte(code)) != 1 {
			return pkgerrors.New(pkgerrors.CodeForbidden, "completion code mismatch")
		}

		now := s.now().UTC()
		rows, err := repo.MarkPickedUp(ctx, batchID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark batch picked up")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "batch is not awaiting pickup")
		}
		if _, err := s.orderStore(tx).MarkPickedUpByBatch(ctx, batchID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark batch orders picked up")
		}

		batch.Status = enums.BatchStatusPickedUp
		batch.PickedUpAt = &now
		completed = batch
		return nil
	})
	if err != nil {
		return nil, err
	}
	return completed, nil
}

// List returns the buyer's batches, newest first.
func (s *Service) List(ctx context.Context, buyerID uuid.UUID, limit int, cursor string) (*ListResult, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	query := ListQuery{BuyerID: buyerID, Limit: limit}
	if cursor != "" {
		parsed, err := pagination.ParseCursor(cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = parsed
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list batches")
	}
	result := &ListResult{Items: rows}
	if next != nil {
		result.Cursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

// Detail loads one batch scoped to its buyer.
func (s *Service) Detail(ctx context.Context, buyerID, batchID uuid.UUID) (*models.PickupBatch, error) {
	if buyerID == uuid.Nil || batchID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id and batch id required")
	}
	batch, err := s.repo.FindByID(ctx, batchID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "batch not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load batch")
	}
	if batch.BuyerID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "batch not found")
	}
	return batch, nil
}

// ListResult wraps returned batches and the cursor for the next page.
type ListResult struct {
	Items  []models.PickupBatch `json:"items"`
	Cursor string               `json:"cursor"`
}
