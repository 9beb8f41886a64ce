package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/streamcart-live/streamcart-backend/pkg/db/models"
	"github.com/streamcart-live/streamcart-backend/pkg/enums"
	pkgerrors "github.com/streamcart-live/streamcart-backend/pkg/errors"
	"github.com/streamcart-live/streamcart-backend/pkg/logger"
	"github.com/streamcart-live/streamcart-backend/pkg/types"
)

const paymentConfirmedEvent = "payment_confirmed"

type sellerReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Seller, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Seller, error)
}

// Emitter writes pipeline notifications at most once per (order, event) pair.
// Emits run after the payment transaction commits, so a crash between commit
// and emit loses the notification rather than duplicating it.
type Emitter struct {
	repo    Repository
	sellers sellerReader
	logg    *logger.Logger
}

// PaymentConfirmedParams describe the order a confirmation is emitted for.
type PaymentConfirmedParams struct {
	Order   *models.Order
	BatchID uuid.UUID
}

// NewEmitter wires emitter dependencies. The seller reader is optional; when
// absent, notifications fall back to a generic message.
func NewEmitter(repo Repository, sellers sellerReader, logg *logger.Logger) (*Emitter, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &Emitter{repo: repo, sellers: sellers, logg: logg}, nil
}

// EmitPaymentConfirmed writes the buyer's "payment confirmed" notification,
// deduplicating on metadata so webhook replays never double-notify.
func (e *Emitter) EmitPaymentConfirmed(ctx context.Context, params PaymentConfirmedParams) error {
	order := params.Order
	if order == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "order required")
	}

	exists, err := e.repo.ExistsOrderEvent(ctx, order.ID, paymentConfirmedEvent)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check notification dedup")
	}
	if exists {
		return nil
	}

	sellerName := e.resolveSellerName(ctx, order)
	metadata := types.JSONMap{
		"order_id":  order.ID.String(),
		"event":     paymentConfirmedEvent,
		"seller_id": order.SellerID.String(),
	}
	if order.SellerEntityID != nil {
		metadata["seller_entity_id"] = order.SellerEntityID.String()
	}
	if sellerName != "" {
		metadata["seller_name"] = sellerName
	}
	if params.BatchID != uuid.Nil {
		metadata["batch_id"] = params.BatchID.String()
	}

	message := "Your payment was confirmed. The order was added to your pickup batch."
	if sellerName != "" {
		message = fmt.Sprintf("Your payment to %s was confirmed. The order was added to your pickup batch.", sellerName)
	}

	notification := &models.Notification{
		ID:          uuid.New(),
		RecipientID: order.BuyerID,
		Type:        enums.NotificationTypePaymentConfirmed,
		Title:       "Payment confirmed",
		Message:     message,
		Metadata:    metadata,
	}
	if err := e.repo.Create(ctx, notification); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create notification")
	}
	return nil
}

// resolveSellerName prefers the canonical seller entity; orders created
// before seller entities existed only carry the seller's user id.
func (e *Emitter) resolveSellerName(ctx context.Context, order *models.Order) string {
	if e.sellers == nil {
		return ""
	}
	if order.SellerEntityID != nil && *order.SellerEntityID != uuid.Nil {
		seller, err := e.sellers.FindByID(ctx, *order.SellerEntityID)
		if err == nil {
			return seller.DisplayName
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			e.logg.Warn(e.logg.WithField(ctx, "seller_id", *order.SellerEntityID), "seller lookup for notification failed")
			return ""
		}
	}
	seller, err := e.sellers.FindByUserID(ctx, order.SellerID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			e.logg.Warn(e.logg.WithField(ctx, "seller_id", order.SellerID), "seller lookup for notification failed")
		}
		return ""
	}
	return seller.DisplayName
}
